// Copyright 2025 MRCIS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/mrcis/mrcis/internal/bootstrap"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
	"github.com/mrcis/mrcis/pkg/pipeline"
	"github.com/mrcis/mrcis/pkg/scanner"
)

// runInit creates the schema, reconciles declared repositories and reports
// what a first indexing pass would cover. Repository paths are validated by
// configuration loading.
func runInit(args []string) int {
	var globals GlobalFlags
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	addGlobalFlags(fs, &globals)
	_ = fs.Parse(args)
	ui.InitColors(globals.NoColor)

	cfg := loadConfigOrExit(globals)
	logger := setupLogging(cfg)
	ctx := context.Background()

	rt, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{SkipEmbedderProbe: true})
	if err != nil {
		errors.FatalError(errors.NewRuntimeError(
			"Cannot initialize the MRCIS data directory",
			err.Error(),
			"Check permissions on the storage data_directory",
			err,
		), globals.JSON)
	}
	defer rt.Stop()

	result, err := pipeline.NewReconciler(rt.Store, cfg, logger).Reconcile(ctx)
	if err != nil {
		errors.FatalError(errors.NewRuntimeError("Reconciliation failed", err.Error(), "", err), globals.JSON)
	}

	progress := NewProgressConfig(globals)
	ui.Header("MRCIS Initialized")
	fmt.Printf("%s %s\n", ui.Label("Data directory:"), ui.DimText(cfg.DataDirectory()))
	fmt.Printf("%s %s added, %s unchanged, %s not in config\n",
		ui.Label("Repositories:"),
		ui.CountText(len(result.Added)),
		ui.CountText(len(result.Unchanged)),
		ui.CountText(len(result.Removed)),
	)

	for i := range cfg.Repositories {
		repo := &cfg.Repositories[i]
		spinner := NewSpinner(progress, "scanning "+repo.Name)
		files, err := scanner.New(repo.Path, cfg.Files, repo, logger).Scan()
		if spinner != nil {
			_ = spinner.Finish()
		}
		if err != nil {
			ui.Warningf("scan of %s failed: %v", repo.Name, err)
			continue
		}
		fmt.Printf("  %s %s indexable files %s\n",
			ui.Label(repo.Name+":"), ui.CountText(len(files)), ui.DimText(repo.Path))
	}

	for _, name := range result.Removed {
		ui.Warningf("repository %q exists in the database but not in the configuration", name)
	}

	ui.Success("schema ready; run 'mrcis serve' to start indexing")
	return errors.ExitSuccess
}
