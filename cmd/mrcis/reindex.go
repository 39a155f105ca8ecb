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

	flag "github.com/spf13/pflag"

	"github.com/mrcis/mrcis/internal/bootstrap"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
)

// runReindex marks every file of a repository pending and enqueues them.
// The command needs the writer lock; it refuses to run next to an active
// writer instance.
func runReindex(args []string) int {
	var (
		globals GlobalFlags
		force   bool
	)
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	addGlobalFlags(fs, &globals)
	fs.BoolVar(&force, "force", false, "Reset failure counters as well")
	_ = fs.Parse(args)
	ui.InitColors(globals.NoColor)

	if fs.NArg() < 1 {
		ui.Error("usage: mrcis reindex REPOSITORY [--config FILE] [--force]")
		return errors.ExitError
	}
	repoName := fs.Arg(0)

	cfg := loadConfigOrExit(globals)
	logger := setupLogging(cfg)
	ctx := context.Background()

	rt, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{SkipEmbedderProbe: true})
	if err != nil {
		errors.FatalError(errors.NewRuntimeError("Cannot open the MRCIS data directory", err.Error(), "Run 'mrcis init' first", err), globals.JSON)
	}
	defer rt.Stop()

	if !rt.Lock.TryAcquire() {
		errors.FatalError(errors.NewRuntimeError(
			"Another instance holds the writer lock",
			"Reindexing mutates the index and requires the writer role",
			"Stop the running writer, or wait for its lock to expire",
			nil,
		), globals.JSON)
	}

	marked, err := rt.Indexer.Reindex(ctx, repoName, force)
	if err != nil {
		errors.FatalError(errors.NewRuntimeError("Reindex failed", err.Error(), "", err), globals.JSON)
	}

	ui.Successf("marked %d files of %s pending; the writer will pick them up", marked, repoName)
	return errors.ExitSuccess
}
