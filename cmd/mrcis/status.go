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
	"github.com/mrcis/mrcis/internal/output"
	"github.com/mrcis/mrcis/internal/ui"
)

// runStatus prints per-repository index status. The command is read-only
// and works alongside a running writer instance.
func runStatus(args []string) int {
	var (
		globals    GlobalFlags
		repository string
	)
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addGlobalFlags(fs, &globals)
	fs.StringVar(&repository, "repository", "", "Limit status to one repository")
	_ = fs.Parse(args)
	ui.InitColors(globals.NoColor)

	cfg := loadConfigOrExit(globals)
	logger := setupLogging(cfg)
	ctx := context.Background()

	rt, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{SkipEmbedderProbe: true})
	if err != nil {
		errors.FatalError(errors.NewRuntimeError("Cannot open the MRCIS data directory", err.Error(), "Run 'mrcis init' first", err), globals.JSON)
	}
	defer rt.Stop()

	resp, err := rt.Queries.Status(ctx, repository)
	if err != nil {
		errors.FatalError(errors.NewRuntimeError("Status query failed", err.Error(), "", err), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(resp); err != nil {
			errors.FatalError(err, true)
		}
		return errors.ExitSuccess
	}

	ui.Header("MRCIS Status")
	if len(resp.Repositories) == 0 {
		ui.Info("no repositories indexed yet")
		return errors.ExitSuccess
	}

	for _, repo := range resp.Repositories {
		fmt.Printf("%s %s\n", ui.Label(repo.Repository), statusText(repo.Status))
		fmt.Printf("  files: %s indexed, %s pending, %s failed\n",
			ui.CountText(repo.FileCount), ui.CountText(repo.PendingFiles), ui.CountText(repo.FailedFiles))
		fmt.Printf("  graph: %s entities, %s relations\n",
			ui.CountText(repo.EntityCount), ui.CountText(repo.RelationCount))
		if repo.LastIndexedAt != "" {
			fmt.Printf("  last indexed: %s\n", ui.DimText(repo.LastIndexedAt))
		}
		if repo.ErrorMessage != "" {
			ui.Errorf("  %s", repo.ErrorMessage)
		}
	}
	fmt.Printf("\n%s %s files, %s entities, %s relations\n",
		ui.Label("Total:"),
		ui.CountText(resp.TotalFiles), ui.CountText(resp.TotalEntities), ui.CountText(resp.TotalRelations))
	return errors.ExitSuccess
}

func statusText(status string) string {
	switch status {
	case "watching":
		return ui.Green.Sprint(status)
	case "indexing", "pending":
		return ui.Yellow.Sprint(status)
	case "error":
		return ui.Red.Sprint(status)
	default:
		return status
	}
}
