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

// Command mrcis runs the multi-repository code intelligence service.
//
// Usage:
//
//	mrcis serve [--config FILE] [--transport stdio|sse]
//	mrcis init [--config FILE]
//	mrcis status [--config FILE] [--repository NAME] [--json]
//	mrcis reindex REPOSITORY [--config FILE] [--force]
package main

import (
	"fmt"
	"os"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `MRCIS - Multi-Repository Code Intelligence Service

Usage:
  mrcis <command> [options]

Commands:
  serve      Start the indexing runtime and serve queries
  init       Create the schema and validate repository paths
  status     Print repository status
  reindex    Mark a repository's files pending and enqueue them

Common Options:
  --config FILE   Path to the YAML configuration file
  --json          Machine-readable output (status)
  --no-color      Disable colored output

Examples:
  mrcis init --config mrcis.yaml
  mrcis serve --config mrcis.yaml
  mrcis status --repository backend
  mrcis reindex backend --force

Environment:
  Configuration values override via MRCIS_SECTION__KEY variables,
  e.g. MRCIS_EMBEDDING__MODEL=mxbai-embed-large
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(errors.ExitError)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "init":
		os.Exit(runInit(args))
	case "status":
		os.Exit(runStatus(args))
	case "reindex":
		os.Exit(runReindex(args))
	case "version", "--version":
		fmt.Printf("mrcis %s (%s)\n", version, commit)
		os.Exit(errors.ExitSuccess)
	case "help", "--help", "-h":
		usage()
		os.Exit(errors.ExitSuccess)
	default:
		ui.Errorf("unknown command: %s", cmd)
		usage()
		os.Exit(errors.ExitError)
	}
}
