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
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
	"github.com/mrcis/mrcis/pkg/config"
)

// GlobalFlags are shared across subcommands.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
	NoColor    bool
}

// addGlobalFlags registers the shared flags on a command flag set.
func addGlobalFlags(fs *flag.FlagSet, g *GlobalFlags) {
	fs.StringVar(&g.ConfigPath, "config", "", "Path to the YAML configuration file")
	fs.BoolVar(&g.JSON, "json", false, "Machine-readable JSON output")
	fs.BoolVarP(&g.Quiet, "quiet", "q", false, "Suppress progress output")
	fs.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
}

// loadConfigOrExit loads and validates configuration, exiting with the
// configuration exit code on failure.
func loadConfigOrExit(g GlobalFlags) *config.Config {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Invalid configuration",
			err.Error(),
			"Check the configuration file and MRCIS_* environment overrides",
			err,
		), g.JSON)
	}
	return cfg
}

// setupLogging builds the process logger from the logging configuration and
// installs it as the slog default.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.Logging.File != "" {
		if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		} else {
			ui.Warningf("cannot open log file %s: %v", cfg.Logging.File, err)
		}
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
