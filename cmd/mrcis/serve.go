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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/mrcis/mrcis/internal/bootstrap"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
)

// runServe starts the indexing runtime and blocks until interrupted. The
// query request layer attaches to the runtime's query service; this process
// additionally exposes Prometheus metrics on the configured address.
func runServe(args []string) int {
	var (
		globals   GlobalFlags
		transport string
	)
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addGlobalFlags(fs, &globals)
	fs.StringVar(&transport, "transport", "", "Override server transport (stdio or sse)")
	_ = fs.Parse(args)
	ui.InitColors(globals.NoColor)

	cfg := loadConfigOrExit(globals)
	if transport != "" {
		cfg.Server.Transport = transport
		if err := cfg.Validate(); err != nil {
			errors.FatalError(errors.NewConfigError("Invalid configuration", err.Error(), "", err), globals.JSON)
		}
	}
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		errors.FatalError(errors.NewRuntimeError(
			"Cannot start the MRCIS runtime",
			err.Error(),
			"Check the data directory and the embedding provider",
			err,
		), globals.JSON)
	}

	if err := rt.Start(ctx); err != nil {
		rt.Stop()
		errors.FatalError(errors.NewRuntimeError("Runtime startup failed", err.Error(), "", err), globals.JSON)
	}

	// Metrics endpoint; the query transport itself is served by the
	// external request layer.
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("serve.metrics", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("serve.metrics_failed", "err", err)
		}
	}()

	role := "read-only"
	if rt.IsWriter() {
		role = "writer"
	}
	logger.Info("serve.ready",
		"role", role,
		"transport", cfg.Server.Transport,
		"repositories", len(cfg.Repositories),
		"data_dir", cfg.DataDirectory(),
	)

	<-ctx.Done()
	logger.Info("serve.shutdown")
	_ = metricsServer.Close()
	rt.Stop()
	return errors.ExitSuccess
}
