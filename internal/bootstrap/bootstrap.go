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

// Package bootstrap wires the MRCIS runtime: stores, lock, reconciler,
// pipeline workers, watchers, resolver and the query surface, with explicit
// start/stop lifecycles and no hidden singletons.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/embed"
	"github.com/mrcis/mrcis/pkg/extract"
	"github.com/mrcis/mrcis/pkg/lock"
	"github.com/mrcis/mrcis/pkg/pipeline"
	"github.com/mrcis/mrcis/pkg/query"
	"github.com/mrcis/mrcis/pkg/resolver"
	"github.com/mrcis/mrcis/pkg/state"
	"github.com/mrcis/mrcis/pkg/vector"
	"github.com/mrcis/mrcis/pkg/watcher"
)

// eventChannelCapacity bounds the shared watcher event channel.
const eventChannelCapacity = 1024

// Runtime is one MRCIS process instance over a data directory. Exactly one
// runtime per data directory holds the writer lock; the rest serve queries
// read-only and attempt promotion on a timer.
type Runtime struct {
	Config   *config.Config
	Store    *state.Store
	Vectors  *vector.Store
	Embedder embed.Embedder
	Registry *extract.Registry
	Indexer  *pipeline.Indexer
	Queries  *query.Service
	Lock     *lock.InstanceLock

	logger    *slog.Logger
	repoRoots map[string]string

	mu           sync.Mutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	writerActive bool
}

// Options tune runtime construction.
type Options struct {
	// SkipEmbedderProbe skips the dimension-validation probe, for commands
	// that never embed (init, status).
	SkipEmbedderProbe bool

	// Embedder overrides the configured embedding client (tests).
	Embedder embed.Embedder
}

// New opens stores and wires the runtime without starting any task.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dataDir := cfg.DataDirectory()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	store, err := state.Open(cfg.StateDBPath(), logger)
	if err != nil {
		return nil, err
	}

	vectors, err := vector.Open(cfg.VectorDBPath(), cfg.Storage.VectorTableName, cfg.Embedding.Dimensions, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	embedder := opts.Embedder
	if embedder == nil {
		client := embed.NewClient(cfg.Embedding, logger)
		if !opts.SkipEmbedderProbe {
			if err := client.Initialize(ctx); err != nil {
				_ = vectors.Close()
				_ = store.Close()
				return nil, err
			}
		}
		embedder = client
	}

	registry := extract.NewDefaultRegistry()
	indexer := pipeline.NewIndexer(store, vectors, embedder, registry, cfg, logger)
	instanceLock := lock.New(dataDir, logger)
	indexer.IsWriter = instanceLock.IsHeld

	rt := &Runtime{
		Config:    cfg,
		Store:     store,
		Vectors:   vectors,
		Embedder:  embedder,
		Registry:  registry,
		Indexer:   indexer,
		Queries:   query.NewService(store, vectors, embedder, logger),
		Lock:      instanceLock,
		logger:    logger,
		repoRoots: make(map[string]string),
	}
	return rt, nil
}

// IsWriter reports whether this runtime holds the writer lock.
func (rt *Runtime) IsWriter() bool {
	return rt.Lock.IsHeld()
}

// Start acquires (or later promotes into) the writer role and launches the
// background tasks. Queries are available immediately in either role.
func (rt *Runtime) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	rt.mu.Lock()
	rt.cancel = cancel
	rt.mu.Unlock()

	if rt.Lock.TryAcquire() {
		if err := rt.startWriter(ctx); err != nil {
			return err
		}
	} else {
		rt.logger.Info("runtime.read_only", "lock", rt.Lock.Path())
	}

	// Lock maintainer: the writer heartbeats, a reader attempts promotion.
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.maintainLock(ctx)
	}()

	return nil
}

// startWriter runs reconcile + recovery and launches the mutating tasks.
func (rt *Runtime) startWriter(ctx context.Context) error {
	rt.mu.Lock()
	if rt.writerActive {
		rt.mu.Unlock()
		return nil
	}
	rt.writerActive = true
	rt.mu.Unlock()

	rt.logger.Info("runtime.writer", "pid", os.Getpid())

	reconciler := pipeline.NewReconciler(rt.Store, rt.Config, rt.logger)
	if _, err := reconciler.Reconcile(ctx); err != nil {
		return err
	}
	if _, err := rt.Store.RecoverOnStartup(ctx); err != nil {
		return err
	}

	// Resolve repository record ids and seed the queue from a full scan.
	for i := range rt.Config.Repositories {
		repoCfg := &rt.Config.Repositories[i]
		repo, err := rt.Store.GetRepositoryByName(ctx, repoCfg.Name)
		if err != nil {
			return err
		}
		if repo == nil {
			continue
		}
		rt.repoRoots[repo.ID] = repoCfg.Path
		if _, err := rt.Indexer.ScanRepository(ctx, repoCfg, repo.ID); err != nil {
			rt.logger.Warn("runtime.scan_failed", "repo", repoCfg.Name, "err", err)
		}
	}

	// Pipeline workers.
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		pool := pipeline.NewWorkerPool(rt.Indexer, rt.Config, rt.repoRoots, rt.logger)
		pool.Run(ctx, 2)
	}()

	// Watchers feed a shared channel; the debouncer feeds the router.
	events := make(chan watcher.FileEvent, eventChannelCapacity)
	router := watcher.NewRouter(rt.Store, rt.Indexer, rt.Config, rt.logger)
	debouncer := watcher.NewDebouncer(
		time.Duration(rt.Config.Indexing.WatchDebounceMs)*time.Millisecond,
		func(ev watcher.FileEvent) { router.Handle(ctx, ev) },
	)
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		debouncer.Run(ctx, events)
	}()
	for i := range rt.Config.Repositories {
		repoCfg := rt.Config.Repositories[i]
		w := watcher.New(repoCfg, rt.Config.Files, events, rt.logger)
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			w.Run(ctx)
		}()
	}

	// Reference resolver.
	res := resolver.New(rt.Store, rt.Indexer.Stats(), rt.Config.Indexing.MaxRetries, rt.logger)
	res.IsWriter = rt.Lock.IsHeld
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		res.Run(ctx, time.Duration(rt.Config.Indexing.ResolutionIntervalSeconds)*time.Second)
	}()

	return nil
}

// maintainLock heartbeats as writer, or checks for promotion as reader.
func (rt *Runtime) maintainLock(ctx context.Context) {
	ticker := time.NewTicker(rt.Lock.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.Lock.IsHeld() {
				rt.Lock.Heartbeat()
				continue
			}
			if rt.Lock.CheckAndPromote() {
				rt.logger.Info("runtime.promoted")
				if err := rt.startWriter(ctx); err != nil {
					rt.logger.Error("runtime.promotion_start_failed", "err", err)
				}
			}
		}
	}
}

// Stop cancels background tasks, waits up to the configured shutdown
// timeout for a graceful drain, releases the lock and closes the stores.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	cancel := rt.cancel
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		rt.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(rt.Config.Server.ShutdownTimeoutSeconds) * time.Second):
		rt.logger.Warn("runtime.shutdown_timeout")
	}

	rt.Lock.Release()
	if err := rt.Vectors.Close(); err != nil {
		rt.logger.Warn("runtime.vectors_close_failed", "err", err)
	}
	if err := rt.Store.Close(); err != nil {
		rt.logger.Warn("runtime.store_close_failed", "err", err)
	}
	rt.logger.Info("runtime.stopped")
}
