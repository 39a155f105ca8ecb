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

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/scanner"
)

// idlePollInterval is how long a worker sleeps when the queue is empty.
const idlePollInterval = 500 * time.Millisecond

// WorkerPool drains the indexing queue with a small set of workers. Workers
// run only on the writer instance.
type WorkerPool struct {
	indexer *Indexer
	cfg     *config.Config
	logger  *slog.Logger

	// repoRoots maps repository record id to its configured root path.
	repoRoots map[string]string
}

// NewWorkerPool creates a pool over the indexer.
func NewWorkerPool(indexer *Indexer, cfg *config.Config, repoRoots map[string]string, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		indexer:   indexer,
		cfg:       cfg,
		logger:    logger,
		repoRoots: repoRoots,
	}
}

// Run starts workers goroutines and blocks until ctx is cancelled and all
// workers drained.
func (p *WorkerPool) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	if workers > 4 {
		workers = 4
	}
	p.logger.Info("workers.started", "count", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
	p.logger.Info("workers.stopped")
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		file, err := p.indexer.store.DequeueNext(ctx)
		if err != nil {
			p.logger.Warn("workers.dequeue_failed", "worker", id, "err", err)
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}
		if file == nil {
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}

		root, ok := p.repoRoots[file.RepositoryID]
		if !ok {
			p.logger.Warn("workers.unknown_repository", "file", file.Path, "repo", file.RepositoryID)
			continue
		}
		p.indexer.ProcessFile(ctx, file, root)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// scannerFor builds a repository scanner honoring per-repository overrides.
func scannerFor(repo *config.RepositoryConfig, cfg *config.Config, logger *slog.Logger) *scanner.Scanner {
	return scanner.New(repo.Path, cfg.Files, repo, logger)
}
