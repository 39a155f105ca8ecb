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

package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/pipeline"
	"github.com/mrcis/mrcis/pkg/state"
)

// Router dispatches debounced file events to indexing operations.
type Router struct {
	store   *state.Store
	indexer *pipeline.Indexer
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRouter creates a router.
func NewRouter(store *state.Store, indexer *pipeline.Indexer, cfg *config.Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{store: store, indexer: indexer, cfg: cfg, logger: logger}
}

// Handle processes one coalesced event.
func (r *Router) Handle(ctx context.Context, ev FileEvent) {
	repo, err := r.store.GetRepositoryByName(ctx, ev.Repository)
	if err != nil {
		r.logger.Warn("router.repository_lookup_failed", "repo", ev.Repository, "err", err)
		return
	}
	if repo == nil {
		r.logger.Warn("router.unknown_repository", "repo", ev.Repository)
		return
	}
	repoCfg := r.cfg.RepositoryByName(ev.Repository)
	if repoCfg == nil {
		r.logger.Warn("router.repository_not_configured", "repo", ev.Repository)
		return
	}

	if ev.Type == EventDeleted {
		r.handleDeletion(ctx, ev, repo.ID, repoCfg)
		return
	}

	if err := r.indexer.IndexFile(ctx, ev.Path, repo.ID, repoCfg.Path); err != nil {
		r.logger.Warn("router.index_failed", "path", ev.Path, "err", err)
		return
	}
	r.logger.Debug("router.file_queued", "path", ev.Path, "type", ev.Type)
}

// handleDeletion re-stats the path after the debounce window: an atomic
// save (delete + rename) leaves the file in place and is treated as a
// modification; a true deletion removes the file from the index.
func (r *Router) handleDeletion(ctx context.Context, ev FileEvent, repoID string, repoCfg *config.RepositoryConfig) {
	if _, err := os.Stat(ev.Path); err == nil {
		if err := r.indexer.IndexFile(ctx, ev.Path, repoID, repoCfg.Path); err != nil {
			r.logger.Warn("router.index_failed", "path", ev.Path, "err", err)
			return
		}
		r.logger.Info("router.atomic_save_requeued", "path", ev.Path)
		return
	}

	rel, err := filepath.Rel(repoCfg.Path, ev.Path)
	if err != nil {
		rel = ev.Path
	}
	rel = filepath.ToSlash(rel)

	if err := r.indexer.DeleteFile(ctx, repoID, rel); err != nil {
		r.logger.Warn("router.delete_failed", "path", rel, "err", err)
	}
}
