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

	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/state"
)

// ReconcileResult lists repository names by reconciliation outcome.
type ReconcileResult struct {
	Added     []string
	Removed   []string
	Unchanged []string
}

// Reconciler brings the repository table into agreement with the declared
// configuration on startup. Configuration is authoritative; the database
// only stores state.
type Reconciler struct {
	store  *state.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store *state.Store, cfg *config.Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, cfg: cfg, logger: logger}
}

// Reconcile inserts pending records for repositories that exist only in
// configuration and warns about records that exist only in the database.
// Records present in both keep their state.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	dbRepos, err := r.store.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*model.Repository, len(dbRepos))
	for _, repo := range dbRepos {
		byName[repo.Name] = repo
	}

	declared := make(map[string]bool, len(r.cfg.Repositories))
	for i := range r.cfg.Repositories {
		name := r.cfg.Repositories[i].Name
		declared[name] = true
		if _, exists := byName[name]; exists {
			result.Unchanged = append(result.Unchanged, name)
			continue
		}
		if _, err := r.store.CreateRepository(ctx, name, model.RepoPending); err != nil {
			return nil, err
		}
		result.Added = append(result.Added, name)
		r.logger.Info("reconcile.repository_added", "name", name)
	}

	for _, repo := range dbRepos {
		if !declared[repo.Name] {
			// Deleting indexed data requires a manual action; reconcile
			// only reports the drift.
			result.Removed = append(result.Removed, repo.Name)
			r.logger.Warn("reconcile.repository_not_in_config", "name", repo.Name)
		}
	}

	return result, nil
}
