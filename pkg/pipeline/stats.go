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
	"time"

	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/state"
)

// StatsUpdater refreshes repository statistics after indexing and
// resolution events.
type StatsUpdater struct {
	store *state.Store
}

// NewStatsUpdater creates a stats updater over the state store.
func NewStatsUpdater(store *state.Store) *StatsUpdater {
	return &StatsUpdater{store: store}
}

// AfterFileIndexed re-queries every count, stamps last_indexed_at, and
// transitions the repository to watching once no pending files remain.
func (u *StatsUpdater) AfterFileIndexed(ctx context.Context, repoID string) error {
	fileCount, err := u.store.CountIndexedFiles(ctx, repoID)
	if err != nil {
		return err
	}
	entityCount, err := u.store.CountEntities(ctx, repoID)
	if err != nil {
		return err
	}
	relationCount, err := u.store.CountRelations(ctx, repoID)
	if err != nil {
		return err
	}
	pendingCount, err := u.store.CountPendingFiles(ctx, repoID)
	if err != nil {
		return err
	}

	status := model.RepoWatching
	if pendingCount > 0 {
		status = model.RepoIndexing
	}
	now := time.Now().UTC().UnixNano()

	return u.store.UpdateRepositoryStats(ctx, repoID, state.RepositoryStats{
		FileCount:     &fileCount,
		EntityCount:   &entityCount,
		RelationCount: &relationCount,
		LastIndexedAt: &now,
		Status:        &status,
	})
}

// AfterResolution refreshes only the relation count.
func (u *StatsUpdater) AfterResolution(ctx context.Context, repoID string) error {
	relationCount, err := u.store.CountRelations(ctx, repoID)
	if err != nil {
		return err
	}
	return u.store.UpdateRepositoryStats(ctx, repoID, state.RepositoryStats{
		RelationCount: &relationCount,
	})
}
