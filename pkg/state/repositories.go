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

package state

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/model"
)

type repositoryRow struct {
	ID                string        `db:"id"`
	Name              string        `db:"name"`
	Status            string        `db:"status"`
	LastIndexedCommit string        `db:"last_indexed_commit"`
	LastIndexedAt     sql.NullInt64 `db:"last_indexed_at"`
	FileCount         int           `db:"file_count"`
	EntityCount       int           `db:"entity_count"`
	RelationCount     int           `db:"relation_count"`
	ErrorMessage      string        `db:"error_message"`
	CreatedAt         int64         `db:"created_at"`
}

func (r repositoryRow) toModel() *model.Repository {
	return &model.Repository{
		ID:                r.ID,
		Name:              r.Name,
		Status:            model.RepositoryStatus(r.Status),
		LastIndexedCommit: r.LastIndexedCommit,
		LastIndexedAt:     timePtr(r.LastIndexedAt),
		FileCount:         r.FileCount,
		EntityCount:       r.EntityCount,
		RelationCount:     r.RelationCount,
		ErrorMessage:      r.ErrorMessage,
	}
}

// CreateRepository inserts a repository state record and returns its id.
func (q queries) CreateRepository(ctx context.Context, name string, status model.RepositoryStatus) (string, error) {
	id := model.NewID()
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO repositories (id, name, status, created_at)
		VALUES (?, ?, ?, ?)`,
		id, name, string(status), nowUnixNano())
	if err != nil {
		return "", mrcerrors.NewStorageError("create repository", err)
	}
	return id, nil
}

// GetRepository returns a repository by id, or nil when absent.
func (q queries) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	var row repositoryRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM repositories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get repository", err)
	}
	return row.toModel(), nil
}

// GetRepositoryByName returns a repository by its unique name, or nil.
func (q queries) GetRepositoryByName(ctx context.Context, name string) (*model.Repository, error) {
	var row repositoryRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM repositories WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get repository by name", err)
	}
	return row.toModel(), nil
}

// ListRepositories returns all repository records ordered by name.
func (q queries) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	var rows []repositoryRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `SELECT * FROM repositories ORDER BY name`)
	if err != nil {
		return nil, mrcerrors.NewStorageError("list repositories", err)
	}
	out := make([]*model.Repository, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// UpdateRepositoryStatus sets status and error message.
func (q queries) UpdateRepositoryStatus(ctx context.Context, id string, status model.RepositoryStatus, errorMessage string) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE repositories SET status = ?, error_message = ? WHERE id = ?`,
		string(status), errorMessage, id)
	if err != nil {
		return mrcerrors.NewStorageError("update repository status", err)
	}
	return nil
}

// RepositoryStats is a partial update of repository statistics. Nil fields
// are left untouched.
type RepositoryStats struct {
	FileCount         *int
	EntityCount       *int
	RelationCount     *int
	LastIndexedAt     *int64
	LastIndexedCommit *string
	Status            *model.RepositoryStatus
}

// UpdateRepositoryStats applies a partial statistics update.
func (q queries) UpdateRepositoryStats(ctx context.Context, id string, stats RepositoryStats) error {
	set := ""
	args := []any{}
	add := func(col string, v any) {
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, v)
	}

	if stats.FileCount != nil {
		add("file_count", *stats.FileCount)
	}
	if stats.EntityCount != nil {
		add("entity_count", *stats.EntityCount)
	}
	if stats.RelationCount != nil {
		add("relation_count", *stats.RelationCount)
	}
	if stats.LastIndexedAt != nil {
		add("last_indexed_at", *stats.LastIndexedAt)
	}
	if stats.LastIndexedCommit != nil {
		add("last_indexed_commit", *stats.LastIndexedCommit)
	}
	if stats.Status != nil {
		add("status", string(*stats.Status))
	}
	if set == "" {
		return nil
	}

	args = append(args, id)
	_, err := q.ext.ExecContext(ctx, `UPDATE repositories SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return mrcerrors.NewStorageError("update repository stats", err)
	}
	return nil
}

// DeleteRepository removes a repository and cascades to files, entities,
// edges, pending references and queue entries. Vector rows are the caller's
// responsibility (the vector store is keyed separately).
func (q queries) DeleteRepository(ctx context.Context, id string) error {
	// Relations reference entities of this repository as source or target;
	// the source side cascades with the entities, the target side does not.
	_, err := q.ext.ExecContext(ctx, `
		DELETE FROM relations WHERE target_entity_id IN (
			SELECT id FROM entities WHERE repository_id = ?
		)`, id)
	if err != nil {
		return mrcerrors.NewStorageError("delete repository", err)
	}
	if _, err := q.ext.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
		return mrcerrors.NewStorageError("delete repository", err)
	}
	return nil
}
