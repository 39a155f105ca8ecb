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
	"time"

	"github.com/jmoiron/sqlx"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/model"
)

type fileRow struct {
	ID             string        `db:"id"`
	RepositoryID   string        `db:"repository_id"`
	Path           string        `db:"path"`
	Checksum       string        `db:"checksum"`
	FileSize       int64         `db:"file_size"`
	Language       string        `db:"language"`
	Status         string        `db:"status"`
	FailureCount   int           `db:"failure_count"`
	ErrorMessage   string        `db:"error_message"`
	EntityCount    int           `db:"entity_count"`
	LastModifiedAt int64         `db:"last_modified_at"`
	LastIndexedAt  sql.NullInt64 `db:"last_indexed_at"`
}

func (r fileRow) toModel() *model.IndexedFile {
	return &model.IndexedFile{
		ID:             r.ID,
		RepositoryID:   r.RepositoryID,
		Path:           r.Path,
		Checksum:       r.Checksum,
		FileSize:       r.FileSize,
		Language:       r.Language,
		Status:         model.FileStatus(r.Status),
		FailureCount:   r.FailureCount,
		ErrorMessage:   r.ErrorMessage,
		EntityCount:    r.EntityCount,
		LastModifiedAt: time.Unix(0, r.LastModifiedAt).UTC(),
		LastIndexedAt:  timePtr(r.LastIndexedAt),
	}
}

// UpsertFile inserts a file record or, on (repository_id, path) conflict,
// refreshes checksum, size, mtime and status of the existing row. It returns
// the id of the surviving row, which is the existing id on conflict.
func (q queries) UpsertFile(ctx context.Context, f *model.IndexedFile) (string, error) {
	if f.ID == "" {
		f.ID = model.NewID()
	}
	if f.Status == "" {
		f.Status = model.FilePending
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO files (id, repository_id, path, checksum, file_size, language, status, last_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repository_id, path) DO UPDATE SET
			checksum = excluded.checksum,
			file_size = excluded.file_size,
			language = excluded.language,
			status = excluded.status,
			last_modified_at = excluded.last_modified_at`,
		f.ID, f.RepositoryID, f.Path, f.Checksum, f.FileSize, f.Language,
		string(f.Status), f.LastModifiedAt.UTC().UnixNano())
	if err != nil {
		return "", mrcerrors.NewStorageError("upsert file", err)
	}

	var id string
	err = sqlx.GetContext(ctx, q.ext, &id,
		`SELECT id FROM files WHERE repository_id = ? AND path = ?`, f.RepositoryID, f.Path)
	if err != nil {
		return "", mrcerrors.NewStorageError("upsert file", err)
	}
	f.ID = id
	return id, nil
}

// GetFile returns a file by id, or nil when absent.
func (q queries) GetFile(ctx context.Context, id string) (*model.IndexedFile, error) {
	var row fileRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM files WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get file", err)
	}
	return row.toModel(), nil
}

// GetFileByPath returns a file by repository and relative path, or nil.
func (q queries) GetFileByPath(ctx context.Context, repoID, path string) (*model.IndexedFile, error) {
	var row fileRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT * FROM files WHERE repository_id = ? AND path = ?`, repoID, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get file by path", err)
	}
	return row.toModel(), nil
}

// ListFilesByRepository returns all file records of a repository.
func (q queries) ListFilesByRepository(ctx context.Context, repoID string) ([]*model.IndexedFile, error) {
	var rows []fileRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM files WHERE repository_id = ? ORDER BY path`, repoID)
	if err != nil {
		return nil, mrcerrors.NewStorageError("list files", err)
	}
	out := make([]*model.IndexedFile, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetRetryableFailedFiles returns files in retryable failed state.
func (q queries) GetRetryableFailedFiles(ctx context.Context) ([]*model.IndexedFile, error) {
	var rows []fileRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM files WHERE status = 'failed' ORDER BY last_modified_at`)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get retryable failed files", err)
	}
	out := make([]*model.IndexedFile, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// MarkRepositoryFilesPending moves every non-deleted file of a repository
// back to pending, optionally resetting failure counters, and returns the
// number of affected rows.
func (q queries) MarkRepositoryFilesPending(ctx context.Context, repoID string, resetFailures bool) (int, error) {
	var (
		res sql.Result
		err error
	)
	if resetFailures {
		res, err = q.ext.ExecContext(ctx, `
			UPDATE files SET status = 'pending', failure_count = 0, error_message = ''
			WHERE repository_id = ? AND status != 'deleted'`, repoID)
	} else {
		res, err = q.ext.ExecContext(ctx, `
			UPDATE files SET status = 'pending'
			WHERE repository_id = ? AND status != 'deleted'`, repoID)
	}
	if err != nil {
		return 0, mrcerrors.NewStorageError("mark files pending", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UpdateFileStatus sets a file's status.
func (q queries) UpdateFileStatus(ctx context.Context, id string, status model.FileStatus) error {
	_, err := q.ext.ExecContext(ctx, `UPDATE files SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return mrcerrors.NewStorageError("update file status", err)
	}
	return nil
}

// UpdateFileIndexed marks a file as successfully indexed.
func (q queries) UpdateFileIndexed(ctx context.Context, id string, entityCount int) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE files SET status = 'indexed', entity_count = ?, error_message = '', last_indexed_at = ?
		WHERE id = ?`,
		entityCount, nowUnixNano(), id)
	if err != nil {
		return mrcerrors.NewStorageError("update file indexed", err)
	}
	return nil
}

// UpdateFileFailure records a failed indexing attempt.
func (q queries) UpdateFileFailure(ctx context.Context, id string, status model.FileStatus, failureCount int, errorMessage string) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE files SET status = ?, failure_count = ?, error_message = ? WHERE id = ?`,
		string(status), failureCount, errorMessage, id)
	if err != nil {
		return mrcerrors.NewStorageError("update file failure", err)
	}
	return nil
}

// CountPendingFiles counts files awaiting indexing.
func (q queries) CountPendingFiles(ctx context.Context, repoID string) (int, error) {
	return q.countFiles(ctx, repoID, `status IN ('pending', 'processing')`)
}

// CountFailedFiles counts files in either failed state.
func (q queries) CountFailedFiles(ctx context.Context, repoID string) (int, error) {
	return q.countFiles(ctx, repoID, `status IN ('failed', 'permanent_failure')`)
}

// CountIndexedFiles counts successfully indexed files.
func (q queries) CountIndexedFiles(ctx context.Context, repoID string) (int, error) {
	return q.countFiles(ctx, repoID, `status = 'indexed'`)
}

func (q queries) countFiles(ctx context.Context, repoID, where string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		`SELECT COUNT(*) FROM files WHERE repository_id = ? AND `+where, repoID)
	if err != nil {
		return 0, mrcerrors.NewStorageError("count files", err)
	}
	return n, nil
}
