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

// Enqueue adds a file to the indexing queue. Enqueueing an already queued
// file is a no-op, keeping the queue idempotent per file id.
func (q queries) Enqueue(ctx context.Context, fileID, repoID string, priority int) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO queue (file_id, repository_id, priority, enqueued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (file_id) DO NOTHING`,
		fileID, repoID, priority, nowUnixNano())
	if err != nil {
		return mrcerrors.NewStorageError("enqueue", err)
	}
	return nil
}

// DequeueNext atomically removes and returns the next queued file, ordered
// by priority descending then enqueue time ascending. It returns nil when
// the queue is empty.
func (q queries) DequeueNext(ctx context.Context) (*model.IndexedFile, error) {
	var fileID string
	err := sqlx.GetContext(ctx, q.ext, &fileID, `
		DELETE FROM queue
		WHERE file_id = (
			SELECT file_id FROM queue ORDER BY priority DESC, enqueued_at ASC LIMIT 1
		)
		RETURNING file_id`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("dequeue", err)
	}
	return q.GetFile(ctx, fileID)
}

// EnqueuePendingFiles enqueues every pending file of a repository that is
// not already queued and returns the count added.
func (q queries) EnqueuePendingFiles(ctx context.Context, repoID string) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO queue (file_id, repository_id, priority, enqueued_at)
		SELECT f.id, f.repository_id, 0, ?
		FROM files f
		WHERE f.repository_id = ? AND f.status = 'pending'
		  AND NOT EXISTS (SELECT 1 FROM queue q WHERE q.file_id = f.id)`,
		nowUnixNano(), repoID)
	if err != nil {
		return 0, mrcerrors.NewStorageError("enqueue pending files", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// QueueLength returns the number of queued files.
func (q queries) QueueLength(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q.ext, &n, `SELECT COUNT(*) FROM queue`); err != nil {
		return 0, mrcerrors.NewStorageError("queue length", err)
	}
	return n, nil
}
