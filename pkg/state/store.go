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

// Package state implements the persistent state store over an embedded
// sqlite database: repositories, indexed files, the indexing queue, code
// entities, relation edges and pending references.
//
// The relation graph is not a separate engine. It is a typed view over the
// entity and relation tables of this store, exposed through the same
// operations.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
)

// Store is the embedded transactional state store. One Store serves one
// state database file; it is safe for concurrent use.
type Store struct {
	queries
	db     *sqlx.DB
	logger *slog.Logger
}

// Tx is a transactional view of the store. Every Store operation is also
// available on a Tx; writes inside the scope commit together or not at all.
type Tx struct {
	queries
}

// queries hosts every data operation; ext is either the root database or an
// open transaction.
type queries struct {
	ext sqlx.ExtContext
}

// Open opens (creating if needed) the state database at path and applies
// pending migrations in order.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, mrcerrors.NewStorageError("open", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mrcerrors.NewStorageError("open", err)
	}

	s := &Store{queries: queries{ext: db}, db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies every migration newer than the recorded schema version.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return mrcerrors.NewStorageError("migrate", err)
	}

	var current int
	err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err != nil {
		return mrcerrors.NewStorageError("migrate", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.WithTx(ctx, func(tx *Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ext.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
				}
			}
			_, err := tx.ext.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return mrcerrors.NewStorageError("migrate", err)
		}
		s.logger.Info("state.migrated", "version", m.version, "name", m.name)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mrcerrors.NewStorageError("begin", err)
	}

	done := false
	defer func() {
		if !done {
			_ = txx.Rollback()
		}
	}()

	if err := fn(&Tx{queries: queries{ext: txx}}); err != nil {
		done = true
		if rbErr := txx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("state.rollback_failed", "err", rbErr)
		}
		return err
	}

	done = true
	if err := txx.Commit(); err != nil {
		return mrcerrors.NewStorageError("commit", err)
	}
	return nil
}

// RecoverOnStartup repairs state left behind by a crashed writer: files
// stuck in processing go back to pending, and pending files missing a queue
// entry are re-enqueued. It returns the number of affected files.
func (s *Store) RecoverOnStartup(ctx context.Context) (int, error) {
	affected := 0
	err := s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.ext.ExecContext(ctx,
			`UPDATE files SET status = ? WHERE status = ?`, "pending", "processing")
		if err != nil {
			return mrcerrors.NewStorageError("recover", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += int(n)
		}

		res, err = tx.ext.ExecContext(ctx, `
			INSERT INTO queue (file_id, repository_id, priority, enqueued_at)
			SELECT f.id, f.repository_id, 0, ?
			FROM files f
			WHERE f.status = 'pending'
			  AND NOT EXISTS (SELECT 1 FROM queue q WHERE q.file_id = f.id)`,
			nowUnixNano())
		if err != nil {
			return mrcerrors.NewStorageError("recover", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("state.recovered", "affected_files", affected)
	return affected, nil
}

func nowUnixNano() int64 {
	return time.Now().UTC().UnixNano()
}

func timePtr(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(0, ns.Int64).UTC()
	return &t
}
