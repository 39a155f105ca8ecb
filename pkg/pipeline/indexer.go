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

// Package pipeline drives per-file indexing: checksum diffing, prior-data
// cleanup, extraction, embedding, transactional persistence, failure policy
// and repository statistics. It also hosts the configuration reconciler and
// the queue worker pool.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/embed"
	"github.com/mrcis/mrcis/pkg/extract"
	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/state"
	"github.com/mrcis/mrcis/pkg/vector"
)

// Indexer executes the per-file indexing pipeline. Only the writer instance
// may construct one with IsWriter returning true; every mutating entry point
// checks it.
type Indexer struct {
	store    *state.Store
	vectors  *vector.Store
	embedder embed.Embedder
	registry *extract.Registry
	cfg      *config.Config
	logger   *slog.Logger
	stats    *StatsUpdater
	failure  FailurePolicy

	// IsWriter reports whether this instance holds the writer lock.
	IsWriter func() bool
}

// NewIndexer wires an Indexer.
func NewIndexer(store *state.Store, vectors *vector.Store, embedder embed.Embedder, registry *extract.Registry, cfg *config.Config, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		stats:    NewStatsUpdater(store),
		failure:  NewFailurePolicy(cfg.Indexing.MaxRetries),
		IsWriter: func() bool { return true },
	}
}

// Stats returns the stats updater, shared with the resolver.
func (ix *Indexer) Stats() *StatsUpdater { return ix.stats }

func (ix *Indexer) requireWriter() error {
	if ix.IsWriter != nil && !ix.IsWriter() {
		return mrcerrors.ErrReadOnly
	}
	return nil
}

// IndexFile is the indexing entry point for a file on disk: it diffs the
// file's checksum and mtime against stored state, upserts the file record
// and enqueues it when content changed. Unchanged indexed files are skipped.
func (ix *Indexer) IndexFile(ctx context.Context, absPath, repoID, repoRoot string) error {
	if err := ix.requireWriter(); err != nil {
		return err
	}

	relPath, err := repoRelative(absPath, repoRoot)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", absPath, err)
	}
	checksum, err := fileChecksum(absPath)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", absPath, err)
	}

	existing, err := ix.store.GetFileByPath(ctx, repoID, relPath)
	if err != nil {
		return err
	}
	if existing != nil && existing.Checksum == checksum && existing.Status == model.FileIndexed {
		recordFileSkipped()
		ix.logger.Debug("pipeline.file.unchanged", "path", relPath)
		return nil
	}

	return ix.store.WithTx(ctx, func(tx *state.Tx) error {
		fileID, err := tx.UpsertFile(ctx, &model.IndexedFile{
			RepositoryID:   repoID,
			Path:           relPath,
			Checksum:       checksum,
			FileSize:       info.Size(),
			Language:       DetectLanguage(relPath),
			Status:         model.FilePending,
			LastModifiedAt: info.ModTime().UTC(),
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, fileID, repoID, 0)
	})
}

// DeleteFile removes a file from the index: its entities, its vectors, and
// the file record is marked deleted.
func (ix *Indexer) DeleteFile(ctx context.Context, repoID, relPath string) error {
	if err := ix.requireWriter(); err != nil {
		return err
	}

	file, err := ix.store.GetFileByPath(ctx, repoID, relPath)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}

	if err := ix.vectors.DeleteByFile(ctx, file.ID); err != nil {
		return err
	}
	err = ix.store.WithTx(ctx, func(tx *state.Tx) error {
		if _, err := tx.DeleteEntitiesForFile(ctx, file.ID); err != nil {
			return err
		}
		return tx.UpdateFileStatus(ctx, file.ID, model.FileDeleted)
	})
	if err != nil {
		return err
	}
	recordFileDeleted()
	ix.logger.Info("pipeline.file.deleted", "path", relPath, "repo", repoID)
	return ix.stats.AfterFileIndexed(ctx, repoID)
}

// ProcessFile runs the full pipeline for one dequeued file. Failures are
// recorded on the file record and never propagate to the caller.
func (ix *Indexer) ProcessFile(ctx context.Context, file *model.IndexedFile, repoRoot string) {
	if err := ix.requireWriter(); err != nil {
		ix.logger.Warn("pipeline.not_writer", "file", file.Path)
		return
	}

	if err := ix.store.UpdateFileStatus(ctx, file.ID, model.FileProcessing); err != nil {
		ix.logger.Warn("pipeline.mark_processing_failed", "file", file.Path, "err", err)
	}

	if err := ix.processFile(ctx, file, repoRoot); err != nil {
		ix.recordFailure(ctx, file, err)
		return
	}

	if err := ix.stats.AfterFileIndexed(ctx, file.RepositoryID); err != nil {
		ix.logger.Warn("pipeline.stats_refresh_failed", "repo", file.RepositoryID, "err", err)
	}
}

// processFile implements the ordered pipeline steps for one file.
func (ix *Indexer) processFile(ctx context.Context, file *model.IndexedFile, repoRoot string) error {
	absPath := filepath.Join(repoRoot, filepath.FromSlash(file.Path))

	// Language detection.
	language := DetectLanguage(file.Path)

	// Cleanup prior vectors first: a crash after this point leaves at most
	// orphan vectors that the re-index re-keys, never orphan graph rows.
	if err := ix.vectors.DeleteByFile(ctx, file.ID); err != nil {
		return err
	}

	// Extractor lookup. Without one the file is recorded as indexed with no
	// entities.
	extractor := ix.registry.ForPath(file.Path)

	extractStart := time.Now()
	result, err := extractor.Extract(extract.Context{
		FilePath:     absPath,
		FileID:       file.ID,
		RepositoryID: file.RepositoryID,
		Language:     language,
	})
	if err != nil {
		return mrcerrors.NewExtractionError(file.Path, false, err)
	}
	observeExtract(time.Since(extractStart))

	for _, msg := range result.ParseErrors {
		// Parse errors are recoverable and never count as file failures.
		ix.logger.Warn("pipeline.parse_error", "file", file.Path, "err", msg)
	}

	entities := result.AllEntities()

	// Embedding: one batch call with every entity text, paired by index.
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = BuildEmbeddingText(e)
	}
	embedStart := time.Now()
	vectors, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(entities) {
		return mrcerrors.NewEmbeddingError(true,
			fmt.Errorf("embedder returned %d vectors for %d entities", len(vectors), len(entities)))
	}
	observeEmbed(time.Since(embedStart))

	persistStart := time.Now()

	// Persist vectors, keyed by entity id.
	rows := make([]vector.Row, len(entities))
	for i, e := range entities {
		e.VectorID = e.ID
		rows[i] = vector.Row{
			ID:            e.ID,
			RepositoryID:  e.RepositoryID,
			FileID:        e.FileID,
			QualifiedName: e.QualifiedName,
			SimpleName:    e.SimpleName,
			EntityType:    string(e.Kind),
			Language:      result.Language,
			FilePath:      file.Path,
			LineStart:     e.LineStart,
			LineEnd:       e.LineEnd,
			Vector:        vectors[i],
			EmbeddingText: texts[i],
			Visibility:    string(e.Visibility),
			IsExported:    e.IsExported,
			HasDocstring:  e.Docstring != "",
			Signature:     e.Signature,
			Docstring:     e.Docstring,
		}
	}
	if _, err := ix.vectors.Upsert(ctx, rows); err != nil {
		return err
	}

	// Replace graph rows atomically: prior entities go away and the new
	// extraction lands in the same transaction.
	err = ix.store.WithTx(ctx, func(tx *state.Tx) error {
		if _, err := tx.DeleteEntitiesForFile(ctx, file.ID); err != nil {
			return err
		}
		for _, e := range entities {
			e.Language = result.Language
			e.FilePath = file.Path
			if err := tx.AddEntity(ctx, e); err != nil {
				return err
			}
		}
		for i := range result.Relations {
			rel := result.Relations[i]
			if _, err := tx.AddRelation(ctx, &rel); err != nil {
				return err
			}
		}
		for i := range result.PendingReferences {
			ref := result.PendingReferences[i]
			if _, err := tx.AddPendingReference(ctx, &ref); err != nil {
				return err
			}
		}
		return tx.UpdateFileIndexed(ctx, file.ID, len(entities))
	})
	if err != nil {
		return err
	}
	observePersist(time.Since(persistStart))

	recordFileIndexed(len(entities), len(result.PendingReferences))
	ix.logger.Info("pipeline.file.indexed",
		"file", file.Path,
		"language", result.Language,
		"entities", len(entities),
		"pending_refs", len(result.PendingReferences),
		"parse_errors", len(result.ParseErrors),
	)
	return nil
}

// recordFailure applies the failure policy to a failed file.
func (ix *Indexer) recordFailure(ctx context.Context, file *model.IndexedFile, cause error) {
	failureCount := file.FailureCount + 1
	_, status := ix.failure.Determine(failureCount)

	if err := ix.store.UpdateFileFailure(ctx, file.ID, status, failureCount, cause.Error()); err != nil {
		ix.logger.Error("pipeline.record_failure_failed", "file", file.Path, "err", err)
	}
	recordFileFailed()
	ix.logger.Warn("pipeline.file.failed",
		"file", file.Path,
		"failure_count", failureCount,
		"status", string(status),
		"err", cause,
	)
}

// ScanRepository enumerates indexable files under the repository root and
// routes each through IndexFile. It returns the number of files considered.
func (ix *Indexer) ScanRepository(ctx context.Context, repo *config.RepositoryConfig, repoID string) (int, error) {
	if err := ix.requireWriter(); err != nil {
		return 0, err
	}

	s := scannerFor(repo, ix.cfg, ix.logger)
	paths, err := s.Scan()
	if err != nil {
		return 0, err
	}
	for _, rel := range paths {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		abs := filepath.Join(repo.Path, filepath.FromSlash(rel))
		if err := ix.IndexFile(ctx, abs, repoID, repo.Path); err != nil {
			ix.logger.Warn("pipeline.scan_file_failed", "path", rel, "err", err)
		}
	}
	return len(paths), nil
}

// Reindex marks every file of the repository pending and enqueues them.
// With force, failure counters reset as well. It returns the number of
// files marked.
func (ix *Indexer) Reindex(ctx context.Context, repoName string, force bool) (int, error) {
	if err := ix.requireWriter(); err != nil {
		return 0, err
	}

	repo, err := ix.store.GetRepositoryByName(ctx, repoName)
	if err != nil {
		return 0, err
	}
	if repo == nil {
		return 0, fmt.Errorf("repository %q not found", repoName)
	}

	marked := 0
	err = ix.store.WithTx(ctx, func(tx *state.Tx) error {
		n, err := tx.MarkRepositoryFilesPending(ctx, repo.ID, force)
		if err != nil {
			return err
		}
		marked = n
		_, err = tx.EnqueuePendingFiles(ctx, repo.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	status := model.RepoIndexing
	if err := ix.store.UpdateRepositoryStats(ctx, repo.ID, state.RepositoryStats{Status: &status}); err != nil {
		return marked, err
	}
	ix.logger.Info("pipeline.reindex", "repo", repoName, "files", marked, "force", force)
	return marked, nil
}

func repoRelative(absPath, repoRoot string) (string, error) {
	rel, err := filepath.Rel(repoRoot, absPath)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is outside repository root %s", absPath, repoRoot)
	}
	return filepath.ToSlash(rel), nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
