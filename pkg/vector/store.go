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

// Package vector implements the embedding vector store for the
// sqlite_vector backend. Each row carries an entity's embedding plus the
// metadata columns used for search-time filtering; vectors are stored as
// little-endian float32 blobs and ranked by cosine similarity in process.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
)

// Row is one stored vector with its metadata.
type Row struct {
	ID           string `db:"id"`
	RepositoryID string `db:"repository_id"`
	FileID       string `db:"file_id"`

	QualifiedName string `db:"qualified_name"`
	SimpleName    string `db:"simple_name"`
	EntityType    string `db:"entity_type"`
	Language      string `db:"language"`

	FilePath  string `db:"file_path"`
	LineStart int    `db:"line_start"`
	LineEnd   int    `db:"line_end"`

	Vector        []float32 `db:"-"`
	EmbeddingText string    `db:"embedding_text"`

	Visibility   string `db:"visibility"`
	IsExported   bool   `db:"is_exported"`
	HasDocstring bool   `db:"has_docstring"`

	Signature string `db:"signature"`
	Docstring string `db:"docstring"`
}

// SearchHit is one search result: the stored row plus its distance.
// Similarity is clamp01(1 - Distance).
type SearchHit struct {
	Row
	Distance float64
}

// Similarity returns the clamped similarity score of the hit.
func (h SearchHit) Similarity() float64 {
	return Clamp01(1.0 - h.Distance)
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// filterColumns are the metadata columns a search filter may constrain.
var filterColumns = map[string]bool{
	"repository_id": true,
	"file_id":       true,
	"language":      true,
	"entity_type":   true,
	"visibility":    true,
	"is_exported":   true,
}

// Store is a content-addressable vector table. Dimensionality is fixed at
// creation from configuration.
type Store struct {
	db         *sqlx.DB
	table      string
	dimensions int
	logger     *slog.Logger
}

// Open opens (creating if needed) the vector database at path.
func Open(path, tableName string, dimensions int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !identPattern.MatchString(tableName) {
		return nil, mrcerrors.NewStorageError("open vectors", fmt.Errorf("invalid table name %q", tableName))
	}
	if dimensions <= 0 {
		return nil, mrcerrors.NewStorageError("open vectors", fmt.Errorf("dimensions must be positive, got %d", dimensions))
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, mrcerrors.NewStorageError("open vectors", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mrcerrors.NewStorageError("open vectors", err)
	}

	s := &Store{db: db, table: tableName, dimensions: dimensions, logger: logger}
	if err := s.createTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dimensions returns the fixed vector dimensionality.
func (s *Store) Dimensions() int { return s.dimensions }

func (s *Store) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			qualified_name TEXT NOT NULL,
			simple_name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL DEFAULT '',
			line_start INTEGER NOT NULL DEFAULT 1,
			line_end INTEGER NOT NULL DEFAULT 1,
			vector BLOB NOT NULL,
			embedding_text TEXT NOT NULL DEFAULT '',
			visibility TEXT NOT NULL DEFAULT 'public',
			is_exported INTEGER NOT NULL DEFAULT 0,
			has_docstring INTEGER NOT NULL DEFAULT 0,
			signature TEXT NOT NULL DEFAULT '',
			docstring TEXT NOT NULL DEFAULT ''
		)`, s.table))
	if err != nil {
		return mrcerrors.NewStorageError("create vector table", err)
	}
	for _, idx := range []string{"file_id", "repository_id"} {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)`, s.table, idx, s.table, idx))
		if err != nil {
			return mrcerrors.NewStorageError("create vector index", err)
		}
	}
	return nil
}

// Upsert deletes any existing row per id, then inserts. It returns the
// number of rows written and accepts an empty batch.
func (s *Store) Upsert(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, mrcerrors.NewStorageError("upsert vectors", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		if len(r.Vector) != s.dimensions {
			return 0, mrcerrors.NewStorageError("upsert vectors",
				fmt.Errorf("vector for %s has %d dimensions, table expects %d", r.ID, len(r.Vector), s.dimensions))
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = '%s'`, s.table, EscapeFilterValue(r.ID))); err != nil {
			return 0, mrcerrors.NewStorageError("upsert vectors", err)
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (
				id, repository_id, file_id, qualified_name, simple_name,
				entity_type, language, file_path, line_start, line_end,
				vector, embedding_text, visibility, is_exported, has_docstring,
				signature, docstring
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table),
			r.ID, r.RepositoryID, r.FileID, r.QualifiedName, r.SimpleName,
			r.EntityType, r.Language, r.FilePath, r.LineStart, r.LineEnd,
			encodeVector(r.Vector), r.EmbeddingText, r.Visibility, r.IsExported,
			r.HasDocstring, r.Signature, r.Docstring)
		if err != nil {
			return 0, mrcerrors.NewStorageError("upsert vectors", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, mrcerrors.NewStorageError("upsert vectors", err)
	}
	return len(rows), nil
}

// Search returns the nearest neighbors of queryVector by cosine similarity,
// restricted to equality filters on metadata columns and to hits with
// similarity >= minScore.
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int, filters map[string]string, minScore float64) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(queryVector) != s.dimensions {
		return nil, mrcerrors.NewStorageError("search vectors",
			fmt.Errorf("query vector has %d dimensions, table expects %d", len(queryVector), s.dimensions))
	}

	query := fmt.Sprintf(`SELECT * FROM %s`, s.table)
	if where := buildFilter(filters); where != "" {
		query += " WHERE " + where
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, mrcerrors.NewStorageError("search vectors", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var (
			r    Row
			blob []byte
		)
		dest := map[string]any{}
		if err := rows.MapScan(dest); err != nil {
			return nil, mrcerrors.NewStorageError("search vectors", err)
		}
		r = rowFromMap(dest)
		blob, _ = dest["vector"].([]byte)
		r.Vector = decodeVector(blob)
		if len(r.Vector) != s.dimensions {
			continue
		}

		sim := cosineSimilarity(queryVector, r.Vector)
		hit := SearchHit{Row: r, Distance: 1.0 - sim}
		if hit.Similarity() < minScore {
			continue
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, mrcerrors.NewStorageError("search vectors", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByFile removes every vector of a file.
func (s *Store) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE file_id = '%s'`, s.table, EscapeFilterValue(fileID)))
	if err != nil {
		return mrcerrors.NewStorageError("delete vectors by file", err)
	}
	return nil
}

// DeleteByRepository removes every vector of a repository.
func (s *Store) DeleteByRepository(ctx context.Context, repoID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE repository_id = '%s'`, s.table, EscapeFilterValue(repoID)))
	if err != nil {
		return mrcerrors.NewStorageError("delete vectors by repository", err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, mrcerrors.NewStorageError("count vectors", err)
	}
	return n, nil
}

// EscapeFilterValue doubles single quotes so no filter value reaches the
// store untrusted.
func EscapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// buildFilter renders equality filters as a WHERE clause. Unknown columns
// are ignored rather than interpolated.
func buildFilter(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if filterColumns[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s = '%s'", k, EscapeFilterValue(filters[k])))
	}
	return strings.Join(parts, " AND ")
}

func rowFromMap(m map[string]any) Row {
	str := func(k string) string {
		switch v := m[k].(type) {
		case string:
			return v
		case []byte:
			return string(v)
		default:
			return ""
		}
	}
	num := func(k string) int {
		if v, ok := m[k].(int64); ok {
			return int(v)
		}
		return 0
	}
	boolean := func(k string) bool {
		if v, ok := m[k].(int64); ok {
			return v != 0
		}
		if v, ok := m[k].(bool); ok {
			return v
		}
		return false
	}
	return Row{
		ID:            str("id"),
		RepositoryID:  str("repository_id"),
		FileID:        str("file_id"),
		QualifiedName: str("qualified_name"),
		SimpleName:    str("simple_name"),
		EntityType:    str("entity_type"),
		Language:      str("language"),
		FilePath:      str("file_path"),
		LineStart:     num("line_start"),
		LineEnd:       num("line_end"),
		EmbeddingText: str("embedding_text"),
		Visibility:    str("visibility"),
		IsExported:    boolean("is_exported"),
		HasDocstring:  boolean("has_docstring"),
		Signature:     str("signature"),
		Docstring:     str("docstring"),
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Zero-norm vectors yield similarity 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
