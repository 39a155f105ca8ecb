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
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/model"
)

type entityRow struct {
	ID            string `db:"id"`
	RepositoryID  string `db:"repository_id"`
	FileID        string `db:"file_id"`
	QualifiedName string `db:"qualified_name"`
	SimpleName    string `db:"simple_name"`
	Kind          string `db:"kind"`
	Language      string `db:"language"`
	FilePath      string `db:"file_path"`
	LineStart     int    `db:"line_start"`
	LineEnd       int    `db:"line_end"`
	ColStart      int    `db:"col_start"`
	ColEnd        int    `db:"col_end"`
	Signature     string `db:"signature"`
	Docstring     string `db:"docstring"`
	SourceText    string `db:"source_text"`
	Visibility    string `db:"visibility"`
	IsExported    bool   `db:"is_exported"`
	Metadata      string `db:"metadata"`
	VectorID      string `db:"vector_id"`
}

// entityMetadata is the JSON shape of the metadata column: decorators plus
// the variant attribute records of the entity kind.
type entityMetadata struct {
	Decorators []string           `json:"decorators,omitempty"`
	Detail     model.EntityDetail `json:"detail,omitempty"`
}

func (r entityRow) toModel() *model.CodeEntity {
	e := &model.CodeEntity{
		ID:            r.ID,
		RepositoryID:  r.RepositoryID,
		FileID:        r.FileID,
		QualifiedName: r.QualifiedName,
		SimpleName:    r.SimpleName,
		Kind:          model.EntityKind(r.Kind),
		Language:      r.Language,
		FilePath:      r.FilePath,
		LineStart:     r.LineStart,
		LineEnd:       r.LineEnd,
		ColStart:      r.ColStart,
		ColEnd:        r.ColEnd,
		Signature:     r.Signature,
		Docstring:     r.Docstring,
		SourceText:    r.SourceText,
		Visibility:    model.Visibility(r.Visibility),
		IsExported:    r.IsExported,
		VectorID:      r.VectorID,
	}
	var meta entityMetadata
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err == nil {
			e.Decorators = meta.Decorators
			e.Detail = meta.Detail
		}
	}
	return e
}

// AddEntity upserts an entity by id.
func (q queries) AddEntity(ctx context.Context, e *model.CodeEntity) error {
	if e.ID == "" {
		e.ID = model.NewID()
	}
	if e.Visibility == "" {
		e.Visibility = model.VisibilityPublic
	}
	meta, err := json.Marshal(entityMetadata{Decorators: e.Decorators, Detail: e.Detail})
	if err != nil {
		return mrcerrors.NewStorageError("add entity", err)
	}

	_, err = q.ext.ExecContext(ctx, `
		INSERT INTO entities (
			id, repository_id, file_id, qualified_name, simple_name, kind,
			language, file_path, line_start, line_end, col_start, col_end,
			signature, docstring, source_text, visibility, is_exported,
			metadata, vector_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			repository_id = excluded.repository_id,
			file_id = excluded.file_id,
			qualified_name = excluded.qualified_name,
			simple_name = excluded.simple_name,
			kind = excluded.kind,
			language = excluded.language,
			file_path = excluded.file_path,
			line_start = excluded.line_start,
			line_end = excluded.line_end,
			col_start = excluded.col_start,
			col_end = excluded.col_end,
			signature = excluded.signature,
			docstring = excluded.docstring,
			source_text = excluded.source_text,
			visibility = excluded.visibility,
			is_exported = excluded.is_exported,
			metadata = excluded.metadata,
			vector_id = excluded.vector_id`,
		e.ID, e.RepositoryID, e.FileID, e.QualifiedName, e.SimpleName, string(e.Kind),
		e.Language, e.FilePath, e.LineStart, e.LineEnd, e.ColStart, e.ColEnd,
		e.Signature, e.Docstring, e.SourceText, string(e.Visibility), e.IsExported,
		string(meta), e.VectorID)
	if err != nil {
		return mrcerrors.NewStorageError("add entity", err)
	}
	return nil
}

// GetEntityByID returns an entity by id, or nil.
func (q queries) GetEntityByID(ctx context.Context, id string) (*model.CodeEntity, error) {
	var row entityRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM entities WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get entity", err)
	}
	return row.toModel(), nil
}

// GetEntityByQualifiedName returns one entity with the given qualified name.
// The tie-break among duplicates is unspecified; callers that need a better
// answer apply the query-surface fallback rules.
func (q queries) GetEntityByQualifiedName(ctx context.Context, qualifiedName string) (*model.CodeEntity, error) {
	var row entityRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		`SELECT * FROM entities WHERE qualified_name = ? LIMIT 1`, qualifiedName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get entity by qualified name", err)
	}
	return row.toModel(), nil
}

// GetEntitiesByQualifiedName returns every entity with an exactly matching
// qualified name.
func (q queries) GetEntitiesByQualifiedName(ctx context.Context, qualifiedName string) ([]*model.CodeEntity, error) {
	var rows []entityRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM entities WHERE qualified_name = ? ORDER BY id`, qualifiedName)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get entities by qualified name", err)
	}
	return entityRowsToModels(rows), nil
}

// GetEntitiesBySuffix returns entities whose qualified name ends with the
// given simple name, shortest qualified names first.
func (q queries) GetEntitiesBySuffix(ctx context.Context, simpleName string, limit int) ([]*model.CodeEntity, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []entityRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT * FROM entities
		WHERE qualified_name = ? OR qualified_name LIKE ? OR qualified_name LIKE ?
		ORDER BY LENGTH(qualified_name), id
		LIMIT ?`,
		simpleName, "%."+simpleName, "%:"+simpleName, limit)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get entities by suffix", err)
	}
	return entityRowsToModels(rows), nil
}

// GetEntitiesForFile returns all entities defined in a file.
func (q queries) GetEntitiesForFile(ctx context.Context, fileID string) ([]*model.CodeEntity, error) {
	var rows []entityRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM entities WHERE file_id = ? ORDER BY line_start, id`, fileID)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get entities for file", err)
	}
	return entityRowsToModels(rows), nil
}

// DeleteEntitiesForFile removes every entity of a file along with its edges
// (outgoing edges and pending references cascade with the entity; incoming
// edges are removed explicitly so no edge targets a deleted entity). It
// returns the number of deleted entities.
func (q queries) DeleteEntitiesForFile(ctx context.Context, fileID string) (int, error) {
	_, err := q.ext.ExecContext(ctx, `
		DELETE FROM relations WHERE target_entity_id IN (
			SELECT id FROM entities WHERE file_id = ?
		)`, fileID)
	if err != nil {
		return 0, mrcerrors.NewStorageError("delete entities for file", err)
	}
	res, err := q.ext.ExecContext(ctx, `DELETE FROM entities WHERE file_id = ?`, fileID)
	if err != nil {
		return 0, mrcerrors.NewStorageError("delete entities for file", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UpdateEntityVectorID records the vector-store id of an entity.
func (q queries) UpdateEntityVectorID(ctx context.Context, entityID, vectorID string) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE entities SET vector_id = ? WHERE id = ?`, vectorID, entityID)
	if err != nil {
		return mrcerrors.NewStorageError("update entity vector id", err)
	}
	return nil
}

// CountEntities counts entities in a repository.
func (q queries) CountEntities(ctx context.Context, repoID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		`SELECT COUNT(*) FROM entities WHERE repository_id = ?`, repoID)
	if err != nil {
		return 0, mrcerrors.NewStorageError("count entities", err)
	}
	return n, nil
}

func entityRowsToModels(rows []entityRow) []*model.CodeEntity {
	out := make([]*model.CodeEntity, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
