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
	"time"

	"github.com/jmoiron/sqlx"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/model"
)

type relationRow struct {
	ID                  string  `db:"id"`
	SourceEntityID      string  `db:"source_entity_id"`
	SourceQualifiedName string  `db:"source_qualified_name"`
	SourceRepositoryID  string  `db:"source_repository_id"`
	TargetEntityID      string  `db:"target_entity_id"`
	TargetQualifiedName string  `db:"target_qualified_name"`
	TargetRepositoryID  string  `db:"target_repository_id"`
	RelationType        string  `db:"relation_type"`
	LineNumber          int     `db:"line_number"`
	ContextSnippet      string  `db:"context_snippet"`
	Weight              float64 `db:"weight"`
	IsCrossRepository   bool    `db:"is_cross_repository"`
	ResolutionStatus    string  `db:"resolution_status"`
	CreatedAt           int64   `db:"created_at"`
}

func (r relationRow) toModel() *model.CodeRelation {
	return &model.CodeRelation{
		ID:                  r.ID,
		SourceEntityID:      r.SourceEntityID,
		SourceQualifiedName: r.SourceQualifiedName,
		SourceRepositoryID:  r.SourceRepositoryID,
		TargetEntityID:      r.TargetEntityID,
		TargetQualifiedName: r.TargetQualifiedName,
		TargetRepositoryID:  r.TargetRepositoryID,
		RelationType:        model.RelationType(r.RelationType),
		LineNumber:          r.LineNumber,
		ContextSnippet:      r.ContextSnippet,
		Weight:              r.Weight,
		IsCrossRepository:   r.IsCrossRepository,
		ResolutionStatus:    model.ResolutionStatus(r.ResolutionStatus),
		CreatedAt:           time.Unix(0, r.CreatedAt).UTC(),
	}
}

// AddRelation inserts a directed edge.
func (q queries) AddRelation(ctx context.Context, rel *model.CodeRelation) (string, error) {
	if rel.ID == "" {
		rel.ID = model.NewID()
	}
	if rel.Weight == 0 {
		rel.Weight = 1.0
	}
	if rel.ResolutionStatus == "" {
		rel.ResolutionStatus = model.ResolutionResolved
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO relations (
			id, source_entity_id, source_qualified_name, source_repository_id,
			target_entity_id, target_qualified_name, target_repository_id,
			relation_type, line_number, context_snippet, weight,
			is_cross_repository, resolution_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.SourceEntityID, rel.SourceQualifiedName, rel.SourceRepositoryID,
		rel.TargetEntityID, rel.TargetQualifiedName, rel.TargetRepositoryID,
		string(rel.RelationType), rel.LineNumber, rel.ContextSnippet, rel.Weight,
		rel.IsCrossRepository, string(rel.ResolutionStatus), nowUnixNano())
	if err != nil {
		return "", mrcerrors.NewStorageError("add relation", err)
	}
	return rel.ID, nil
}

// GetIncomingRelations returns all edges where the entity is the target.
func (q queries) GetIncomingRelations(ctx context.Context, entityID string) ([]*model.CodeRelation, error) {
	var rows []relationRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM relations WHERE target_entity_id = ? ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get incoming relations", err)
	}
	return relationRowsToModels(rows), nil
}

// GetOutgoingRelations returns all edges where the entity is the source.
func (q queries) GetOutgoingRelations(ctx context.Context, entityID string) ([]*model.CodeRelation, error) {
	var rows []relationRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM relations WHERE source_entity_id = ? ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get outgoing relations", err)
	}
	return relationRowsToModels(rows), nil
}

// CountRelations counts edges touching a repository as source or target.
func (q queries) CountRelations(ctx context.Context, repoID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n, `
		SELECT COUNT(*) FROM relations
		WHERE source_repository_id = ? OR target_repository_id = ?`, repoID, repoID)
	if err != nil {
		return 0, mrcerrors.NewStorageError("count relations", err)
	}
	return n, nil
}

func relationRowsToModels(rows []relationRow) []*model.CodeRelation {
	out := make([]*model.CodeRelation, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
