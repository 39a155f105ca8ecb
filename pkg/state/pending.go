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
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/model"
)

type pendingRow struct {
	ID                  string        `db:"id"`
	SourceEntityID      string        `db:"source_entity_id"`
	SourceQualifiedName string        `db:"source_qualified_name"`
	SourceRepositoryID  string        `db:"source_repository_id"`
	TargetQualifiedName string        `db:"target_qualified_name"`
	RelationType        string        `db:"relation_type"`
	LineNumber          int           `db:"line_number"`
	ContextSnippet      string        `db:"context_snippet"`
	Status              string        `db:"status"`
	Attempts            int           `db:"attempts"`
	ResolvedTargetID    string        `db:"resolved_target_id"`
	ResolvedAt          sql.NullInt64 `db:"resolved_at"`
	CreatedAt           int64         `db:"created_at"`
	ReceiverExpr        string        `db:"receiver_expr"`
}

func (r pendingRow) toModel() *model.PendingReference {
	return &model.PendingReference{
		ID:                  r.ID,
		SourceEntityID:      r.SourceEntityID,
		SourceQualifiedName: r.SourceQualifiedName,
		SourceRepositoryID:  r.SourceRepositoryID,
		TargetQualifiedName: r.TargetQualifiedName,
		RelationType:        model.RelationType(r.RelationType),
		LineNumber:          r.LineNumber,
		ReceiverExpr:        r.ReceiverExpr,
		ContextSnippet:      r.ContextSnippet,
		Status:              model.ResolutionStatus(r.Status),
		Attempts:            r.Attempts,
		ResolvedTargetID:    r.ResolvedTargetID,
		ResolvedAt:          timePtr(r.ResolvedAt),
		CreatedAt:           time.Unix(0, r.CreatedAt).UTC(),
	}
}

// AddPendingReference records an unresolved textual reference for deferred
// resolution.
func (q queries) AddPendingReference(ctx context.Context, ref *model.PendingReference) (string, error) {
	if ref.ID == "" {
		ref.ID = model.NewID()
	}
	if ref.Status == "" {
		ref.Status = model.ResolutionPending
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO pending_references (
			id, source_entity_id, source_qualified_name, source_repository_id,
			target_qualified_name, relation_type, line_number, context_snippet,
			receiver_expr, status, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, ref.SourceEntityID, ref.SourceQualifiedName, ref.SourceRepositoryID,
		ref.TargetQualifiedName, string(ref.RelationType), ref.LineNumber,
		ref.ContextSnippet, ref.ReceiverExpr, string(ref.Status), ref.Attempts,
		nowUnixNano())
	if err != nil {
		return "", mrcerrors.NewStorageError("add pending reference", err)
	}
	return ref.ID, nil
}

// GetPendingReferences returns up to limit references still awaiting
// resolution, oldest first.
func (q queries) GetPendingReferences(ctx context.Context, limit int) ([]*model.PendingReference, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []pendingRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT * FROM pending_references
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, mrcerrors.NewStorageError("get pending references", err)
	}
	out := make([]*model.PendingReference, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetPendingReference returns one pending reference by id, or nil.
func (q queries) GetPendingReference(ctx context.Context, id string) (*model.PendingReference, error) {
	var row pendingRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM pending_references WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mrcerrors.NewStorageError("get pending reference", err)
	}
	return row.toModel(), nil
}

// ResolveReference atomically creates the concrete edge for a pending
// reference and marks the reference resolved. Resolving an already-resolved
// reference is a no-op, and re-processing never duplicates the edge.
func (q queries) ResolveReference(ctx context.Context, refID, targetEntityID string) error {
	ref, err := q.GetPendingReference(ctx, refID)
	if err != nil {
		return err
	}
	if ref == nil {
		return mrcerrors.NewStorageError("resolve reference", fmt.Errorf("pending reference %s not found", refID))
	}
	if ref.Status == model.ResolutionResolved {
		return nil
	}

	target, err := q.GetEntityByID(ctx, targetEntityID)
	if err != nil {
		return err
	}
	if target == nil {
		return mrcerrors.NewStorageError("resolve reference", fmt.Errorf("target entity %s not found", targetEntityID))
	}

	var existing int
	err = sqlx.GetContext(ctx, q.ext, &existing, `
		SELECT COUNT(*) FROM relations
		WHERE source_entity_id = ? AND target_entity_id = ? AND relation_type = ? AND line_number = ?`,
		ref.SourceEntityID, targetEntityID, string(ref.RelationType), ref.LineNumber)
	if err != nil {
		return mrcerrors.NewStorageError("resolve reference", err)
	}

	if existing == 0 {
		_, err = q.AddRelation(ctx, &model.CodeRelation{
			SourceEntityID:      ref.SourceEntityID,
			SourceQualifiedName: ref.SourceQualifiedName,
			SourceRepositoryID:  ref.SourceRepositoryID,
			TargetEntityID:      target.ID,
			TargetQualifiedName: target.QualifiedName,
			TargetRepositoryID:  target.RepositoryID,
			RelationType:        ref.RelationType,
			LineNumber:          ref.LineNumber,
			ContextSnippet:      ref.ContextSnippet,
			IsCrossRepository:   ref.SourceRepositoryID != target.RepositoryID,
			ResolutionStatus:    model.ResolutionResolved,
		})
		if err != nil {
			return err
		}
	}

	_, err = q.ext.ExecContext(ctx, `
		UPDATE pending_references
		SET status = 'resolved', resolved_target_id = ?, resolved_at = ?
		WHERE id = ?`,
		targetEntityID, nowUnixNano(), refID)
	if err != nil {
		return mrcerrors.NewStorageError("resolve reference", err)
	}
	return nil
}

// MarkReferenceUnresolved increments a reference's attempt counter, marking
// it terminally unresolved once maxAttempts is reached.
func (q queries) MarkReferenceUnresolved(ctx context.Context, refID string, maxAttempts int) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE pending_references
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= ? THEN 'unresolved' ELSE status END
		WHERE id = ?`,
		maxAttempts, refID)
	if err != nil {
		return mrcerrors.NewStorageError("mark reference unresolved", err)
	}
	return nil
}
