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

package model

import "time"

// RelationType classifies a directed edge between two entities.
type RelationType string

// All supported relation types.
const (
	RelationContains  RelationType = "contains"
	RelationDefinedIn RelationType = "defined_in"

	RelationExtends    RelationType = "extends"
	RelationImplements RelationType = "implements"
	RelationOverrides  RelationType = "overrides"

	RelationImports   RelationType = "imports"
	RelationExports   RelationType = "exports"
	RelationDependsOn RelationType = "depends_on"

	RelationCalls        RelationType = "calls"
	RelationInstantiates RelationType = "instantiates"
	RelationUsesType     RelationType = "uses_type"
	RelationReferences   RelationType = "references"

	RelationHasParameter RelationType = "has_parameter"
	RelationReturns      RelationType = "returns"

	RelationDecoratedBy RelationType = "decorated_by"
	RelationDocuments   RelationType = "documents"
)

// ResolutionStatus tracks whether an edge's target has been resolved.
type ResolutionStatus string

// Resolution states.
const (
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionPending    ResolutionStatus = "pending"
	ResolutionUnresolved ResolutionStatus = "unresolved"
)

// CodeRelation is a directed edge in the code graph. TargetEntityID is empty
// until resolved.
type CodeRelation struct {
	ID string `db:"id"`

	SourceEntityID      string `db:"source_entity_id"`
	SourceQualifiedName string `db:"source_qualified_name"`
	SourceRepositoryID  string `db:"source_repository_id"`

	TargetEntityID      string `db:"target_entity_id"`
	TargetQualifiedName string `db:"target_qualified_name"`
	TargetRepositoryID  string `db:"target_repository_id"`

	RelationType RelationType `db:"relation_type"`

	LineNumber     int     `db:"line_number"`
	ContextSnippet string  `db:"context_snippet"`
	Weight         float64 `db:"weight"`

	IsCrossRepository bool             `db:"is_cross_repository"`
	ResolutionStatus  ResolutionStatus `db:"resolution_status"`

	CreatedAt time.Time `db:"created_at"`
}

// PendingReference is a textual reference captured during extraction that has
// not yet been matched to a concrete entity.
type PendingReference struct {
	ID string `db:"id"`

	SourceEntityID      string `db:"source_entity_id"`
	SourceQualifiedName string `db:"source_qualified_name"`
	SourceRepositoryID  string `db:"source_repository_id"`

	TargetQualifiedName string       `db:"target_qualified_name"`
	RelationType        RelationType `db:"relation_type"`
	LineNumber          int          `db:"line_number"`

	// ReceiverExpr is the textual prefix of a method call (the "obj" in
	// obj.method()), used to disambiguate common method names.
	ReceiverExpr   string `db:"receiver_expr"`
	ContextSnippet string `db:"context_snippet"`

	Status           ResolutionStatus `db:"status"`
	Attempts         int              `db:"attempts"`
	ResolvedTargetID string           `db:"resolved_target_id"`
	ResolvedAt       *time.Time       `db:"resolved_at"`

	CreatedAt time.Time `db:"created_at"`
}
