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

package query

// SymbolInfo describes a located symbol. Identifiers are strings and line
// numbers 1-based.
type SymbolInfo struct {
	ID            string   `json:"id"`
	Repository    string   `json:"repository"`
	FilePath      string   `json:"file_path"`
	QualifiedName string   `json:"qualified_name"`
	SimpleName    string   `json:"simple_name"`
	EntityType    string   `json:"entity_type"`
	Language      string   `json:"language"`
	LineStart     int      `json:"line_start"`
	LineEnd       int      `json:"line_end"`
	Signature     string   `json:"signature,omitempty"`
	Docstring     string   `json:"docstring,omitempty"`
	SourceText    string   `json:"source_text,omitempty"`
	Visibility    string   `json:"visibility"`
	IsExported    bool     `json:"is_exported"`
	Decorators    []string `json:"decorators,omitempty"`
	BaseClasses   []string `json:"base_classes,omitempty"`
	ReturnType    string   `json:"return_type,omitempty"`
	Parameters    []string `json:"parameters,omitempty"`
}

// SymbolResponse is the find_symbol result.
type SymbolResponse struct {
	Found   bool        `json:"found"`
	Symbol  *SymbolInfo `json:"symbol,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ReferenceInfo is one enriched edge of a references result.
type ReferenceInfo struct {
	FilePath           string `json:"file_path"`
	Repository         string `json:"repository"`
	LineNumber         int    `json:"line_number"`
	RelationType       string `json:"relation_type"`
	ContextSnippet     string `json:"context_snippet,omitempty"`
	OtherQualifiedName string `json:"other_qualified_name"`
}

// ReferencesResponse is the get_references / find_usages result.
type ReferencesResponse struct {
	Symbol     string          `json:"symbol"`
	References []ReferenceInfo `json:"references"`
	TotalCount int             `json:"total_count"`
	Incoming   int             `json:"incoming"`
	Outgoing   int             `json:"outgoing"`
}

// SearchResult is one semantic search hit. Score is in [0, 1].
type SearchResult struct {
	ID            string  `json:"id"`
	Repository    string  `json:"repository"`
	FilePath      string  `json:"file_path"`
	QualifiedName string  `json:"qualified_name"`
	SimpleName    string  `json:"simple_name"`
	EntityType    string  `json:"entity_type"`
	LineStart     int     `json:"line_start"`
	LineEnd       int     `json:"line_end"`
	Score         float64 `json:"score"`
	Signature     string  `json:"signature,omitempty"`
	Docstring     string  `json:"docstring,omitempty"`
	Snippet       string  `json:"snippet,omitempty"`
}

// SearchResponse is the search_code result.
type SearchResponse struct {
	Query          string            `json:"query"`
	Results        []SearchResult    `json:"results"`
	TotalCount     int               `json:"total_count"`
	FiltersApplied map[string]string `json:"filters_applied,omitempty"`
}

// RepositoryStatus is the per-repository slice of the status surface.
type RepositoryStatus struct {
	Repository    string `json:"repository"`
	Status        string `json:"status"`
	FileCount     int    `json:"file_count"`
	EntityCount   int    `json:"entity_count"`
	RelationCount int    `json:"relation_count"`
	PendingFiles  int    `json:"pending_files"`
	FailedFiles   int    `json:"failed_files"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// StatusResponse aggregates repository statuses.
type StatusResponse struct {
	Repositories   []RepositoryStatus `json:"repositories"`
	TotalFiles     int                `json:"total_files"`
	TotalEntities  int                `json:"total_entities"`
	TotalRelations int                `json:"total_relations"`
}
