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

// Package query implements the read-only query surface: symbol lookup,
// reference listing, usage search and semantic code search. Every operation
// works on reader instances.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mrcis/mrcis/pkg/embed"
	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/state"
	"github.com/mrcis/mrcis/pkg/vector"
)

// snippetLimit caps snippets returned by search.
const snippetLimit = 2000

// Service executes queries over the state store and vector store.
type Service struct {
	store    *state.Store
	vectors  *vector.Store
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewService wires a query service.
func NewService(store *state.Store, vectors *vector.Store, embedder embed.Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, vectors: vectors, embedder: embedder, logger: logger}
}

// lookupEntity resolves a qualified name to one entity: exact match first,
// then (for dotted names) a suffix match on the last segment. Among multiple
// suffix candidates the first whose qualified name ends with the full query
// wins, else the first candidate.
func (s *Service) lookupEntity(ctx context.Context, qualifiedName string) (*model.CodeEntity, error) {
	entity, err := s.store.GetEntityByQualifiedName(ctx, qualifiedName)
	if err != nil {
		return nil, err
	}
	if entity != nil || !strings.Contains(qualifiedName, ".") {
		return entity, nil
	}

	suffix := qualifiedName[strings.LastIndex(qualifiedName, ".")+1:]
	candidates, err := s.store.GetEntitiesBySuffix(ctx, suffix, 10)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	for _, c := range candidates {
		if strings.HasSuffix(c.QualifiedName, qualifiedName) {
			return c, nil
		}
	}
	return candidates[0], nil
}

// FindSymbol locates a symbol by qualified name.
func (s *Service) FindSymbol(ctx context.Context, qualifiedName string, includeSource bool) (*SymbolResponse, error) {
	entity, err := s.lookupEntity(ctx, qualifiedName)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return &SymbolResponse{
			Found:   false,
			Message: fmt.Sprintf("Symbol not found: %s", qualifiedName),
		}, nil
	}

	repoName := "unknown"
	if repo, err := s.store.GetRepository(ctx, entity.RepositoryID); err == nil && repo != nil {
		repoName = repo.Name
	}
	filePath := "unknown"
	if file, err := s.store.GetFile(ctx, entity.FileID); err == nil && file != nil {
		filePath = file.Path
	}

	info := &SymbolInfo{
		ID:            entity.ID,
		Repository:    repoName,
		FilePath:      filePath,
		QualifiedName: entity.QualifiedName,
		SimpleName:    entity.SimpleName,
		EntityType:    string(entity.Kind),
		Language:      entity.Language,
		LineStart:     entity.LineStart,
		LineEnd:       entity.LineEnd,
		Signature:     entity.Signature,
		Docstring:     entity.Docstring,
		Visibility:    string(entity.Visibility),
		IsExported:    entity.IsExported,
		Decorators:    entity.Decorators,
	}
	if includeSource {
		info.SourceText = entity.SourceText
	}
	if entity.Detail.Class != nil {
		info.BaseClasses = entity.Detail.Class.BaseClasses
	}
	if entity.Detail.Function != nil {
		info.ReturnType = entity.Detail.Function.ReturnType
		for _, p := range entity.Detail.Function.Parameters {
			info.Parameters = append(info.Parameters, p.Name)
		}
	}
	// Fall back to the signature's arrow clause when the extractor recorded
	// no return type.
	if info.ReturnType == "" && strings.Contains(info.Signature, " -> ") {
		info.ReturnType = strings.TrimSpace(strings.SplitN(info.Signature, " -> ", 2)[1])
	}

	return &SymbolResponse{Found: true, Symbol: info}, nil
}

// GetReferences lists the edges touching a symbol: all incoming edges, plus
// outgoing edges when requested.
func (s *Service) GetReferences(ctx context.Context, qualifiedName string, includeOutgoing bool) (*ReferencesResponse, error) {
	entity, err := s.lookupEntity(ctx, qualifiedName)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return &ReferencesResponse{Symbol: qualifiedName, References: []ReferenceInfo{}}, nil
	}

	resp := &ReferencesResponse{Symbol: qualifiedName, References: []ReferenceInfo{}}

	incoming, err := s.store.GetIncomingRelations(ctx, entity.ID)
	if err != nil {
		return nil, err
	}
	resp.Incoming = len(incoming)
	for _, rel := range incoming {
		resp.References = append(resp.References, s.enrich(ctx, rel, rel.SourceEntityID, rel.SourceQualifiedName))
	}

	if includeOutgoing {
		outgoing, err := s.store.GetOutgoingRelations(ctx, entity.ID)
		if err != nil {
			return nil, err
		}
		resp.Outgoing = len(outgoing)
		for _, rel := range outgoing {
			resp.References = append(resp.References, s.enrich(ctx, rel, rel.TargetEntityID, rel.TargetQualifiedName))
		}
	}

	resp.TotalCount = len(resp.References)
	return resp, nil
}

// enrich resolves the other side of an edge to file and repository names.
func (s *Service) enrich(ctx context.Context, rel *model.CodeRelation, otherID, otherQName string) ReferenceInfo {
	info := ReferenceInfo{
		FilePath:           "unknown",
		Repository:         "unknown",
		LineNumber:         rel.LineNumber,
		RelationType:       string(rel.RelationType),
		ContextSnippet:     rel.ContextSnippet,
		OtherQualifiedName: otherQName,
	}
	other, err := s.store.GetEntityByID(ctx, otherID)
	if err != nil || other == nil {
		return info
	}
	if file, err := s.store.GetFile(ctx, other.FileID); err == nil && file != nil {
		info.FilePath = file.Path
	}
	if repo, err := s.store.GetRepository(ctx, other.RepositoryID); err == nil && repo != nil {
		info.Repository = repo.Name
	}
	return info
}

// FindUsages finds references to a symbol by simple or qualified name,
// optionally scoped to one repository.
func (s *Service) FindUsages(ctx context.Context, name string, repository string) (*ReferencesResponse, error) {
	if strings.Contains(name, ".") {
		return s.GetReferences(ctx, name, false)
	}

	candidates, err := s.store.GetEntitiesBySuffix(ctx, name, 10)
	if err != nil {
		return nil, err
	}
	if repository != "" && len(candidates) > 0 {
		repo, err := s.store.GetRepositoryByName(ctx, repository)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			filtered := candidates[:0]
			for _, c := range candidates {
				if c.RepositoryID == repo.ID {
					filtered = append(filtered, c)
				}
			}
			candidates = filtered
		}
	}
	if len(candidates) == 0 {
		return &ReferencesResponse{Symbol: name, References: []ReferenceInfo{}}, nil
	}

	// Candidates come back shortest qualified name first; use the first.
	return s.GetReferences(ctx, candidates[0].QualifiedName, false)
}

// SearchOptions scope a semantic search.
type SearchOptions struct {
	Limit      int
	Repository string
	Language   string
	EntityType string
	MinScore   float64
}

// SearchCode performs a semantic search over the vector store.
func (s *Service) SearchCode(ctx context.Context, queryText string, opts SearchOptions) (*SearchResponse, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}

	filters := map[string]string{}
	if opts.Repository != "" {
		repo, err := s.store.GetRepositoryByName(ctx, opts.Repository)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			filters["repository_id"] = repo.ID
		}
	}
	if opts.Language != "" {
		filters["language"] = opts.Language
	}
	if opts.EntityType != "" {
		filters["entity_type"] = opts.EntityType
	}

	hits, err := s.vectors.Search(ctx, queryVector, opts.Limit, filters, opts.MinScore)
	if err != nil {
		return nil, err
	}

	repoNames := map[string]string{}
	resp := &SearchResponse{Query: queryText, Results: []SearchResult{}}
	if len(filters) > 0 {
		resp.FiltersApplied = filters
	}

	for _, hit := range hits {
		repoName, ok := repoNames[hit.RepositoryID]
		if !ok {
			repoName = "unknown"
			if repo, err := s.store.GetRepository(ctx, hit.RepositoryID); err == nil && repo != nil {
				repoName = repo.Name
			}
			repoNames[hit.RepositoryID] = repoName
		}

		// Snippet from the entity's source, falling back to the stored
		// embedding text.
		snippet := ""
		if entity, err := s.store.GetEntityByID(ctx, hit.ID); err == nil && entity != nil && entity.SourceText != "" {
			snippet = truncate(entity.SourceText, snippetLimit)
		}
		if snippet == "" {
			snippet = truncate(hit.EmbeddingText, snippetLimit)
		}

		resp.Results = append(resp.Results, SearchResult{
			ID:            hit.ID,
			Repository:    repoName,
			FilePath:      hit.FilePath,
			QualifiedName: hit.QualifiedName,
			SimpleName:    hit.SimpleName,
			EntityType:    hit.EntityType,
			LineStart:     hit.LineStart,
			LineEnd:       hit.LineEnd,
			Score:         hit.Similarity(),
			Signature:     hit.Signature,
			Docstring:     hit.Docstring,
			Snippet:       snippet,
		})
	}
	resp.TotalCount = len(resp.Results)
	return resp, nil
}

// Status reports per-repository counts, optionally scoped to one
// repository.
func (s *Service) Status(ctx context.Context, repository string) (*StatusResponse, error) {
	var repos []*model.Repository
	if repository != "" {
		repo, err := s.store.GetRepositoryByName(ctx, repository)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			repos = append(repos, repo)
		}
	} else {
		var err error
		repos, err = s.store.ListRepositories(ctx)
		if err != nil {
			return nil, err
		}
	}

	resp := &StatusResponse{Repositories: []RepositoryStatus{}}
	for _, repo := range repos {
		pending, err := s.store.CountPendingFiles(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		failed, err := s.store.CountFailedFiles(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		files, err := s.store.CountIndexedFiles(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		entities, err := s.store.CountEntities(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		relations, err := s.store.CountRelations(ctx, repo.ID)
		if err != nil {
			return nil, err
		}

		rs := RepositoryStatus{
			Repository:    repo.Name,
			Status:        string(repo.Status),
			FileCount:     files,
			EntityCount:   entities,
			RelationCount: relations,
			PendingFiles:  pending,
			FailedFiles:   failed,
			ErrorMessage:  repo.ErrorMessage,
		}
		if repo.LastIndexedAt != nil {
			rs.LastIndexedAt = repo.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		resp.Repositories = append(resp.Repositories, rs)
		resp.TotalFiles += files
		resp.TotalEntities += entities
		resp.TotalRelations += relations
	}
	return resp, nil
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
