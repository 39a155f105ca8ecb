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

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/pkg/embed"
	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/state"
	"github.com/mrcis/mrcis/pkg/vector"
)

const testDims = 8

type fixture struct {
	store   *state.Store
	vectors *vector.Store
	svc     *Service
	mock    *embed.MockEmbedder
	repoID  string
	fileID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := state.Open(filepath.Join(dir, "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := vector.Open(filepath.Join(dir, "vectors.db"), "code_vectors", testDims, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	repoID, err := store.CreateRepository(ctx, "demo", model.RepoWatching)
	require.NoError(t, err)
	fileID, err := store.UpsertFile(ctx, &model.IndexedFile{
		RepositoryID: repoID, Path: "svc/users.py", Status: model.FileIndexed, LastModifiedAt: time.Now(),
	})
	require.NoError(t, err)

	mock := embed.NewMockEmbedder(testDims)
	return &fixture{
		store:   store,
		vectors: vectors,
		svc:     NewService(store, vectors, mock, nil),
		mock:    mock,
		repoID:  repoID,
		fileID:  fileID,
	}
}

func (f *fixture) addEntity(t *testing.T, qname, sname string, kind model.EntityKind) *model.CodeEntity {
	t.Helper()
	e := &model.CodeEntity{
		RepositoryID:  f.repoID,
		FileID:        f.fileID,
		QualifiedName: qname,
		SimpleName:    sname,
		Kind:          kind,
		Language:      "python",
		LineStart:     3,
		LineEnd:       9,
		Signature:     "def " + sname + "(self) -> None",
		SourceText:    "def " + sname + "(self):\n    pass",
	}
	require.NoError(t, f.store.AddEntity(context.Background(), e))
	return e
}

func (f *fixture) addEdge(t *testing.T, source, target *model.CodeEntity, rt model.RelationType, line int) {
	t.Helper()
	_, err := f.store.AddRelation(context.Background(), &model.CodeRelation{
		SourceEntityID:      source.ID,
		SourceQualifiedName: source.QualifiedName,
		SourceRepositoryID:  source.RepositoryID,
		TargetEntityID:      target.ID,
		TargetQualifiedName: target.QualifiedName,
		TargetRepositoryID:  target.RepositoryID,
		RelationType:        rt,
		LineNumber:          line,
	})
	require.NoError(t, err)
}

func TestFindSymbolExactMatch(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "users.UserService.create", "create", model.KindMethod)

	resp, err := f.svc.FindSymbol(context.Background(), "users.UserService.create", false)
	require.NoError(t, err)

	require.True(t, resp.Found)
	assert.Equal(t, "users.UserService.create", resp.Symbol.QualifiedName)
	assert.Equal(t, "demo", resp.Symbol.Repository)
	assert.Equal(t, "svc/users.py", resp.Symbol.FilePath)
	assert.Equal(t, "method", resp.Symbol.EntityType)
	assert.Equal(t, 3, resp.Symbol.LineStart)
	assert.Empty(t, resp.Symbol.SourceText, "source withheld unless requested")
	assert.Equal(t, "None", resp.Symbol.ReturnType, "return type recovered from the signature")
}

func TestFindSymbolIncludeSource(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "users.UserService.create", "create", model.KindMethod)

	resp, err := f.svc.FindSymbol(context.Background(), "users.UserService.create", true)
	require.NoError(t, err)
	require.True(t, resp.Found)
	assert.NotEmpty(t, resp.Symbol.SourceText)
}

func TestFindSymbolSuffixFallback(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "pkg.users.UserService.create", "create", model.KindMethod)

	resp, err := f.svc.FindSymbol(context.Background(), "UserService.create", false)
	require.NoError(t, err)
	require.True(t, resp.Found)
	assert.Equal(t, "pkg.users.UserService.create", resp.Symbol.QualifiedName)
}

func TestFindSymbolNotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.FindSymbol(context.Background(), "no.such.symbol", false)
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.Contains(t, resp.Message, "no.such.symbol")
}

func TestFindSymbolSuffixPrefersFullQueryMatch(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "a.other.create", "create", model.KindMethod)
	f.addEntity(t, "b.users.UserService.create", "create", model.KindMethod)

	resp, err := f.svc.FindSymbol(context.Background(), "UserService.create", false)
	require.NoError(t, err)
	require.True(t, resp.Found)
	assert.Equal(t, "b.users.UserService.create", resp.Symbol.QualifiedName)
}

func TestGetReferencesIncoming(t *testing.T) {
	f := newFixture(t)
	target := f.addEntity(t, "users.helper", "helper", model.KindFunction)
	caller := f.addEntity(t, "users.main", "main", model.KindFunction)
	f.addEdge(t, caller, target, model.RelationCalls, 42)

	resp, err := f.svc.GetReferences(context.Background(), "users.helper", false)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, 1, resp.Incoming)
	assert.Zero(t, resp.Outgoing)
	ref := resp.References[0]
	assert.Equal(t, "users.main", ref.OtherQualifiedName)
	assert.Equal(t, 42, ref.LineNumber)
	assert.Equal(t, "calls", ref.RelationType)
	assert.Equal(t, "svc/users.py", ref.FilePath)
	assert.Equal(t, "demo", ref.Repository)
}

func TestGetReferencesWithOutgoing(t *testing.T) {
	f := newFixture(t)
	target := f.addEntity(t, "users.helper", "helper", model.KindFunction)
	caller := f.addEntity(t, "users.main", "main", model.KindFunction)
	callee := f.addEntity(t, "users.leaf", "leaf", model.KindFunction)
	f.addEdge(t, caller, target, model.RelationCalls, 1)
	f.addEdge(t, target, callee, model.RelationCalls, 2)

	resp, err := f.svc.GetReferences(context.Background(), "users.helper", true)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalCount)
	assert.Equal(t, 1, resp.Incoming)
	assert.Equal(t, 1, resp.Outgoing)
}

func TestFindUsagesBySimpleName(t *testing.T) {
	f := newFixture(t)
	target := f.addEntity(t, "users.helper", "helper", model.KindFunction)
	caller := f.addEntity(t, "users.main", "main", model.KindFunction)
	f.addEdge(t, caller, target, model.RelationCalls, 5)

	resp, err := f.svc.FindUsages(context.Background(), "helper", "")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestFindUsagesQualifiedNameForwards(t *testing.T) {
	f := newFixture(t)
	target := f.addEntity(t, "users.helper", "helper", model.KindFunction)
	caller := f.addEntity(t, "users.main", "main", model.KindFunction)
	f.addEdge(t, caller, target, model.RelationCalls, 5)

	resp, err := f.svc.FindUsages(context.Background(), "users.helper", "")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestFindUsagesRepositoryFilter(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "users.helper", "helper", model.KindFunction)

	resp, err := f.svc.FindUsages(context.Background(), "helper", "other-repo")
	require.NoError(t, err)
	assert.Zero(t, resp.TotalCount)
}

func TestSearchCodeReturnsScoredResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entity := f.addEntity(t, "users.UserService.create", "create", model.KindMethod)
	text := "method: users.UserService.create"
	vec, err := f.mock.EmbedQuery(ctx, text)
	require.NoError(t, err)

	_, err = f.vectors.Upsert(ctx, []vector.Row{{
		ID:            entity.ID,
		RepositoryID:  f.repoID,
		FileID:        f.fileID,
		QualifiedName: entity.QualifiedName,
		SimpleName:    entity.SimpleName,
		EntityType:    string(entity.Kind),
		Language:      "python",
		FilePath:      "svc/users.py",
		LineStart:     3,
		LineEnd:       9,
		Vector:        vec,
		EmbeddingText: text,
		Visibility:    "public",
	}})
	require.NoError(t, err)

	resp, err := f.svc.SearchCode(ctx, text, SearchOptions{Limit: 5})
	require.NoError(t, err)

	require.Equal(t, 1, resp.TotalCount)
	hit := resp.Results[0]
	assert.Equal(t, "demo", hit.Repository)
	assert.InDelta(t, 1.0, hit.Score, 1e-5, "identical text embeds to identical vector")
	assert.GreaterOrEqual(t, hit.Score, 0.0)
	assert.LessOrEqual(t, hit.Score, 1.0)
	assert.Contains(t, hit.Snippet, "def create", "snippet drawn from entity source")
}

func TestSearchCodeRepositoryFilterMapsNameToID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entity := f.addEntity(t, "users.fn", "fn", model.KindFunction)
	vec, err := f.mock.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	_, err = f.vectors.Upsert(ctx, []vector.Row{{
		ID: entity.ID, RepositoryID: f.repoID, FileID: f.fileID,
		QualifiedName: entity.QualifiedName, SimpleName: "fn", EntityType: "function",
		Language: "python", FilePath: "svc/users.py", LineStart: 1, LineEnd: 2,
		Vector: vec, EmbeddingText: "x", Visibility: "public",
	}})
	require.NoError(t, err)

	resp, err := f.svc.SearchCode(ctx, "x", SearchOptions{Repository: "demo"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, f.repoID, resp.FiltersApplied["repository_id"])

	resp, err = f.svc.SearchCode(ctx, "x", SearchOptions{Repository: "demo", Language: "go"})
	require.NoError(t, err)
	assert.Zero(t, resp.TotalCount)
}

func TestStatusCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addEntity(t, "users.helper", "helper", model.KindFunction)
	_, err := f.store.UpsertFile(ctx, &model.IndexedFile{
		RepositoryID: f.repoID, Path: "broken.py", Status: model.FileFailed, LastModifiedAt: time.Now(),
	})
	require.NoError(t, err)
	_, err = f.store.UpsertFile(ctx, &model.IndexedFile{
		RepositoryID: f.repoID, Path: "todo.py", Status: model.FilePending, LastModifiedAt: time.Now(),
	})
	require.NoError(t, err)

	resp, err := f.svc.Status(ctx, "")
	require.NoError(t, err)

	require.Len(t, resp.Repositories, 1)
	rs := resp.Repositories[0]
	assert.Equal(t, "demo", rs.Repository)
	assert.Equal(t, 1, rs.FileCount)
	assert.Equal(t, 1, rs.EntityCount)
	assert.Equal(t, 1, rs.PendingFiles)
	assert.Equal(t, 1, rs.FailedFiles)
	assert.Equal(t, 1, resp.TotalEntities)
}

func TestStatusUnknownRepository(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Status(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, resp.Repositories)
}
