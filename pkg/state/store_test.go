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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createRepo(t *testing.T, s *Store, name string) string {
	t.Helper()
	id, err := s.CreateRepository(context.Background(), name, model.RepoPending)
	require.NoError(t, err)
	return id
}

func createFile(t *testing.T, s *Store, repoID, path string) string {
	t.Helper()
	id, err := s.UpsertFile(context.Background(), &model.IndexedFile{
		RepositoryID:   repoID,
		Path:           path,
		Checksum:       "abc",
		Status:         model.FilePending,
		LastModifiedAt: time.Now(),
	})
	require.NoError(t, err)
	return id
}

func addEntity(t *testing.T, s *Store, repoID, fileID, qname, sname string, kind model.EntityKind) *model.CodeEntity {
	t.Helper()
	e := &model.CodeEntity{
		RepositoryID:  repoID,
		FileID:        fileID,
		QualifiedName: qname,
		SimpleName:    sname,
		Kind:          kind,
		Language:      "python",
		LineStart:     1,
		LineEnd:       2,
	}
	require.NoError(t, s.AddEntity(context.Background(), e))
	return e
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	require.NoError(t, s2.db.Get(&version, `SELECT MAX(version) FROM schema_version`))
	assert.Equal(t, 2, version)
}

func TestRepositoryCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := createRepo(t, s, "alpha")

	repo, err := s.GetRepository(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, "alpha", repo.Name)
	assert.Equal(t, model.RepoPending, repo.Status)

	byName, err := s.GetRepositoryByName(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, id, byName.ID)

	missing, err := s.GetRepositoryByName(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.UpdateRepositoryStatus(ctx, id, model.RepoIndexing, ""))
	repo, err = s.GetRepository(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RepoIndexing, repo.Status)

	ec := 7
	now := time.Now().UTC().UnixNano()
	watching := model.RepoWatching
	require.NoError(t, s.UpdateRepositoryStats(ctx, id, RepositoryStats{
		EntityCount:   &ec,
		LastIndexedAt: &now,
		Status:        &watching,
	}))
	repo, err = s.GetRepository(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, repo.EntityCount)
	assert.Equal(t, model.RepoWatching, repo.Status)
	require.NotNil(t, repo.LastIndexedAt)
}

func TestUpsertFileIdempotentOnPathCollision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")

	first, err := s.UpsertFile(ctx, &model.IndexedFile{
		RepositoryID: repoID, Path: "src/a.py", Checksum: "one",
		Status: model.FilePending, LastModifiedAt: time.Now(),
	})
	require.NoError(t, err)

	second, err := s.UpsertFile(ctx, &model.IndexedFile{
		RepositoryID: repoID, Path: "src/a.py", Checksum: "two",
		Status: model.FilePending, LastModifiedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, first, second)

	files, err := s.ListFilesByRepository(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "two", files[0].Checksum)
}

func TestQueueFIFOWithinPriorityAndPriorityWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")

	f1 := createFile(t, s, repoID, "a.py")
	time.Sleep(2 * time.Millisecond)
	f2 := createFile(t, s, repoID, "b.py")
	time.Sleep(2 * time.Millisecond)
	f3 := createFile(t, s, repoID, "c.py")

	require.NoError(t, s.Enqueue(ctx, f1, repoID, 0))
	require.NoError(t, s.Enqueue(ctx, f2, repoID, 0))
	require.NoError(t, s.Enqueue(ctx, f3, repoID, 5))

	got1, err := s.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, f3, got1.ID, "higher priority dequeued first")

	got2, err := s.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, f1, got2.ID)

	got3, err := s.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, f2, got3.ID)

	empty, err := s.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEnqueueIsIdempotentPerFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileID := createFile(t, s, repoID, "a.py")

	require.NoError(t, s.Enqueue(ctx, fileID, repoID, 0))
	require.NoError(t, s.Enqueue(ctx, fileID, repoID, 0))

	n, err := s.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueuePendingFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")

	createFile(t, s, repoID, "a.py")
	createFile(t, s, repoID, "b.py")
	indexed := createFile(t, s, repoID, "c.py")
	require.NoError(t, s.UpdateFileIndexed(ctx, indexed, 3))

	n, err := s.EnqueuePendingFiles(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkRepositoryFilesPendingResetsFailures(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")

	f1 := createFile(t, s, repoID, "a.py")
	require.NoError(t, s.UpdateFileFailure(ctx, f1, model.FilePermanentFailure, 3, "boom"))
	f2 := createFile(t, s, repoID, "b.py")
	require.NoError(t, s.UpdateFileIndexed(ctx, f2, 1))

	n, err := s.MarkRepositoryFilesPending(ctx, repoID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	file, err := s.GetFile(ctx, f1)
	require.NoError(t, err)
	assert.Equal(t, model.FilePending, file.Status)
	assert.Equal(t, 0, file.FailureCount)
	assert.Empty(t, file.ErrorMessage)
}

func TestEntityRoundTripPreservesDetail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileID := createFile(t, s, repoID, "svc.py")

	e := &model.CodeEntity{
		RepositoryID:  repoID,
		FileID:        fileID,
		QualifiedName: "svc.UserService.create",
		SimpleName:    "create",
		Kind:          model.KindMethod,
		Language:      "python",
		LineStart:     10,
		LineEnd:       20,
		Signature:     "def create(self, name: str) -> User",
		Decorators:    []string{"transactional"},
		Detail: model.EntityDetail{
			Function: &model.FunctionDetail{
				Parameters: []model.Parameter{{Name: "name", TypeAnnotation: "str"}},
				ReturnType: "User",
				Calls:      []string{"validate"},
			},
			Method: &model.MethodDetail{ParentClass: "UserService"},
		},
	}
	require.NoError(t, s.AddEntity(ctx, e))

	got, err := s.GetEntityByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.KindMethod, got.Kind)
	assert.Equal(t, []string{"transactional"}, got.Decorators)
	require.NotNil(t, got.Detail.Method)
	assert.Equal(t, "UserService", got.Detail.Method.ParentClass)
	require.NotNil(t, got.Detail.Function)
	assert.Equal(t, "User", got.Detail.Function.ReturnType)
}

func TestAddEntityUpsertsByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileID := createFile(t, s, repoID, "a.py")

	e := addEntity(t, s, repoID, fileID, "a.f", "f", model.KindFunction)
	e.LineEnd = 42
	require.NoError(t, s.AddEntity(ctx, e))

	n, err := s.CountEntities(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetEntityByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.LineEnd)
}

func TestGetEntitiesBySuffix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileID := createFile(t, s, repoID, "a.py")

	addEntity(t, s, repoID, fileID, "pkg.mod.helper", "helper", model.KindFunction)
	addEntity(t, s, repoID, fileID, "other.helper", "helper", model.KindFunction)
	addEntity(t, s, repoID, fileID, "pkg.mod.unhelpful", "unhelpful", model.KindFunction)

	got, err := s.GetEntitiesBySuffix(ctx, "helper", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Shortest qualified name first.
	assert.Equal(t, "other.helper", got[0].QualifiedName)
}

func TestDeleteEntitiesForFileCascadesEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileA := createFile(t, s, repoID, "a.py")
	fileB := createFile(t, s, repoID, "b.py")

	caller := addEntity(t, s, repoID, fileB, "b.caller", "caller", model.KindFunction)
	callee := addEntity(t, s, repoID, fileA, "a.callee", "callee", model.KindFunction)

	_, err := s.AddRelation(ctx, &model.CodeRelation{
		SourceEntityID:      caller.ID,
		SourceQualifiedName: caller.QualifiedName,
		SourceRepositoryID:  repoID,
		TargetEntityID:      callee.ID,
		TargetQualifiedName: callee.QualifiedName,
		TargetRepositoryID:  repoID,
		RelationType:        model.RelationCalls,
	})
	require.NoError(t, err)

	n, err := s.DeleteEntitiesForFile(ctx, fileA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	incoming, err := s.GetIncomingRelations(ctx, callee.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	outgoing, err := s.GetOutgoingRelations(ctx, caller.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing, "edge targeting a deleted entity must not survive")
}

func TestResolveReferenceCreatesEdgeOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoA := createRepo(t, s, "repo-a")
	repoB := createRepo(t, s, "repo-b")
	fileA := createFile(t, s, repoA, "mod.py")
	fileB := createFile(t, s, repoB, "util.py")

	source := addEntity(t, s, repoA, fileA, "a.mod.f", "f", model.KindFunction)
	target := addEntity(t, s, repoB, fileB, "b.util.g", "g", model.KindFunction)

	refID, err := s.AddPendingReference(ctx, &model.PendingReference{
		SourceEntityID:      source.ID,
		SourceQualifiedName: source.QualifiedName,
		SourceRepositoryID:  repoA,
		TargetQualifiedName: "b.util.g",
		RelationType:        model.RelationCalls,
		LineNumber:          12,
	})
	require.NoError(t, err)

	require.NoError(t, s.ResolveReference(ctx, refID, target.ID))
	// Idempotent: a second pass must not duplicate the edge.
	require.NoError(t, s.ResolveReference(ctx, refID, target.ID))

	incoming, err := s.GetIncomingRelations(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.True(t, incoming[0].IsCrossRepository)
	assert.Equal(t, 12, incoming[0].LineNumber)
	assert.Equal(t, model.ResolutionResolved, incoming[0].ResolutionStatus)

	ref, err := s.GetPendingReference(ctx, refID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionResolved, ref.Status)
	assert.Equal(t, target.ID, ref.ResolvedTargetID)
	require.NotNil(t, ref.ResolvedAt)
}

func TestMarkReferenceUnresolvedTerminalAfterMaxAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileID := createFile(t, s, repoID, "a.py")
	source := addEntity(t, s, repoID, fileID, "a.f", "f", model.KindFunction)

	refID, err := s.AddPendingReference(ctx, &model.PendingReference{
		SourceEntityID:      source.ID,
		SourceRepositoryID:  repoID,
		TargetQualifiedName: "missing.symbol",
		RelationType:        model.RelationCalls,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.MarkReferenceUnresolved(ctx, refID, 3))
		ref, err := s.GetPendingReference(ctx, refID)
		require.NoError(t, err)
		assert.Equal(t, model.ResolutionPending, ref.Status)
	}

	require.NoError(t, s.MarkReferenceUnresolved(ctx, refID, 3))
	ref, err := s.GetPendingReference(ctx, refID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionUnresolved, ref.Status)
	assert.Equal(t, 3, ref.Attempts)

	refs, err := s.GetPendingReferences(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, refs, "unresolved references are not retried")
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertFile(ctx, &model.IndexedFile{
			RepositoryID: repoID, Path: "a.py", Status: model.FilePending,
			LastModifiedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	files, err := s.ListFilesByRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRecoverOnStartup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")

	processing := createFile(t, s, repoID, "stuck.py")
	require.NoError(t, s.UpdateFileStatus(ctx, processing, model.FileProcessing))
	createFile(t, s, repoID, "orphan.py")

	n, err := s.RecoverOnStartup(ctx)
	require.NoError(t, err)
	// One processing file reset plus two pending files enqueued.
	assert.Equal(t, 3, n)

	file, err := s.GetFile(ctx, processing)
	require.NoError(t, err)
	assert.Equal(t, model.FilePending, file.Status)

	qlen, err := s.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, qlen)
}

func TestDeleteRepositoryCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID := createRepo(t, s, "alpha")
	fileID := createFile(t, s, repoID, "a.py")
	e := addEntity(t, s, repoID, fileID, "a.f", "f", model.KindFunction)
	require.NoError(t, s.Enqueue(ctx, fileID, repoID, 0))
	_, err := s.AddPendingReference(ctx, &model.PendingReference{
		SourceEntityID: e.ID, SourceRepositoryID: repoID,
		TargetQualifiedName: "x", RelationType: model.RelationCalls,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRepository(ctx, repoID))

	repo, err := s.GetRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Nil(t, repo)

	file, err := s.GetFile(ctx, fileID)
	require.NoError(t, err)
	assert.Nil(t, file)

	entity, err := s.GetEntityByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, entity)

	qlen, err := s.QueueLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, qlen)
}
