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

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/embed"
	"github.com/mrcis/mrcis/pkg/extract"
	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/state"
	"github.com/mrcis/mrcis/pkg/vector"
)

const testDims = 8

type fixture struct {
	cfg      *config.Config
	store    *state.Store
	vectors  *vector.Store
	indexer  *Indexer
	repoID   string
	repoRoot string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repoRoot := t.TempDir()
	dataDir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.DataDirectory = dataDir
	cfg.Embedding.Dimensions = testDims
	cfg.Repositories = []config.RepositoryConfig{{Name: "demo", Path: repoRoot, Branch: "main"}}

	store, err := state.Open(filepath.Join(dataDir, "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := vector.Open(filepath.Join(dataDir, "vectors.db"), "code_vectors", testDims, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	repoID, err := store.CreateRepository(ctx, "demo", model.RepoPending)
	require.NoError(t, err)

	ix := NewIndexer(store, vectors, embed.NewMockEmbedder(testDims), extract.NewDefaultRegistry(), cfg, nil)
	return &fixture{cfg: cfg, store: store, vectors: vectors, indexer: ix, repoID: repoID, repoRoot: repoRoot}
}

func (f *fixture) writeFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.repoRoot, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// indexAndProcess routes the file through IndexFile and drains the queue.
func (f *fixture) indexAndProcess(t *testing.T, abs string) *model.IndexedFile {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.indexer.IndexFile(ctx, abs, f.repoID, f.repoRoot))

	for {
		file, err := f.store.DequeueNext(ctx)
		require.NoError(t, err)
		if file == nil {
			break
		}
		f.indexer.ProcessFile(ctx, file, f.repoRoot)
	}

	rel, err := filepath.Rel(f.repoRoot, abs)
	require.NoError(t, err)
	file, err := f.store.GetFileByPath(ctx, f.repoID, filepath.ToSlash(rel))
	require.NoError(t, err)
	return file
}

func TestProcessFileIndexesPythonSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	abs := f.writeFile(t, "svc.py", `from os.path import join

class Service:
    def run(self):
        self.helper()

    def helper(self):
        pass
`)
	file := f.indexAndProcess(t, abs)

	require.NotNil(t, file)
	assert.Equal(t, model.FileIndexed, file.Status)
	// module + import + class + 2 methods
	assert.Equal(t, 5, file.EntityCount)
	require.NotNil(t, file.LastIndexedAt)

	entities, err := f.store.GetEntitiesForFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, entities, 5)

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	refs, err := f.store.GetPendingReferences(ctx, 100)
	require.NoError(t, err)
	targets := map[string]bool{}
	for _, r := range refs {
		targets[r.TargetQualifiedName] = true
	}
	assert.True(t, targets["os.path.join"])
	assert.True(t, targets["Service.helper"])

	repo, err := f.store.GetRepository(ctx, f.repoID)
	require.NoError(t, err)
	assert.Equal(t, 5, repo.EntityCount)
	assert.Equal(t, model.RepoWatching, repo.Status)
}

func TestReprocessReplacesEntitiesAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	abs := f.writeFile(t, "mod.py", "def one():\n    pass\n\ndef two():\n    pass\n")
	file := f.indexAndProcess(t, abs)
	require.Equal(t, 3, file.EntityCount, "module + two functions")

	f.writeFile(t, "mod.py", "def only():\n    pass\n")
	file = f.indexAndProcess(t, abs)
	require.NotNil(t, file)
	assert.Equal(t, 2, file.EntityCount)

	entities, err := f.store.GetEntitiesForFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, entities, 2, "old extraction fully replaced")

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "vector rows never exceed the new extraction")
}

func TestUnchangedFileIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	abs := f.writeFile(t, "a.py", "x = 1\n")
	f.indexAndProcess(t, abs)

	require.NoError(t, f.indexer.IndexFile(ctx, abs, f.repoID, f.repoRoot))
	qlen, err := f.store.QueueLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, qlen, "unchanged indexed file is not re-enqueued")
}

func TestUnknownExtensionIndexedEmpty(t *testing.T) {
	f := newFixture(t)

	abs := f.writeFile(t, "notes.xyz", "whatever\n")
	file := f.indexAndProcess(t, abs)

	require.NotNil(t, file)
	assert.Equal(t, model.FileIndexed, file.Status)
	assert.Zero(t, file.EntityCount)
}

func TestEmbeddingFailureMarksFileRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.indexer.embedder = failingEmbedder{}

	abs := f.writeFile(t, "b.py", "def f():\n    pass\n")
	file := f.indexAndProcess(t, abs)

	require.NotNil(t, file)
	assert.Equal(t, model.FileFailed, file.Status)
	assert.Equal(t, 1, file.FailureCount)
	assert.NotEmpty(t, file.ErrorMessage)

	retryable, err := f.store.GetRetryableFailedFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, retryable, 1)
}

func TestRepeatedFailuresBecomePermanent(t *testing.T) {
	f := newFixture(t)
	f.indexer.embedder = failingEmbedder{}

	abs := f.writeFile(t, "c.py", "def f():\n    pass\n")
	var file *model.IndexedFile
	for i := 0; i < 3; i++ {
		// Re-stamp content so the changed checksum re-enqueues the file.
		f.writeFile(t, "c.py", "def f():\n    pass\n# retry "+string(rune('a'+i))+"\n")
		file = f.indexAndProcess(t, abs)
	}

	require.NotNil(t, file)
	assert.Equal(t, model.FilePermanentFailure, file.Status)
	assert.Equal(t, 3, file.FailureCount)
}

func TestReadOnlyIndexerRejectsWrites(t *testing.T) {
	f := newFixture(t)
	f.indexer.IsWriter = func() bool { return false }

	abs := f.writeFile(t, "d.py", "x = 1\n")
	err := f.indexer.IndexFile(context.Background(), abs, f.repoID, f.repoRoot)
	assert.ErrorIs(t, err, mrcerrors.ErrReadOnly)
}

func TestDeleteFileRemovesEntitiesAndVectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	abs := f.writeFile(t, "gone.py", "def f():\n    pass\n")
	file := f.indexAndProcess(t, abs)
	require.Equal(t, model.FileIndexed, file.Status)

	require.NoError(t, f.indexer.DeleteFile(ctx, f.repoID, "gone.py"))

	after, err := f.store.GetFileByPath(ctx, f.repoID, "gone.py")
	require.NoError(t, err)
	assert.Equal(t, model.FileDeleted, after.Status)

	entities, err := f.store.GetEntitiesForFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScanRepositoryEnqueuesIndexableFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.writeFile(t, "one.py", "x = 1\n")
	f.writeFile(t, "two.go", "package two\n")
	f.writeFile(t, "skip.bin", "\x00")

	n, err := f.indexer.ScanRepository(ctx, &f.cfg.Repositories[0], f.repoID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	qlen, err := f.store.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, qlen)
}

func TestReindexForceResetsAndEnqueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"r1.py", "r2.py", "r3.py"} {
		abs := f.writeFile(t, name, "x = 1\n")
		f.indexAndProcess(t, abs)
	}

	// Park one file as permanently failed.
	file, err := f.store.GetFileByPath(ctx, f.repoID, "r1.py")
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateFileFailure(ctx, file.ID, model.FilePermanentFailure, 3, "boom"))

	marked, err := f.indexer.Reindex(ctx, "demo", true)
	require.NoError(t, err)
	assert.Equal(t, 3, marked)

	qlen, err := f.store.QueueLength(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, qlen, 3)

	file, err = f.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FilePending, file.Status)
	assert.Zero(t, file.FailureCount)
}

func TestWorkerPoolDrainsQueue(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, name := range []string{"w1.py", "w2.py", "w3.py"} {
		abs := f.writeFile(t, name, "def f():\n    pass\n")
		require.NoError(t, f.indexer.IndexFile(ctx, abs, f.repoID, f.repoRoot))
	}

	pool := NewWorkerPool(f.indexer, f.cfg, map[string]string{f.repoID: f.repoRoot}, nil)
	done := make(chan struct{})
	go func() {
		pool.Run(ctx, 2)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, err := f.store.QueueLength(context.Background())
		return err == nil && n == 0
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		count, err := f.store.CountIndexedFiles(context.Background(), f.repoID)
		return err == nil && count == 3
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestReconcilerAddsAndReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A repository in the DB that the config no longer declares.
	_, err := f.store.CreateRepository(ctx, "legacy", model.RepoWatching)
	require.NoError(t, err)

	extraRoot := t.TempDir()
	f.cfg.Repositories = append(f.cfg.Repositories, config.RepositoryConfig{Name: "fresh", Path: extraRoot})

	result, err := NewReconciler(f.store, f.cfg, nil).Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"fresh"}, result.Added)
	assert.Equal(t, []string{"legacy"}, result.Removed)
	assert.Equal(t, []string{"demo"}, result.Unchanged)

	legacy, err := f.store.GetRepositoryByName(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, legacy, "repositories missing from config are never deleted")

	fresh, err := f.store.GetRepositoryByName(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, model.RepoPending, fresh.Status)
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"a/b/mod.py":      "python",
		"x.tsx":           "typescript",
		"y.jsx":           "javascript",
		"Rakefile":        "ruby",
		"Gemfile":         "ruby",
		"tasks.rake":      "ruby",
		"Dockerfile":      "dockerfile",
		"Dockerfile.prod": "dockerfile",
		"conf.yaml":       "yaml",
		"conf.toml":       "toml",
		"page.htm":        "html",
		"notes.txt":       "",
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}

func TestBuildEmbeddingText(t *testing.T) {
	e := &model.CodeEntity{
		Kind:          model.KindFunction,
		QualifiedName: "mod.run",
		Signature:     "def run() -> None",
		Docstring:     "Run the thing.",
		SourceText:    "def run():\n    pass",
	}
	text := BuildEmbeddingText(e)
	assert.Equal(t, "function: mod.run\nSignature: def run() -> None\nDescription: Run the thing.\nCode:\ndef run():\n    pass", text)

	bare := &model.CodeEntity{Kind: model.KindClass, QualifiedName: "mod.C"}
	assert.Equal(t, "class: mod.C", BuildEmbeddingText(bare))
}

func TestFailurePolicy(t *testing.T) {
	p := NewFailurePolicy(3)

	retry, status := p.Determine(1)
	assert.True(t, retry)
	assert.Equal(t, model.FileFailed, status)

	retry, status = p.Determine(3)
	assert.False(t, retry)
	assert.Equal(t, model.FilePermanentFailure, status)
}

// failingEmbedder always fails with a retryable embedding error.
type failingEmbedder struct{}

func (failingEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, mrcerrors.NewEmbeddingError(true, errors.New("provider down"))
}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, mrcerrors.NewEmbeddingError(true, errors.New("provider down"))
}
