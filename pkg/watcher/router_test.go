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

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/embed"
	"github.com/mrcis/mrcis/pkg/extract"
	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/pipeline"
	"github.com/mrcis/mrcis/pkg/state"
	"github.com/mrcis/mrcis/pkg/vector"
)

type routerFixture struct {
	router  *Router
	store   *state.Store
	indexer *pipeline.Indexer
	repoID  string
	root    string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	dataDir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.DataDirectory = dataDir
	cfg.Embedding.Dimensions = 8
	cfg.Repositories = []config.RepositoryConfig{{Name: "demo", Path: root, Branch: "main"}}

	store, err := state.Open(filepath.Join(dataDir, "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := vector.Open(filepath.Join(dataDir, "vectors.db"), "code_vectors", 8, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	repoID, err := store.CreateRepository(ctx, "demo", model.RepoWatching)
	require.NoError(t, err)

	indexer := pipeline.NewIndexer(store, vectors, embed.NewMockEmbedder(8), extract.NewDefaultRegistry(), cfg, nil)
	return &routerFixture{
		router:  NewRouter(store, indexer, cfg, nil),
		store:   store,
		indexer: indexer,
		repoID:  repoID,
		root:    root,
	}
}

func (f *routerFixture) drainQueue(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		file, err := f.store.DequeueNext(ctx)
		require.NoError(t, err)
		if file == nil {
			return
		}
		f.indexer.ProcessFile(ctx, file, f.root)
	}
}

func TestRouterCreatedEventIndexesFile(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.root, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	f.router.Handle(ctx, FileEvent{Type: EventCreated, Path: path, Repository: "demo"})
	f.drainQueue(t)

	file, err := f.store.GetFileByPath(ctx, f.repoID, "a.py")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, model.FileIndexed, file.Status)
}

func TestRouterAtomicSaveTreatedAsModification(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.root, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	f.router.Handle(ctx, FileEvent{Type: EventCreated, Path: path, Repository: "demo"})
	f.drainQueue(t)

	before, err := f.store.GetFileByPath(ctx, f.repoID, "a.py")
	require.NoError(t, err)

	// An atomic save deletes and immediately recreates the file; after the
	// debounce the path exists again with new content.
	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))
	f.router.Handle(ctx, FileEvent{Type: EventDeleted, Path: path, Repository: "demo"})
	f.drainQueue(t)

	after, err := f.store.GetFileByPath(ctx, f.repoID, "a.py")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, model.FileIndexed, after.Status)
	assert.NotEqual(t, before.Checksum, after.Checksum, "checksum refreshed")
	assert.Equal(t, before.ID, after.ID, "exactly one row survives")

	entities, err := f.store.GetEntitiesForFile(ctx, after.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, entities, "entities were re-extracted, not dropped")
}

func TestRouterTrueDeletionRemovesFromIndex(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.root, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def f():\n    pass\n"), 0o644))
	f.router.Handle(ctx, FileEvent{Type: EventCreated, Path: path, Repository: "demo"})
	f.drainQueue(t)

	require.NoError(t, os.Remove(path))
	f.router.Handle(ctx, FileEvent{Type: EventDeleted, Path: path, Repository: "demo"})

	file, err := f.store.GetFileByPath(ctx, f.repoID, "a.py")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, model.FileDeleted, file.Status)

	entities, err := f.store.GetEntitiesForFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestRouterUnknownRepositoryIsIgnored(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Handle(context.Background(), FileEvent{Type: EventCreated, Path: "/x/y.py", Repository: "ghost"})

	qlen, err := f.store.QueueLength(context.Background())
	require.NoError(t, err)
	assert.Zero(t, qlen)
}
