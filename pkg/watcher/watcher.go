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

// Package watcher observes repository roots for file changes, debounces the
// raw notifications and routes the coalesced events into the indexing
// pipeline. Watchers run only on the writer instance.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/mrcis/mrcis/pkg/config"
	"github.com/mrcis/mrcis/pkg/scanner"
)

// Event types.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventDeleted  = "deleted"
)

// FileEvent is one filesystem change attributed to a repository.
type FileEvent struct {
	Type       string
	Path       string
	Repository string
}

// maxRestartAttempts bounds watcher restarts after notifier errors.
const maxRestartAttempts = 3

// Watcher observes one repository root recursively and posts events that
// pass the inclusion filters to a shared channel.
type Watcher struct {
	repo   config.RepositoryConfig
	policy *scanner.InclusionPolicy
	out    chan<- FileEvent
	logger *slog.Logger
}

// New creates a watcher for a repository.
func New(repo config.RepositoryConfig, files config.FilesConfig, out chan<- FileEvent, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if len(repo.IncludePatterns) > 0 {
		files.IncludePatterns = repo.IncludePatterns
	}
	if len(repo.ExcludePatterns) > 0 {
		files.ExcludePatterns = append(append([]string{}, files.ExcludePatterns...), repo.ExcludePatterns...)
	}
	return &Watcher{
		repo:   repo,
		policy: scanner.NewInclusionPolicy(repo.Path, files),
		out:    out,
		logger: logger,
	}
}

// Run watches until ctx is cancelled, restarting the notifier a bounded
// number of times after errors.
func (w *Watcher) Run(ctx context.Context) {
	for attempt := 0; attempt <= maxRestartAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if err := w.watch(ctx); err != nil {
			w.logger.Warn("watcher.restart", "repo", w.repo.Name, "attempt", attempt+1, "err", err)
			continue
		}
		return
	}
	w.logger.Error("watcher.gave_up", "repo", w.repo.Name)
}

func (w *Watcher) watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addRecursive(fsw, w.repo.Path); err != nil {
		return err
	}
	w.logger.Info("watcher.started", "repo", w.repo.Name, "root", w.repo.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleRaw(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// addRecursive registers the root and every non-excluded subdirectory.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && scanner.IsExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) handleRaw(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Chmod != 0 && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New directories join the watch; directory events are otherwise
	// ignored.
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 && !scanner.IsExcludedDir(filepath.Base(ev.Name)) {
			_ = w.addRecursive(fsw, ev.Name)
		}
		return
	}

	// Transient state-store files are never indexed.
	name := filepath.Base(ev.Name)
	if strings.HasSuffix(name, "-journal") || strings.HasSuffix(name, "-wal") || strings.HasSuffix(name, "-shm") {
		return
	}

	if !w.policy.MatchesFilters(ev.Name) {
		return
	}

	eventType := EventModified
	switch {
	case ev.Op&fsnotify.Create != 0:
		eventType = EventCreated
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename is a deletion of the source path; the destination
		// arrives as its own create event.
		eventType = EventDeleted
	}

	select {
	case <-ctx.Done():
	case w.out <- FileEvent{Type: eventType, Path: ev.Name, Repository: w.repo.Name}:
	}
}
