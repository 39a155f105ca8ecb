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

// Package scanner enumerates the indexable files under a repository root.
//
// A file is indexed iff it passes the include globs, has no excluded
// directory segment, is not a binary extension, does not match the exclude
// globs, is within the size limit, is not matched by any combined gitignore
// rule, and carries an indexable extension (or is a known extensionless
// file such as Dockerfile or Rakefile).
package scanner

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/mrcis/mrcis/pkg/config"
)

// Scanner walks a repository root yielding files that should be indexed.
type Scanner struct {
	repoRoot string
	policy   *InclusionPolicy
	logger   *slog.Logger
}

// New builds a Scanner for the repository root. Per-repository include and
// exclude patterns extend the global file configuration.
func New(repoRoot string, files config.FilesConfig, repo *config.RepositoryConfig, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if repo != nil {
		if len(repo.IncludePatterns) > 0 {
			files.IncludePatterns = repo.IncludePatterns
		}
		if len(repo.ExcludePatterns) > 0 {
			files.ExcludePatterns = append(append([]string{}, files.ExcludePatterns...), repo.ExcludePatterns...)
		}
	}
	return &Scanner{
		repoRoot: mustAbs(repoRoot),
		policy:   NewInclusionPolicy(repoRoot, files),
		logger:   logger,
	}
}

// Policy returns the inclusion policy backing this scanner.
func (s *Scanner) Policy() *InclusionPolicy { return s.policy }

// Scan walks the repository and returns the repo-relative slash paths of
// every indexable file, in walk order.
func (s *Scanner) Scan() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("scanner.walk_error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			// Prune excluded directories so large trees are never entered.
			if path != s.repoRoot && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if s.policy.ShouldIndex(path) {
			rel, err := filepath.Rel(s.repoRoot, path)
			if err != nil {
				return nil
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
