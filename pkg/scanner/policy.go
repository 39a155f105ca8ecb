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

package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mrcis/mrcis/pkg/config"
)

// excludedDirs are directory segments that are never indexed.
var excludedDirs = map[string]bool{
	".git":          true,
	".mrcis":        true,
	"__pycache__":   true,
	".pytest_cache": true,
	"node_modules":  true,
	".venv":         true,
	"vendor":        true,
	"dist":          true,
	"build":         true,
}

// excludedExtensions mark binary or otherwise non-indexable files.
var excludedExtensions = map[string]bool{
	".pyc": true, ".pyo": true,
	".so": true, ".dylib": true, ".dll": true,
	".exe": true, ".bin": true,
	".o": true, ".a": true,
	".class": true, ".jar": true, ".war": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".pdf":  true,
	".zip":  true, ".tar": true, ".gz": true, ".bz2": true,
	".whl": true, ".egg": true,
}

// indexableExtensions are the file extensions the extractors understand.
var indexableExtensions = map[string]bool{
	".py": true, ".pyi": true,
	".ts": true, ".tsx": true,
	".js": true, ".jsx": true,
	".rb": true, ".rake": true,
	".go":   true,
	".rs":   true,
	".java": true,
	".kt":   true, ".kts": true,
	".json": true,
	".yaml": true, ".yml": true,
	".toml": true,
	".html": true, ".htm": true,
	".md": true, ".markdown": true,
	".xml": true,
	".sql": true,
	".sh":  true, ".bash": true,
}

// knownExtensionless are files without an extension that still index.
var knownExtensionless = map[string]bool{
	"Dockerfile": true,
	"Rakefile":   true,
	"Gemfile":    true,
	"Makefile":   true,
}

// InclusionPolicy decides which files of one repository are indexable,
// combining include/exclude globs, the built-in exclusion sets, the size
// limit and the composed gitignore rules.
type InclusionPolicy struct {
	repoRoot  string
	files     config.FilesConfig
	gitignore *GitignoreFilter
}

// NewInclusionPolicy builds the policy for one repository root.
func NewInclusionPolicy(repoRoot string, files config.FilesConfig) *InclusionPolicy {
	p := &InclusionPolicy{
		repoRoot: mustAbs(repoRoot),
		files:    files,
	}
	if files.RespectGitignore {
		p.gitignore = NewGitignoreFilter(repoRoot)
	}
	return p
}

// ShouldIndex reports whether the file at path (absolute or repo-relative)
// passes every inclusion rule. Size is checked against the filesystem; a
// missing file fails the check.
func (p *InclusionPolicy) ShouldIndex(path string) bool {
	rel := p.relPath(path)
	if rel == "" {
		return false
	}

	if !p.matchesInclude(rel) {
		return false
	}
	if hasExcludedDirSegment(rel) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(rel))
	if excludedExtensions[ext] {
		return false
	}

	if p.matchesExclude(rel) {
		return false
	}

	abs := filepath.Join(p.repoRoot, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() > int64(p.files.MaxFileSizeKB)*1024 {
		return false
	}

	if p.gitignore != nil && p.gitignore.IsIgnored(abs) {
		return false
	}

	return p.extensionIndexable(rel)
}

// MatchesFilters applies every inclusion rule that does not require the
// file to exist on disk (no stat, no size cap). The watcher uses it so
// deletion events for previously indexed files still pass.
func (p *InclusionPolicy) MatchesFilters(path string) bool {
	rel := p.relPath(path)
	if rel == "" {
		return false
	}
	if !p.matchesInclude(rel) {
		return false
	}
	if hasExcludedDirSegment(rel) {
		return false
	}
	if excludedExtensions[strings.ToLower(filepath.Ext(rel))] {
		return false
	}
	if p.matchesExclude(rel) {
		return false
	}
	if p.gitignore != nil && p.gitignore.IsIgnored(filepath.Join(p.repoRoot, filepath.FromSlash(rel))) {
		return false
	}
	return p.extensionIndexable(rel)
}

// relPath converts a path into a slash-separated path relative to the
// repository root. Paths outside the root are rejected.
func (p *InclusionPolicy) relPath(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(p.repoRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (p *InclusionPolicy) matchesInclude(rel string) bool {
	if len(p.files.IncludePatterns) == 0 {
		return true
	}
	for _, pattern := range p.files.IncludePatterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		// Patterns without a directory component match anywhere.
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.Match(pattern, filepath.Base(rel)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func (p *InclusionPolicy) matchesExclude(rel string) bool {
	for _, pattern := range p.files.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (p *InclusionPolicy) extensionIndexable(rel string) bool {
	name := filepath.Base(rel)
	if knownExtensionless[name] || strings.HasPrefix(name, "Dockerfile.") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	return indexableExtensions[ext]
}

// IsExcludedDir reports whether a directory name is in the always-excluded
// set.
func IsExcludedDir(name string) bool {
	return excludedDirs[name]
}

func hasExcludedDirSegment(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if excludedDirs[segment] {
			return true
		}
	}
	return false
}
