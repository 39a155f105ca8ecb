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
	"bufio"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// builtinIgnorePatterns are always excluded regardless of .gitignore.
var builtinIgnorePatterns = []string{".git/", ".mrcis/"}

// GitignoreFilter matches files against the combined gitignore rules of the
// git root (found by walking up from the repository root until a .git
// directory appears) and the repository root, plus the built-in patterns.
type GitignoreFilter struct {
	specs []gitignoreSpec
}

type gitignoreSpec struct {
	baseDir string
	matcher *ignore.GitIgnore
}

// NewGitignoreFilter loads the gitignore rules applying to repoRoot.
func NewGitignoreFilter(repoRoot string) *GitignoreFilter {
	repoRoot = mustAbs(repoRoot)

	dirs := []string{}
	if gitRoot := findGitRoot(repoRoot); gitRoot != "" {
		dirs = append(dirs, gitRoot)
	}
	if len(dirs) == 0 || dirs[0] != repoRoot {
		dirs = append(dirs, repoRoot)
	}

	f := &GitignoreFilter{}
	for _, dir := range dirs {
		lines := append([]string{}, builtinIgnorePatterns...)
		lines = append(lines, readGitignoreLines(filepath.Join(dir, ".gitignore"))...)
		f.specs = append(f.specs, gitignoreSpec{
			baseDir: dir,
			matcher: ignore.CompileIgnoreLines(lines...),
		})
	}
	return f
}

// IsIgnored reports whether the file matches any combined gitignore rule.
func (f *GitignoreFilter) IsIgnored(path string) bool {
	abs := mustAbs(path)
	for _, spec := range f.specs {
		rel, err := filepath.Rel(spec.baseDir, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if spec.matcher.MatchesPath(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

// findGitRoot walks up from dir until a .git directory is found.
func findGitRoot(dir string) string {
	current := dir
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

func readGitignoreLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
