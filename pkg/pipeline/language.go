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
	"path/filepath"
	"strings"
)

// extensionLanguages maps file extensions to language identifiers.
var extensionLanguages = map[string]string{
	".py":       "python",
	".pyi":      "python",
	".ts":       "typescript",
	".tsx":      "typescript",
	".js":       "javascript",
	".jsx":      "javascript",
	".rb":       "ruby",
	".rake":     "ruby",
	".go":       "go",
	".rs":       "rust",
	".java":     "java",
	".kt":       "kotlin",
	".kts":      "kotlin",
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".toml":     "toml",
	".html":     "html",
	".htm":      "html",
	".md":       "markdown",
	".markdown": "markdown",
}

// filenameLanguages maps special extensionless file names (lowercased).
var filenameLanguages = map[string]string{
	"rakefile":   "ruby",
	"gemfile":    "ruby",
	"dockerfile": "dockerfile",
}

// DetectLanguage maps a file path to its language identifier, or "" when
// unknown. File names win over extensions (Rakefile, Gemfile, Dockerfile).
func DetectLanguage(path string) string {
	name := strings.ToLower(filepath.Base(path))
	if lang, ok := filenameLanguages[name]; ok {
		return lang
	}
	if strings.HasPrefix(name, "dockerfile.") {
		return "dockerfile"
	}
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}
