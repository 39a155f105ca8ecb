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

package extract

import (
	"os"
	"path/filepath"
	"strings"
)

// Context carries everything an extractor needs to process one file. It is
// treated as immutable: extractors never modify it.
type Context struct {
	// FilePath is the path of the file on disk.
	FilePath string

	// FileID and RepositoryID are the owning record identifiers.
	FileID       string
	RepositoryID string

	// Language, when already detected, saves the extractor a lookup.
	Language string

	// Source is the pre-read file content; when nil the extractor reads
	// FilePath itself.
	Source []byte
}

// Read returns the file content, preferring the pre-read Source.
func (c Context) Read() ([]byte, error) {
	if c.Source != nil {
		return c.Source, nil
	}
	return os.ReadFile(c.FilePath)
}

// ModuleName derives the single module segment for qualified names from the
// file name's stem.
func (c Context) ModuleName() string {
	base := filepath.Base(c.FilePath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
