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

// Package extract turns source files into code entities, relation edges and
// pending references.
//
// Extractors are polymorphic over a small capability set (Supports, Extract,
// SupportedExtensions). The registry routes files to extractors by lowercase
// extension first, then by a Supports scan for extensionless files such as
// Dockerfile, and finally falls back to a generic extractor that returns an
// empty result with language "unknown".
//
// Parse errors are recoverable: an extractor appends a message to the
// result's ParseErrors and still returns the entities recognized before the
// error. Only I/O-level failures surface as errors.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/mrcis/mrcis/pkg/model"
)

// Extractor is the capability set every language extractor implements.
type Extractor interface {
	// Supports reports whether this extractor can handle the file.
	Supports(path string) bool

	// Extract parses the file and returns entities, edges and pending
	// references. Parse failures are recorded in the result; an error
	// return means the file could not be processed at all.
	Extract(ctx Context) (*model.ExtractionResult, error)

	// SupportedExtensions returns the lowercase extensions this extractor
	// registers for (empty for extension-less extractors).
	SupportedExtensions() []string
}

// GenericExtractor is the fallback for unsupported file types.
type GenericExtractor struct{}

// Supports always returns false; the generic extractor is only reached as a
// fallback.
func (GenericExtractor) Supports(string) bool { return false }

// SupportedExtensions returns no extensions.
func (GenericExtractor) SupportedExtensions() []string { return nil }

// Extract returns an empty result with language "unknown".
func (GenericExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	return &model.ExtractionResult{
		FileID:       ctx.FileID,
		FilePath:     ctx.FilePath,
		RepositoryID: ctx.RepositoryID,
		Language:     "unknown",
	}, nil
}

// Registry routes files to extractors. Registration is append-only and
// idempotent: a later registration never displaces an earlier extension
// mapping.
type Registry struct {
	extractors []Extractor
	byExt      map[string]Extractor
	fallback   Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:    make(map[string]Extractor),
		fallback: GenericExtractor{},
	}
}

// NewDefaultRegistry creates a registry with every built-in extractor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterAll(DefaultExtractors())
	return r
}

// Register adds an extractor and its extensions.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	for _, ext := range e.SupportedExtensions() {
		ext = strings.ToLower(ext)
		if _, exists := r.byExt[ext]; !exists {
			r.byExt[ext] = e
		}
	}
}

// RegisterAll registers extractors in order.
func (r *Registry) RegisterAll(extractors []Extractor) {
	for _, e := range extractors {
		r.Register(e)
	}
}

// ForPath returns the extractor for a file: by extension, then by Supports
// scan, then the generic fallback.
func (r *Registry) ForPath(path string) Extractor {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if e, ok := r.byExt[ext]; ok {
			return e
		}
	}
	for _, e := range r.extractors {
		if e.Supports(path) {
			return e
		}
	}
	return r.fallback
}

// SupportedExtensions returns every registered extension.
func (r *Registry) SupportedExtensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}

// DefaultExtractors returns the standard set of built-in extractors.
func DefaultExtractors() []Extractor {
	return []Extractor{
		NewPythonExtractor(),
		NewTypeScriptExtractor(),
		NewJavaScriptExtractor(),
		NewGoExtractor(),
		NewRustExtractor(),
		NewRubyExtractor(),
		NewJavaExtractor(),
		NewKotlinExtractor(),
		NewDockerfileExtractor(),
		NewJSONExtractor(),
		NewYAMLExtractor(),
		NewTOMLExtractor(),
		NewHTMLExtractor(),
		NewMarkdownExtractor(),
	}
}
