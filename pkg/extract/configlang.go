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
	"encoding/json"
	"fmt"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mrcis/mrcis/pkg/model"
)

// The configuration extractors emit every key as a variable entity with a
// dot-notation qualified name. Their decoders expose no positions, so all
// entities carry line_start = line_end = 1.

// JSONExtractor extracts configuration keys from JSON files (max depth 3).
type JSONExtractor struct{}

// NewJSONExtractor creates a JSON extractor.
func NewJSONExtractor() *JSONExtractor { return &JSONExtractor{} }

// SupportedExtensions returns .json.
func (e *JSONExtractor) SupportedExtensions() []string { return []string{".json"} }

// Supports reports whether the file is JSON.
func (e *JSONExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

// Extract decodes the document and walks its keys.
func (e *JSONExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "json")

	var data any
	if err := json.Unmarshal(content, &data); err != nil {
		b.parseError(fmt.Sprintf("JSON parse error: %v", err))
		return b.finish(), nil
	}
	walkJSON(b, data, "", 0, 3)
	return b.finish(), nil
}

// walkJSON emits a variable per object key. Arrays are traversed without
// emitting an entity for the array itself.
func walkJSON(b *builder, data any, prefix string, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	switch v := data.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			addConfigKey(b, key, path)
			switch v[key].(type) {
			case map[string]any, []any:
				walkJSON(b, v[key], path, depth+1, maxDepth)
			}
		}
	case []any:
		for _, item := range v {
			switch item.(type) {
			case map[string]any, []any:
				walkJSON(b, item, prefix, depth+1, maxDepth)
			}
		}
	}
}

// YAMLExtractor extracts configuration keys from YAML files (max depth 5).
// List items surface with an [i] index suffix.
type YAMLExtractor struct{}

// NewYAMLExtractor creates a YAML extractor.
func NewYAMLExtractor() *YAMLExtractor { return &YAMLExtractor{} }

// SupportedExtensions returns .yaml and .yml.
func (e *YAMLExtractor) SupportedExtensions() []string { return []string{".yaml", ".yml"} }

// Supports reports whether the file is YAML.
func (e *YAMLExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

// Extract decodes the document (anchors resolved by the decoder) and walks
// its keys.
func (e *YAMLExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "yaml")

	var data any
	if err := yaml.Unmarshal(content, &data); err != nil {
		b.parseError(fmt.Sprintf("YAML parse error: %v", err))
		return b.finish(), nil
	}
	if data != nil {
		walkYAML(b, data, "", 0, 5)
	}
	return b.finish(), nil
}

func walkYAML(b *builder, data any, prefix string, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	switch v := data.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			addConfigKey(b, key, path)
			switch v[key].(type) {
			case map[string]any, []any:
				walkYAML(b, v[key], path, depth+1, maxDepth)
			}
		}
	case []any:
		for idx, item := range v {
			path := fmt.Sprintf("%s[%d]", prefix, idx)
			addConfigKey(b, fmt.Sprintf("[%d]", idx), path)
			switch item.(type) {
			case map[string]any, []any:
				walkYAML(b, item, path, depth+1, maxDepth)
			}
		}
	}
}

// TOMLExtractor extracts tables and keys from TOML files (max depth 10).
// Array-of-tables entries surface with an [i] index suffix.
type TOMLExtractor struct{}

// NewTOMLExtractor creates a TOML extractor.
func NewTOMLExtractor() *TOMLExtractor { return &TOMLExtractor{} }

// SupportedExtensions returns .toml.
func (e *TOMLExtractor) SupportedExtensions() []string { return []string{".toml"} }

// Supports reports whether the file is TOML.
func (e *TOMLExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

// Extract decodes the document and walks its tables and keys.
func (e *TOMLExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "toml")

	var data map[string]any
	if err := toml.Unmarshal(content, &data); err != nil {
		b.parseError(fmt.Sprintf("TOML parse error: %v", err))
		return b.finish(), nil
	}
	walkTOML(b, data, "", 0, 10)
	return b.finish(), nil
}

func walkTOML(b *builder, data any, prefix string, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	switch v := data.(type) {
	case map[string]any:
		// The table itself is an entity once it has a name.
		if prefix != "" {
			addConfigKey(b, lastSegment(prefix), prefix)
		}
		for _, key := range sortedKeys(v) {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			addConfigKey(b, key, path)
			switch v[key].(type) {
			case map[string]any, []any:
				walkTOML(b, v[key], path, depth+1, maxDepth)
			}
		}
	case []any:
		for idx, item := range v {
			path := fmt.Sprintf("%s[%d]", prefix, idx)
			if _, isTable := item.(map[string]any); isTable {
				addConfigKey(b, fmt.Sprintf("[%d]", idx), path)
			}
			switch item.(type) {
			case map[string]any, []any:
				walkTOML(b, item, path, depth+1, maxDepth)
			}
		}
	}
}

// addConfigKey appends one variable entity for a configuration key.
func addConfigKey(b *builder, name, path string) {
	v := b.entity(model.KindVariable, name, path, 1, 1)
	v.Detail.Variable = &model.VariableDetail{}
	b.res.Variables = append(b.res.Variables, v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
