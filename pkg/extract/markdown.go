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
	"regexp"
	"strings"

	"github.com/mrcis/mrcis/pkg/model"
)

// MarkdownExtractor extracts headings as document sections. Qualified names
// chain the enclosing headings with dots.
type MarkdownExtractor struct{}

// NewMarkdownExtractor creates a Markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

// SupportedExtensions returns .md and .markdown.
func (e *MarkdownExtractor) SupportedExtensions() []string { return []string{".md", ".markdown"} }

// Supports reports whether the file is Markdown.
func (e *MarkdownExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

var mdHeadingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// Extract scans for ATX headings, skipping fenced code blocks.
func (e *MarkdownExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "markdown")
	lines := sourceLines(content)

	type section struct {
		entity *model.CodeEntity
		level  int
	}
	var (
		stack   []section
		inFence bool
	)

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		m := mdHeadingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		title := strings.TrimSpace(m[2])

		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack[len(stack)-1].entity.LineEnd = lineNo - 1
			stack = stack[:len(stack)-1]
		}

		parts := make([]string, 0, len(stack)+1)
		for _, s := range stack {
			parts = append(parts, s.entity.SimpleName)
		}
		parts = append(parts, title)

		sec := b.entity(model.KindConfigSection, title, strings.Join(parts, "."), lineNo, lineNo)
		b.res.Variables = append(b.res.Variables, sec)
		if len(stack) > 0 {
			b.contains(stack[len(stack)-1].entity, sec)
		}
		stack = append(stack, section{entity: sec, level: level})
	}
	for len(stack) > 0 {
		stack[len(stack)-1].entity.LineEnd = len(lines)
		stack = stack[:len(stack)-1]
	}

	return b.finish(), nil
}
