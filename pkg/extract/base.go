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
	"strings"
	"time"

	"github.com/mrcis/mrcis/pkg/model"
)

// builder accumulates entities, edges and pending references for one file,
// enforcing the shared extraction rules (qualified-name composition, call
// deduplication, pending-reference dedup per source entity).
type builder struct {
	ctx     Context
	res     *model.ExtractionResult
	started time.Time

	// seenRefs dedups pending references per (source, target, relation).
	seenRefs map[string]bool
}

func newBuilder(ctx Context, language string) *builder {
	return &builder{
		ctx:     ctx,
		started: time.Now(),
		res: &model.ExtractionResult{
			FileID:       ctx.FileID,
			FilePath:     ctx.FilePath,
			RepositoryID: ctx.RepositoryID,
			Language:     language,
		},
		seenRefs: make(map[string]bool),
	}
}

// finish stamps the extraction duration and returns the result.
func (b *builder) finish() *model.ExtractionResult {
	b.res.ExtractionTimeMs = float64(time.Since(b.started).Microseconds()) / 1000.0
	return b.res
}

func (b *builder) parseError(msg string) {
	b.res.ParseErrors = append(b.res.ParseErrors, msg)
}

// entity creates a CodeEntity with the common fields filled in.
func (b *builder) entity(kind model.EntityKind, name, qualifiedName string, lineStart, lineEnd int) *model.CodeEntity {
	return &model.CodeEntity{
		ID:            model.NewID(),
		RepositoryID:  b.ctx.RepositoryID,
		FileID:        b.ctx.FileID,
		QualifiedName: qualifiedName,
		SimpleName:    name,
		Kind:          kind,
		Language:      b.res.Language,
		FilePath:      b.ctx.FilePath,
		LineStart:     lineStart,
		LineEnd:       lineEnd,
		Visibility:    model.VisibilityPublic,
	}
}

// qualify joins non-empty name segments with the language separator,
// skipping a segment that repeats the previous one so the module name is
// never doubled.
func qualify(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, sep)
}

// pendingRef appends a pending reference owned by source, deduplicated per
// (source, target, relation type). It returns false when the reference was
// already recorded.
func (b *builder) pendingRef(source *model.CodeEntity, target string, rt model.RelationType, line int, receiverExpr, snippet string) bool {
	key := source.ID + "|" + target + "|" + string(rt)
	if b.seenRefs[key] {
		return false
	}
	b.seenRefs[key] = true
	b.res.PendingReferences = append(b.res.PendingReferences, model.PendingReference{
		ID:                  model.NewID(),
		SourceEntityID:      source.ID,
		SourceQualifiedName: source.QualifiedName,
		SourceRepositoryID:  b.ctx.RepositoryID,
		TargetQualifiedName: target,
		RelationType:        rt,
		LineNumber:          line,
		ReceiverExpr:        receiverExpr,
		ContextSnippet:      snippet,
		Status:              model.ResolutionPending,
	})
	return true
}

// contains records a resolved containment edge between two entities of this
// file.
func (b *builder) contains(parent, child *model.CodeEntity) {
	b.res.Relations = append(b.res.Relations, model.CodeRelation{
		ID:                  model.NewID(),
		SourceEntityID:      parent.ID,
		SourceQualifiedName: parent.QualifiedName,
		SourceRepositoryID:  b.ctx.RepositoryID,
		TargetEntityID:      child.ID,
		TargetQualifiedName: child.QualifiedName,
		TargetRepositoryID:  b.ctx.RepositoryID,
		RelationType:        model.RelationContains,
		LineNumber:          child.LineStart,
		Weight:              1.0,
		ResolutionStatus:    model.ResolutionResolved,
	})
}

// sourceLines splits content into lines, preserving 1-based numbering.
func sourceLines(content []byte) []string {
	return strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
}

// snippetOf trims a line for use as a context snippet.
func snippetOf(line string) string {
	s := strings.TrimSpace(line)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// isUpperFirst reports whether the identifier starts with an uppercase
// letter, the cue for instantiation in call syntax.
func isUpperFirst(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}

// lastSegment returns the final dot-separated segment of a name.
func lastSegment(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
