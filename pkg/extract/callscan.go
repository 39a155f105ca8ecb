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

// callPattern matches a call site: an identifier chain followed by an
// opening parenthesis. Macro calls (println!) are excluded by construction.
var callPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.!])([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\(`)

// newKeywordPattern detects an instantiation keyword directly before a call.
var newKeywordPattern = regexp.MustCompile(`\bnew\s+$`)

// commonKeywords are never call targets in any supported language.
var commonKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "match": true,
	"return": true, "catch": true, "except": true, "with": true,
	"def": true, "func": true, "fn": true, "function": true, "fun": true,
	"class": true, "new": true, "super": true, "defer": true, "go": true,
	"select": true, "do": true, "else": true, "elif": true, "when": true,
	"assert": true, "raise": true, "throw": true, "yield": true, "await": true,
	"not": true, "and": true, "or": true, "in": true, "typeof": true,
	"sizeof": true, "case": true, "loop": true, "unless": true, "until": true,
}

// callScanOptions tunes scanCalls per language.
type callScanOptions struct {
	// selfNames are receiver spellings (self, this) that resolve to the
	// parent class at extraction time.
	selfNames map[string]bool

	// noisePrefixes drop any call whose dotted name starts with one of
	// these prefixes (e.g. "console.").
	noisePrefixes []string

	// noiseCalls drop exact bare or dotted names (print, println, listOf).
	noiseCalls map[string]bool

	// keywords extends commonKeywords with language-specific words.
	keywords map[string]bool

	// capitalizedIsInstantiation treats a capitalized bare callee as a
	// constructor call (Kotlin, Rust, Python and friends without a new
	// keyword).
	capitalizedIsInstantiation bool
}

// scanCalls finds call sites in a function body and records them on the
// function entity: the deduplicated calls list, and one pending reference
// per (target, relation type). Lines carry absolute 1-based numbers via
// startLine; the signature line is not part of lines.
func (b *builder) scanCalls(fn *model.CodeEntity, parentClass string, lines []string, startLine int, opts callScanOptions) {
	if fn.Detail.Function == nil {
		fn.Detail.Function = &model.FunctionDetail{}
	}
	seenCalls := make(map[string]bool, len(fn.Detail.Function.Calls))
	for _, c := range fn.Detail.Function.Calls {
		seenCalls[c] = true
	}

	for i, line := range lines {
		lineNo := startLine + i
		code := stripLineComment(line)

		for _, m := range callPattern.FindAllStringSubmatchIndex(code, -1) {
			name := code[m[2]:m[3]]
			if b.skipCall(name, code[:m[2]], opts) {
				continue
			}

			isNew := newKeywordPattern.MatchString(code[:m[2]])

			target := name
			receiver := ""
			relType := model.RelationCalls

			switch {
			case isNew:
				relType = model.RelationInstantiates
			case strings.Contains(name, "."):
				first, rest, _ := strings.Cut(name, ".")
				if opts.selfNames[first] {
					// self/this resolves to the parent class now; no
					// receiver expression is recorded.
					target = qualify(".", parentClass, rest)
				} else {
					receiver = name[:strings.LastIndex(name, ".")]
				}
			default:
				if opts.capitalizedIsInstantiation && isUpperFirst(name) {
					relType = model.RelationInstantiates
				}
			}

			if !seenCalls[target] {
				seenCalls[target] = true
				fn.Detail.Function.Calls = append(fn.Detail.Function.Calls, target)
			}
			b.pendingRef(fn, target, relType, lineNo, receiver, snippetOf(line))
		}
	}
}

// skipCall filters keywords, noise calls and definition sites.
func (b *builder) skipCall(name, before string, opts callScanOptions) bool {
	bare := name
	if i := strings.Index(name, "."); i >= 0 {
		bare = name[:i]
	}
	if commonKeywords[name] || commonKeywords[bare] {
		return true
	}
	if opts.keywords[name] || opts.keywords[bare] {
		return true
	}
	if opts.noiseCalls[name] || opts.noiseCalls[lastSegment(name)] {
		return true
	}
	for _, prefix := range opts.noisePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	// A definition keyword right before the name means this is a signature,
	// not a call.
	trimmed := strings.TrimSpace(before)
	for _, kw := range []string{"def", "func", "fn", "function", "fun", "task", "class", "interface", "trait"} {
		if trimmed == kw || strings.HasSuffix(trimmed, " "+kw) {
			return true
		}
	}
	return false
}

// stripLineComment removes trailing //-style and #-style comments outside of
// strings. The scan is approximate but sufficient for call detection.
func stripLineComment(line string) string {
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble {
				return line[:i]
			}
		case '/':
			if !inSingle && !inDouble && i+1 < len(line) && line[i+1] == '/' {
				return line[:i]
			}
		}
	}
	return line
}
