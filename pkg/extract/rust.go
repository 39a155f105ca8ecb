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

// RustExtractor extracts modules, structs, enums, traits, functions, impl
// methods and use statements from Rust sources. Traits surface as abstract
// classes and enums as classes, mirroring the shared entity model.
type RustExtractor struct{}

// NewRustExtractor creates a Rust extractor.
func NewRustExtractor() *RustExtractor { return &RustExtractor{} }

// SupportedExtensions returns .rs.
func (e *RustExtractor) SupportedExtensions() []string { return []string{".rs"} }

// Supports reports whether the file is a Rust source.
func (e *RustExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

var (
	rsModPattern    = regexp.MustCompile(`^\s*(pub(?:\([^)]*\))?\s+)?mod\s+(\w+)`)
	rsStructPattern = regexp.MustCompile(`^\s*(pub(?:\([^)]*\))?\s+)?struct\s+(\w+)`)
	rsEnumPattern   = regexp.MustCompile(`^\s*(pub(?:\([^)]*\))?\s+)?enum\s+(\w+)`)
	rsTraitPattern  = regexp.MustCompile(`^\s*(pub(?:\([^)]*\))?\s+)?trait\s+(\w+)`)
	rsFnPattern     = regexp.MustCompile(`^\s*(pub(?:\([^)]*\))?\s+)?(async\s+)?fn\s+(\w+)\s*(?:<[^>]*>)?\s*\((.*?)\)\s*(?:->\s*([^({]+))?`)
	rsImplPattern   = regexp.MustCompile(`^\s*impl(?:<[^>]*>)?\s+(?:(\w+)\s+for\s+)?(\w+)`)
	rsUsePattern    = regexp.MustCompile(`^\s*(?:pub\s+)?use\s+([\w:]+(?:::\{[^}]*\}|::\*)?)(?:\s+as\s+(\w+))?\s*;`)
)

var rsCallOptions = callScanOptions{
	selfNames:                  map[string]bool{"self": true},
	noiseCalls:                 map[string]bool{"Some": true, "Ok": true, "Err": true, "None": true, "Box": true, "String": true, "Vec": true},
	capitalizedIsInstantiation: true,
}

// Extract parses the file with a brace-depth line scan.
func (e *RustExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "rust")
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	type rsFunc struct {
		entity   *model.CodeEntity
		bodyFrom int
		bodyTo   int
	}
	var funcs []*rsFunc

	classByName := func(name string) *model.CodeEntity {
		for _, c := range b.res.Classes {
			if c.SimpleName == name {
				return c
			}
		}
		return nil
	}

	blockEnd := func(start int) int {
		depth := 0
		opened := false
		for i := start; i < len(lines); i++ {
			code := stripLineComment(lines[i])
			depth += strings.Count(code, "{") - strings.Count(code, "}")
			if strings.Contains(code, "{") {
				opened = true
			}
			if opened && depth <= 0 {
				return i + 1
			}
			if !opened && strings.Contains(code, ";") {
				return i + 1
			}
		}
		return len(lines)
	}

	var implTarget string
	implDepth := -1
	depth := 0

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		code := stripLineComment(line)
		trimmed := strings.TrimSpace(code)

		advanceDepth := func() {
			depth += strings.Count(code, "{") - strings.Count(code, "}")
			if implDepth >= 0 && depth <= implDepth {
				implTarget = ""
				implDepth = -1
			}
		}

		if m := rsUsePattern.FindStringSubmatch(trimmed); m != nil {
			e.addUse(b, m[1], m[2], lineNo, line)
			advanceDepth()
			continue
		}

		if m := rsModPattern.FindStringSubmatch(code); m != nil && !strings.Contains(trimmed, "::") {
			name := m[2]
			mod := b.entity(model.KindModule, name, qualify(".", moduleName, name), lineNo, blockEnd(i))
			mod.IsExported = m[1] != ""
			mod.Detail.Module = &model.ModuleDetail{}
			b.res.Modules = append(b.res.Modules, mod)
			advanceDepth()
			continue
		}

		if m := rsStructPattern.FindStringSubmatch(code); m != nil {
			name := m[2]
			cls := b.entity(model.KindClass, name, qualify(".", moduleName, name), lineNo, blockEnd(i))
			cls.IsExported = m[1] != ""
			cls.Detail.Class = &model.ClassDetail{}
			cls.SourceText = strings.Join(lines[i:min(cls.LineEnd, len(lines))], "\n")
			b.res.Classes = append(b.res.Classes, cls)
			advanceDepth()
			continue
		}

		if m := rsEnumPattern.FindStringSubmatch(code); m != nil {
			name := m[2]
			// Enums surface as classes in the shared model.
			cls := b.entity(model.KindClass, name, qualify(".", moduleName, name), lineNo, blockEnd(i))
			cls.IsExported = m[1] != ""
			cls.Detail.Class = &model.ClassDetail{}
			b.res.Classes = append(b.res.Classes, cls)
			advanceDepth()
			continue
		}

		if m := rsTraitPattern.FindStringSubmatch(code); m != nil {
			name := m[2]
			cls := b.entity(model.KindClass, name, qualify(".", moduleName, name), lineNo, blockEnd(i))
			cls.IsExported = m[1] != ""
			cls.Detail.Class = &model.ClassDetail{IsAbstract: true}
			b.res.Classes = append(b.res.Classes, cls)
			// Required-method signatures inside the trait body attach to it.
			implTarget = name
			implDepth = depth
			advanceDepth()
			continue
		}

		if m := rsImplPattern.FindStringSubmatch(code); m != nil && strings.HasPrefix(trimmed, "impl") {
			trait, target := m[1], m[2]
			implTarget = target
			implDepth = depth
			if trait != "" {
				if cls := classByName(target); cls != nil {
					if cls.Detail.Class == nil {
						cls.Detail.Class = &model.ClassDetail{}
					}
					cls.Detail.Class.Interfaces = append(cls.Detail.Class.Interfaces, trait)
					b.pendingRef(cls, trait, model.RelationImplements, lineNo, "", snippetOf(line))
				}
			}
			advanceDepth()
			continue
		}

		if m := rsFnPattern.FindStringSubmatch(code); m != nil && strings.Contains(code, "fn ") {
			name := m[3]
			end := blockEnd(i)
			inImpl := implTarget != "" && depth > implDepth

			kind := model.KindFunction
			if inImpl {
				kind = model.KindMethod
			}
			var qname string
			if inImpl {
				qname = qualify(".", moduleName, implTarget, name)
			} else {
				qname = qualify(".", moduleName, name)
			}
			fn := b.entity(kind, name, qname, lineNo, end)
			fn.IsExported = m[1] != "" || inImpl
			fn.Signature = snippetOf(strings.TrimSuffix(trimmed, "{"))
			fn.Detail.Function = &model.FunctionDetail{
				IsAsync:    strings.TrimSpace(m[2]) == "async",
				ReturnType: strings.TrimSpace(m[5]),
				Parameters: e.parseParams(m[4]),
			}
			if inImpl {
				fn.Detail.Method = &model.MethodDetail{
					ParentClass:   implTarget,
					IsStatic:      !strings.Contains(m[4], "self"),
					IsConstructor: name == "new",
				}
				b.res.Methods = append(b.res.Methods, fn)
				if cls := classByName(implTarget); cls != nil {
					b.contains(cls, fn)
				}
			} else {
				b.res.Functions = append(b.res.Functions, fn)
			}
			funcs = append(funcs, &rsFunc{entity: fn, bodyFrom: lineNo + 1, bodyTo: end})
			advanceDepth()
			continue
		}

		advanceDepth()
	}

	for _, f := range funcs {
		if f.bodyTo < f.bodyFrom {
			continue
		}
		parentClass := ""
		if f.entity.Detail.Method != nil {
			parentClass = f.entity.Detail.Method.ParentClass
		}
		body := lines[f.bodyFrom-1 : min(f.bodyTo, len(lines))]
		b.scanCalls(f.entity, parentClass, body, f.bodyFrom, rsCallOptions)
		f.entity.SourceText = strings.Join(lines[f.entity.LineStart-1:min(f.bodyTo, len(lines))], "\n")
	}

	return b.finish(), nil
}

// addUse records a use statement. The source module is the path without its
// last segment; the alias, when present, joins the imported symbols.
func (e *RustExtractor) addUse(b *builder, path, alias string, lineNo int, line string) {
	isGlob := strings.HasSuffix(path, "::*")
	path = strings.TrimSuffix(path, "::*")

	var symbols []string
	if open := strings.Index(path, "::{"); open >= 0 {
		inner := strings.TrimSuffix(path[open+3:], "}")
		for _, sym := range strings.Split(inner, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				symbols = append(symbols, sym)
			}
		}
		path = path[:open]
	}

	sourceModule := path
	last := path
	if idx := strings.LastIndex(path, "::"); idx >= 0 {
		sourceModule = path[:idx]
		last = path[idx+2:]
	}
	if len(symbols) == 0 && !isGlob {
		symbols = []string{last}
	}
	if isGlob {
		sourceModule = path
	}
	if alias != "" {
		symbols = append(symbols, alias)
	}

	imp := b.entity(model.KindImport, last, path, lineNo, lineNo)
	imp.Detail.Import = &model.ImportDetail{
		SourceModule:    sourceModule,
		ImportedSymbols: symbols,
		IsWildcard:      isGlob,
		Alias:           alias,
	}
	b.res.Imports = append(b.res.Imports, imp)

	if isGlob {
		return
	}
	b.pendingRef(imp, path, model.RelationImports, lineNo, "", snippetOf(line))
}

func (e *RustExtractor) parseParams(raw string) []model.Parameter {
	var params []model.Parameter
	for _, p := range splitTopLevel(raw, ',') {
		p = strings.TrimSpace(p)
		if p == "" || p == "self" || strings.HasSuffix(p, "self") {
			continue
		}
		param := model.Parameter{}
		if colon := strings.Index(p, ":"); colon >= 0 {
			param.TypeAnnotation = strings.TrimSpace(p[colon+1:])
			p = p[:colon]
		}
		param.Name = strings.TrimSpace(strings.TrimPrefix(p, "mut "))
		if param.Name != "" {
			params = append(params, param)
		}
	}
	return params
}
