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

// scriptExtractor is the shared TypeScript/JavaScript implementation. The
// TypeScript variant additionally understands interfaces, type aliases,
// enums and type annotations.
type scriptExtractor struct {
	language string
	typed    bool
	exts     []string
}

// NewTypeScriptExtractor creates the extractor for .ts and .tsx files.
func NewTypeScriptExtractor() Extractor {
	return &scriptExtractor{language: "typescript", typed: true, exts: []string{".ts", ".tsx"}}
}

// NewJavaScriptExtractor creates the extractor for .js and .jsx files.
func NewJavaScriptExtractor() Extractor {
	return &scriptExtractor{language: "javascript", typed: false, exts: []string{".js", ".jsx"}}
}

func (e *scriptExtractor) SupportedExtensions() []string { return e.exts }

func (e *scriptExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.exts)
}

var (
	tsImportPattern   = regexp.MustCompile(`^\s*import\s+(?:(.+?)\s+from\s+)?['"]([^'"]+)['"]`)
	tsRequirePattern  = regexp.MustCompile(`^\s*(?:const|let|var)\s+(\w+)\s*=\s*require\(\s*['"]([^'"]+)['"]\s*\)`)
	tsClassPattern    = regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(abstract\s+)?class\s+([A-Za-z_$][\w$]*)` + `(?:\s+extends\s+([\w$.]+))?(?:\s+implements\s+([\w$.,\s]+))?\s*\{`)
	tsInterfacePttrn  = regexp.MustCompile(`^\s*(export\s+)?interface\s+([A-Za-z_$][\w$]*)(?:\s+extends\s+([\w$.,\s]+))?\s*\{`)
	tsTypeAliasPttrn  = regexp.MustCompile(`^\s*(export\s+)?type\s+([A-Za-z_$][\w$]*)(?:<[^=]*>)?\s*=\s*(.+)$`)
	tsEnumPattern     = regexp.MustCompile(`^\s*(export\s+)?(?:const\s+)?enum\s+([A-Za-z_$][\w$]*)\s*\{`)
	tsFunctionPattern = regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\s*(\*)?\s*([A-Za-z_$][\w$]*)\s*\(([^)]*)\)?\s*(?::\s*([^({]+))?`)
	tsArrowPattern    = regexp.MustCompile(`^\s*(export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(async\s+)?(?:\(([^)]*)\)|([A-Za-z_$][\w$]*))\s*(?::\s*[^=]+)?=>`)
	tsMethodPattern   = regexp.MustCompile(`^\s*(?:public\s+|private\s+|protected\s+|readonly\s+)?(static\s+)?(async\s+)?(?:get\s+|set\s+)?([A-Za-z_$][\w$]*)\s*\(([^)]*)\)\s*(?::\s*([^({]+))?\s*\{`)
)

var tsMethodKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "function": true, "constructor": false, "new": true,
	"do": true, "else": true, "try": true, "typeof": true,
}

var tsCallOptions = callScanOptions{
	selfNames:     map[string]bool{"this": true},
	noisePrefixes: []string{"console."},
	noiseCalls:    map[string]bool{"require": true, "parseInt": true, "parseFloat": true, "String": true, "Number": true, "Boolean": true, "Array": true, "Object": true, "JSON.stringify": true, "JSON.parse": true},
}

// tsBlock is an open brace-delimited construct during the scan.
type tsBlock struct {
	entity    *model.CodeEntity
	openDepth int
	isClass   bool
	isFunc    bool
}

// Extract parses the file with a brace-depth line scan.
func (e *scriptExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, e.language)
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	module := b.entity(model.KindModule, moduleName, moduleName, 1, len(lines))
	module.Detail.Module = &model.ModuleDetail{}
	b.res.Modules = append(b.res.Modules, module)

	var (
		stack     []*tsBlock
		functions []*tsBlock
		depth     int
	)

	currentClass := func() *tsBlock {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].isClass {
				return stack[i]
			}
		}
		return nil
	}
	insideFunction := func() bool {
		for _, blk := range stack {
			if blk.isFunc {
				return true
			}
		}
		return false
	}
	qualifiedParent := func() string {
		parts := []string{moduleName}
		for _, blk := range stack {
			parts = append(parts, blk.entity.SimpleName)
		}
		return qualify(".", parts...)
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		code := stripLineComment(line)
		trimmed := strings.TrimSpace(code)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*"):

		case e.matchImport(b, trimmed, lineNo, line):

		case func() bool {
			m := tsClassPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[4]
			cls := b.entity(model.KindClass, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			cls.IsExported = m[1] != "" || m[2] != ""
			detail := &model.ClassDetail{IsAbstract: strings.TrimSpace(m[3]) == "abstract"}
			if base := strings.TrimSpace(m[5]); base != "" {
				detail.BaseClasses = append(detail.BaseClasses, base)
				b.pendingRef(cls, base, model.RelationExtends, lineNo, "", snippetOf(line))
			}
			for _, iface := range strings.Split(m[6], ",") {
				iface = strings.TrimSpace(iface)
				if iface == "" {
					continue
				}
				detail.Interfaces = append(detail.Interfaces, iface)
				b.pendingRef(cls, iface, model.RelationImplements, lineNo, "", snippetOf(line))
			}
			cls.Detail.Class = detail
			b.res.Classes = append(b.res.Classes, cls)
			b.contains(module, cls)
			stack = append(stack, &tsBlock{entity: cls, openDepth: depth, isClass: true})
			return true
		}():

		case e.typed && func() bool {
			m := tsInterfacePttrn.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[2]
			iface := b.entity(model.KindInterface, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			iface.IsExported = m[1] != ""
			detail := &model.ClassDetail{}
			for _, base := range strings.Split(m[3], ",") {
				base = strings.TrimSpace(base)
				if base == "" {
					continue
				}
				detail.BaseClasses = append(detail.BaseClasses, base)
				b.pendingRef(iface, base, model.RelationExtends, lineNo, "", snippetOf(line))
			}
			iface.Detail.Class = detail
			b.res.Interfaces = append(b.res.Interfaces, iface)
			b.contains(module, iface)
			stack = append(stack, &tsBlock{entity: iface, openDepth: depth})
			return true
		}():

		case e.typed && func() bool {
			m := tsTypeAliasPttrn.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[2]
			alias := b.entity(model.KindTypeAlias, name, qualify(".", moduleName, name), lineNo, lineNo)
			alias.IsExported = m[1] != ""
			alias.Detail.TypeAlias = &model.TypeAliasDetail{AliasedType: strings.TrimSuffix(strings.TrimSpace(m[3]), ";")}
			b.res.TypeAliases = append(b.res.TypeAliases, alias)
			b.contains(module, alias)
			return true
		}():

		case e.typed && func() bool {
			m := tsEnumPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[2]
			enum := b.entity(model.KindEnum, name, qualify(".", moduleName, name), lineNo, lineNo)
			enum.IsExported = m[1] != ""
			b.res.Enums = append(b.res.Enums, enum)
			b.contains(module, enum)
			stack = append(stack, &tsBlock{entity: enum, openDepth: depth})
			return true
		}():

		case func() bool {
			m := tsFunctionPattern.FindStringSubmatch(code)
			if m == nil || insideFunction() {
				return false
			}
			name := m[5]
			fn := b.entity(model.KindFunction, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			fn.IsExported = m[1] != "" || m[2] != ""
			fn.Signature = snippetOf(strings.TrimSuffix(trimmed, "{"))
			fn.Detail.Function = &model.FunctionDetail{
				IsAsync:     strings.TrimSpace(m[3]) == "async",
				IsGenerator: m[4] == "*",
				Parameters:  e.parseParams(m[6]),
				ReturnType:  strings.TrimSpace(m[7]),
			}
			b.res.Functions = append(b.res.Functions, fn)
			b.contains(module, fn)
			stack = append(stack, &tsBlock{entity: fn, openDepth: depth, isFunc: true})
			functions = append(functions, stack[len(stack)-1])
			return true
		}():

		case func() bool {
			m := tsArrowPattern.FindStringSubmatch(code)
			if m == nil || insideFunction() || currentClass() != nil {
				return false
			}
			name := m[2]
			fn := b.entity(model.KindFunction, name, qualify(".", moduleName, name), lineNo, lineNo)
			fn.IsExported = m[1] != ""
			fn.Signature = snippetOf(strings.TrimSuffix(trimmed, "{"))
			params := m[4]
			if params == "" {
				params = m[5]
			}
			fn.Detail.Function = &model.FunctionDetail{
				IsAsync:    strings.TrimSpace(m[3]) == "async",
				Parameters: e.parseParams(params),
			}
			b.res.Functions = append(b.res.Functions, fn)
			b.contains(module, fn)
			if strings.Contains(code, "{") {
				stack = append(stack, &tsBlock{entity: fn, openDepth: depth, isFunc: true})
				functions = append(functions, stack[len(stack)-1])
			} else {
				// Single-expression arrow: the body is the rest of the line.
				if idx := strings.Index(code, "=>"); idx >= 0 {
					b.scanCalls(fn, "", []string{code[idx+2:]}, lineNo, tsCallOptions)
				}
			}
			return true
		}():

		case func() bool {
			cls := currentClass()
			if cls == nil || insideFunction() || depth != cls.openDepth+1 {
				return false
			}
			m := tsMethodPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[3]
			if tsMethodKeywords[name] {
				return false
			}
			method := b.entity(model.KindMethod, name, qualify(".", cls.entity.QualifiedName, name), lineNo, lineNo)
			method.IsExported = cls.entity.IsExported
			method.Signature = snippetOf(strings.TrimSuffix(trimmed, "{"))
			method.Detail.Function = &model.FunctionDetail{
				IsAsync:    strings.TrimSpace(m[2]) == "async",
				Parameters: e.parseParams(m[4]),
				ReturnType: strings.TrimSpace(m[5]),
			}
			method.Detail.Method = &model.MethodDetail{
				ParentClass:   cls.entity.SimpleName,
				IsStatic:      strings.TrimSpace(m[1]) == "static",
				IsConstructor: name == "constructor",
			}
			b.res.Methods = append(b.res.Methods, method)
			b.contains(cls.entity, method)
			stack = append(stack, &tsBlock{entity: method, openDepth: depth, isFunc: true})
			functions = append(functions, stack[len(stack)-1])
			return true
		}():
		}

		// Track brace depth and close blocks whose depth unwinds.
		depth += strings.Count(code, "{") - strings.Count(code, "}")
		for len(stack) > 0 && depth <= stack[len(stack)-1].openDepth {
			top := stack[len(stack)-1]
			top.entity.LineEnd = lineNo
			stack = stack[:len(stack)-1]
		}
	}
	for len(stack) > 0 {
		stack[len(stack)-1].entity.LineEnd = len(lines)
		stack = stack[:len(stack)-1]
	}

	for _, blk := range functions {
		fn := blk.entity
		start := fn.LineStart + 1
		end := fn.LineEnd
		parentOf := ""
		if fn.Detail.Method != nil {
			parentOf = fn.Detail.Method.ParentClass
		}
		if end < start {
			// Single-line body: scan the tail of the signature line.
			code := stripLineComment(lines[fn.LineStart-1])
			if idx := strings.Index(code, "{"); idx >= 0 {
				b.scanCalls(fn, parentOf, []string{code[idx+1:]}, fn.LineStart, tsCallOptions)
			}
			fn.SourceText = lines[fn.LineStart-1]
			continue
		}
		body := lines[start-1 : min(end, len(lines))]
		b.scanCalls(fn, parentOf, body, start, tsCallOptions)
		fn.SourceText = strings.Join(lines[fn.LineStart-1:min(end, len(lines))], "\n")
		if fn.Detail.Function != nil {
			for _, p := range fn.Detail.Function.Parameters {
				if t := baseTypeName(p.TypeAnnotation); t != "" {
					fn.Detail.Function.TypeReferences = appendUnique(fn.Detail.Function.TypeReferences, t)
				}
			}
			if t := baseTypeName(fn.Detail.Function.ReturnType); t != "" {
				fn.Detail.Function.TypeReferences = appendUnique(fn.Detail.Function.TypeReferences, t)
			}
		}
	}

	return b.finish(), nil
}

// matchImport records import and require statements. It returns true when
// the line was one.
func (e *scriptExtractor) matchImport(b *builder, trimmed string, lineNo int, line string) bool {
	if m := tsImportPattern.FindStringSubmatch(trimmed); m != nil {
		clause, source := strings.TrimSpace(m[1]), m[2]
		imp := b.entity(model.KindImport, source, source, lineNo, lineNo)
		detail := &model.ImportDetail{
			SourceModule: source,
			IsRelative:   strings.HasPrefix(source, "."),
		}
		switch {
		case clause == "":
			// Side-effect import.
		case strings.HasPrefix(clause, "* as "):
			detail.IsWildcard = true
			detail.Alias = strings.TrimSpace(strings.TrimPrefix(clause, "* as "))
		case strings.HasPrefix(clause, "{"):
			inner := strings.Trim(clause, "{} ")
			for _, sym := range strings.Split(inner, ",") {
				sym = strings.TrimSpace(sym)
				if sym == "" {
					continue
				}
				name, alias, hasAlias := strings.Cut(sym, " as ")
				detail.ImportedSymbols = append(detail.ImportedSymbols, strings.TrimSpace(name))
				if hasAlias {
					detail.Alias = strings.TrimSpace(alias)
				}
			}
		default:
			// Default import, possibly combined with named symbols.
			name, rest, hasRest := strings.Cut(clause, ",")
			detail.ImportedSymbols = append(detail.ImportedSymbols, strings.TrimSpace(name))
			if hasRest {
				inner := strings.Trim(strings.TrimSpace(rest), "{} ")
				for _, sym := range strings.Split(inner, ",") {
					if sym = strings.TrimSpace(sym); sym != "" {
						detail.ImportedSymbols = append(detail.ImportedSymbols, sym)
					}
				}
			}
		}
		imp.Detail.Import = detail
		b.res.Imports = append(b.res.Imports, imp)

		if detail.IsWildcard {
			return true
		}
		if len(detail.ImportedSymbols) == 0 {
			b.pendingRef(imp, source, model.RelationImports, lineNo, "", snippetOf(line))
			return true
		}
		for _, sym := range detail.ImportedSymbols {
			b.pendingRef(imp, qualify(".", strings.TrimPrefix(source, "./"), sym), model.RelationImports, lineNo, "", snippetOf(line))
		}
		return true
	}

	if m := tsRequirePattern.FindStringSubmatch(trimmed); m != nil {
		alias, source := m[1], m[2]
		imp := b.entity(model.KindImport, source, source, lineNo, lineNo)
		imp.Detail.Import = &model.ImportDetail{
			SourceModule: source,
			Alias:        alias,
			IsRelative:   strings.HasPrefix(source, "."),
		}
		b.res.Imports = append(b.res.Imports, imp)
		b.pendingRef(imp, source, model.RelationImports, lineNo, "", snippetOf(line))
		return true
	}
	return false
}

func (e *scriptExtractor) parseParams(raw string) []model.Parameter {
	var params []model.Parameter
	for _, p := range splitTopLevel(raw, ',') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		param := model.Parameter{}
		if strings.HasPrefix(p, "...") {
			param.IsRest = true
			p = strings.TrimPrefix(p, "...")
		}
		if eq := strings.Index(p, "="); eq >= 0 {
			param.DefaultValue = strings.TrimSpace(p[eq+1:])
			param.IsOptional = true
			p = p[:eq]
		}
		if colon := strings.Index(p, ":"); colon >= 0 {
			param.TypeAnnotation = strings.TrimSpace(p[colon+1:])
			p = p[:colon]
		}
		param.Name = strings.TrimSuffix(strings.TrimSpace(p), "?")
		if strings.HasSuffix(strings.TrimSpace(p), "?") {
			param.IsOptional = true
		}
		if param.Name != "" {
			params = append(params, param)
		}
	}
	return params
}
