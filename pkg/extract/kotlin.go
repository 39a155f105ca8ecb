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

// KotlinExtractor extracts classes, objects, interfaces, functions, methods
// and imports from Kotlin sources.
type KotlinExtractor struct{}

// NewKotlinExtractor creates a Kotlin extractor.
func NewKotlinExtractor() *KotlinExtractor { return &KotlinExtractor{} }

// SupportedExtensions returns .kt and .kts.
func (e *KotlinExtractor) SupportedExtensions() []string { return []string{".kt", ".kts"} }

// Supports reports whether the file is a Kotlin source.
func (e *KotlinExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

var (
	ktPackagePattern   = regexp.MustCompile(`^\s*package\s+([\w.]+)`)
	ktImportPattern    = regexp.MustCompile(`^\s*import\s+(\w+(?:\.\w+)*)(\.\*)?(?:\s+as\s+(\w+))?`)
	ktClassPattern     = regexp.MustCompile(`^\s*(?:public\s+|private\s+|internal\s+)?(?:(data|abstract|open|sealed|enum|annotation)\s+)*class\s+(\w+)`)
	ktObjectPattern    = regexp.MustCompile(`^\s*(?:public\s+|private\s+|internal\s+)?object\s+(\w+)`)
	ktInterfacePattern = regexp.MustCompile(`^\s*(?:public\s+|private\s+|internal\s+)?interface\s+(\w+)`)
	ktFunPattern       = regexp.MustCompile(`^\s*(?:public\s+|private\s+|internal\s+|protected\s+)?(?:(suspend|override|open|inline|operator|infix)\s+)*fun\s+(?:<[^>]*>\s+)?([\w.]+)\s*\(([^)]*)\)\s*(?::\s*([^({]+))?`)
)

var ktCallOptions = callScanOptions{
	selfNames: map[string]bool{"this": true},
	noiseCalls: map[string]bool{
		"println": true, "print": true, "listOf": true, "mapOf": true,
		"setOf": true, "arrayOf": true, "mutableListOf": true,
		"mutableMapOf": true, "require": true, "check": true, "TODO": true,
	},
	capitalizedIsInstantiation: true,
}

// Extract parses the file with a brace-depth line scan. A function whose body
// opens and closes on its signature line (fun run() { this.helper() }) has its
// calls scanned from that line's tail. Only the first declaration on a line is
// recognized: a class declared together with its members on one line yields
// the class without its functions.
func (e *KotlinExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "kotlin")
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	type ktFunc struct {
		entity   *model.CodeEntity
		bodyFrom int
		sigLine  int
	}
	var (
		funcs      []*ktFunc
		depth      int
		classStack []*tsBlock
	)

	currentClass := func() *tsBlock {
		for i := len(classStack) - 1; i >= 0; i-- {
			if classStack[i].isClass {
				return classStack[i]
			}
		}
		return nil
	}
	insideFunction := func() bool {
		for _, blk := range classStack {
			if blk.isFunc {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		code := stripLineComment(line)
		trimmed := strings.TrimSpace(code)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "@"):

		case func() bool {
			m := ktPackagePattern.FindStringSubmatch(code)
			if m == nil || len(b.res.Modules) > 0 {
				return false
			}
			pkg := b.entity(model.KindPackage, lastSegment(m[1]), m[1], lineNo, lineNo)
			pkg.Detail.Module = &model.ModuleDetail{PackageName: m[1], IsPackage: true}
			b.res.Modules = append(b.res.Modules, pkg)
			return true
		}():

		case func() bool {
			m := ktImportPattern.FindStringSubmatch(code)
			if m == nil || !strings.HasPrefix(trimmed, "import ") {
				return false
			}
			path, wildcard, alias := m[1], m[2] != "", m[3]
			imp := b.entity(model.KindImport, lastSegment(path), path, lineNo, lineNo)
			imp.Detail.Import = &model.ImportDetail{
				SourceModule: path,
				IsWildcard:   wildcard,
				Alias:        alias,
			}
			b.res.Imports = append(b.res.Imports, imp)
			if !wildcard {
				b.pendingRef(imp, path, model.RelationImports, lineNo, "", snippetOf(line))
			}
			return true
		}():

		case func() bool {
			if insideFunction() {
				return false
			}
			var (
				name       string
				isAbstract bool
				isData     bool
				isIface    bool
			)
			if m := ktInterfacePattern.FindStringSubmatch(code); m != nil && strings.Contains(trimmed, "interface ") {
				name = m[1]
				isIface = true
			} else if m := ktObjectPattern.FindStringSubmatch(code); m != nil && strings.Contains(trimmed, "object ") {
				name = m[1]
			} else if m := ktClassPattern.FindStringSubmatch(code); m != nil && strings.Contains(trimmed, "class ") {
				name = m[2]
				isAbstract = m[1] == "abstract" || m[1] == "sealed"
				isData = m[1] == "data"
			} else {
				return false
			}

			cls := b.entity(model.KindClass, name, qualify(".", moduleName, name), lineNo, lineNo)
			if isIface {
				cls.Kind = model.KindInterface
			}
			cls.IsExported = !strings.Contains(code, "private")
			detail := &model.ClassDetail{IsAbstract: isAbstract || isIface, IsDataclass: isData}

			// Supertypes follow the colon after the primary constructor:
			// class A(...) : Base(), Iface
			if supers := ktSupertypes(trimmed, name); supers != "" {
				if brace := strings.Index(supers, "{"); brace >= 0 {
					supers = supers[:brace]
				}
				for _, super := range splitTopLevel(supers, ',') {
					super = strings.TrimSpace(super)
					if super == "" {
						continue
					}
					base := super
					isCtorCall := strings.Contains(super, "(")
					if idx := strings.IndexAny(super, "(<"); idx >= 0 {
						base = strings.TrimSpace(super[:idx])
					}
					if base == "" {
						continue
					}
					if isCtorCall {
						detail.BaseClasses = append(detail.BaseClasses, base)
						b.pendingRef(cls, base, model.RelationExtends, lineNo, "", snippetOf(line))
					} else {
						detail.Interfaces = append(detail.Interfaces, base)
						b.pendingRef(cls, base, model.RelationImplements, lineNo, "", snippetOf(line))
					}
				}
			}
			cls.Detail.Class = detail
			if isIface {
				b.res.Interfaces = append(b.res.Interfaces, cls)
			} else {
				b.res.Classes = append(b.res.Classes, cls)
			}
			if strings.Contains(code, "{") {
				classStack = append(classStack, &tsBlock{entity: cls, openDepth: depth, isClass: true})
			} else {
				cls.LineEnd = lineNo
			}
			return true
		}():

		case func() bool {
			m := ktFunPattern.FindStringSubmatch(code)
			if m == nil || !strings.Contains(trimmed, "fun ") || insideFunction() {
				return false
			}
			name := lastSegment(m[2])
			cls := currentClass()

			kind := model.KindFunction
			qname := qualify(".", moduleName, name)
			if cls != nil {
				kind = model.KindMethod
				qname = qualify(".", cls.entity.QualifiedName, name)
			}
			fn := b.entity(kind, name, qname, lineNo, lineNo)
			fn.IsExported = !strings.Contains(code, "private")
			fn.Signature = snippetOf(strings.TrimSuffix(trimmed, "{"))
			fn.Detail.Function = &model.FunctionDetail{
				IsAsync:    strings.Contains(code, "suspend "),
				ReturnType: strings.TrimSpace(m[4]),
				Parameters: ktParams(m[3]),
			}
			if cls != nil {
				fn.Detail.Method = &model.MethodDetail{ParentClass: cls.entity.SimpleName}
				if strings.Contains(code, "override ") {
					fn.Detail.Method.Overrides = name
				}
				b.res.Methods = append(b.res.Methods, fn)
				b.contains(cls.entity, fn)
			} else {
				b.res.Functions = append(b.res.Functions, fn)
			}

			kf := &ktFunc{entity: fn, bodyFrom: lineNo + 1, sigLine: lineNo}
			funcs = append(funcs, kf)
			if strings.Contains(code, "{") {
				// Single-line bodies close on the same line and are scanned
				// from the signature tail later.
				opens := strings.Count(code, "{")
				closes := strings.Count(code, "}")
				if opens > closes {
					classStack = append(classStack, &tsBlock{entity: fn, openDepth: depth, isFunc: true})
				} else {
					fn.LineEnd = lineNo
				}
			} else {
				fn.LineEnd = lineNo
			}
			return true
		}():
		}

		depth += strings.Count(code, "{") - strings.Count(code, "}")
		for len(classStack) > 0 && depth <= classStack[len(classStack)-1].openDepth {
			top := classStack[len(classStack)-1]
			top.entity.LineEnd = lineNo
			classStack = classStack[:len(classStack)-1]
		}
	}
	for len(classStack) > 0 {
		classStack[len(classStack)-1].entity.LineEnd = len(lines)
		classStack = classStack[:len(classStack)-1]
	}

	for _, f := range funcs {
		fn := f.entity
		parentClass := ""
		if fn.Detail.Method != nil {
			parentClass = fn.Detail.Method.ParentClass
		}
		if fn.LineEnd <= f.sigLine {
			// Body shares the signature line; scan between its braces.
			code := stripLineComment(lines[f.sigLine-1])
			if open := strings.Index(code, "{"); open >= 0 {
				tail := code[open+1:]
				if close := strings.LastIndex(tail, "}"); close >= 0 {
					tail = tail[:close]
				}
				b.scanCalls(fn, parentClass, []string{tail}, f.sigLine, ktCallOptions)
			}
			fn.SourceText = lines[f.sigLine-1]
			continue
		}
		body := lines[f.bodyFrom-1 : min(fn.LineEnd, len(lines))]
		b.scanCalls(fn, parentClass, body, f.bodyFrom, ktCallOptions)
		fn.SourceText = strings.Join(lines[fn.LineStart-1:min(fn.LineEnd, len(lines))], "\n")
	}

	return b.finish(), nil
}

// ktSupertypes returns the supertype list following the declaration colon,
// skipping the primary constructor's parameter colons.
func ktSupertypes(trimmed, name string) string {
	idx := strings.Index(trimmed, name)
	if idx < 0 {
		return ""
	}
	rest := trimmed[idx+len(name):]
	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		case ':':
			if depth == 0 {
				return rest[i+1:]
			}
		case '{':
			if depth == 0 {
				return ""
			}
		}
	}
	return ""
}

func ktParams(raw string) []model.Parameter {
	var params []model.Parameter
	for _, p := range splitTopLevel(raw, ',') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		param := model.Parameter{}
		p = strings.TrimPrefix(strings.TrimPrefix(p, "val "), "var ")
		if strings.HasPrefix(p, "vararg ") {
			param.IsRest = true
			p = strings.TrimPrefix(p, "vararg ")
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
		param.Name = strings.TrimSpace(p)
		if param.Name != "" {
			params = append(params, param)
		}
	}
	return params
}
