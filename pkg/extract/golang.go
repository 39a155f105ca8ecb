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

// GoExtractor extracts packages, structs, interfaces, functions, methods and
// imports from Go sources.
type GoExtractor struct{}

// NewGoExtractor creates a Go extractor.
func NewGoExtractor() *GoExtractor { return &GoExtractor{} }

// SupportedExtensions returns .go.
func (e *GoExtractor) SupportedExtensions() []string { return []string{".go"} }

// Supports reports whether the file is a Go source.
func (e *GoExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

var (
	goPackagePattern   = regexp.MustCompile(`^package\s+(\w+)`)
	goImportPattern    = regexp.MustCompile(`^import\s+(?:(\w+|\.)\s+)?"([^"]+)"`)
	goImportOpenPttrn  = regexp.MustCompile(`^import\s*\(`)
	goImportLinePttrn  = regexp.MustCompile(`^\s*(?:(\w+|\.)\s+)?"([^"]+)"`)
	goStructPattern    = regexp.MustCompile(`^type\s+(\w+)\s+struct\b`)
	goInterfacePattern = regexp.MustCompile(`^type\s+(\w+)\s+interface\b`)
	goTypePattern      = regexp.MustCompile(`^type\s+(\w+)\s+(.+)$`)
	goFuncPattern      = regexp.MustCompile(`^func\s+(\w+)\s*\((.*?)\)\s*(.*)$`)
	goMethodPattern    = regexp.MustCompile(`^func\s+\((\w+)\s+\*?([\w\[\]]+)\)\s+(\w+)\s*\((.*?)\)\s*(.*)$`)
)

var goCallOptions = callScanOptions{
	noiseCalls: map[string]bool{
		"println": true, "print": true, "len": true, "cap": true, "make": true,
		"append": true, "copy": true, "delete": true, "close": true,
		"panic": true, "recover": true, "string": true, "byte": true,
		"int": true, "int64": true, "int32": true, "float64": true, "error": true,
	},
}

// Extract parses the file with a line scan over gofmt-shaped sources.
func (e *GoExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "go")
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	var pkg *model.CodeEntity

	type goFunc struct {
		entity   *model.CodeEntity
		bodyFrom int
		bodyTo   int
		recv     string
	}
	var funcs []*goFunc

	// bodyEnd finds the closing line of a brace block opened at start.
	bodyEnd := func(start int) int {
		depth := 0
		for i := start; i < len(lines); i++ {
			code := stripLineComment(lines[i])
			depth += strings.Count(code, "{") - strings.Count(code, "}")
			if depth <= 0 && strings.Contains(code, "{") {
				return i + 1
			}
			if depth <= 0 && i > start {
				return i + 1
			}
		}
		return len(lines)
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		code := stripLineComment(line)

		if m := goPackagePattern.FindStringSubmatch(code); m != nil && pkg == nil {
			pkg = b.entity(model.KindPackage, m[1], m[1], lineNo, lineNo)
			pkg.Detail.Module = &model.ModuleDetail{PackageName: m[1], IsPackage: true}
			b.res.Modules = append(b.res.Modules, pkg)
			continue
		}

		if goImportOpenPttrn.MatchString(code) {
			for j := i + 1; j < len(lines); j++ {
				inner := stripLineComment(lines[j])
				if strings.TrimSpace(inner) == ")" {
					i = j
					break
				}
				if m := goImportLinePttrn.FindStringSubmatch(inner); m != nil {
					e.addImport(b, m[1], m[2], j+1, lines[j])
				}
			}
			continue
		}
		if m := goImportPattern.FindStringSubmatch(code); m != nil {
			e.addImport(b, m[1], m[2], lineNo, line)
			continue
		}

		if m := goStructPattern.FindStringSubmatch(code); m != nil {
			name := m[1]
			cls := b.entity(model.KindClass, name, qualify(".", moduleName, name), lineNo, bodyEnd(i))
			cls.IsExported = isUpperFirst(name)
			if !cls.IsExported {
				cls.Visibility = model.VisibilityPrivate
			}
			cls.Detail.Class = &model.ClassDetail{}
			cls.SourceText = strings.Join(lines[i:min(cls.LineEnd, len(lines))], "\n")
			b.res.Classes = append(b.res.Classes, cls)
			if pkg != nil {
				b.contains(pkg, cls)
			}
			continue
		}

		if m := goInterfacePattern.FindStringSubmatch(code); m != nil {
			name := m[1]
			iface := b.entity(model.KindInterface, name, qualify(".", moduleName, name), lineNo, bodyEnd(i))
			iface.IsExported = isUpperFirst(name)
			iface.Detail.Class = &model.ClassDetail{IsAbstract: true}
			b.res.Interfaces = append(b.res.Interfaces, iface)
			if pkg != nil {
				b.contains(pkg, iface)
			}
			continue
		}

		if m := goMethodPattern.FindStringSubmatch(code); m != nil {
			recv, recvType, name := m[1], m[2], m[3]
			method := b.entity(model.KindMethod, name, qualify(".", moduleName, recvType, name), lineNo, bodyEnd(i))
			method.IsExported = isUpperFirst(name)
			if !method.IsExported {
				method.Visibility = model.VisibilityPrivate
			}
			method.Signature = snippetOf(strings.TrimSuffix(strings.TrimSpace(code), "{"))
			method.Detail.Function = &model.FunctionDetail{
				Parameters: goParams(m[4]),
				ReturnType: goReturnType(m[5]),
			}
			method.Detail.Method = &model.MethodDetail{ParentClass: recvType}
			b.res.Methods = append(b.res.Methods, method)
			funcs = append(funcs, &goFunc{entity: method, bodyFrom: lineNo + 1, bodyTo: method.LineEnd, recv: recv})
			continue
		}

		if m := goFuncPattern.FindStringSubmatch(code); m != nil {
			name := m[1]
			fn := b.entity(model.KindFunction, name, qualify(".", moduleName, name), lineNo, bodyEnd(i))
			fn.IsExported = isUpperFirst(name)
			if !fn.IsExported {
				fn.Visibility = model.VisibilityPrivate
			}
			fn.Signature = snippetOf(strings.TrimSuffix(strings.TrimSpace(code), "{"))
			fn.Detail.Function = &model.FunctionDetail{
				Parameters: goParams(m[2]),
				ReturnType: goReturnType(m[3]),
			}
			b.res.Functions = append(b.res.Functions, fn)
			if pkg != nil {
				b.contains(pkg, fn)
			}
			funcs = append(funcs, &goFunc{entity: fn, bodyFrom: lineNo + 1, bodyTo: fn.LineEnd})
			continue
		}

		if m := goTypePattern.FindStringSubmatch(code); m != nil &&
			!strings.Contains(code, "struct") && !strings.Contains(code, "interface") {
			name := m[1]
			alias := b.entity(model.KindTypeAlias, name, qualify(".", moduleName, name), lineNo, lineNo)
			alias.IsExported = isUpperFirst(name)
			alias.Detail.TypeAlias = &model.TypeAliasDetail{AliasedType: strings.TrimSpace(m[2])}
			b.res.TypeAliases = append(b.res.TypeAliases, alias)
			continue
		}
	}

	for _, f := range funcs {
		if f.bodyTo < f.bodyFrom {
			continue
		}
		opts := goCallOptions
		parentClass := ""
		if f.entity.Detail.Method != nil {
			parentClass = f.entity.Detail.Method.ParentClass
			opts.selfNames = map[string]bool{f.recv: true}
		}
		body := lines[f.bodyFrom-1 : min(f.bodyTo, len(lines))]
		b.scanCalls(f.entity, parentClass, body, f.bodyFrom, opts)
		f.entity.SourceText = strings.Join(lines[f.entity.LineStart-1:min(f.bodyTo, len(lines))], "\n")
	}

	return b.finish(), nil
}

func (e *GoExtractor) addImport(b *builder, alias, path string, lineNo int, line string) {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	imp := b.entity(model.KindImport, name, path, lineNo, lineNo)
	detail := &model.ImportDetail{SourceModule: path}
	if alias != "" && alias != "." {
		detail.Alias = alias
	}
	if alias == "." {
		detail.IsWildcard = true
	}
	imp.Detail.Import = detail
	b.res.Imports = append(b.res.Imports, imp)
	if !detail.IsWildcard {
		b.pendingRef(imp, path, model.RelationImports, lineNo, "", snippetOf(line))
	}
}

// goParams parses a parameter list of name type pairs.
func goParams(raw string) []model.Parameter {
	var params []model.Parameter
	for _, p := range splitTopLevel(raw, ',') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Fields(p)
		param := model.Parameter{Name: fields[0]}
		if len(fields) > 1 {
			param.TypeAnnotation = strings.Join(fields[1:], " ")
			if strings.HasPrefix(param.TypeAnnotation, "...") {
				param.IsRest = true
			}
		}
		params = append(params, param)
	}
	return params
}

// goReturnType extracts the return clause before the opening brace.
func goReturnType(rest string) string {
	rt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "{"))
	rt = strings.TrimSpace(rt)
	rt = strings.Trim(rt, "()")
	return strings.TrimSpace(rt)
}
