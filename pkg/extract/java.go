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

// JavaExtractor extracts packages, classes, interfaces, methods and imports
// from Java sources.
type JavaExtractor struct{}

// NewJavaExtractor creates a Java extractor.
func NewJavaExtractor() *JavaExtractor { return &JavaExtractor{} }

// SupportedExtensions returns .java.
func (e *JavaExtractor) SupportedExtensions() []string { return []string{".java"} }

// Supports reports whether the file is a Java source.
func (e *JavaExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

var (
	javaPackagePattern   = regexp.MustCompile(`^\s*package\s+([\w.]+)\s*;`)
	javaImportPattern    = regexp.MustCompile(`^\s*import\s+(static\s+)?([\w.]+)(\.\*)?\s*;`)
	javaClassPattern     = regexp.MustCompile(`^\s*(?:public\s+|private\s+|protected\s+)?(abstract\s+)?(?:final\s+)?(?:static\s+)?class\s+(\w+)(?:<[^>]*>)?(?:\s+extends\s+([\w.<>]+))?(?:\s+implements\s+([\w.,\s<>]+))?\s*\{`)
	javaInterfacePattern = regexp.MustCompile(`^\s*(?:public\s+)?interface\s+(\w+)(?:<[^>]*>)?(?:\s+extends\s+([\w.,\s<>]+))?\s*\{`)
	javaEnumPattern      = regexp.MustCompile(`^\s*(?:public\s+)?enum\s+(\w+)\s*(?:implements\s+[\w.,\s]+)?\{`)
	javaMethodPattern    = regexp.MustCompile(`^\s*(public\s+|private\s+|protected\s+)?(static\s+)?(?:final\s+|abstract\s+|synchronized\s+|native\s+)*(?:<[^>]+>\s+)?([\w.<>\[\]]+)\s+(\w+)\s*\(([^)]*)\)\s*(?:throws\s+[\w.,\s]+)?\s*[{;]`)
)

var javaCallOptions = callScanOptions{
	selfNames:     map[string]bool{"this": true},
	noisePrefixes: []string{"System.out.", "System.err.", "Objects."},
	noiseCalls:    map[string]bool{"println": true, "printf": true, "print": true, "valueOf": true, "equals": true, "hashCode": true, "toString": true},
}

// Extract parses the file with a brace-depth line scan.
func (e *JavaExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "java")
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	type javaFunc struct {
		entity   *model.CodeEntity
		bodyFrom int
	}
	var (
		funcs       []*javaFunc
		packageName string
		depth       int
		classStack  []*tsBlock
	)

	currentClass := func() *tsBlock {
		if len(classStack) == 0 {
			return nil
		}
		return classStack[len(classStack)-1]
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		code := stripLineComment(line)
		trimmed := strings.TrimSpace(code)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "@"):

		case func() bool {
			m := javaPackagePattern.FindStringSubmatch(code)
			if m == nil || packageName != "" {
				return false
			}
			packageName = m[1]
			pkg := b.entity(model.KindPackage, lastSegment(packageName), packageName, lineNo, lineNo)
			pkg.Detail.Module = &model.ModuleDetail{PackageName: packageName, IsPackage: true}
			b.res.Modules = append(b.res.Modules, pkg)
			return true
		}():

		case func() bool {
			m := javaImportPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			path, wildcard := m[2], m[3] != ""
			imp := b.entity(model.KindImport, lastSegment(path), path, lineNo, lineNo)
			imp.Detail.Import = &model.ImportDetail{
				SourceModule: path,
				IsWildcard:   wildcard,
			}
			b.res.Imports = append(b.res.Imports, imp)
			if !wildcard {
				b.pendingRef(imp, path, model.RelationImports, lineNo, "", snippetOf(line))
			}
			return true
		}():

		case func() bool {
			m := javaClassPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[2]
			cls := b.entity(model.KindClass, name, qualify(".", moduleName, name), lineNo, lineNo)
			cls.IsExported = strings.Contains(code, "public")
			detail := &model.ClassDetail{IsAbstract: strings.TrimSpace(m[1]) == "abstract"}
			if base := stripGenerics(strings.TrimSpace(m[3])); base != "" {
				detail.BaseClasses = append(detail.BaseClasses, base)
				b.pendingRef(cls, base, model.RelationExtends, lineNo, "", snippetOf(line))
			}
			for _, iface := range strings.Split(m[4], ",") {
				if iface = stripGenerics(strings.TrimSpace(iface)); iface != "" {
					detail.Interfaces = append(detail.Interfaces, iface)
					b.pendingRef(cls, iface, model.RelationImplements, lineNo, "", snippetOf(line))
				}
			}
			cls.Detail.Class = detail
			b.res.Classes = append(b.res.Classes, cls)
			classStack = append(classStack, &tsBlock{entity: cls, openDepth: depth, isClass: true})
			return true
		}():

		case func() bool {
			m := javaInterfacePattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[1]
			iface := b.entity(model.KindInterface, name, qualify(".", moduleName, name), lineNo, lineNo)
			iface.IsExported = strings.Contains(code, "public")
			detail := &model.ClassDetail{IsAbstract: true}
			for _, base := range strings.Split(m[2], ",") {
				if base = stripGenerics(strings.TrimSpace(base)); base != "" {
					detail.BaseClasses = append(detail.BaseClasses, base)
					b.pendingRef(iface, base, model.RelationExtends, lineNo, "", snippetOf(line))
				}
			}
			iface.Detail.Class = detail
			b.res.Interfaces = append(b.res.Interfaces, iface)
			classStack = append(classStack, &tsBlock{entity: iface, openDepth: depth, isClass: true})
			return true
		}():

		case func() bool {
			m := javaEnumPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			name := m[1]
			enum := b.entity(model.KindEnum, name, qualify(".", moduleName, name), lineNo, lineNo)
			enum.IsExported = strings.Contains(code, "public")
			b.res.Enums = append(b.res.Enums, enum)
			classStack = append(classStack, &tsBlock{entity: enum, openDepth: depth})
			return true
		}():

		case func() bool {
			cls := currentClass()
			if cls == nil || !cls.isClass || depth != cls.openDepth+1 {
				return false
			}
			m := javaMethodPattern.FindStringSubmatch(code)
			if m == nil {
				return false
			}
			retType, name := m[3], m[4]
			if commonKeywords[name] || retType == "new" || retType == "return" {
				return false
			}
			method := b.entity(model.KindMethod, name, qualify(".", cls.entity.QualifiedName, name), lineNo, lineNo)
			method.IsExported = strings.TrimSpace(m[1]) == "public"
			if strings.TrimSpace(m[1]) == "private" {
				method.Visibility = model.VisibilityPrivate
			} else if strings.TrimSpace(m[1]) == "protected" {
				method.Visibility = model.VisibilityProtected
			}
			method.Signature = snippetOf(strings.TrimSuffix(strings.TrimSuffix(trimmed, "{"), ";"))
			method.Detail.Function = &model.FunctionDetail{
				ReturnType: retType,
				Parameters: javaParams(m[5]),
			}
			method.Detail.Method = &model.MethodDetail{
				ParentClass: cls.entity.SimpleName,
				IsStatic:    strings.TrimSpace(m[2]) == "static",
			}
			b.res.Methods = append(b.res.Methods, method)
			b.contains(cls.entity, method)
			if strings.HasSuffix(trimmed, "{") {
				funcs = append(funcs, &javaFunc{entity: method, bodyFrom: lineNo + 1})
				classStack = append(classStack, &tsBlock{entity: method, openDepth: depth})
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
		if fn.LineEnd < f.bodyFrom {
			continue
		}
		body := lines[f.bodyFrom-1 : min(fn.LineEnd, len(lines))]
		b.scanCalls(fn, fn.Detail.Method.ParentClass, body, f.bodyFrom, javaCallOptions)
		fn.SourceText = strings.Join(lines[fn.LineStart-1:min(fn.LineEnd, len(lines))], "\n")
	}

	return b.finish(), nil
}

func javaParams(raw string) []model.Parameter {
	var params []model.Parameter
	for _, p := range splitTopLevel(raw, ',') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Fields(p)
		param := model.Parameter{}
		if len(fields) >= 2 {
			param.TypeAnnotation = strings.Join(fields[:len(fields)-1], " ")
			param.Name = fields[len(fields)-1]
		} else {
			param.Name = fields[0]
		}
		params = append(params, param)
	}
	return params
}

// stripGenerics drops a trailing type-parameter list from a name.
func stripGenerics(name string) string {
	if i := strings.Index(name, "<"); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	return name
}
