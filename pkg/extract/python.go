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

// PythonExtractor extracts modules, classes, functions, methods, imports and
// variables from Python sources using an indentation-aware line scan.
type PythonExtractor struct{}

// NewPythonExtractor creates a Python extractor.
func NewPythonExtractor() *PythonExtractor { return &PythonExtractor{} }

// SupportedExtensions returns .py and .pyi.
func (e *PythonExtractor) SupportedExtensions() []string { return []string{".py", ".pyi"} }

// Supports reports whether the file is a Python source.
func (e *PythonExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

var (
	pyClassPattern  = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)\s*(?:\(([^)]*)\))?\s*:`)
	pyDefPattern    = regexp.MustCompile(`^(\s*)(async\s+)?def\s+([A-Za-z_]\w*)\s*\((.*)$`)
	pyImportPattern = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromPattern   = regexp.MustCompile(`^\s*from\s+(\.*)([\w.]*)\s+import\s+(.+)$`)
	pyAssignPattern = regexp.MustCompile(`^([A-Za-z_]\w*)\s*(?::\s*([^=]+?))?\s*=\s*(.+)$`)
)

var pyCallOptions = callScanOptions{
	selfNames: map[string]bool{"self": true, "cls": true},
	noiseCalls: map[string]bool{
		"print": true, "len": true, "range": true, "isinstance": true,
		"issubclass": true, "super": true, "enumerate": true, "zip": true,
		"getattr": true, "setattr": true, "hasattr": true, "repr": true,
		"str": true, "int": true, "float": true, "bool": true, "list": true,
		"dict": true, "set": true, "tuple": true, "type": true, "id": true,
		"sorted": true, "min": true, "max": true, "sum": true, "abs": true,
	},
	capitalizedIsInstantiation: true,
}

// pyBlock is one open class or function during the structural scan.
type pyBlock struct {
	entity  *model.CodeEntity
	indent  int
	isClass bool
	// sigEnd is the last line of the def signature; the body starts after.
	sigEnd int
}

// Extract parses the file with an indentation-aware line scan. Lines it does
// not recognize are skipped; it does not detect syntax errors and leaves
// ParseErrors empty.
func (e *PythonExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "python")
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	module := b.entity(model.KindModule, moduleName, moduleName, 1, len(lines))
	module.Detail.Module = &model.ModuleDetail{}
	b.res.Modules = append(b.res.Modules, module)

	var (
		stack      []*pyBlock
		decorators []string
		functions  []*pyBlock
	)

	closeTo := func(indent int, lineNo int) {
		for len(stack) > 0 && indent <= stack[len(stack)-1].indent {
			top := stack[len(stack)-1]
			top.entity.LineEnd = lineNo - 1
			stack = stack[:len(stack)-1]
		}
	}
	parentOf := func() *pyBlock {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
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
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := indentOf(line)

		if strings.HasPrefix(trimmed, "@") {
			decorators = append(decorators, strings.TrimPrefix(strings.SplitN(trimmed[1:], "(", 2)[0], " "))
			continue
		}

		if m := pyClassPattern.FindStringSubmatch(line); m != nil {
			closeTo(indent, lineNo)
			name := m[2]
			cls := b.entity(model.KindClass, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			detail := &model.ClassDetail{}
			for _, base := range splitTopLevel(m[3], ',') {
				base = strings.TrimSpace(base)
				if base == "" || base == "object" || strings.Contains(base, "=") {
					if strings.Contains(base, "metaclass=ABCMeta") {
						detail.IsAbstract = true
					}
					continue
				}
				if base == "ABC" || strings.HasSuffix(base, ".ABC") {
					detail.IsAbstract = true
					continue
				}
				detail.BaseClasses = append(detail.BaseClasses, base)
				b.pendingRef(cls, base, model.RelationExtends, lineNo, "", snippetOf(line))
			}
			for _, d := range decorators {
				cls.Decorators = append(cls.Decorators, d)
				if lastSegment(d) == "dataclass" {
					detail.IsDataclass = true
				}
			}
			if containsFrozenDecorator(lines, i) {
				detail.IsFrozen = detail.IsDataclass
			}
			decorators = nil
			if strings.HasPrefix(name, "_") {
				cls.Visibility = model.VisibilityPrivate
			} else {
				cls.IsExported = true
			}
			cls.Detail.Class = detail
			cls.Docstring = pyDocstring(lines, i+1)
			b.res.Classes = append(b.res.Classes, cls)
			if parent := parentOf(); parent != nil {
				b.contains(parent.entity, cls)
			} else {
				b.contains(module, cls)
			}
			stack = append(stack, &pyBlock{entity: cls, indent: indent, isClass: true, sigEnd: lineNo})
			continue
		}

		if m := pyDefPattern.FindStringSubmatch(line); m != nil {
			closeTo(indent, lineNo)
			name := m[3]
			isAsync := strings.TrimSpace(m[2]) == "async"

			sig, sigEndIdx := joinSignature(lines, i)
			params, returnType := pyParseSignature(sig)

			parent := parentOf()
			inClass := parent != nil && parent.isClass

			kind := model.KindFunction
			if inClass {
				kind = model.KindMethod
			}
			fn := b.entity(kind, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			fn.Signature = strings.TrimSpace(sig)
			fn.Docstring = pyDocstring(lines, sigEndIdx+1)
			fn.Detail.Function = &model.FunctionDetail{
				Parameters: params,
				ReturnType: returnType,
				IsAsync:    isAsync,
			}
			for _, p := range params {
				if t := baseTypeName(p.TypeAnnotation); t != "" {
					fn.Detail.Function.TypeReferences = appendUnique(fn.Detail.Function.TypeReferences, t)
				}
			}
			if t := baseTypeName(returnType); t != "" {
				fn.Detail.Function.TypeReferences = appendUnique(fn.Detail.Function.TypeReferences, t)
			}

			if strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__") {
				fn.Visibility = model.VisibilityPrivate
			} else {
				fn.IsExported = !strings.HasPrefix(name, "_")
			}

			if inClass {
				md := &model.MethodDetail{ParentClass: parent.entity.SimpleName}
				for _, d := range decorators {
					fn.Decorators = append(fn.Decorators, d)
					switch lastSegment(d) {
					case "staticmethod":
						md.IsStatic = true
					case "classmethod":
						md.IsClassMethod = true
					case "property":
						md.IsProperty = true
					case "abstractmethod":
						// Abstract methods mark the class abstract too.
						if parent.entity.Detail.Class != nil {
							parent.entity.Detail.Class.IsAbstract = true
						}
					}
				}
				md.IsConstructor = name == "__init__"
				md.IsDestructor = name == "__del__"
				fn.Detail.Method = md
				b.res.Methods = append(b.res.Methods, fn)
				b.contains(parent.entity, fn)
			} else {
				fn.Decorators = append(fn.Decorators, decorators...)
				b.res.Functions = append(b.res.Functions, fn)
				if parent != nil {
					b.contains(parent.entity, fn)
				} else {
					b.contains(module, fn)
				}
			}
			decorators = nil

			blk := &pyBlock{entity: fn, indent: indent, sigEnd: sigEndIdx + 1}
			stack = append(stack, blk)
			functions = append(functions, blk)
			i = sigEndIdx
			continue
		}

		decorators = nil
		closeTo(indent, lineNo)

		if m := pyFromPattern.FindStringSubmatch(line); m != nil && len(stack) == 0 {
			e.addFromImport(b, m, lineNo, line)
			continue
		}
		if m := pyImportPattern.FindStringSubmatch(line); m != nil && len(stack) == 0 {
			e.addPlainImport(b, m[1], lineNo, line)
			continue
		}

		if len(stack) == 0 {
			if m := pyAssignPattern.FindStringSubmatch(trimmed); m != nil && indent == 0 {
				name := m[1]
				v := b.entity(model.KindVariable, name, qualify(".", moduleName, name), lineNo, lineNo)
				v.Detail.Variable = &model.VariableDetail{
					TypeAnnotation: strings.TrimSpace(m[2]),
					InitialValue:   strings.TrimSpace(m[3]),
					IsConstant:     name == strings.ToUpper(name) && strings.ContainsAny(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
				}
				if v.Detail.Variable.IsConstant {
					v.Kind = model.KindConstant
				}
				v.IsExported = !strings.HasPrefix(name, "_")
				b.res.Variables = append(b.res.Variables, v)
				b.contains(module, v)
			}
		}
	}
	closeTo(0, len(lines)+1)

	// Call extraction runs per function over its body.
	for _, blk := range functions {
		fn := blk.entity
		bodyStart := blk.sigEnd + 1
		bodyEnd := fn.LineEnd
		if bodyEnd < bodyStart {
			bodyEnd = bodyStart - 1
		}
		body := lines[min(bodyStart-1, len(lines)):min(bodyEnd, len(lines))]
		parentClass := ""
		if fn.Detail.Method != nil {
			parentClass = fn.Detail.Method.ParentClass
		}
		for _, l := range body {
			if strings.Contains(l, "yield") && regexp.MustCompile(`\byield\b`).MatchString(l) {
				fn.Detail.Function.IsGenerator = true
				break
			}
		}
		b.scanCalls(fn, parentClass, body, bodyStart, pyCallOptions)
		fn.SourceText = strings.Join(lines[fn.LineStart-1:min(bodyEnd, len(lines))], "\n")
	}

	return b.finish(), nil
}

// addFromImport records a `from m import a, b` statement.
func (e *PythonExtractor) addFromImport(b *builder, m []string, lineNo int, line string) {
	dots, sourceModule, importList := m[1], m[2], strings.TrimSpace(m[3])

	imp := b.entity(model.KindImport, sourceModule, sourceModule, lineNo, lineNo)
	if imp.SimpleName == "" {
		imp.SimpleName = "."
		imp.QualifiedName = strings.Repeat(".", len(dots))
	}
	detail := &model.ImportDetail{
		SourceModule:  sourceModule,
		IsRelative:    len(dots) > 0,
		RelativeLevel: len(dots),
	}

	importList = strings.TrimSuffix(strings.TrimPrefix(importList, "("), ")")
	if strings.TrimSpace(importList) == "*" {
		detail.IsWildcard = true
	} else {
		for _, sym := range strings.Split(importList, ",") {
			sym = strings.TrimSpace(sym)
			if sym == "" {
				continue
			}
			name, alias, hasAlias := strings.Cut(sym, " as ")
			name = strings.TrimSpace(name)
			detail.ImportedSymbols = append(detail.ImportedSymbols, name)
			if hasAlias {
				detail.Alias = strings.TrimSpace(alias)
			}
		}
	}

	imp.Detail.Import = detail
	b.res.Imports = append(b.res.Imports, imp)

	// Wildcard imports emit no pending reference; one reference per symbol
	// otherwise.
	if detail.IsWildcard {
		return
	}
	for _, sym := range detail.ImportedSymbols {
		b.pendingRef(imp, qualify(".", sourceModule, sym), model.RelationImports, lineNo, "", snippetOf(line))
	}
}

// addPlainImport records one or more `import m [as a]` clauses.
func (e *PythonExtractor) addPlainImport(b *builder, clause string, lineNo int, line string) {
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, alias, hasAlias := strings.Cut(part, " as ")
		name = strings.TrimSpace(name)

		imp := b.entity(model.KindImport, name, name, lineNo, lineNo)
		detail := &model.ImportDetail{SourceModule: name}
		if hasAlias {
			detail.Alias = strings.TrimSpace(alias)
		}
		imp.Detail.Import = detail
		b.res.Imports = append(b.res.Imports, imp)
		b.pendingRef(imp, name, model.RelationImports, lineNo, "", snippetOf(line))
	}
}

// pyDocstring returns the docstring starting at line index idx, if any.
func pyDocstring(lines []string, idx int) string {
	for ; idx < len(lines); idx++ {
		t := strings.TrimSpace(lines[idx])
		if t == "" {
			continue
		}
		for _, quote := range []string{`"""`, `'''`} {
			if strings.HasPrefix(t, quote) {
				rest := strings.TrimPrefix(t, quote)
				if end := strings.Index(rest, quote); end >= 0 {
					return strings.TrimSpace(rest[:end])
				}
				var sb strings.Builder
				sb.WriteString(rest)
				for j := idx + 1; j < len(lines); j++ {
					lt := lines[j]
					if end := strings.Index(lt, quote); end >= 0 {
						sb.WriteString("\n" + lt[:end])
						return strings.TrimSpace(sb.String())
					}
					sb.WriteString("\n" + lt)
				}
				return strings.TrimSpace(sb.String())
			}
		}
		return ""
	}
	return ""
}

// joinSignature joins a def header spanning multiple lines until the
// closing parenthesis, returning the signature text and the index of its
// last line.
func joinSignature(lines []string, start int) (string, int) {
	depth := 0
	var sb strings.Builder
	for i := start; i < len(lines) && i < start+20; i++ {
		line := stripLineComment(lines[i])
		if i > start {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(line))
		depth += strings.Count(line, "(") - strings.Count(line, ")")
		if depth <= 0 {
			return sb.String(), i
		}
	}
	return sb.String(), start
}

// pyParseSignature extracts parameters and return type from a def header.
func pyParseSignature(sig string) ([]model.Parameter, string) {
	open := strings.Index(sig, "(")
	if open < 0 {
		return nil, ""
	}
	depth := 0
	closeIdx := -1
	for i := open; i < len(sig); i++ {
		switch sig[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 && sig[i] == ')' {
				closeIdx = i
			}
		}
		if closeIdx >= 0 {
			break
		}
	}
	if closeIdx < 0 {
		closeIdx = len(sig) - 1
	}

	var params []model.Parameter
	for i, raw := range splitTopLevel(sig[open+1:closeIdx], ',') {
		p := strings.TrimSpace(raw)
		if p == "" || p == "*" || p == "/" {
			continue
		}
		param := model.Parameter{}
		if strings.HasPrefix(p, "**") {
			param.IsRest = true
			p = strings.TrimPrefix(p, "**")
		} else if strings.HasPrefix(p, "*") {
			param.IsRest = true
			p = strings.TrimPrefix(p, "*")
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
		if param.Name == "" {
			continue
		}
		if i == 0 && (param.Name == "self" || param.Name == "cls") {
			continue
		}
		params = append(params, param)
	}

	returnType := ""
	if arrow := strings.Index(sig[closeIdx:], "->"); arrow >= 0 {
		rt := sig[closeIdx+arrow+2:]
		rt = strings.TrimSuffix(strings.TrimSpace(rt), ":")
		returnType = strings.TrimSpace(rt)
	}
	return params, returnType
}

// containsFrozenDecorator checks the decorator lines directly above idx for
// a frozen=True dataclass argument.
func containsFrozenDecorator(lines []string, idx int) bool {
	for j := idx - 1; j >= 0 && j >= idx-5; j-- {
		t := strings.TrimSpace(lines[j])
		if !strings.HasPrefix(t, "@") {
			break
		}
		if strings.Contains(t, "frozen=True") {
			return true
		}
	}
	return false
}

// splitTopLevel splits s on sep at bracket depth zero.
func splitTopLevel(s string, sep byte) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// baseTypeName reduces an annotation to its outermost named type, dropping
// builtins that are not reference targets.
func baseTypeName(annotation string) string {
	t := strings.TrimSpace(annotation)
	if t == "" {
		return ""
	}
	if i := strings.IndexAny(t, "[(<"); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.Trim(t, `"'`))
	switch t {
	case "str", "int", "float", "bool", "bytes", "None", "Any", "any", "object", "dict", "list", "set", "tuple", "void", "number", "string", "boolean":
		return ""
	}
	if t == "" || !isUpperFirst(lastSegment(t)) {
		return ""
	}
	return t
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func indentOf(line string) int {
	n := 0
	for _, c := range line {
		switch c {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

func hasAnyExtension(path string, exts []string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

