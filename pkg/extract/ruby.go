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
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mrcis/mrcis/pkg/model"
)

// RubyExtractor extracts classes, modules, methods and imports from Ruby
// sources, with special handling for the Rails class-level DSL, Rake files
// (namespace/task/desc) and Gemfiles (gem dependencies).
type RubyExtractor struct{}

// NewRubyExtractor creates a Ruby extractor.
func NewRubyExtractor() *RubyExtractor { return &RubyExtractor{} }

// SupportedExtensions returns .rb and .rake.
func (e *RubyExtractor) SupportedExtensions() []string { return []string{".rb", ".rake"} }

// Supports also accepts the extensionless Rakefile and Gemfile.
func (e *RubyExtractor) Supports(path string) bool {
	if hasAnyExtension(path, e.SupportedExtensions()) {
		return true
	}
	base := filepath.Base(path)
	return base == "Rakefile" || base == "Gemfile"
}

var (
	rbClassPattern     = regexp.MustCompile(`^\s*class\s+([A-Z]\w*)(?:\s*<\s*([\w:]+))?`)
	rbModulePattern    = regexp.MustCompile(`^\s*module\s+([A-Z]\w*)`)
	rbDefPattern       = regexp.MustCompile(`^\s*def\s+(self\.)?([\w?!=\[\]]+)`)
	rbIncludePattern   = regexp.MustCompile(`^\s*(include|extend|prepend)\s+([\w:]+)`)
	rbRequirePattern   = regexp.MustCompile(`^\s*require(_relative)?\s+['"]([^'"]+)['"]`)
	rbAssocPattern     = regexp.MustCompile(`^\s*(has_many|has_one|belongs_to)\s+:(\w+)`)
	rbValidatePattern  = regexp.MustCompile(`^\s*(validates?|validates_\w+|before_\w+|after_\w+|around_\w+)\b`)
	rbScopePattern     = regexp.MustCompile(`^\s*scope\s+:(\w+)`)
	rbDelegatePattern  = regexp.MustCompile(`^\s*delegate\s+(.+?)(?:,\s*to:\s*:(\w+))`)
	rbNamespacePattern = regexp.MustCompile(`^\s*namespace\s+:?['"]?(\w+)['"]?\s+do`)
	rbTaskPattern      = regexp.MustCompile(`^\s*task\s+:?['"]?(\w+)['"]?`)
	rbDescPattern      = regexp.MustCompile(`^\s*desc\s+['"](.+)['"]`)
	rbGemPattern       = regexp.MustCompile(`^\s*gem\s+['"]([\w-]+)['"]`)
	rbEndPattern       = regexp.MustCompile(`^\s*end\b`)
)

var rbCallOptions = callScanOptions{
	selfNames:                  map[string]bool{"self": true},
	noiseCalls:                 map[string]bool{"puts": true, "print": true, "p": true, "raise": true, "require": true, "require_relative": true, "attr_accessor": true, "attr_reader": true, "attr_writer": true},
	capitalizedIsInstantiation: true,
}

// rbScope is an open class/module/namespace/def during the scan.
type rbScope struct {
	entity *model.CodeEntity
	kind   string // class, module, namespace, def
	indent int
}

// Extract dispatches on file flavor: Gemfile, Rake file or plain Ruby.
func (e *RubyExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	base := filepath.Base(ctx.FilePath)
	switch {
	case base == "Gemfile":
		return e.extractGemfile(ctx, content), nil
	case base == "Rakefile" || strings.HasSuffix(strings.ToLower(base), ".rake"):
		return e.extractRake(ctx, content), nil
	default:
		return e.extractRuby(ctx, content), nil
	}
}

// extractGemfile turns gem declarations into non-relative imports.
func (e *RubyExtractor) extractGemfile(ctx Context, content []byte) *model.ExtractionResult {
	b := newBuilder(ctx, "ruby")
	for i, line := range sourceLines(content) {
		m := rbGemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		imp := b.entity(model.KindImport, name, name, i+1, i+1)
		imp.Detail.Import = &model.ImportDetail{SourceModule: name, IsRelative: false}
		b.res.Imports = append(b.res.Imports, imp)
		b.pendingRef(imp, name, model.RelationImports, i+1, "", snippetOf(line))
	}
	return b.finish()
}

// extractRake handles namespace/task/desc. Qualified names join namespace
// segments and the task name with colons, without a module prefix.
func (e *RubyExtractor) extractRake(ctx Context, content []byte) *model.ExtractionResult {
	b := newBuilder(ctx, "ruby")
	lines := sourceLines(content)

	var (
		namespaces []*rbScope
		pendingDoc string
	)
	nsPrefix := func() []string {
		parts := make([]string, 0, len(namespaces))
		for _, ns := range namespaces {
			parts = append(parts, ns.entity.SimpleName)
		}
		return parts
	}

	for i, line := range lines {
		lineNo := i + 1
		indent := indentOf(line)

		if m := rbDescPattern.FindStringSubmatch(line); m != nil {
			pendingDoc = m[1]
			continue
		}
		if m := rbNamespacePattern.FindStringSubmatch(line); m != nil {
			name := m[1]
			qname := strings.Join(append(nsPrefix(), name), ":")
			ns := b.entity(model.KindModule, name, qname, lineNo, lineNo)
			ns.Detail.Module = &model.ModuleDetail{}
			b.res.Modules = append(b.res.Modules, ns)
			namespaces = append(namespaces, &rbScope{entity: ns, kind: "namespace", indent: indent})
			continue
		}
		if m := rbTaskPattern.FindStringSubmatch(line); m != nil {
			name := m[1]
			qname := strings.Join(append(nsPrefix(), name), ":")
			task := b.entity(model.KindTask, name, qname, lineNo, lineNo)
			task.Docstring = pendingDoc
			pendingDoc = ""
			task.Detail.Function = &model.FunctionDetail{}
			b.res.Functions = append(b.res.Functions, task)
			if len(namespaces) > 0 {
				b.contains(namespaces[len(namespaces)-1].entity, task)
			}
			continue
		}
		if rbEndPattern.MatchString(line) {
			for len(namespaces) > 0 && indent <= namespaces[len(namespaces)-1].indent {
				top := namespaces[len(namespaces)-1]
				top.entity.LineEnd = lineNo
				namespaces = namespaces[:len(namespaces)-1]
				break
			}
		}
	}
	return b.finish()
}

// extractRuby handles plain Ruby classes, modules, methods and the Rails
// class-level DSL.
func (e *RubyExtractor) extractRuby(ctx Context, content []byte) *model.ExtractionResult {
	b := newBuilder(ctx, "ruby")
	lines := sourceLines(content)
	moduleName := ctx.ModuleName()

	type rbFunc struct {
		entity   *model.CodeEntity
		bodyFrom int
	}
	var (
		stack      []*rbScope
		funcs      []*rbFunc
		visibility = model.VisibilityPublic
	)

	currentClass := func() *rbScope {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].kind == "class" || stack[i].kind == "module" {
				return stack[i]
			}
		}
		return nil
	}
	qualifiedParent := func() string {
		parts := []string{moduleName}
		for _, s := range stack {
			parts = append(parts, s.entity.SimpleName)
		}
		return qualify(".", parts...)
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		trimmed := strings.TrimSpace(stripLineComment(line))
		if trimmed == "" {
			continue
		}
		indent := indentOf(line)

		switch trimmed {
		case "private":
			visibility = model.VisibilityPrivate
			continue
		case "protected":
			visibility = model.VisibilityProtected
			continue
		case "public":
			visibility = model.VisibilityPublic
			continue
		}

		if m := rbRequirePattern.FindStringSubmatch(line); m != nil {
			source := m[2]
			imp := b.entity(model.KindImport, source, source, lineNo, lineNo)
			imp.Detail.Import = &model.ImportDetail{
				SourceModule: source,
				IsRelative:   m[1] != "",
			}
			b.res.Imports = append(b.res.Imports, imp)
			b.pendingRef(imp, strings.ReplaceAll(source, "/", "."), model.RelationImports, lineNo, "", snippetOf(line))
			continue
		}

		if m := rbClassPattern.FindStringSubmatch(line); m != nil {
			name := m[1]
			cls := b.entity(model.KindClass, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			cls.IsExported = true
			detail := &model.ClassDetail{}
			if base := m[2]; base != "" {
				detail.BaseClasses = append(detail.BaseClasses, base)
				b.pendingRef(cls, base, model.RelationExtends, lineNo, "", snippetOf(line))
			}
			cls.Detail.Class = detail
			b.res.Classes = append(b.res.Classes, cls)
			if parent := currentClass(); parent != nil {
				b.contains(parent.entity, cls)
			}
			stack = append(stack, &rbScope{entity: cls, kind: "class", indent: indent})
			visibility = model.VisibilityPublic
			continue
		}

		if m := rbModulePattern.FindStringSubmatch(line); m != nil {
			name := m[1]
			mod := b.entity(model.KindModule, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			mod.Detail.Module = &model.ModuleDetail{}
			b.res.Modules = append(b.res.Modules, mod)
			stack = append(stack, &rbScope{entity: mod, kind: "module", indent: indent})
			continue
		}

		if cls := currentClass(); cls != nil && cls.kind == "class" {
			classEntity := cls.entity
			if m := rbIncludePattern.FindStringSubmatch(line); m != nil {
				target := m[2]
				if classEntity.Detail.Class != nil {
					classEntity.Detail.Class.Mixins = append(classEntity.Detail.Class.Mixins, target)
				}
				b.pendingRef(classEntity, target, model.RelationReferences, lineNo, "", snippetOf(line))
				continue
			}
			if m := rbAssocPattern.FindStringSubmatch(line); m != nil {
				target := camelize(singularize(m[2]))
				b.pendingRef(classEntity, target, model.RelationReferences, lineNo, "", snippetOf(line))
				continue
			}
			if m := rbValidatePattern.FindStringSubmatch(line); m != nil {
				classEntity.Decorators = appendUnique(classEntity.Decorators, m[1])
				continue
			}
			if m := rbScopePattern.FindStringSubmatch(line); m != nil {
				name := m[1]
				scopeMethod := b.entity(model.KindMethod, name, qualify(".", classEntity.QualifiedName, name), lineNo, lineNo)
				scopeMethod.Decorators = []string{"scope"}
				scopeMethod.Detail.Function = &model.FunctionDetail{}
				scopeMethod.Detail.Method = &model.MethodDetail{
					ParentClass: classEntity.SimpleName,
					IsStatic:    true,
				}
				b.res.Methods = append(b.res.Methods, scopeMethod)
				b.contains(classEntity, scopeMethod)
				continue
			}
			if m := rbDelegatePattern.FindStringSubmatch(line); m != nil {
				receiver := m[2]
				for _, sym := range strings.Split(m[1], ",") {
					sym = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sym), ":"))
					if sym == "" || strings.Contains(sym, ":") {
						continue
					}
					b.pendingRef(classEntity, qualify(".", receiver, sym), model.RelationCalls, lineNo, receiver, snippetOf(line))
				}
				continue
			}
		}

		if m := rbDefPattern.FindStringSubmatch(line); m != nil {
			isStatic := m[1] != ""
			name := m[2]
			cls := currentClass()

			kind := model.KindFunction
			if cls != nil && cls.kind == "class" {
				kind = model.KindMethod
			}
			fn := b.entity(kind, name, qualify(".", qualifiedParent(), name), lineNo, lineNo)
			fn.Visibility = visibility
			fn.IsExported = visibility == model.VisibilityPublic
			fn.Detail.Function = &model.FunctionDetail{}
			if kind == model.KindMethod {
				fn.Detail.Method = &model.MethodDetail{
					ParentClass:   cls.entity.SimpleName,
					IsStatic:      isStatic,
					IsConstructor: name == "initialize",
				}
				b.res.Methods = append(b.res.Methods, fn)
				b.contains(cls.entity, fn)
			} else {
				b.res.Functions = append(b.res.Functions, fn)
			}
			stack = append(stack, &rbScope{entity: fn, kind: "def", indent: indent})
			funcs = append(funcs, &rbFunc{entity: fn, bodyFrom: lineNo + 1})
			continue
		}

		if rbEndPattern.MatchString(line) && len(stack) > 0 {
			top := stack[len(stack)-1]
			if indent <= top.indent {
				top.entity.LineEnd = lineNo
				stack = stack[:len(stack)-1]
				if top.kind == "class" {
					visibility = model.VisibilityPublic
				}
			}
		}
	}
	for len(stack) > 0 {
		stack[len(stack)-1].entity.LineEnd = len(lines)
		stack = stack[:len(stack)-1]
	}

	for _, f := range funcs {
		fn := f.entity
		if fn.LineEnd < f.bodyFrom {
			continue
		}
		parentClass := ""
		if fn.Detail.Method != nil {
			parentClass = fn.Detail.Method.ParentClass
		}
		body := lines[f.bodyFrom-1 : min(fn.LineEnd, len(lines))]
		b.scanCalls(fn, parentClass, body, f.bodyFrom, rbCallOptions)
		fn.SourceText = strings.Join(lines[fn.LineStart-1:min(fn.LineEnd, len(lines))], "\n")
	}

	return b.finish()
}

// singularize reduces a plural association name to its singular form.
// Covers the regular English plurals the Rails DSL produces.
func singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses") || strings.HasSuffix(word, "xes") || strings.HasSuffix(word, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return word[:len(word)-1]
	default:
		return word
	}
}

// camelize converts snake_case to CamelCase.
func camelize(word string) string {
	parts := strings.Split(word, "_")
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return sb.String()
}
