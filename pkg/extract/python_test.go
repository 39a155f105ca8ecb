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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/pkg/model"
)

// writeSource writes content under a temp dir and returns an extraction
// context for it.
func writeSource(t *testing.T, name, content string) Context {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return Context{FilePath: path, FileID: model.NewID(), RepositoryID: model.NewID()}
}

func refsOfType(res *model.ExtractionResult, rt model.RelationType) []model.PendingReference {
	var out []model.PendingReference
	for _, r := range res.PendingReferences {
		if r.RelationType == rt {
			out = append(out, r)
		}
	}
	return out
}

func TestPythonSupports(t *testing.T) {
	e := NewPythonExtractor()
	assert.True(t, e.Supports("module.py"))
	assert.True(t, e.Supports("module.PY"))
	assert.True(t, e.Supports("module.pyi"))
	assert.False(t, e.Supports("module.js"))
}

func TestPythonSimpleImport(t *testing.T) {
	res, err := NewPythonExtractor().Extract(writeSource(t, "test_module.py", "import os\n"))
	require.NoError(t, err)

	require.Len(t, res.Imports, 1)
	imp := res.Imports[0]
	assert.Equal(t, "os", imp.Detail.Import.SourceModule)
	assert.False(t, imp.Detail.Import.IsRelative)

	refs := refsOfType(res, model.RelationImports)
	require.Len(t, refs, 1)
	assert.Equal(t, "os", refs[0].TargetQualifiedName)
	assert.Equal(t, imp.ID, refs[0].SourceEntityID)
}

func TestPythonFromImport(t *testing.T) {
	res, err := NewPythonExtractor().Extract(writeSource(t, "test_module.py", "from typing import Optional, List\n"))
	require.NoError(t, err)

	require.Len(t, res.Imports, 1)
	imp := res.Imports[0]
	assert.Equal(t, "typing", imp.Detail.Import.SourceModule)
	assert.Contains(t, imp.Detail.Import.ImportedSymbols, "Optional")
	assert.Contains(t, imp.Detail.Import.ImportedSymbols, "List")

	targets := map[string]bool{}
	for _, r := range refsOfType(res, model.RelationImports) {
		targets[r.TargetQualifiedName] = true
	}
	assert.True(t, targets["typing.Optional"])
	assert.True(t, targets["typing.List"])
}

func TestPythonFromImportSingleSymbol(t *testing.T) {
	res, err := NewPythonExtractor().Extract(writeSource(t, "test_module.py", "from os.path import join\n"))
	require.NoError(t, err)

	require.Len(t, res.Imports, 1)
	imp := res.Imports[0]
	assert.Equal(t, "os.path", imp.Detail.Import.SourceModule)
	assert.Equal(t, []string{"join"}, imp.Detail.Import.ImportedSymbols)

	refs := refsOfType(res, model.RelationImports)
	require.Len(t, refs, 1)
	assert.Equal(t, "os.path.join", refs[0].TargetQualifiedName)
	assert.Equal(t, imp.ID, refs[0].SourceEntityID)
}

func TestPythonRelativeImport(t *testing.T) {
	res, err := NewPythonExtractor().Extract(writeSource(t, "test_module.py", "from . import utils\n"))
	require.NoError(t, err)

	require.Len(t, res.Imports, 1)
	imp := res.Imports[0]
	assert.True(t, imp.Detail.Import.IsRelative)
	assert.Equal(t, 1, imp.Detail.Import.RelativeLevel)

	refs := refsOfType(res, model.RelationImports)
	require.Len(t, refs, 1)
	assert.Equal(t, "utils", refs[0].TargetQualifiedName)
}

func TestPythonWildcardImportEmitsNoReference(t *testing.T) {
	res, err := NewPythonExtractor().Extract(writeSource(t, "test_module.py", "from module import *\n"))
	require.NoError(t, err)

	require.Len(t, res.Imports, 1)
	assert.True(t, res.Imports[0].Detail.Import.IsWildcard)
	assert.Empty(t, refsOfType(res, model.RelationImports))
}

func TestPythonClassExtends(t *testing.T) {
	res, err := NewPythonExtractor().Extract(writeSource(t, "validators.py",
		"class UserValidator(BaseValidator): pass\n"))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	cls := res.Classes[0]
	assert.Equal(t, "UserValidator", cls.SimpleName)
	assert.Equal(t, []string{"BaseValidator"}, cls.Detail.Class.BaseClasses)

	refs := refsOfType(res, model.RelationExtends)
	require.Len(t, refs, 1)
	assert.Equal(t, "BaseValidator", refs[0].TargetQualifiedName)
	assert.Equal(t, cls.ID, refs[0].SourceEntityID)
}

func TestPythonDataclassFlags(t *testing.T) {
	code := `from dataclasses import dataclass

@dataclass(frozen=True)
class Point:
    x: int
    y: int
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "geometry.py", code))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	cls := res.Classes[0]
	assert.True(t, cls.Detail.Class.IsDataclass)
	assert.True(t, cls.Detail.Class.IsFrozen)
	assert.Contains(t, cls.Decorators, "dataclass")
}

func TestPythonMethodAttributes(t *testing.T) {
	code := `class UserService:
    def __init__(self, db):
        self.db = db

    @staticmethod
    def helper():
        pass

    @property
    def name(self):
        return self._name

    def _internal(self):
        pass
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "service.py", code))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	byName := map[string]*model.CodeEntity{}
	for _, m := range res.Methods {
		byName[m.SimpleName] = m
	}
	require.Contains(t, byName, "__init__")
	assert.True(t, byName["__init__"].Detail.Method.IsConstructor)
	assert.Equal(t, "UserService", byName["__init__"].Detail.Method.ParentClass)
	assert.Equal(t, "service.UserService.__init__", byName["__init__"].QualifiedName)

	require.Contains(t, byName, "helper")
	assert.True(t, byName["helper"].Detail.Method.IsStatic)

	require.Contains(t, byName, "name")
	assert.True(t, byName["name"].Detail.Method.IsProperty)

	require.Contains(t, byName, "_internal")
	assert.Equal(t, model.VisibilityPrivate, byName["_internal"].Visibility)
}

func TestPythonFunctionSignature(t *testing.T) {
	code := `async def fetch(url: str, timeout: float = 30.0) -> Response:
    yield chunk
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "client.py", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.True(t, fn.Detail.Function.IsAsync)
	assert.True(t, fn.Detail.Function.IsGenerator)
	assert.Equal(t, "Response", fn.Detail.Function.ReturnType)
	require.Len(t, fn.Detail.Function.Parameters, 2)
	assert.Equal(t, "url", fn.Detail.Function.Parameters[0].Name)
	assert.Equal(t, "str", fn.Detail.Function.Parameters[0].TypeAnnotation)
	assert.Equal(t, "30.0", fn.Detail.Function.Parameters[1].DefaultValue)
	assert.Contains(t, fn.Detail.Function.TypeReferences, "Response")
}

func TestPythonCallsAreDeduplicated(t *testing.T) {
	code := `def process():
    helper()
    helper()
    helper()
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "jobs.py", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	count := 0
	for _, c := range fn.Detail.Function.Calls {
		if c == "helper" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, refsOfType(res, model.RelationCalls), 1)
}

func TestPythonSelfCallResolvesToParent(t *testing.T) {
	code := `class Worker:
    def run(self):
        self.step()

    def step(self):
        pass
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "worker.py", code))
	require.NoError(t, err)

	refs := refsOfType(res, model.RelationCalls)
	require.Len(t, refs, 1)
	assert.Equal(t, "Worker.step", refs[0].TargetQualifiedName)
	assert.Empty(t, refs[0].ReceiverExpr)
}

func TestPythonInstantiationUsesInstantiates(t *testing.T) {
	code := `def create():
    validator = UserValidator()
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "factory.py", code))
	require.NoError(t, err)

	inst := refsOfType(res, model.RelationInstantiates)
	require.Len(t, inst, 1)
	assert.Equal(t, "UserValidator", inst[0].TargetQualifiedName)
	assert.Empty(t, refsOfType(res, model.RelationCalls))
}

func TestPythonPrintIsNoise(t *testing.T) {
	code := `def debug():
    print("hello")
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "dbg.py", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	assert.Empty(t, res.Functions[0].Detail.Function.Calls)
}

func TestPythonModuleConstants(t *testing.T) {
	code := `MAX_RETRIES = 3
timeout: float = 30.0
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "settings.py", code))
	require.NoError(t, err)

	require.Len(t, res.Variables, 2)
	byName := map[string]*model.CodeEntity{}
	for _, v := range res.Variables {
		byName[v.SimpleName] = v
	}
	assert.Equal(t, model.KindConstant, byName["MAX_RETRIES"].Kind)
	assert.True(t, byName["MAX_RETRIES"].Detail.Variable.IsConstant)
	assert.Equal(t, model.KindVariable, byName["timeout"].Kind)
	assert.Equal(t, "float", byName["timeout"].Detail.Variable.TypeAnnotation)
}

func TestPythonDocstring(t *testing.T) {
	code := `def greet(name):
    """Return a greeting."""
    return "hi " + name
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "hello.py", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	assert.Equal(t, "Return a greeting.", res.Functions[0].Docstring)
}

func TestPythonQualifiedNameNotDoubled(t *testing.T) {
	code := `class Runner:
    def go(self):
        pass
`
	res, err := NewPythonExtractor().Extract(writeSource(t, "runner.py", code))
	require.NoError(t, err)

	require.Len(t, res.Methods, 1)
	assert.Equal(t, "runner.Runner.go", res.Methods[0].QualifiedName)
}
