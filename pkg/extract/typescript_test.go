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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/pkg/model"
)

func TestTypeScriptSimpleFunctionCall(t *testing.T) {
	code := `
function main() {
    processData();
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.Contains(t, fn.Detail.Function.Calls, "processData")

	refs := refsOfType(res, model.RelationCalls)
	require.Len(t, refs, 1)
	assert.Equal(t, "processData", refs[0].TargetQualifiedName)
	assert.Equal(t, fn.ID, refs[0].SourceEntityID)
	assert.Equal(t, fn.QualifiedName, refs[0].SourceQualifiedName)
}

func TestTypeScriptThisCallResolvesToClass(t *testing.T) {
	code := `
class MyClass {
    run(): void {
        this.helper();
    }
    helper(): void {
    }
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

	require.NotEmpty(t, res.Methods)
	run := res.Methods[0]
	assert.Contains(t, run.Detail.Function.Calls, "MyClass.helper")

	refs := refsOfType(res, model.RelationCalls)
	found := false
	for _, r := range refs {
		if r.TargetQualifiedName == "MyClass.helper" {
			found = true
			assert.Empty(t, r.ReceiverExpr)
		}
	}
	assert.True(t, found)
}

func TestTypeScriptNewExpressionInstantiates(t *testing.T) {
	code := `
function create() {
    const obj = new MyClass();
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.Contains(t, fn.Detail.Function.Calls, "MyClass")

	inst := refsOfType(res, model.RelationInstantiates)
	require.Len(t, inst, 1)
	assert.Equal(t, "MyClass", inst[0].TargetQualifiedName)
	assert.Empty(t, refsOfType(res, model.RelationCalls))
}

func TestTypeScriptConsoleMethodsSkipped(t *testing.T) {
	code := `
function debug() {
    console.log("hello");
    console.error("oops");
    console.warn("warning");
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	assert.Empty(t, res.Functions[0].Detail.Function.Calls)
	assert.Empty(t, refsOfType(res, model.RelationCalls))
	assert.Empty(t, refsOfType(res, model.RelationInstantiates))
}

func TestTypeScriptMethodQualifiedNameNotDoubled(t *testing.T) {
	code := `
class MyClass {
    myMethod(): void {
    }
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Methods, 1)
	m := res.Methods[0]
	assert.Equal(t, "test_module.MyClass.myMethod", m.QualifiedName)
}

func TestTypeScriptNoDuplicateCalls(t *testing.T) {
	code := `
function process() {
    helper();
    helper();
    helper();
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

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

func TestTypeScriptCallsPopulateEntityCallsList(t *testing.T) {
	code := `
function orchestrate() {
    fetchData();
    transform();
    saveResults();
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "test_module.ts", code))
	require.NoError(t, err)

	fn := res.Functions[0]
	assert.ElementsMatch(t, []string{"fetchData", "transform", "saveResults"}, fn.Detail.Function.Calls)
}

func TestTypeScriptReceiverExpressions(t *testing.T) {
	code := `
function handle(ctx: Context) {
    ctx.redis.get();
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "handlers.ts", code))
	require.NoError(t, err)

	refs := refsOfType(res, model.RelationCalls)
	require.Len(t, refs, 1)
	assert.Equal(t, "ctx.redis.get", refs[0].TargetQualifiedName)
	assert.Equal(t, "ctx.redis", refs[0].ReceiverExpr)
}

func TestTypeScriptInterfaceAndTypeAlias(t *testing.T) {
	code := `
export interface Shape extends Drawable {
    area(): number;
}

export type Callback = (err: Error) => void;
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "shapes.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Interfaces, 1)
	iface := res.Interfaces[0]
	assert.Equal(t, "Shape", iface.SimpleName)
	assert.True(t, iface.IsExported)
	assert.Equal(t, []string{"Drawable"}, iface.Detail.Class.BaseClasses)

	require.Len(t, res.TypeAliases, 1)
	assert.Equal(t, "Callback", res.TypeAliases[0].SimpleName)

	extRefs := refsOfType(res, model.RelationExtends)
	require.Len(t, extRefs, 1)
	assert.Equal(t, "Drawable", extRefs[0].TargetQualifiedName)
}

func TestTypeScriptClassExtendsAndImplements(t *testing.T) {
	code := `
export class Circle extends Shape implements Drawable, Serializable {
    radius: number;
}
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "circle.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	cls := res.Classes[0]
	assert.True(t, cls.IsExported)
	assert.Equal(t, []string{"Shape"}, cls.Detail.Class.BaseClasses)
	assert.ElementsMatch(t, []string{"Drawable", "Serializable"}, cls.Detail.Class.Interfaces)

	assert.Len(t, refsOfType(res, model.RelationExtends), 1)
	assert.Len(t, refsOfType(res, model.RelationImplements), 2)
}

func TestTypeScriptImports(t *testing.T) {
	code := `
import { readFile, writeFile } from 'fs';
import express from 'express';
import * as path from 'path';
`
	res, err := NewTypeScriptExtractor().Extract(writeSource(t, "app.ts", code))
	require.NoError(t, err)

	require.Len(t, res.Imports, 3)

	named := res.Imports[0]
	assert.Equal(t, "fs", named.Detail.Import.SourceModule)
	assert.ElementsMatch(t, []string{"readFile", "writeFile"}, named.Detail.Import.ImportedSymbols)

	wildcard := res.Imports[2]
	assert.True(t, wildcard.Detail.Import.IsWildcard)
	assert.Equal(t, "path", wildcard.Detail.Import.Alias)

	targets := map[string]bool{}
	for _, r := range refsOfType(res, model.RelationImports) {
		targets[r.TargetQualifiedName] = true
	}
	assert.True(t, targets["fs.readFile"])
	assert.True(t, targets["fs.writeFile"])
	assert.True(t, targets["express.express"] || targets["express"], "default import references its module")
}

func TestJavaScriptArrowFunction(t *testing.T) {
	code := `
const add = (a, b) => {
    return combine(a, b);
};
`
	res, err := NewJavaScriptExtractor().Extract(writeSource(t, "math.js", code))
	require.NoError(t, err)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.Equal(t, "add", fn.SimpleName)
	assert.Contains(t, fn.Detail.Function.Calls, "combine")
}

func TestJavaScriptHasNoInterfaces(t *testing.T) {
	code := `
class Widget {
    render() {
        this.draw();
    }
    draw() {}
}
`
	res, err := NewJavaScriptExtractor().Extract(writeSource(t, "widget.js", code))
	require.NoError(t, err)

	assert.Empty(t, res.Interfaces)
	require.NotEmpty(t, res.Methods)
	assert.Equal(t, "javascript", res.Language)
}
