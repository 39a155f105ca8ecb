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

package model

import (
	"github.com/google/uuid"
)

// EntityKind tags a CodeEntity with its variant. Query code switches on the
// kind instead of relying on a type hierarchy.
type EntityKind string

// All supported entity kinds.
const (
	KindModule     EntityKind = "module"
	KindPackage    EntityKind = "package"
	KindClass      EntityKind = "class"
	KindInterface  EntityKind = "interface"
	KindFunction   EntityKind = "function"
	KindMethod     EntityKind = "method"
	KindVariable   EntityKind = "variable"
	KindConstant   EntityKind = "constant"
	KindParameter  EntityKind = "parameter"
	KindTypeAlias  EntityKind = "type_alias"
	KindEnum       EntityKind = "enum"
	KindEnumMember EntityKind = "enum_member"
	KindImport     EntityKind = "import"
	KindExport     EntityKind = "export"
	KindDocstring  EntityKind = "docstring"
	KindComment    EntityKind = "comment"

	// Configuration files (TOML, YAML, JSON)
	KindConfigSection EntityKind = "config_section"
	KindConfigKey     EntityKind = "config_key"

	// Database (SQL)
	KindTable  EntityKind = "table"
	KindColumn EntityKind = "column"
	KindIndex  EntityKind = "index"

	// Web (HTML, JSX)
	KindComponent EntityKind = "component"
	KindElement   EntityKind = "element"

	// Infrastructure (Docker, Rake)
	KindStage EntityKind = "stage"
	KindTask  EntityKind = "task"
)

// Visibility is the access modifier of an entity.
type Visibility string

// Visibility levels.
const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityInternal  Visibility = "internal"
)

// Parameter describes a function or method parameter. Parameters are not
// standalone entities; they travel with their owning function.
type Parameter struct {
	Name           string `json:"name"`
	TypeAnnotation string `json:"type_annotation,omitempty"`
	DefaultValue   string `json:"default_value,omitempty"`
	IsRest         bool   `json:"is_rest,omitempty"`
	IsOptional     bool   `json:"is_optional,omitempty"`
}

// ClassDetail carries class-variant attributes.
type ClassDetail struct {
	BaseClasses []string `json:"base_classes,omitempty"`
	Interfaces  []string `json:"interfaces,omitempty"`
	Mixins      []string `json:"mixins,omitempty"`
	IsAbstract  bool     `json:"is_abstract,omitempty"`
	IsDataclass bool     `json:"is_dataclass,omitempty"`
	IsFrozen    bool     `json:"is_frozen,omitempty"`
}

// FunctionDetail carries function-variant attributes. Methods reuse it
// alongside MethodDetail.
type FunctionDetail struct {
	Parameters  []Parameter `json:"parameters,omitempty"`
	ReturnType  string      `json:"return_type,omitempty"`
	IsAsync     bool        `json:"is_async,omitempty"`
	IsGenerator bool        `json:"is_generator,omitempty"`

	// Deduplicated callee names for calls/instantiates edges.
	Calls []string `json:"calls,omitempty"`

	// Type names referenced in annotations, for uses_type edges.
	TypeReferences []string `json:"type_references,omitempty"`
}

// MethodDetail carries method-variant attributes on top of FunctionDetail.
type MethodDetail struct {
	ParentClass   string `json:"parent_class"`
	IsStatic      bool   `json:"is_static,omitempty"`
	IsClassMethod bool   `json:"is_classmethod,omitempty"`
	IsProperty    bool   `json:"is_property,omitempty"`
	IsConstructor bool   `json:"is_constructor,omitempty"`
	IsDestructor  bool   `json:"is_destructor,omitempty"`
	Overrides     string `json:"overrides,omitempty"`
}

// ImportDetail carries import-variant attributes.
type ImportDetail struct {
	SourceModule    string   `json:"source_module"`
	ImportedSymbols []string `json:"imported_symbols,omitempty"`
	IsWildcard      bool     `json:"is_wildcard,omitempty"`
	IsRelative      bool     `json:"is_relative,omitempty"`
	RelativeLevel   int      `json:"relative_level,omitempty"`
	Alias           string   `json:"alias,omitempty"`
}

// VariableDetail carries variable-variant attributes.
type VariableDetail struct {
	TypeAnnotation string `json:"type_annotation,omitempty"`
	InitialValue   string `json:"initial_value,omitempty"`
	IsConstant     bool   `json:"is_constant,omitempty"`
	ParentClass    string `json:"parent_class,omitempty"`
}

// ModuleDetail carries module-variant attributes.
type ModuleDetail struct {
	PackageName string `json:"package_name,omitempty"`
	IsPackage   bool   `json:"is_package,omitempty"`
}

// TypeAliasDetail carries type-alias-variant attributes.
type TypeAliasDetail struct {
	AliasedType string `json:"aliased_type,omitempty"`
}

// EntityDetail bundles the per-variant attribute records. At most the records
// matching the entity kind are set; the rest stay nil and marshal away.
type EntityDetail struct {
	Class     *ClassDetail     `json:"class,omitempty"`
	Function  *FunctionDetail  `json:"function,omitempty"`
	Method    *MethodDetail    `json:"method,omitempty"`
	Import    *ImportDetail    `json:"import,omitempty"`
	Variable  *VariableDetail  `json:"variable,omitempty"`
	Module    *ModuleDetail    `json:"module,omitempty"`
	TypeAlias *TypeAliasDetail `json:"type_alias,omitempty"`
}

// IsZero reports whether no variant record is populated.
func (d EntityDetail) IsZero() bool {
	return d.Class == nil && d.Function == nil && d.Method == nil &&
		d.Import == nil && d.Variable == nil && d.Module == nil && d.TypeAlias == nil
}

// CodeEntity is a named, located element of source code.
//
// QualifiedName is the identifier an external reference must match.
// Uniqueness is not guaranteed (overloads and duplicates exist); resolution
// applies the resolver's tie-break rules.
type CodeEntity struct {
	ID           string `db:"id"`
	RepositoryID string `db:"repository_id"`
	FileID       string `db:"file_id"`

	QualifiedName string     `db:"qualified_name"`
	SimpleName    string     `db:"simple_name"`
	Kind          EntityKind `db:"kind"`
	Language      string     `db:"language"`
	FilePath      string     `db:"file_path"`

	LineStart int `db:"line_start"`
	LineEnd   int `db:"line_end"`
	ColStart  int `db:"col_start"`
	ColEnd    int `db:"col_end"`

	Signature  string `db:"signature"`
	Docstring  string `db:"docstring"`
	SourceText string `db:"source_text"`

	Visibility Visibility `db:"visibility"`
	IsExported bool       `db:"is_exported"`
	Decorators []string   `db:"-"`

	Detail EntityDetail `db:"-"`

	VectorID string `db:"vector_id"`
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
