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

package pipeline

import (
	"strings"

	"github.com/mrcis/mrcis/pkg/model"
)

// maxEmbeddedSourceChars caps the source excerpt included in embedding text.
const maxEmbeddedSourceChars = 2000

// BuildEmbeddingText composes the text embedded for an entity:
//
//	<kind>: <qualified_name>
//	Signature: <signature>      (when present)
//	Description: <docstring>    (when present)
//	Code:
//	<source up to 2000 chars>   (when present)
func BuildEmbeddingText(e *model.CodeEntity) string {
	parts := []string{string(e.Kind) + ": " + e.QualifiedName}

	if e.Signature != "" {
		parts = append(parts, "Signature: "+e.Signature)
	}
	if e.Docstring != "" {
		parts = append(parts, "Description: "+e.Docstring)
	}
	if e.SourceText != "" {
		source := e.SourceText
		if len(source) > maxEmbeddedSourceChars {
			source = source[:maxEmbeddedSourceChars]
		}
		parts = append(parts, "Code:\n"+source)
	}
	return strings.Join(parts, "\n")
}
