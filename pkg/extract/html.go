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
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/mrcis/mrcis/pkg/model"
)

// HTMLExtractor extracts element ids, CSS classes, script sources, link
// hrefs and data-* attributes as variables with id:/class:/script:/link:/
// data: qualified-name prefixes. The tokenizer exposes no positions, so all
// entities carry line 1.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTML extractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

// SupportedExtensions returns .html and .htm.
func (e *HTMLExtractor) SupportedExtensions() []string { return []string{".html", ".htm"} }

// Supports reports whether the file is HTML.
func (e *HTMLExtractor) Supports(path string) bool {
	return hasAnyExtension(path, e.SupportedExtensions())
}

// Extract tokenizes the document and collects referenced names.
func (e *HTMLExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "html")

	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := z.Token()
		tag := token.Data

		for _, attr := range token.Attr {
			switch {
			case attr.Key == "id" && attr.Val != "":
				addHTMLRef(b, attr.Val, "id:"+attr.Val)
			case attr.Key == "class" && attr.Val != "":
				for _, cls := range strings.Fields(attr.Val) {
					addHTMLRef(b, cls, "class:"+cls)
				}
			case tag == "script" && attr.Key == "src" && attr.Val != "":
				addHTMLRef(b, attr.Val, "script:"+attr.Val)
			case tag == "link" && attr.Key == "href" && attr.Val != "":
				addHTMLRef(b, attr.Val, "link:"+attr.Val)
			case tag == "a" && attr.Key == "href" && attr.Val != "":
				// Fragment-only and javascript: links are not references.
				if !strings.HasPrefix(attr.Val, "#") && !strings.HasPrefix(attr.Val, "javascript:") {
					addHTMLRef(b, attr.Val, "link:"+attr.Val)
				}
			case strings.HasPrefix(attr.Key, "data-") && attr.Val != "":
				addHTMLRef(b, attr.Key, "data:"+attr.Key)
			}
		}
	}
	return b.finish(), nil
}

func addHTMLRef(b *builder, name, qualified string) {
	v := b.entity(model.KindVariable, name, qualified, 1, 1)
	v.Detail.Variable = &model.VariableDetail{}
	b.res.Variables = append(b.res.Variables, v)
}
