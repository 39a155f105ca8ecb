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
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mrcis/mrcis/pkg/model"
)

// DockerfileExtractor extracts build stages (FROM ... AS name) and run
// instructions as task entities from Dockerfiles.
type DockerfileExtractor struct{}

// NewDockerfileExtractor creates a Dockerfile extractor.
func NewDockerfileExtractor() *DockerfileExtractor { return &DockerfileExtractor{} }

// SupportedExtensions returns nothing; Dockerfiles match by name.
func (e *DockerfileExtractor) SupportedExtensions() []string { return nil }

// Supports accepts Dockerfile and Dockerfile.<variant>.
func (e *DockerfileExtractor) Supports(path string) bool {
	base := filepath.Base(path)
	return base == "Dockerfile" || strings.HasPrefix(base, "Dockerfile.")
}

var (
	dockerFromPattern = regexp.MustCompile(`(?i)^\s*FROM\s+(\S+)(?:\s+AS\s+(\S+))?`)
	dockerTaskPattern = regexp.MustCompile(`(?i)^\s*(RUN|CMD|ENTRYPOINT|COPY|ADD)\s+(.+)$`)
)

// Extract parses the Dockerfile instruction by instruction.
func (e *DockerfileExtractor) Extract(ctx Context) (*model.ExtractionResult, error) {
	content, err := ctx.Read()
	if err != nil {
		return nil, err
	}
	b := newBuilder(ctx, "dockerfile")
	lines := sourceLines(content)

	var (
		currentStage *model.CodeEntity
		stageIndex   int
		taskIndex    int
	)

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if m := dockerFromPattern.FindStringSubmatch(line); m != nil {
			name := m[2]
			if name == "" {
				name = fmt.Sprintf("stage_%d", stageIndex)
			}
			stage := b.entity(model.KindStage, name, name, lineNo, lineNo)
			stage.Detail.Module = &model.ModuleDetail{PackageName: m[1]}
			b.res.Modules = append(b.res.Modules, stage)
			if currentStage != nil {
				currentStage.LineEnd = lineNo - 1
			}
			currentStage = stage
			stageIndex++
			taskIndex = 0
			continue
		}

		if m := dockerTaskPattern.FindStringSubmatch(line); m != nil {
			instr := strings.ToLower(m[1])
			if instr != "run" && instr != "cmd" && instr != "entrypoint" {
				continue
			}
			name := fmt.Sprintf("%s_%d", instr, taskIndex)
			taskIndex++

			// Continuation lines extend the task.
			end := lineNo
			for end < len(lines) && strings.HasSuffix(strings.TrimSpace(lines[end-1]), "\\") {
				end++
			}

			qname := name
			if currentStage != nil {
				qname = qualify(".", currentStage.QualifiedName, name)
			}
			task := b.entity(model.KindTask, name, qname, lineNo, end)
			task.SourceText = strings.Join(lines[lineNo-1:min(end, len(lines))], "\n")
			task.Detail.Function = &model.FunctionDetail{}
			b.res.Functions = append(b.res.Functions, task)
			if currentStage != nil {
				b.contains(currentStage, task)
			}
			i = end - 1
		}
	}
	if currentStage != nil {
		currentStage.LineEnd = len(lines)
	}

	return b.finish(), nil
}
