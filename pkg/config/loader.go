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

package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override configuration values.
const EnvPrefix = "MRCIS_"

// envNestedDelimiter separates section from key in an override name,
// e.g. MRCIS_EMBEDDING__MODEL.
const envNestedDelimiter = "__"

// Load builds a Config from defaults, an optional YAML file, and environment
// overrides, then validates it. Unknown fields in the file are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err.Error() != "EOF" {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.Environ()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays MRCIS_SECTION__KEY variables onto cfg. The
// overrides are expressed as a YAML fragment so scalar coercion (ints, bools,
// floats) follows the same rules as file values.
func applyEnvOverrides(cfg *Config, environ []string) error {
	overlay := make(map[string]any)

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		keyPath := strings.TrimPrefix(name, EnvPrefix)
		segments := strings.Split(keyPath, envNestedDelimiter)

		node := overlay
		for i, seg := range segments {
			key := strings.ToLower(seg)
			if i == len(segments)-1 {
				node[key] = &yaml.Node{Kind: yaml.ScalarNode, Value: value}
				break
			}
			child, exists := node[key].(map[string]any)
			if !exists {
				child = make(map[string]any)
				node[key] = child
			}
			node = child
		}
	}

	if len(overlay) == 0 {
		return nil
	}

	data, err := yaml.Marshal(overlay)
	if err != nil {
		return fmt.Errorf("encode environment overrides: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}
