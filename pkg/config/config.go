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

// Package config loads and validates the MRCIS configuration.
//
// Values compose in order: built-in defaults, then the YAML file, then
// environment overrides with prefix MRCIS_ and nested delimiter __
// (e.g. MRCIS_EMBEDDING__MODEL). The result is validated once at
// construction and treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ServerConfig configures the query server surface.
type ServerConfig struct {
	Transport              string `yaml:"transport"`
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding client.
type EmbeddingConfig struct {
	Provider       string  `yaml:"provider"`
	APIURL         string  `yaml:"api_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Dimensions     int     `yaml:"dimensions"`
	BatchSize      int     `yaml:"batch_size"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// StorageConfig configures the persisted state layout.
type StorageConfig struct {
	Backend         string `yaml:"backend"`
	DataDirectory   string `yaml:"data_directory"`
	VectorTableName string `yaml:"vector_table_name"`
	StateDBName     string `yaml:"state_db_name"`
}

// RepositoryConfig declares one repository to index.
type RepositoryConfig struct {
	Name            string   `yaml:"name"`
	Path            string   `yaml:"path"`
	Branch          string   `yaml:"branch"`
	DependsOn       []string `yaml:"depends_on"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// FilesConfig configures file inclusion across repositories.
type FilesConfig struct {
	IncludePatterns  []string `yaml:"include_patterns"`
	ExcludePatterns  []string `yaml:"exclude_patterns"`
	RespectGitignore bool     `yaml:"respect_gitignore"`
	MaxFileSizeKB    int      `yaml:"max_file_size_kb"`
}

// ParserConfig configures extraction. The chunking knobs are validated but
// not consumed by the current extractors.
type ParserConfig struct {
	MaxChunkChars     int  `yaml:"max_chunk_chars"`
	ChunkOverlapChars int  `yaml:"chunk_overlap_chars"`
	ExtractDocstrings bool `yaml:"extract_docstrings"`
	ExtractComments   bool `yaml:"extract_comments"`
}

// IndexingConfig configures pipeline, resolver and watcher behavior.
type IndexingConfig struct {
	BatchSize                 int `yaml:"batch_size"`
	MaxRetries                int `yaml:"max_retries"`
	RetryDelaySeconds         int `yaml:"retry_delay_seconds"`
	ResolutionIntervalSeconds int `yaml:"resolution_interval_seconds"`
	WatchDebounceMs           int `yaml:"watch_debounce_ms"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	File      string `yaml:"file"`
	Rotation  string `yaml:"rotation"`
	Retention string `yaml:"retention"`
}

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Storage      StorageConfig      `yaml:"storage"`
	Repositories []RepositoryConfig `yaml:"repositories"`
	Files        FilesConfig        `yaml:"files"`
	Parser       ParserConfig       `yaml:"parser"`
	Indexing     IndexingConfig     `yaml:"indexing"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:              "sse",
			Host:                   "127.0.0.1",
			Port:                   8765,
			ShutdownTimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai_compatible",
			APIURL:         "http://localhost:11434/v1",
			APIKey:         "ollama",
			Model:          "mxbai-embed-large",
			Dimensions:     1024,
			BatchSize:      100,
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			Backend:         "sqlite_vector",
			DataDirectory:   "~/.mrcis",
			VectorTableName: "code_vectors",
			StateDBName:     "state.db",
		},
		Files: FilesConfig{
			IncludePatterns: []string{
				"**/*.py",
				"**/*.ts",
				"**/*.tsx",
				"**/*.js",
				"**/*.jsx",
				"**/*.go",
				"**/*.rs",
				"**/*.rb",
				"**/*.java",
				"**/*.kt",
				"**/*.json",
				"**/*.yaml",
				"**/*.yml",
				"**/*.toml",
				"**/*.html",
				"**/*.htm",
				"**/*.md",
				"**/*.markdown",
				"**/Dockerfile",
				"**/Dockerfile.*",
				"**/Rakefile",
				"**/Gemfile",
				"**/*.rake",
			},
			ExcludePatterns: []string{
				"**/node_modules/**",
				"**/.git/**",
				"**/dist/**",
				"**/build/**",
				"**/__pycache__/**",
				"**/.venv/**",
				"**/vendor/**",
			},
			RespectGitignore: true,
			MaxFileSizeKB:    1024,
		},
		Parser: ParserConfig{
			MaxChunkChars:     4000,
			ChunkOverlapChars: 200,
			ExtractDocstrings: true,
			ExtractComments:   false,
		},
		Indexing: IndexingConfig{
			BatchSize:                 50,
			MaxRetries:                3,
			RetryDelaySeconds:         5,
			ResolutionIntervalSeconds: 60,
			WatchDebounceMs:           500,
		},
		Logging: LoggingConfig{
			Level:     "INFO",
			Format:    "console",
			Rotation:  "10 MB",
			Retention: "7 days",
		},
	}
}

// DataDirectory returns the storage data directory with ~ expanded.
func (c *Config) DataDirectory() string {
	return expandHome(c.Storage.DataDirectory)
}

// StateDBPath returns the path of the state database file.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDirectory(), c.Storage.StateDBName)
}

// VectorDBPath returns the path of the vector store database file.
func (c *Config) VectorDBPath() string {
	return filepath.Join(c.DataDirectory(), "vectors.db")
}

// LockPath returns the path of the instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDirectory(), "mrcis.lock")
}

// RepositoryByName returns the declared repository config, or nil.
func (c *Config) RepositoryByName(name string) *RepositoryConfig {
	for i := range c.Repositories {
		if c.Repositories[i].Name == name {
			return &c.Repositories[i]
		}
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Validate checks every recognized option against its allowed range.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "sse", "stdio":
	default:
		return fmt.Errorf("server.transport must be sse or stdio, got %q", c.Server.Transport)
	}
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1024, 65535], got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeoutSeconds < 5 || c.Server.ShutdownTimeoutSeconds > 300 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be in [5, 300], got %d", c.Server.ShutdownTimeoutSeconds)
	}

	if c.Embedding.Provider != "openai_compatible" {
		return fmt.Errorf("embedding.provider must be openai_compatible, got %q", c.Embedding.Provider)
	}
	if !strings.HasPrefix(c.Embedding.APIURL, "http://") && !strings.HasPrefix(c.Embedding.APIURL, "https://") {
		return fmt.Errorf("embedding.api_url must start with http:// or https://")
	}
	if c.Embedding.Dimensions < 64 || c.Embedding.Dimensions > 4096 {
		return fmt.Errorf("embedding.dimensions must be in [64, 4096], got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 1000 {
		return fmt.Errorf("embedding.batch_size must be in [1, 1000], got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.TimeoutSeconds < 5 || c.Embedding.TimeoutSeconds > 300 {
		return fmt.Errorf("embedding.timeout_seconds must be in [5, 300], got %v", c.Embedding.TimeoutSeconds)
	}

	switch c.Storage.Backend {
	case "sqlite_vector", "graph_backed":
	default:
		return fmt.Errorf("storage.backend must be sqlite_vector or graph_backed, got %q", c.Storage.Backend)
	}

	seen := make(map[string]bool, len(c.Repositories))
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if len(r.Name) < 1 || len(r.Name) > 100 {
			return fmt.Errorf("repositories[%d].name must be 1-100 characters", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("repository name %q declared twice", r.Name)
		}
		seen[r.Name] = true
		r.Path = expandHome(r.Path)
		info, err := os.Stat(r.Path)
		if err != nil {
			return fmt.Errorf("repository %q path does not exist: %s", r.Name, r.Path)
		}
		if !info.IsDir() {
			return fmt.Errorf("repository %q path must be a directory: %s", r.Name, r.Path)
		}
		if abs, err := filepath.Abs(r.Path); err == nil {
			r.Path = abs
		}
		if r.Branch == "" {
			r.Branch = "main"
		}
	}

	if c.Files.MaxFileSizeKB < 1 || c.Files.MaxFileSizeKB > 10240 {
		return fmt.Errorf("files.max_file_size_kb must be in [1, 10240], got %d", c.Files.MaxFileSizeKB)
	}

	if c.Parser.MaxChunkChars < 500 || c.Parser.MaxChunkChars > 32000 {
		return fmt.Errorf("parser.max_chunk_chars must be in [500, 32000], got %d", c.Parser.MaxChunkChars)
	}
	if c.Parser.ChunkOverlapChars < 0 || c.Parser.ChunkOverlapChars > 1000 {
		return fmt.Errorf("parser.chunk_overlap_chars must be in [0, 1000], got %d", c.Parser.ChunkOverlapChars)
	}
	if c.Parser.ChunkOverlapChars >= c.Parser.MaxChunkChars {
		return fmt.Errorf("parser.chunk_overlap_chars must be less than max_chunk_chars")
	}

	if c.Indexing.BatchSize < 1 || c.Indexing.BatchSize > 500 {
		return fmt.Errorf("indexing.batch_size must be in [1, 500], got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.MaxRetries < 1 || c.Indexing.MaxRetries > 10 {
		return fmt.Errorf("indexing.max_retries must be in [1, 10], got %d", c.Indexing.MaxRetries)
	}
	if c.Indexing.RetryDelaySeconds < 1 || c.Indexing.RetryDelaySeconds > 60 {
		return fmt.Errorf("indexing.retry_delay_seconds must be in [1, 60], got %d", c.Indexing.RetryDelaySeconds)
	}
	if c.Indexing.ResolutionIntervalSeconds < 10 || c.Indexing.ResolutionIntervalSeconds > 600 {
		return fmt.Errorf("indexing.resolution_interval_seconds must be in [10, 600], got %d", c.Indexing.ResolutionIntervalSeconds)
	}
	if c.Indexing.WatchDebounceMs < 100 || c.Indexing.WatchDebounceMs > 5000 {
		return fmt.Errorf("indexing.watch_debounce_ms must be in [100, 5000], got %d", c.Indexing.WatchDebounceMs)
	}

	switch c.Logging.Level {
	case "DEBUG", "INFO", "WARNING", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARNING, ERROR, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}

	return nil
}
