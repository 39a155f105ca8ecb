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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mrcis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sse", cfg.Server.Transport)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.True(t, cfg.Files.RespectGitignore)
	assert.Equal(t, 60, cfg.Indexing.ResolutionIntervalSeconds)
}

func TestLoadOverlaysFileValues(t *testing.T) {
	repoDir := t.TempDir()
	path := writeConfig(t, `
server:
  transport: stdio
  port: 9000
embedding:
  model: custom-embed
  dimensions: 256
repositories:
  - name: backend
    path: `+repoDir+`
    branch: develop
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "custom-embed", cfg.Embedding.Model)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	require.Len(t, cfg.Repositories, 1)
	assert.Equal(t, "develop", cfg.Repositories[0].Branch)
	// Untouched sections keep defaults.
	assert.Equal(t, 50, cfg.Indexing.BatchSize)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "server:\n  bogus_option: 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	err := applyEnvOverrides(cfg, []string{
		"MRCIS_EMBEDDING__MODEL=env-model",
		"MRCIS_SERVER__PORT=9999",
		"MRCIS_FILES__RESPECT_GITIGNORE=false",
		"MRCIS_INDEXING__WATCH_DEBOUNCE_MS=250",
		"UNRELATED=x",
	})
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.Embedding.Model)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.False(t, cfg.Files.RespectGitignore)
	assert.Equal(t, 250, cfg.Indexing.WatchDebounceMs)
}

func TestValidateRanges(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Server.Transport = "grpc" },
		func(c *Config) { c.Server.Port = 80 },
		func(c *Config) { c.Server.ShutdownTimeoutSeconds = 2 },
		func(c *Config) { c.Embedding.Provider = "custom" },
		func(c *Config) { c.Embedding.APIURL = "ftp://nope" },
		func(c *Config) { c.Embedding.Dimensions = 10 },
		func(c *Config) { c.Embedding.BatchSize = 0 },
		func(c *Config) { c.Storage.Backend = "postgres" },
		func(c *Config) { c.Files.MaxFileSizeKB = 0 },
		func(c *Config) { c.Parser.MaxChunkChars = 100 },
		func(c *Config) { c.Parser.ChunkOverlapChars = 900; c.Parser.MaxChunkChars = 500 },
		func(c *Config) { c.Indexing.MaxRetries = 0 },
		func(c *Config) { c.Indexing.ResolutionIntervalSeconds = 5 },
		func(c *Config) { c.Indexing.WatchDebounceMs = 50 },
		func(c *Config) { c.Logging.Level = "TRACE" },
		func(c *Config) { c.Logging.Format = "xml" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestValidateRepositoryPaths(t *testing.T) {
	cfg := Default()
	cfg.Repositories = []RepositoryConfig{{Name: "gone", Path: "/definitely/not/a/path"}}
	assert.Error(t, cfg.Validate())

	dir := t.TempDir()
	cfg = Default()
	cfg.Repositories = []RepositoryConfig{{Name: "ok", Path: dir}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "main", cfg.Repositories[0].Branch, "branch defaults to main")

	cfg = Default()
	cfg.Repositories = []RepositoryConfig{
		{Name: "dup", Path: dir},
		{Name: "dup", Path: dir},
	}
	assert.Error(t, cfg.Validate(), "repository names must be unique")
}

func TestDataDirectoryExpandsHome(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDirectory = "~/.mrcis-test"
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mrcis-test"), cfg.DataDirectory())
	assert.Equal(t, filepath.Join(home, ".mrcis-test", "mrcis.lock"), cfg.LockPath())
}
