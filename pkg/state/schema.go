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

package state

// Migrations are versioned integers applied in order; the schema_version
// table records the current version. Each migration is idempotent relative
// to the recorded version: it runs at most once per database.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "base schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS repositories (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL,
				last_indexed_commit TEXT NOT NULL DEFAULT '',
				last_indexed_at INTEGER,
				file_count INTEGER NOT NULL DEFAULT 0,
				entity_count INTEGER NOT NULL DEFAULT 0,
				relation_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				id TEXT PRIMARY KEY,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				path TEXT NOT NULL,
				checksum TEXT NOT NULL DEFAULT '',
				file_size INTEGER NOT NULL DEFAULT 0,
				language TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				failure_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				entity_count INTEGER NOT NULL DEFAULT 0,
				last_modified_at INTEGER NOT NULL DEFAULT 0,
				last_indexed_at INTEGER,
				UNIQUE (repository_id, path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_files_repo_status ON files(repository_id, status)`,
			`CREATE TABLE IF NOT EXISTS queue (
				file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
				repository_id TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				enqueued_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_order ON queue(priority DESC, enqueued_at ASC)`,
			`CREATE TABLE IF NOT EXISTS entities (
				id TEXT PRIMARY KEY,
				repository_id TEXT NOT NULL,
				file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				qualified_name TEXT NOT NULL,
				simple_name TEXT NOT NULL,
				kind TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				file_path TEXT NOT NULL DEFAULT '',
				line_start INTEGER NOT NULL DEFAULT 1,
				line_end INTEGER NOT NULL DEFAULT 1,
				col_start INTEGER NOT NULL DEFAULT 0,
				col_end INTEGER NOT NULL DEFAULT 0,
				signature TEXT NOT NULL DEFAULT '',
				docstring TEXT NOT NULL DEFAULT '',
				source_text TEXT NOT NULL DEFAULT '',
				visibility TEXT NOT NULL DEFAULT 'public',
				is_exported INTEGER NOT NULL DEFAULT 0,
				metadata TEXT NOT NULL DEFAULT '{}',
				vector_id TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_entities_qname ON entities(qualified_name)`,
			`CREATE INDEX IF NOT EXISTS idx_entities_sname ON entities(simple_name)`,
			`CREATE INDEX IF NOT EXISTS idx_entities_file ON entities(file_id)`,
			`CREATE INDEX IF NOT EXISTS idx_entities_repo ON entities(repository_id)`,
			`CREATE TABLE IF NOT EXISTS relations (
				id TEXT PRIMARY KEY,
				source_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
				source_qualified_name TEXT NOT NULL DEFAULT '',
				source_repository_id TEXT NOT NULL DEFAULT '',
				target_entity_id TEXT NOT NULL DEFAULT '',
				target_qualified_name TEXT NOT NULL,
				target_repository_id TEXT NOT NULL DEFAULT '',
				relation_type TEXT NOT NULL,
				line_number INTEGER NOT NULL DEFAULT 0,
				context_snippet TEXT NOT NULL DEFAULT '',
				weight REAL NOT NULL DEFAULT 1.0,
				is_cross_repository INTEGER NOT NULL DEFAULT 0,
				resolution_status TEXT NOT NULL DEFAULT 'resolved',
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_entity_id)`,
			`CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_entity_id)`,
			`CREATE TABLE IF NOT EXISTS pending_references (
				id TEXT PRIMARY KEY,
				source_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
				source_qualified_name TEXT NOT NULL DEFAULT '',
				source_repository_id TEXT NOT NULL DEFAULT '',
				target_qualified_name TEXT NOT NULL,
				relation_type TEXT NOT NULL,
				line_number INTEGER NOT NULL DEFAULT 0,
				context_snippet TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				resolved_target_id TEXT NOT NULL DEFAULT '',
				resolved_at INTEGER,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_references(status)`,
		},
	},
	{
		version: 2,
		name:    "receiver expressions",
		stmts: []string{
			`ALTER TABLE pending_references ADD COLUMN receiver_expr TEXT NOT NULL DEFAULT ''`,
		},
	},
}
