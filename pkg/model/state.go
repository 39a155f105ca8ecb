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

import "time"

// RepositoryStatus is the lifecycle state of a configured repository.
type RepositoryStatus string

// Repository lifecycle states.
const (
	RepoPending  RepositoryStatus = "pending"
	RepoIndexing RepositoryStatus = "indexing"
	RepoWatching RepositoryStatus = "watching"
	RepoError    RepositoryStatus = "error"
	RepoPaused   RepositoryStatus = "paused"
)

// FileStatus is the lifecycle state of a tracked file.
type FileStatus string

// File lifecycle states.
const (
	FilePending          FileStatus = "pending"
	FileProcessing       FileStatus = "processing"
	FileIndexed          FileStatus = "indexed"
	FileFailed           FileStatus = "failed"
	FilePermanentFailure FileStatus = "permanent_failure"
	FileDeleted          FileStatus = "deleted"
)

// Repository is the persisted state record of a configured repository.
// Identity comes from configuration; this record only stores derived state.
type Repository struct {
	ID     string           `db:"id"`
	Name   string           `db:"name"`
	Status RepositoryStatus `db:"status"`

	LastIndexedCommit string     `db:"last_indexed_commit"`
	LastIndexedAt     *time.Time `db:"last_indexed_at"`

	FileCount     int `db:"file_count"`
	EntityCount   int `db:"entity_count"`
	RelationCount int `db:"relation_count"`

	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
}

// IndexedFile tracks one file of a repository. Path is relative to the
// repository root with forward slashes and is unique within the repository.
type IndexedFile struct {
	ID           string `db:"id"`
	RepositoryID string `db:"repository_id"`
	Path         string `db:"path"`

	Checksum string `db:"checksum"`
	FileSize int64  `db:"file_size"`
	Language string `db:"language"`

	Status       FileStatus `db:"status"`
	FailureCount int        `db:"failure_count"`
	ErrorMessage string     `db:"error_message"`
	EntityCount  int        `db:"entity_count"`

	LastModifiedAt time.Time  `db:"last_modified_at"`
	LastIndexedAt  *time.Time `db:"last_indexed_at"`
}

// QueueEntry is one row of the indexing queue. Entries are dequeued by
// (priority DESC, enqueued_at ASC) and removed on dequeue.
type QueueEntry struct {
	FileID       string    `db:"file_id"`
	RepositoryID string    `db:"repository_id"`
	Priority     int       `db:"priority"`
	EnqueuedAt   time.Time `db:"enqueued_at"`
}
