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

package errors

import (
	"errors"
	"fmt"
)

// ErrReadOnly signals a write call on a non-writer instance. Callers detect
// it with errors.Is at the operation boundary.
var ErrReadOnly = errors.New("instance is read-only: writer lock not held")

// StorageError wraps a failed database or vector-store operation.
// Storage failures are retryable with backoff.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the failing operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// ExtractionError is a per-file extraction failure. Recoverable failures
// yield partial results and are not counted against the file; unrecoverable
// ones increment the file's failure count.
type ExtractionError struct {
	FilePath    string
	Recoverable bool
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.FilePath, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError wraps a per-file extraction failure.
func NewExtractionError(filePath string, recoverable bool, err error) *ExtractionError {
	return &ExtractionError{FilePath: filePath, Recoverable: recoverable, Err: err}
}

// EmbeddingError is an embedding provider failure. Network, timeout and rate
// limit failures are retryable; a dimension mismatch is not.
type EmbeddingError struct {
	Retryable bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// NewEmbeddingError wraps an embedding failure.
func NewEmbeddingError(retryable bool, err error) *EmbeddingError {
	return &EmbeddingError{Retryable: retryable, Err: err}
}

// IsRetryableEmbedding reports whether err is an embedding failure worth
// retrying.
func IsRetryableEmbedding(err error) bool {
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}
