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

import "github.com/mrcis/mrcis/pkg/model"

// FailurePolicy decides whether a failed file is retried or parked as a
// permanent failure.
type FailurePolicy struct {
	MaxRetries int
}

// NewFailurePolicy creates a policy with the given retry ceiling.
func NewFailurePolicy(maxRetries int) FailurePolicy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return FailurePolicy{MaxRetries: maxRetries}
}

// Determine maps the post-increment failure count to (shouldRetry, status).
func (p FailurePolicy) Determine(failureCount int) (bool, model.FileStatus) {
	if failureCount >= p.MaxRetries {
		return false, model.FilePermanentFailure
	}
	return true, model.FileFailed
}
