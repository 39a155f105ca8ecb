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

package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T, opts ...Option) *InstanceLock {
	t.Helper()
	return New(t.TempDir(), nil, opts...)
}

func TestTryAcquireCreatesLockFile(t *testing.T) {
	l := newTestLock(t)

	require.True(t, l.TryAcquire())
	assert.True(t, l.IsHeld())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), fmt.Sprintf("%d\n", os.Getpid()))
}

func TestTryAcquireIsIdempotentWhenHeld(t *testing.T) {
	l := newTestLock(t)

	require.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
}

func TestSecondInstanceCannotAcquireLiveLock(t *testing.T) {
	dir := t.TempDir()
	first := New(dir, nil)
	second := New(dir, nil)

	require.True(t, first.TryAcquire())
	assert.False(t, second.TryAcquire())
	assert.False(t, second.IsHeld())
}

func TestAcquireReplacesMalformedLock(t *testing.T) {
	l := newTestLock(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("not a lock"), 0o644))

	assert.True(t, l.TryAcquire())
	assert.True(t, l.IsHeld())
}

func TestAcquireReplacesDeadHolderLock(t *testing.T) {
	l := newTestLock(t)
	l.processAlive = func(int) bool { return false }

	content := fmt.Sprintf("999999\n%s\n", time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, os.WriteFile(l.Path(), []byte(content), 0o644))

	assert.True(t, l.TryAcquire())
}

func TestAcquireReplacesAgedLockEvenIfHolderAlive(t *testing.T) {
	l := newTestLock(t, WithStaleThreshold(90*time.Second))
	l.processAlive = func(int) bool { return true }

	old := time.Now().UTC().Add(-5 * time.Minute).Format(time.RFC3339Nano)
	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), old)
	require.NoError(t, os.WriteFile(l.Path(), []byte(content), 0o644))

	assert.True(t, l.TryAcquire())
}

func TestAcquireRespectsFreshLiveLock(t *testing.T) {
	l := newTestLock(t)
	l.processAlive = func(int) bool { return true }

	content := fmt.Sprintf("%d\n%s\n", os.Getpid()+1, time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, os.WriteFile(l.Path(), []byte(content), 0o644))

	assert.False(t, l.TryAcquire())
}

func TestReleaseDeletesFile(t *testing.T) {
	l := newTestLock(t)
	require.True(t, l.TryAcquire())

	l.Release()
	assert.False(t, l.IsHeld())
	_, err := os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseMissingFileIsNotAnError(t *testing.T) {
	l := newTestLock(t)
	require.True(t, l.TryAcquire())
	require.NoError(t, os.Remove(l.Path()))

	l.Release()
	assert.False(t, l.IsHeld())
}

func TestHeartbeatRefreshesTimestamp(t *testing.T) {
	l := newTestLock(t)
	require.True(t, l.TryAcquire())

	before, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	l.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }
	l.Heartbeat()

	after, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.NotEqual(t, string(before), string(after))
}

func TestHeartbeatNoOpWhenNotHeld(t *testing.T) {
	l := newTestLock(t)
	l.Heartbeat()
	_, err := os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestCheckAndPromoteTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	reader := New(dir, nil)
	reader.processAlive = func(int) bool { return false }

	content := fmt.Sprintf("999999\n%s\n", time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFilename), []byte(content), 0o644))

	assert.True(t, reader.CheckAndPromote())
	assert.True(t, reader.IsHeld())
}

func TestCheckAndPromoteRespectsLiveLock(t *testing.T) {
	dir := t.TempDir()
	reader := New(dir, nil)
	reader.processAlive = func(int) bool { return true }

	content := fmt.Sprintf("%d\n%s\n", os.Getpid()+1, time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFilename), []byte(content), 0o644))

	assert.False(t, reader.CheckAndPromote())
}

func TestCheckAndPromoteAcquiresWhenLockMissing(t *testing.T) {
	l := newTestLock(t)
	assert.True(t, l.CheckAndPromote())
	assert.True(t, l.IsHeld())
}

func TestCheckAndPromoteNoOpWhenAlreadyHeld(t *testing.T) {
	l := newTestLock(t)
	require.True(t, l.TryAcquire())
	assert.False(t, l.CheckAndPromote())
}

func TestReadLockFileTolerantOfRFC3339(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFilename)
	require.NoError(t, os.WriteFile(path, []byte("1234\n2025-06-01T10:00:00Z\n"), 0o644))

	pid, ts, ok := readLockFile(path)
	require.True(t, ok)
	assert.Equal(t, 1234, pid)
	assert.Equal(t, 2025, ts.Year())
}
