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

// Package lock implements the single-writer instance lock.
//
// One writer instance (indexing, watching, resolving) coordinates with any
// number of read-only instances sharing a data directory through a lock file
// containing the writer's PID and a UTC timestamp on separate lines.
// Staleness is decided by PID liveness and timestamp age; replacement of a
// stale lock goes through a temp file and an atomic rename.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	lockFilename    = "mrcis.lock"
	lockTmpFilename = "mrcis.lock.tmp"
)

// Default timing parameters.
const (
	DefaultHeartbeatSeconds = 30
	DefaultStaleSeconds     = 90
)

// InstanceLock is a PID+timestamp file lock for single-writer coordination.
type InstanceLock struct {
	lockPath  string
	tmpPath   string
	heartbeat time.Duration
	stale     time.Duration
	logger    *slog.Logger

	mu   sync.Mutex
	held bool

	// overridable in tests
	pid          func() int
	processAlive func(pid int) bool
	now          func() time.Time
}

// Option customizes an InstanceLock.
type Option func(*InstanceLock)

// WithHeartbeat sets the heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(l *InstanceLock) { l.heartbeat = d }
}

// WithStaleThreshold sets the staleness threshold.
func WithStaleThreshold(d time.Duration) Option {
	return func(l *InstanceLock) { l.stale = d }
}

// New creates an InstanceLock for the given data directory.
func New(dataDirectory string, logger *slog.Logger, opts ...Option) *InstanceLock {
	if logger == nil {
		logger = slog.Default()
	}
	l := &InstanceLock{
		lockPath:     filepath.Join(dataDirectory, lockFilename),
		tmpPath:      filepath.Join(dataDirectory, lockTmpFilename),
		heartbeat:    DefaultHeartbeatSeconds * time.Second,
		stale:        DefaultStaleSeconds * time.Second,
		logger:       logger,
		pid:          os.Getpid,
		processAlive: processAlive,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string { return l.lockPath }

// HeartbeatInterval returns the configured heartbeat interval.
func (l *InstanceLock) HeartbeatInterval() time.Duration { return l.heartbeat }

// TryAcquire attempts to acquire the writer lock. It returns true if this
// instance now holds the lock.
func (l *InstanceLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true
	}

	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, werr := f.WriteString(l.content())
		cerr := f.Close()
		if werr == nil && cerr == nil {
			l.held = true
			l.logger.Debug("lock.acquired", "path", l.lockPath)
			return true
		}
		// Partial write: fall through to the stale-replacement path so the
		// malformed file gets rewritten.
	} else if !errors.Is(err, os.ErrExist) {
		l.logger.Warn("lock.create_failed", "path", l.lockPath, "err", err)
		return false
	}

	pid, ts, ok := readLockFile(l.lockPath)
	if !ok {
		// Malformed lock file: treat as stale.
		return l.replaceStaleLocked()
	}
	if l.isStale(pid, ts) {
		return l.replaceStaleLocked()
	}
	return false
}

// Release deletes the lock file. A missing file is not an error; releasing a
// lock that is not held is a no-op.
func (l *InstanceLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	if err := os.Remove(l.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("lock.release_failed", "path", l.lockPath, "err", err)
	} else {
		l.logger.Debug("lock.released")
	}
	l.held = false
}

// IsHeld reports whether this instance holds the lock.
func (l *InstanceLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Heartbeat rewrites the lock file with a fresh timestamp. No-op if the lock
// is not held.
func (l *InstanceLock) Heartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	if err := l.writeAtomic(); err != nil {
		l.logger.Warn("lock.heartbeat_failed", "err", err)
	}
}

// CheckAndPromote checks whether the current lock is stale and takes it over.
// It returns true if this instance promoted itself to writer.
func (l *InstanceLock) CheckAndPromote() bool {
	l.mu.Lock()

	if l.held {
		l.mu.Unlock()
		return false
	}

	pid, ts, ok := readLockFile(l.lockPath)
	if !ok {
		// Lock disappeared or is malformed; try a fresh acquisition.
		l.mu.Unlock()
		return l.TryAcquire()
	}
	defer l.mu.Unlock()

	if l.isStale(pid, ts) {
		return l.replaceStaleLocked()
	}
	return false
}

func (l *InstanceLock) isStale(pid int, ts time.Time) bool {
	if !l.processAlive(pid) {
		l.logger.Debug("lock.holder_dead", "pid", pid)
		return true
	}
	age := l.now().Sub(ts)
	if age > l.stale {
		l.logger.Debug("lock.timestamp_stale", "age_s", int(age.Seconds()), "threshold_s", int(l.stale.Seconds()))
		return true
	}
	return false
}

// replaceStaleLocked atomically replaces a stale lock. Caller holds l.mu.
func (l *InstanceLock) replaceStaleLocked() bool {
	if err := l.writeAtomic(); err != nil {
		l.logger.Warn("lock.replace_failed", "err", err)
		return false
	}
	l.held = true
	l.logger.Debug("lock.replaced_stale")
	return true
}

func (l *InstanceLock) content() string {
	return fmt.Sprintf("%d\n%s\n", l.pid(), l.now().Format(time.RFC3339Nano))
}

func (l *InstanceLock) writeAtomic() error {
	if err := os.WriteFile(l.tmpPath, []byte(l.content()), 0o644); err != nil {
		return err
	}
	return os.Rename(l.tmpPath, l.lockPath)
}

// readLockFile parses a lock file into (pid, timestamp). ok is false when the
// file is missing or malformed.
func readLockFile(path string) (pid int, ts time.Time, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, time.Time{}, false
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return 0, time.Time{}, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, time.Time{}, false
	}
	ts, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(lines[1]))
	if err != nil {
		ts, err = time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
		if err != nil {
			return 0, time.Time{}, false
		}
	}
	return pid, ts.UTC(), true
}

// processAlive checks PID existence with signal 0. EPERM means the process
// exists but belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
