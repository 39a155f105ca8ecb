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

package watcher

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces events for the same path within a window: the last
// event type wins, and the flush fires once the path has been quiet for the
// full window.
type Debouncer struct {
	window time.Duration
	flush  func(FileEvent)

	mu      sync.Mutex
	pending map[string]pendingEvent
}

type pendingEvent struct {
	event FileEvent
	seen  time.Time
}

// NewDebouncer creates a debouncer that calls flush for each coalesced
// event.
func NewDebouncer(window time.Duration, flush func(FileEvent)) *Debouncer {
	return &Debouncer{
		window:  window,
		flush:   flush,
		pending: make(map[string]pendingEvent),
	}
}

// Run consumes events from in until ctx is cancelled, flushing paths whose
// debounce window elapsed. Remaining events are flushed on shutdown.
func (d *Debouncer) Run(ctx context.Context, in <-chan FileEvent) {
	tick := time.NewTicker(d.window / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flushReady(time.Time{})
			return
		case ev := <-in:
			d.mu.Lock()
			d.pending[ev.Path] = pendingEvent{event: ev, seen: time.Now()}
			d.mu.Unlock()
		case now := <-tick.C:
			d.flushReady(now.Add(-d.window))
		}
	}
}

// flushReady flushes entries last seen before cutoff. A zero cutoff flushes
// everything.
func (d *Debouncer) flushReady(cutoff time.Time) {
	d.mu.Lock()
	var ready []FileEvent
	for path, p := range d.pending {
		if cutoff.IsZero() || p.seen.Before(cutoff) {
			ready = append(ready, p.event)
			delete(d.pending, path)
		}
	}
	d.mu.Unlock()

	for _, ev := range ready {
		d.flush(ev)
	}
}

// PendingCount returns the number of paths awaiting flush.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
