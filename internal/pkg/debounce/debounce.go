// Package debounce coalesces bursts of events into a single callback
// after a quiet period. Map pan/zoom fires many intermediate viewport
// events; recomputing the visible set per event is O(dataset size), so
// the viewport stream must collapse bursts rather than recompute each.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once per burst, after the quiet period elapses with
// no further Trigger calls. Safe for concurrent use.
type Debouncer struct {
	quiet time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Debouncer with the given quiet period.
func New(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet}
}

// Trigger schedules fn after the quiet period, replacing any previously
// scheduled call. Only the fn of the last Trigger in a burst runs.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
