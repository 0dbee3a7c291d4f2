// Package persist saves the workspace to the server: a coalescing debouncer
// for edit-driven saves and the Saver that performs them.
package persist

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long edits must pause before a save runs.
const DefaultQuietPeriod = time.Second

// Timer is the subset of *time.Timer the debouncer uses.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

// Debouncer runs fn once after Trigger stops being called for the quiet
// period. Each Trigger restarts the period.
type Debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	clock   Clock
	fn      func()
	timer   Timer
	gen     uint64
	pending bool
	stopped bool
}

// NewDebouncer returns a debouncer. A nil clock means RealClock and a
// non-positive quiet period means DefaultQuietPeriod.
func NewDebouncer(quiet time.Duration, clock Clock, fn func()) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if clock == nil {
		clock = RealClock
	}
	return &Debouncer{quiet: quiet, clock: clock, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush runs fn now if a run was scheduled, and reports whether it did.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	d.cancelLocked()
	d.mu.Unlock()
	d.fn()
	return true
}

// Cancel drops a scheduled run.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()
}

// Stop cancels any scheduled run and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.cancelLocked()
	d.stopped = true
	d.mu.Unlock()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
}
