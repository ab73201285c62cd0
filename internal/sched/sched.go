// Package sched provides small scheduling primitives with explicit
// cancellation: a reusable one-shot timer, a debouncer built on it, and a
// fixed-interval ticker. Every pending run can be cancelled by the owner,
// so shutdown never races a stray callback.
package sched

import (
	"sync"
	"time"
)

// Timer is a reusable one-shot timer. Schedule replaces any pending run,
// so at most one callback is armed at a time. Callbacks run on their own
// goroutine; a run that fires after Cancel or a newer Schedule is discarded.
type Timer struct {
	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	pending bool
}

// NewTimer creates an unarmed timer.
func NewTimer() *Timer {
	return &Timer{}
}

// Schedule arms fn to run after delay, replacing any pending run.
func (t *Timer) Schedule(delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	seq := t.seq

	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = true

	t.timer = time.AfterFunc(delay, func() {
		if !t.claim(seq) {
			return
		}
		fn()
	})
}

// claim marks the run for seq as fired. It returns false when a newer
// Schedule or a Cancel superseded that run.
func (t *Timer) claim(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seq != seq {
		return false
	}
	t.pending = false
	return true
}

// Cancel discards any pending run.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
}

// Pending reports whether a run is armed and has not fired yet.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Debouncer coalesces a burst of triggers into a single deferred run.
// Only the last trigger's callback fires, after the configured quiet period.
type Debouncer struct {
	timer *Timer
	delay time.Duration
}

// NewDebouncer creates a debouncer with the given quiet period. A delay of
// zero makes Trigger run callbacks synchronously.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		timer: NewTimer(),
		delay: delay,
	}
}

// Trigger schedules fn after the quiet period, superseding any pending
// callback from an earlier trigger.
func (d *Debouncer) Trigger(fn func()) {
	if d.delay <= 0 {
		d.timer.Cancel()
		fn()
		return
	}
	d.timer.Schedule(d.delay, fn)
}

// Cancel discards any pending callback.
func (d *Debouncer) Cancel() {
	d.timer.Cancel()
}

// Pending reports whether a callback is waiting out the quiet period.
func (d *Debouncer) Pending() bool {
	return d.timer.Pending()
}

// Ticker runs a callback at a fixed interval until stopped.
type Ticker struct {
	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	running  bool
}

// NewTicker creates a stopped ticker with the given interval.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Start begins invoking fn every interval. Redundant calls are no-ops.
func (t *Ticker) Start(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}(t.stop, t.done)
}

// Stop halts the ticker and waits for the loop to exit. Safe to call on a
// stopped ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stop := t.stop
	done := t.done
	t.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the ticker loop is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
