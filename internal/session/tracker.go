// Package session tracks the scan session: whether a sweep is running,
// its counters, and the start epoch that elapsed time is derived from.
// The server is authoritative; local state only bridges the gap until
// the next status event arrives.
package session

import (
	"math"
	"sync"
	"time"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/metrics"
)

// Snapshot is a point-in-time copy of the session for display. Elapsed
// is derived from the epoch while running and frozen at the moment a
// stop lands.
type Snapshot struct {
	Running      bool
	Mode         string
	TotalScanned int64
	TotalFound   int64
	CurrentRate  float64
	TargetTotal  int64
	TargetDone   int64
	Elapsed      time.Duration
}

// HasProgress reports whether a done/total progress pair is known.
func (s Snapshot) HasProgress() bool {
	return s.TargetTotal > 0
}

// Percent returns the rounded completion percentage, valid only when
// HasProgress is true.
func (s Snapshot) Percent() int {
	if s.TargetTotal <= 0 {
		return 0
	}
	return int(math.Round(float64(s.TargetDone) / float64(s.TargetTotal) * 100))
}

// Tracker owns the session state. Elapsed time is never stored; it is
// recomputed from the epoch, and the epoch itself is rebuilt from the
// server-reported elapsed seconds on every status resync so a restart
// or reconnect cannot skew the clock.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	running     bool
	mode        string
	scanned     int64
	found       int64
	rate        float64
	targetTotal int64
	targetDone  int64

	epoch       time.Time
	lastElapsed time.Duration
}

// New creates an idle tracker on the wall clock.
func New() *Tracker {
	return NewWithClock(time.Now)
}

// NewWithClock creates a tracker with an injected clock for tests.
func NewWithClock(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// BeginLocal transitions to running after a successful scan start,
// before the first status event confirms it. Counters restart from
// zero and the epoch is the local now. totalScans seeds the progress
// denominator in target mode; pass zero for a random sweep.
func (t *Tracker) BeginLocal(mode string, totalScans int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = true
	t.mode = mode
	t.scanned = 0
	t.found = 0
	t.rate = 0
	t.targetDone = 0
	t.targetTotal = 0
	if mode == api.ModeTarget {
		t.targetTotal = totalScans
	}
	t.epoch = t.now()
	t.lastElapsed = 0

	metrics.SetScanRunning(true)
}

// MarkStopped transitions to idle after an acknowledged stop. Elapsed
// freezes at the stop moment; counters stay for display.
func (t *Tracker) MarkStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.freezeElapsedLocked()
	t.running = false

	metrics.SetScanRunning(false)
}

// ApplyStatus overwrites local belief with a server status. Stream
// pushes omit elapsed seconds; only statuses carrying it move the
// epoch, so a push can never clobber a freshly resynced clock.
func (t *Tracker) ApplyStatus(status *api.ScanStatus) {
	if status == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wasRunning := t.running

	t.running = status.Running
	if status.Mode != "" {
		t.mode = status.Mode
	}
	t.scanned = status.TotalScanned
	t.found = status.TotalFound
	t.rate = status.CurrentRate
	t.targetTotal = status.TargetTotal
	t.targetDone = status.TargetDone

	if status.ElapsedSeconds != nil {
		elapsed := time.Duration(*status.ElapsedSeconds) * time.Second
		t.epoch = t.now().Add(-elapsed)
		t.lastElapsed = elapsed
	} else if wasRunning && !status.Running {
		t.freezeElapsedLocked()
	}

	metrics.SetScanRunning(status.Running)
	metrics.GetGlobalMetrics().SetSessionCounters(status.TotalScanned,
		status.TotalFound, status.CurrentRate)
}

// Reset zeroes the session counters after a results clear. Running
// state, mode and the epoch stay as they are: clearing stored results
// does not end a sweep, and only a status event may change that belief.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.scanned = 0
	t.found = 0
	t.rate = 0

	metrics.GetGlobalMetrics().SetSessionCounters(0, 0, 0)
}

// Running reports whether a sweep is believed active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Snapshot derives the current display state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		Running:      t.running,
		Mode:         t.mode,
		TotalScanned: t.scanned,
		TotalFound:   t.found,
		CurrentRate:  t.rate,
		TargetTotal:  t.targetTotal,
		TargetDone:   t.targetDone,
		Elapsed:      t.elapsedLocked(),
	}
}

// elapsedLocked derives elapsed time under the lock.
func (t *Tracker) elapsedLocked() time.Duration {
	if !t.running {
		return t.lastElapsed
	}
	if t.epoch.IsZero() {
		return 0
	}
	elapsed := t.now().Sub(t.epoch)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// freezeElapsedLocked pins the elapsed display at the current value.
func (t *Tracker) freezeElapsedLocked() {
	if t.running && !t.epoch.IsZero() {
		t.lastElapsed = t.now().Sub(t.epoch)
		if t.lastElapsed < 0 {
			t.lastElapsed = 0
		}
	}
}
