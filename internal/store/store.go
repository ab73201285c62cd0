// Package store holds the result window: the bounded, ordered slice of
// results currently on display. The window has one producer of truth
// at a time, tracked by an explicit mode tag: live tail (stream pushes
// land at the head) or snapshot (a filtered page owns the contents and
// pushes leave it alone).
package store

import (
	"sync"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/metrics"
)

// Mode tags the window's current producer of truth.
type Mode int

const (
	// ModeLiveTail: stream pushes populate the window newest-first.
	ModeLiveTail Mode = iota
	// ModeSnapshot: a filtered page owns the window; pushes are
	// counted but not displayed.
	ModeSnapshot
)

func (m Mode) String() string {
	switch m {
	case ModeLiveTail:
		return "live_tail"
	case ModeSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

const defaultCapacity = 50

// Store is the serialized entry point for both window producers. All
// methods are safe for concurrent use; each mutation is atomic with
// respect to readers.
type Store struct {
	mu       sync.Mutex
	capacity int
	mode     Mode
	window   []api.Result
	count    int
	received uint64
}

// New creates a window with the given capacity, which should equal the
// page size so pull pages and the live tail display the same amount.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		capacity: capacity,
		mode:     ModeLiveTail,
		window:   make([]api.Result, 0, capacity),
	}
}

// PushResult offers a streamed result to the window and reports
// whether the display changed. In live-tail mode the result lands at
// the head, replacing any older entry with the same id, and the oldest
// entry is evicted once capacity is exceeded. In snapshot mode the
// window is left untouched so an active filter view cannot be
// corrupted, but the push still counts toward the received total.
func (s *Store) PushResult(r api.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received++

	if s.mode == ModeSnapshot {
		return false
	}

	// same id means the same logical entity: drop the stale copy
	for i := range s.window {
		if s.window[i].ID == r.ID {
			s.window = append(s.window[:i], s.window[i+1:]...)
			break
		}
	}

	s.window = append([]api.Result{r}, s.window...)
	if len(s.window) > s.capacity {
		s.window = s.window[:s.capacity]
		metrics.IncrementWindowEvictions()
	}

	metrics.IncrementWindowPushes()
	metrics.SetWindowSize(len(s.window))
	return true
}

// LoadSnapshot atomically replaces the window with one fetched page
// and records the server-reported count for pagination display. tail
// marks a default-query page: the window returns to live-tail mode and
// subsequent pushes land on top of the loaded rows. A non-default page
// pins the window to snapshot mode. Loading the same page twice yields
// an identical window.
func (s *Store) LoadSnapshot(results []api.Result, totalCount int, tail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(results) > s.capacity {
		results = results[:s.capacity]
	}

	s.window = make([]api.Result, len(results))
	copy(s.window, results)
	s.count = totalCount

	if tail {
		s.mode = ModeLiveTail
	} else {
		s.mode = ModeSnapshot
	}

	metrics.IncrementWindowSnapshots(s.mode.String())
	metrics.SetWindowSize(len(s.window))
}

// Reset empties the window and returns to live-tail mode. Used when
// stored results are cleared server-side.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window = s.window[:0]
	s.count = 0
	s.received = 0
	s.mode = ModeLiveTail

	metrics.SetWindowSize(0)
}

// Results returns a copy of the window, head first.
func (s *Store) Results() []api.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.Result, len(s.window))
	copy(out, s.window)
	return out
}

// Len returns the current window length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}

// Capacity returns the window bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Mode returns the window's current producer of truth.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Count returns the server-reported result count from the last
// snapshot load.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Received returns how many pushes have been offered since start or
// the last reset, independent of window membership.
func (s *Store) Received() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}
