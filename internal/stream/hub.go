// Package stream maintains the push channel to the scan server. A
// Manager owns the WebSocket connection and its reconnect policy, and
// a Hub fans decoded events out to subscribers without ever blocking
// the read loop.
package stream

import (
	"sync"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/logging"
	"github.com/scanhud/scanhud/internal/metrics"
)

// EventType discriminates the payload carried by an Event.
type EventType string

const (
	// EventResult carries one finished probe result.
	EventResult EventType = "result"

	// EventStatus carries a scan session status update.
	EventStatus EventType = "status"
)

// Event is one decoded message from the push channel. Exactly one of
// Result and Status is set, according to Type.
type Event struct {
	Type   EventType
	Result *api.Result
	Status *api.ScanStatus
}

// Hub distributes events to subscribers over buffered channels.
// Publish never blocks: when a subscriber's buffer is full the event
// is dropped for that subscriber and counted, so one stalled consumer
// cannot back-pressure the connection read loop.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	buffer int
}

// NewHub creates a hub whose subscriber channels buffer up to buffer
// events each.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new consumer and returns its event channel
// together with a cancel function. Cancel closes the channel; it is
// safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer
// space. Holding the lock across the sends keeps Publish ordered with
// Subscribe cancellation, so no send can hit a closed channel.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			metrics.IncrementStreamDrops("slow_subscriber")
			logging.Warn("dropping event for slow subscriber",
				"subscriber_id", id,
				"event_type", string(event.Type))
		}
	}
}

// Subscribers reports the current consumer count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close terminates every subscription. Subsequent Publish calls are
// no-ops against an empty map.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
