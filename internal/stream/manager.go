package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/errors"
	"github.com/scanhud/scanhud/internal/logging"
	"github.com/scanhud/scanhud/internal/metrics"
	"github.com/scanhud/scanhud/internal/sched"
)

const (
	// writeWait bounds a single control frame write.
	writeWait = 10 * time.Second

	// pingPeriodRatio keeps pings comfortably inside the pong window.
	pingPeriodRatio = 0.9
)

// envelope mirrors the server's push frame: a type tag plus a raw
// payload decoded according to that tag.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Manager owns the WebSocket connection to the scan server. It dials,
// keeps the connection alive with pings, decodes inbound frames into
// events on its hub, and schedules reconnects after any transport
// loss. A manager maintains at most one active connection and at most
// one pending reconnect at a time.
type Manager struct {
	url    string
	cfg    config.StreamConfig
	hub    *Hub
	dialer *websocket.Dialer
	retry  *sched.Timer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	started   bool
	closed    bool
	cancel    context.CancelFunc
}

// NewManager creates a manager for the push channel described by cfg.
// Connect must be called to start it.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		url: cfg.WebSocketURL(),
		cfg: cfg.Stream,
		hub: NewHub(cfg.Stream.SubscriberBuffer),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		},
		retry: sched.NewTimer(),
	}
}

// Subscribe registers a consumer for decoded stream events.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	events, cancel := m.hub.Subscribe()
	logging.Debug("stream subscriber added", "subscribers", m.hub.Subscribers())
	return events, cancel
}

// Connected reports whether the channel is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Connect starts the connection loop. It returns immediately; dialing
// and reconnecting happen in the background. Calling Connect on an
// already started manager is a no-op, so at most one channel is ever
// active per manager.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.NewStreamError(errors.CodeCanceled, "stream manager is closed")
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Close tears down the connection, cancels any pending reconnect and
// terminates all subscriptions. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	m.retry.Cancel()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	m.hub.Close()
	logging.Debug("stream manager closed", "url", m.url)
	return nil
}

// run performs one dial attempt and, on success, services the
// connection until it drops. Any exit other than shutdown schedules
// the next attempt.
func (m *Manager) run(ctx context.Context) {
	if ctx.Err() != nil || m.isClosed() {
		return
	}

	conn, _, err := m.dialer.Dial(m.url, nil)
	if err != nil {
		logging.ErrorStream("channel dial failed", errors.ErrTransportLost(m.url, err))
		m.scheduleRetry(ctx)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	metrics.SetStreamConnected(true)
	logging.InfoStream("channel connected", "url", m.url)

	conn.SetReadLimit(m.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	done := make(chan struct{})
	go m.pingLoop(ctx, conn, done)

	readErr := m.readLoop(conn)
	close(done)

	m.mu.Lock()
	m.connected = false
	m.conn = nil
	closed := m.closed
	m.mu.Unlock()

	_ = conn.Close()
	metrics.SetStreamConnected(false)

	if ctx.Err() != nil || closed {
		return
	}

	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logging.InfoStream("channel closed by server", "url", m.url)
	} else {
		logging.ErrorStream("channel lost", errors.ErrTransportLost(m.url, readErr))
	}
	m.scheduleRetry(ctx)
}

// readLoop consumes frames until the connection fails and returns the
// terminal error.
func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.dispatch(data)
	}
}

// dispatch decodes one frame and publishes it. Malformed frames are
// counted and dropped; they never take the connection down.
func (m *Manager) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.IncrementStreamDrops("decode")
		logging.Debug("dropping undecodable frame", "error", errors.ErrMalformedPayload("frame", err))
		return
	}

	switch env.Type {
	case string(EventResult):
		var result api.Result
		if err := json.Unmarshal(env.Data, &result); err != nil {
			metrics.IncrementStreamDrops("decode")
			logging.Debug("dropping undecodable result payload", "error", errors.ErrMalformedPayload("result", err))
			return
		}
		metrics.IncrementStreamEvents(string(EventResult))
		m.hub.Publish(Event{Type: EventResult, Result: &result})

	case string(EventStatus):
		var status api.ScanStatus
		if err := json.Unmarshal(env.Data, &status); err != nil {
			metrics.IncrementStreamDrops("decode")
			logging.Debug("dropping undecodable status payload", "error", errors.ErrMalformedPayload("status", err))
			return
		}
		metrics.IncrementStreamEvents(string(EventStatus))
		m.hub.Publish(Event{Type: EventStatus, Status: &status})

	default:
		metrics.IncrementStreamDrops("unknown_type")
		logging.Debug("dropping frame with unknown type", "frame_type", env.Type)
	}
}

// pingLoop keeps the connection alive. The server answers pings with
// pongs, which re-arm the read deadline.
func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod(m.cfg.PongWait))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// scheduleRetry arms the reconnect timer. The timer supersedes any
// pending one, so backoff never stacks.
func (m *Manager) scheduleRetry(ctx context.Context) {
	if ctx.Err() != nil || m.isClosed() {
		return
	}
	logging.InfoStream("scheduling reconnect",
		"backoff", m.cfg.ReconnectBackoff.String(),
		"url", m.url)
	m.retry.Schedule(m.cfg.ReconnectBackoff, func() {
		metrics.IncrementStreamReconnects()
		m.run(ctx)
	})
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func pingPeriod(pongWait time.Duration) time.Duration {
	period := time.Duration(float64(pongWait) * pingPeriodRatio)
	if period <= 0 {
		period = time.Second
	}
	return period
}
