package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/errors"
)

// wsHandler upgrades /ws requests and hands the connection to the
// test through conns. The handler keeps reading so that control
// frames from the client are processed.
func wsHandler(conns chan *websocket.Conn) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

func newWSServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(wsHandler(conns))
	t.Cleanup(srv.Close)
	return srv, conns
}

func testStreamConfig(serverURL string) *config.Config {
	cfg := config.Default()
	cfg.Server.URL = serverURL
	cfg.Stream.ReconnectBackoff = 50 * time.Millisecond
	cfg.Stream.HandshakeTimeout = 2 * time.Second
	cfg.Stream.PongWait = 5 * time.Second
	return cfg
}

func startManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	mgr := NewManager(cfg)
	require.NoError(t, mgr.Connect(context.Background()))
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func acceptConn(t *testing.T, conns chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client to connect")
		return nil
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, frameType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]any{
		"type": frameType,
		"data": json.RawMessage(data),
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok, "event channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestManagerDeliversEvents(t *testing.T) {
	srv, conns := newWSServer(t)
	mgr := startManager(t, testStreamConfig(srv.URL))
	events, cancel := mgr.Subscribe()
	defer cancel()

	server := acceptConn(t, conns)

	writeFrame(t, server, "result", api.Result{
		ID:         7,
		IP:         "203.0.113.9",
		Port:       443,
		Protocol:   "https",
		StatusCode: 200,
		Title:      "Welcome",
	})
	event := waitEvent(t, events)
	require.Equal(t, EventResult, event.Type)
	require.NotNil(t, event.Result)
	assert.Equal(t, int64(7), event.Result.ID)
	assert.Equal(t, "203.0.113.9", event.Result.IP)
	assert.Nil(t, event.Status)

	writeFrame(t, server, "status", map[string]any{
		"running":       true,
		"total_scanned": 120,
		"total_found":   4,
		"current_rate":  9.5,
		"mode":          api.ModeRandom,
	})
	event = waitEvent(t, events)
	require.Equal(t, EventStatus, event.Type)
	require.NotNil(t, event.Status)
	assert.True(t, event.Status.Running)
	assert.Equal(t, int64(120), event.Status.TotalScanned)
	// Status pushes carry no elapsed figure.
	assert.Nil(t, event.Status.ElapsedSeconds)

	assert.True(t, mgr.Connected())
}

func TestManagerDropsMalformedFrames(t *testing.T) {
	srv, conns := newWSServer(t)
	mgr := startManager(t, testStreamConfig(srv.URL))
	events, cancel := mgr.Subscribe()
	defer cancel()

	server := acceptConn(t, conns)

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("not json at all")))
	writeFrame(t, server, "result", map[string]any{"id": "not-a-number"})
	writeFrame(t, server, "telemetry", map[string]any{"cpu": 99})
	writeFrame(t, server, "result", api.Result{ID: 1, IP: "198.51.100.1", Port: 80})

	event := waitEvent(t, events)
	require.Equal(t, EventResult, event.Type)
	assert.Equal(t, int64(1), event.Result.ID)

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, mgr.Connected(), "bad frames must not take the connection down")
}

func TestManagerReconnects(t *testing.T) {
	srv, conns := newWSServer(t)
	mgr := startManager(t, testStreamConfig(srv.URL))
	events, cancel := mgr.Subscribe()
	defer cancel()

	first := acceptConn(t, conns)
	writeFrame(t, first, "result", api.Result{ID: 1, IP: "198.51.100.1", Port: 80})
	assert.Equal(t, int64(1), waitEvent(t, events).Result.ID)

	// Drop the connection server-side; the manager should come back
	// on the same subscription.
	require.NoError(t, first.Close())

	second := acceptConn(t, conns)
	writeFrame(t, second, "result", api.Result{ID: 2, IP: "198.51.100.2", Port: 80})
	assert.Equal(t, int64(2), waitEvent(t, events).Result.ID)
	assert.True(t, mgr.Connected())
}

func TestManagerRetriesUntilServerAppears(t *testing.T) {
	srv, conns := newWSServer(t)
	addr := srv.Listener.Addr().String()
	url := srv.URL
	srv.Close()

	mgr := startManager(t, testStreamConfig(url))
	events, cancel := mgr.Subscribe()
	defer cancel()

	// Let at least one dial attempt fail before the listener returns.
	time.Sleep(80 * time.Millisecond)
	assert.False(t, mgr.Connected())

	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	revived := &http.Server{Handler: wsHandler(conns)}
	go func() { _ = revived.Serve(listener) }()
	t.Cleanup(func() { _ = revived.Close() })

	server := acceptConn(t, conns)
	writeFrame(t, server, "result", api.Result{ID: 9, IP: "198.51.100.9", Port: 8080})
	assert.Equal(t, int64(9), waitEvent(t, events).Result.ID)
}

func TestManagerCloseStopsReconnect(t *testing.T) {
	srv, conns := newWSServer(t)
	cfg := testStreamConfig(srv.URL)
	mgr := startManager(t, cfg)
	events, cancel := mgr.Subscribe()
	defer cancel()

	server := acceptConn(t, conns)
	require.NoError(t, server.Close())
	require.NoError(t, mgr.Close())

	// Subscriptions end with the manager.
	select {
	case _, ok := <-events:
		assert.False(t, ok, "event channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after Close")
	}

	// No new connection may appear once closed.
	time.Sleep(3 * cfg.Stream.ReconnectBackoff)
	select {
	case <-conns:
		t.Fatal("manager reconnected after Close")
	default:
	}
	assert.False(t, mgr.Connected())
}

func TestManagerConnectIdempotent(t *testing.T) {
	srv, conns := newWSServer(t)
	mgr := startManager(t, testStreamConfig(srv.URL))

	require.NoError(t, mgr.Connect(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	acceptConn(t, conns)
	time.Sleep(100 * time.Millisecond)
	select {
	case <-conns:
		t.Fatal("second Connect opened a second channel")
	default:
	}

	require.NoError(t, mgr.Close())
	err := mgr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
}

func TestManagerKeepAlive(t *testing.T) {
	srv, conns := newWSServer(t)
	cfg := testStreamConfig(srv.URL)
	// Short pong window so an idle connection would die quickly
	// without the ping loop.
	cfg.Stream.PongWait = 500 * time.Millisecond
	mgr := startManager(t, cfg)
	events, cancel := mgr.Subscribe()
	defer cancel()

	server := acceptConn(t, conns)

	time.Sleep(3 * cfg.Stream.PongWait)
	assert.True(t, mgr.Connected(), "pings should keep an idle connection alive")

	writeFrame(t, server, "result", api.Result{ID: 3, IP: "198.51.100.3", Port: 443})
	assert.Equal(t, int64(3), waitEvent(t, events).Result.ID)
}

func TestPingPeriod(t *testing.T) {
	assert.Equal(t, 54*time.Second, pingPeriod(60*time.Second))
	assert.Equal(t, time.Second, pingPeriod(0))
}
