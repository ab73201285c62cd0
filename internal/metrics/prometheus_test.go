package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_InitializationAndUpdate(t *testing.T) {
	pm := NewPrometheusMetrics()
	if pm == nil {
		t.Fatalf("NewPrometheusMetrics returned nil")
	}

	reg := pm.GetRegistry()
	if reg == nil {
		t.Fatalf("GetRegistry returned nil")
	}

	// Should be able to update system metrics without panic
	pm.UpdateSystemMetrics()
	// Uptime should be increasing
	before := pm.GetUptime()
	time.Sleep(10 * time.Millisecond)
	after := pm.GetUptime()
	if before >= after {
		t.Fatalf("expected uptime to increase, before=%v after=%v", before, after)
	}
}

func TestPrometheusMetrics_HTTPHandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	// Update once to populate gauges
	pm.UpdateSystemMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	handler := promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{})
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if body == "" {
		t.Fatalf("expected non-empty metrics body")
	}
	// Expect a known metric name prefix (namespace + subsystem + name)
	if !contains(body, "scanhud_system_uptime_seconds") {
		end := minInt(200, len(body))
		t.Fatalf("expected uptime metric in output, got: %s", body[:end])
	}
}

func TestPrometheusMetrics_StreamMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementStreamEvents("result")
	pm.IncrementStreamEvents("result")
	pm.IncrementStreamEvents("status")

	count := testutil.CollectAndCount(pm.streamEvents)
	if count != 2 {
		t.Errorf("expected 2 event types, got %d", count)
	}

	pm.IncrementStreamDrops("decode")
	pm.IncrementStreamDrops("unknown_type")
	pm.IncrementStreamDrops("slow_subscriber")

	count = testutil.CollectAndCount(pm.streamDrops)
	if count != 3 {
		t.Errorf("expected 3 drop reasons, got %d", count)
	}

	pm.IncrementStreamReconnects()
	pm.IncrementStreamReconnects()

	count = testutil.CollectAndCount(pm.streamReconnects)
	if count != 1 {
		t.Errorf("expected 1 reconnect counter, got %d", count)
	}

	pm.SetStreamConnected(true)
	if got := testutil.ToFloat64(pm.streamConnected); got != 1 {
		t.Errorf("expected connected gauge 1, got %f", got)
	}
	pm.SetStreamConnected(false)
	if got := testutil.ToFloat64(pm.streamConnected); got != 0 {
		t.Errorf("expected connected gauge 0, got %f", got)
	}
}

func TestPrometheusMetrics_FetchMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementFetchRequests("/api/results", "success")
	pm.IncrementFetchRequests("/api/results", "error")
	pm.IncrementFetchRequests("/api/stats", "success")

	count := testutil.CollectAndCount(pm.fetchRequests)
	if count != 3 {
		t.Errorf("expected 3 label combinations, got %d", count)
	}

	pm.RecordFetchDuration("/api/results", 150*time.Millisecond)
	pm.RecordFetchDuration("/api/stats", 20*time.Millisecond)

	count = testutil.CollectAndCount(pm.fetchDuration)
	if count != 2 {
		t.Errorf("expected 2 endpoints, got %d", count)
	}

	pm.IncrementFetchErrors("/api/results", "TIMEOUT")
	pm.IncrementFetchErrors("/api/results", "NETWORK_UNREACHABLE")

	count = testutil.CollectAndCount(pm.fetchErrors)
	if count != 2 {
		t.Errorf("expected 2 error types, got %d", count)
	}

	pm.IncrementFetchStale()
	if got := testutil.ToFloat64(pm.fetchStale); got != 1 {
		t.Errorf("expected 1 stale completion, got %f", got)
	}
}

func TestPrometheusMetrics_WindowMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.SetWindowSize(50)
	if got := testutil.ToFloat64(pm.windowSize); got != 50 {
		t.Errorf("expected window size 50, got %f", got)
	}

	pm.IncrementWindowPushes()
	pm.IncrementWindowPushes()
	if got := testutil.ToFloat64(pm.windowPushes); got != 2 {
		t.Errorf("expected 2 pushes, got %f", got)
	}

	pm.IncrementWindowEvictions()
	if got := testutil.ToFloat64(pm.windowEvictions); got != 1 {
		t.Errorf("expected 1 eviction, got %f", got)
	}

	pm.IncrementWindowSnapshots("live-tail")
	pm.IncrementWindowSnapshots("snapshot")

	count := testutil.CollectAndCount(pm.windowSnapshots)
	if count != 2 {
		t.Errorf("expected 2 snapshot modes, got %d", count)
	}
}

func TestPrometheusMetrics_SessionMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.SetScanRunning(true)
	if got := testutil.ToFloat64(pm.scanRunning); got != 1 {
		t.Errorf("expected scan running gauge 1, got %f", got)
	}
	pm.SetScanRunning(false)
	if got := testutil.ToFloat64(pm.scanRunning); got != 0 {
		t.Errorf("expected scan running gauge 0, got %f", got)
	}

	pm.SetSessionCounters(1500, 42, 120)
	if got := testutil.ToFloat64(pm.totalScanned); got != 1500 {
		t.Errorf("expected total scanned 1500, got %f", got)
	}
	if got := testutil.ToFloat64(pm.totalFound); got != 42 {
		t.Errorf("expected total found 42, got %f", got)
	}
	if got := testutil.ToFloat64(pm.scanRate); got != 120 {
		t.Errorf("expected scan rate 120, got %f", got)
	}
}

func TestPrometheusMetrics_SystemMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	// Test UpdateSystemMetrics
	pm.UpdateSystemMetrics()

	// Verify gauges are populated
	count := testutil.CollectAndCount(pm.memoryUsage)
	if count != 1 {
		t.Errorf("expected 1 memory metric, got %d", count)
	}

	count = testutil.CollectAndCount(pm.goroutines)
	if count != 1 {
		t.Errorf("expected 1 goroutines metric, got %d", count)
	}

	count = testutil.CollectAndCount(pm.uptime)
	if count != 1 {
		t.Errorf("expected 1 uptime metric, got %d", count)
	}

	// Test GetLastUpdate
	before := pm.GetLastUpdate()
	time.Sleep(10 * time.Millisecond)
	pm.UpdateSystemMetrics()
	after := pm.GetLastUpdate()

	if !after.After(before) {
		t.Errorf("expected last update to change after UpdateSystemMetrics")
	}
}

func TestPrometheusMetrics_StartPeriodicUpdates(t *testing.T) {
	pm := NewPrometheusMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pm.StartPeriodicUpdates(ctx, 20*time.Millisecond)
		close(done)
	}()

	// Wait for context to expire
	<-ctx.Done()
	<-done

	// Verify metrics were updated at least once
	count := testutil.CollectAndCount(pm.uptime)
	if count != 1 {
		t.Errorf("expected metrics to be updated, got %d uptime metrics", count)
	}
}

func TestPrometheusMetrics_GlobalInstance(t *testing.T) {
	// Test GetGlobalMetrics
	gm1 := GetGlobalMetrics()
	if gm1 == nil {
		t.Fatal("GetGlobalMetrics returned nil")
	}

	// Should return same instance
	gm2 := GetGlobalMetrics()
	if gm1 != gm2 {
		t.Error("GetGlobalMetrics should return same instance")
	}
}

// contains is a tiny helper to avoid importing strings just for tests
func contains(s, substr string) bool {
	return substr == "" || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	// naive search sufficient for test
	n := len(s)
	m := len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
