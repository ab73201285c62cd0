// Package metrics provides Prometheus-based metrics collection for scanhud.
// The Prometheus collectors back the optional monitor listener's /metrics
// endpoint; the simple registry above feeds the /healthz snapshot.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all scanhud metrics
	namespace = "scanhud"

	// Subsystems
	subsystemStream  = "stream"
	subsystemFetch   = "fetch"
	subsystemWindow  = "window"
	subsystemSession = "session"
	subsystemSystem  = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Stream metrics
	streamEvents     *prometheus.CounterVec
	streamDrops      *prometheus.CounterVec
	streamReconnects prometheus.Counter
	streamConnected  prometheus.Gauge

	// Fetch metrics
	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	fetchStale    prometheus.Counter

	// Window metrics
	windowSize      prometheus.Gauge
	windowPushes    prometheus.Counter
	windowEvictions prometheus.Counter
	windowSnapshots *prometheus.CounterVec

	// Session metrics
	scanRunning  prometheus.Gauge
	totalScanned prometheus.Gauge
	totalFound   prometheus.Gauge
	scanRate     prometheus.Gauge

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	// Performance tracking
	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	// Initialize all metrics
	pm.initStreamMetrics()
	pm.initFetchMetrics()
	pm.initWindowMetrics()
	pm.initSessionMetrics()
	pm.initSystemMetrics()

	// Register all metrics with the registry
	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// initStreamMetrics initializes WebSocket stream metrics
func (pm *PrometheusMetrics) initStreamMetrics() {
	pm.streamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStream,
			Name:      "events_total",
			Help:      "Total number of stream events delivered by event type",
		},
		[]string{"event_type"},
	)

	pm.streamDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStream,
			Name:      "drops_total",
			Help:      "Total number of stream messages dropped by reason",
		},
		[]string{"reason"},
	)

	pm.streamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStream,
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		},
	)

	pm.streamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemStream,
			Name:      "connected",
			Help:      "Whether the event stream is currently connected (1) or not (0)",
		},
	)
}

// initFetchMetrics initializes snapshot fetch metrics
func (pm *PrometheusMetrics) initFetchMetrics() {
	pm.fetchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemFetch,
			Name:      "requests_total",
			Help:      "Total number of REST fetches by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	pm.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemFetch,
			Name:      "duration_seconds",
			Help:      "Duration of REST fetches in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"endpoint"},
	)

	pm.fetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemFetch,
			Name:      "errors_total",
			Help:      "Total number of REST fetch errors by endpoint and error type",
		},
		[]string{"endpoint", "error_type"},
	)

	pm.fetchStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemFetch,
			Name:      "stale_total",
			Help:      "Total number of snapshot completions discarded as superseded",
		},
	)
}

// initWindowMetrics initializes result window metrics
func (pm *PrometheusMetrics) initWindowMetrics() {
	pm.windowSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemWindow,
			Name:      "size",
			Help:      "Current number of results held in the window",
		},
	)

	pm.windowPushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemWindow,
			Name:      "pushes_total",
			Help:      "Total number of pushed results accepted into the window",
		},
	)

	pm.windowEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemWindow,
			Name:      "evictions_total",
			Help:      "Total number of results evicted to honor the window capacity",
		},
	)

	pm.windowSnapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemWindow,
			Name:      "snapshots_total",
			Help:      "Total number of wholesale window replacements by resulting mode",
		},
		[]string{"mode"},
	)
}

// initSessionMetrics initializes scan session metrics
func (pm *PrometheusMetrics) initSessionMetrics() {
	pm.scanRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "scan_running",
			Help:      "Whether the server reports a scan in progress (1) or not (0)",
		},
	)

	pm.totalScanned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "total_scanned",
			Help:      "Server-reported total of addresses scanned this session",
		},
	)

	pm.totalFound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "total_found",
			Help:      "Server-reported total of responsive hosts this session",
		},
	)

	pm.scanRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSession,
			Name:      "scan_rate",
			Help:      "Server-reported scan rate in addresses per second",
		},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Client uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	// Stream metrics
	pm.registry.MustRegister(pm.streamEvents)
	pm.registry.MustRegister(pm.streamDrops)
	pm.registry.MustRegister(pm.streamReconnects)
	pm.registry.MustRegister(pm.streamConnected)

	// Fetch metrics
	pm.registry.MustRegister(pm.fetchRequests)
	pm.registry.MustRegister(pm.fetchDuration)
	pm.registry.MustRegister(pm.fetchErrors)
	pm.registry.MustRegister(pm.fetchStale)

	// Window metrics
	pm.registry.MustRegister(pm.windowSize)
	pm.registry.MustRegister(pm.windowPushes)
	pm.registry.MustRegister(pm.windowEvictions)
	pm.registry.MustRegister(pm.windowSnapshots)

	// Session metrics
	pm.registry.MustRegister(pm.scanRunning)
	pm.registry.MustRegister(pm.totalScanned)
	pm.registry.MustRegister(pm.totalFound)
	pm.registry.MustRegister(pm.scanRate)

	// System metrics
	pm.registry.MustRegister(pm.memoryUsage)
	pm.registry.MustRegister(pm.goroutines)
	pm.registry.MustRegister(pm.uptime)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Stream Metrics Methods

// IncrementStreamEvents increments the delivered event counter
func (pm *PrometheusMetrics) IncrementStreamEvents(eventType string) {
	pm.streamEvents.WithLabelValues(eventType).Inc()
}

// IncrementStreamDrops increments the dropped message counter
func (pm *PrometheusMetrics) IncrementStreamDrops(reason string) {
	pm.streamDrops.WithLabelValues(reason).Inc()
}

// IncrementStreamReconnects increments the reconnect counter
func (pm *PrometheusMetrics) IncrementStreamReconnects() {
	pm.streamReconnects.Inc()
}

// SetStreamConnected sets the connectivity gauge
func (pm *PrometheusMetrics) SetStreamConnected(connected bool) {
	if connected {
		pm.streamConnected.Set(1)
	} else {
		pm.streamConnected.Set(0)
	}
}

// Fetch Metrics Methods

// IncrementFetchRequests increments the fetch counter
func (pm *PrometheusMetrics) IncrementFetchRequests(endpoint, status string) {
	pm.fetchRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordFetchDuration records a fetch duration
func (pm *PrometheusMetrics) RecordFetchDuration(endpoint string, duration time.Duration) {
	pm.fetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// IncrementFetchErrors increments the fetch error counter
func (pm *PrometheusMetrics) IncrementFetchErrors(endpoint, errorType string) {
	pm.fetchErrors.WithLabelValues(endpoint, errorType).Inc()
}

// IncrementFetchStale increments the stale completion counter
func (pm *PrometheusMetrics) IncrementFetchStale() {
	pm.fetchStale.Inc()
}

// Window Metrics Methods

// SetWindowSize sets the window length gauge
func (pm *PrometheusMetrics) SetWindowSize(size int) {
	pm.windowSize.Set(float64(size))
}

// IncrementWindowPushes increments the accepted push counter
func (pm *PrometheusMetrics) IncrementWindowPushes() {
	pm.windowPushes.Inc()
}

// IncrementWindowEvictions increments the eviction counter
func (pm *PrometheusMetrics) IncrementWindowEvictions() {
	pm.windowEvictions.Inc()
}

// IncrementWindowSnapshots increments the snapshot replacement counter
func (pm *PrometheusMetrics) IncrementWindowSnapshots(mode string) {
	pm.windowSnapshots.WithLabelValues(mode).Inc()
}

// Session Metrics Methods

// SetScanRunning sets the scan-in-progress gauge
func (pm *PrometheusMetrics) SetScanRunning(running bool) {
	if running {
		pm.scanRunning.Set(1)
	} else {
		pm.scanRunning.Set(0)
	}
}

// SetSessionCounters sets the server-reported session counters
func (pm *PrometheusMetrics) SetSessionCounters(scanned, found int64, rate float64) {
	pm.totalScanned.Set(float64(scanned))
	pm.totalFound.Set(float64(found))
	pm.scanRate.Set(rate)
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Update memory usage
	pm.memoryUsage.Set(float64(memStats.Alloc))

	// Update goroutine count
	pm.goroutines.Set(float64(runtime.NumGoroutine()))

	// Update uptime
	uptime := time.Since(pm.startTime).Seconds()
	pm.uptime.Set(uptime)

	// Update last update time
	pm.lastUpdate = time.Now()
}

// Utility Methods

// GetUptime returns the client uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates starts a goroutine that periodically updates system metrics
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Update immediately
	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
