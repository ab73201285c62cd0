// Package metrics provides monitoring and metrics collection for scanhud.
// It supports counters, gauges, and histograms with label support for tracking
// stream health, snapshot fetches, and result window churn.
package metrics

import (
	"sync"
	"time"
)

// MetricType represents the type of metric.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Labels represents key-value pairs for metric labels.
type Labels map[string]string

// Metric represents a single metric with its metadata.
type Metric struct {
	Name      string
	Type      MetricType
	Value     float64
	Labels    Labels
	Timestamp time.Time
}

// Registry holds all metrics and provides collection functionality.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	enabled bool
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
		enabled: true,
	}
}

// SetEnabled enables or disables metrics collection.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// IsEnabled returns whether metrics collection is enabled.
func (r *Registry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Counter increments a counter metric.
func (r *Registry) Counter(name string, labels Labels) {
	if !r.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.makeKey(name, labels)
	if metric, exists := r.metrics[key]; exists {
		metric.Value++
		metric.Timestamp = time.Now()
	} else {
		r.metrics[key] = &Metric{
			Name:      name,
			Type:      TypeCounter,
			Value:     1,
			Labels:    labels,
			Timestamp: time.Now(),
		}
	}
}

// Gauge sets a gauge metric value.
func (r *Registry) Gauge(name string, value float64, labels Labels) {
	if !r.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.makeKey(name, labels)
	r.metrics[key] = &Metric{
		Name:      name,
		Type:      TypeGauge,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Histogram records a value in a histogram metric.
func (r *Registry) Histogram(name string, value float64, labels Labels) {
	if !r.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.makeKey(name, labels)
	if metric, exists := r.metrics[key]; exists {
		// Simple histogram implementation - just track last value
		metric.Value = value
		metric.Timestamp = time.Now()
	} else {
		r.metrics[key] = &Metric{
			Name:      name,
			Type:      TypeHistogram,
			Value:     value,
			Labels:    labels,
			Timestamp: time.Now(),
		}
	}
}

// GetMetrics returns a snapshot of all current metrics.
func (r *Registry) GetMetrics() map[string]*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Metric)
	for key, metric := range r.metrics {
		// Create a copy to avoid race conditions
		result[key] = &Metric{
			Name:      metric.Name,
			Type:      metric.Type,
			Value:     metric.Value,
			Labels:    copyLabels(metric.Labels),
			Timestamp: metric.Timestamp,
		}
	}
	return result
}

// Reset clears all metrics.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = make(map[string]*Metric)
}

// makeKey creates a unique key for a metric based on name and labels.
func (r *Registry) makeKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}

	key := name
	for k, v := range labels {
		key += ":" + k + "=" + v
	}
	return key
}

// copyLabels creates a copy of labels map.
func copyLabels(labels Labels) Labels {
	if labels == nil {
		return nil
	}
	result := make(Labels)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

// Global registry instance.
var defaultRegistry = NewRegistry()

// SetDefault sets the default metrics registry.
func SetDefault(registry *Registry) {
	defaultRegistry = registry
}

// Default returns the default metrics registry.
func Default() *Registry {
	return defaultRegistry
}

// SetEnabled enables or disables metrics collection on the default registry.
func SetEnabled(enabled bool) {
	defaultRegistry.SetEnabled(enabled)
}

// Counter increments a counter metric on the default registry.
func Counter(name string, labels Labels) {
	defaultRegistry.Counter(name, labels)
}

// Gauge sets a gauge metric on the default registry.
func Gauge(name string, value float64, labels Labels) {
	defaultRegistry.Gauge(name, value, labels)
}

// Histogram records a histogram value on the default registry.
func Histogram(name string, value float64, labels Labels) {
	defaultRegistry.Histogram(name, value, labels)
}

// GetMetrics returns all metrics from the default registry.
func GetMetrics() map[string]*Metric {
	return defaultRegistry.GetMetrics()
}

// Reset clears all metrics from the default registry.
func Reset() {
	defaultRegistry.Reset()
}

// Timer provides a simple way to measure execution time.
type Timer struct {
	start  time.Time
	name   string
	labels Labels
}

// NewTimer creates a new timer for measuring execution time.
func NewTimer(name string, labels Labels) *Timer {
	return &Timer{
		start:  time.Now(),
		name:   name,
		labels: labels,
	}
}

// Stop stops the timer and records the duration as a histogram.
func (t *Timer) Stop() {
	duration := time.Since(t.start)
	Histogram(t.name, duration.Seconds(), t.labels)
}

// Predefined metric names for common operations.
const (
	// Stream metrics.
	MetricStreamEvents     = "stream_events_total"
	MetricStreamDrops      = "stream_drops_total"
	MetricStreamReconnects = "stream_reconnects_total"
	MetricStreamConnected  = "stream_connected"

	// Fetch metrics.
	MetricFetchTotal    = "fetch_total"
	MetricFetchErrors   = "fetch_errors_total"
	MetricFetchDuration = "fetch_duration_seconds"
	MetricFetchStale    = "fetch_stale_total"

	// Window metrics.
	MetricWindowSize      = "window_size"
	MetricWindowPushes    = "window_pushes_total"
	MetricWindowEvictions = "window_evictions_total"
	MetricWindowSnapshots = "window_snapshots_total"

	// Session metrics.
	MetricScanRunning = "scan_running"

	// System metrics.
	MetricMemoryUsage = "memory_usage_bytes"
	MetricGoroutines  = "goroutines_active"
	MetricUptime      = "uptime_seconds"
)

// Common label keys.
const (
	LabelEventType = "event_type"
	LabelReason    = "reason"
	LabelEndpoint  = "endpoint"
	LabelStatus    = "status"
	LabelError     = "error"
	LabelMode      = "mode"
	LabelComponent = "component"
)

// Helper functions for common metrics. Each helper records into both the
// default registry (snapshot for /healthz) and the global Prometheus
// collectors (/metrics), so call sites stay single.

// IncrementStreamEvents increments the delivered stream event counter.
func IncrementStreamEvents(eventType string) {
	Counter(MetricStreamEvents, Labels{
		LabelEventType: eventType,
	})
	GetGlobalMetrics().IncrementStreamEvents(eventType)
}

// IncrementStreamDrops increments the dropped stream message counter.
func IncrementStreamDrops(reason string) {
	Counter(MetricStreamDrops, Labels{
		LabelReason: reason,
	})
	GetGlobalMetrics().IncrementStreamDrops(reason)
}

// IncrementStreamReconnects increments the reconnect attempt counter.
func IncrementStreamReconnects() {
	Counter(MetricStreamReconnects, nil)
	GetGlobalMetrics().IncrementStreamReconnects()
}

// SetStreamConnected sets the stream connectivity gauge.
func SetStreamConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	Gauge(MetricStreamConnected, value, nil)
	GetGlobalMetrics().SetStreamConnected(connected)
}

// RecordFetch records a completed snapshot fetch.
func RecordFetch(endpoint string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	Counter(MetricFetchTotal, Labels{
		LabelEndpoint: endpoint,
		LabelStatus:   status,
	})

	Histogram(MetricFetchDuration, duration.Seconds(), Labels{
		LabelEndpoint: endpoint,
	})

	pm := GetGlobalMetrics()
	pm.IncrementFetchRequests(endpoint, status)
	pm.RecordFetchDuration(endpoint, duration)
}

// IncrementFetchErrors increments the fetch error counter.
func IncrementFetchErrors(endpoint, errorType string) {
	Counter(MetricFetchErrors, Labels{
		LabelEndpoint: endpoint,
		LabelError:    errorType,
	})
	GetGlobalMetrics().IncrementFetchErrors(endpoint, errorType)
}

// IncrementFetchStale increments the discarded stale completion counter.
func IncrementFetchStale() {
	Counter(MetricFetchStale, nil)
	GetGlobalMetrics().IncrementFetchStale()
}

// SetWindowSize sets the current result window length.
func SetWindowSize(size int) {
	Gauge(MetricWindowSize, float64(size), nil)
	GetGlobalMetrics().SetWindowSize(size)
}

// IncrementWindowPushes increments the accepted push counter.
func IncrementWindowPushes() {
	Counter(MetricWindowPushes, nil)
	GetGlobalMetrics().IncrementWindowPushes()
}

// IncrementWindowEvictions increments the eviction counter.
func IncrementWindowEvictions() {
	Counter(MetricWindowEvictions, nil)
	GetGlobalMetrics().IncrementWindowEvictions()
}

// IncrementWindowSnapshots increments the snapshot replacement counter.
func IncrementWindowSnapshots(mode string) {
	Counter(MetricWindowSnapshots, Labels{
		LabelMode: mode,
	})
	GetGlobalMetrics().IncrementWindowSnapshots(mode)
}

// SetScanRunning sets the scan session running gauge.
func SetScanRunning(running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	Gauge(MetricScanRunning, value, nil)
	GetGlobalMetrics().SetScanRunning(running)
}
