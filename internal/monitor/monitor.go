// Package monitor serves the optional local observability listener:
// Prometheus metrics under /metrics and a JSON health snapshot under
// /healthz. It is off by default and binds to loopback when enabled.
package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/errors"
	"github.com/scanhud/scanhud/internal/logging"
	"github.com/scanhud/scanhud/internal/metrics"
)

const (
	shutdownTimeout = 5 * time.Second
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
)

// Server is the local monitoring endpoint.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	registry   metrics.MetricsRegistry
	startTime  time.Time

	mu        sync.Mutex
	boundAddr string
}

// healthResponse is the /healthz body. The gauges mirror what the
// dashboard currently believes.
type healthResponse struct {
	Status        string `json:"status"`
	Connected     bool   `json:"connected"`
	ScanRunning   bool   `json:"scan_running"`
	WindowSize    int    `json:"window_size"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Goroutines    int    `json:"goroutines"`
}

// New builds the monitor server for cfg. Health gauges are read through
// registry; a nil registry falls back to the process default. Start must
// be called to bind the listener.
func New(cfg *config.Config, registry metrics.MetricsRegistry) *Server {
	if registry == nil {
		registry = metrics.Default()
	}

	router := mux.NewRouter()
	s := &Server{
		router:    router,
		registry:  registry,
		startTime: time.Now(),
	}
	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         cfg.GetMonitorAddress(),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(
		metrics.GetGlobalMetrics().GetRegistry(),
		promhttp.HandlerOpts{},
	)).Methods("GET")
	s.router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/", s.indexHandler).Methods("GET")
}

func (s *Server) setupMiddleware() {
	s.router.Use(func(next http.Handler) http.Handler {
		return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(next)
	})
	s.router.Use(handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET"}),
	))
	s.router.Use(s.loggingMiddleware)
}

// loggingMiddleware records each request at debug level so the
// monitor never writes over the dashboard on stdout.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("monitor request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr)
	})
}

// Start binds the listener and serves until ctx is canceled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "monitor listen failed", err)
	}

	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	logging.Info("monitor listening", "address", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("monitor shutdown error", "error", err)
		return err
	}
	logging.Info("monitor stopped")
	return nil
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.GetMetrics()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Connected:     gaugeValue(snapshot, metrics.MetricStreamConnected) == 1,
		ScanRunning:   gaugeValue(snapshot, metrics.MetricScanRunning) == 1,
		WindowSize:    int(gaugeValue(snapshot, metrics.MetricWindowSize)),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	})
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "scanhud monitor",
		"endpoints": map[string]string{
			"health":  "/healthz",
			"metrics": "/metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("failed to encode monitor response", "error", err)
	}
}

// gaugeValue finds a gauge in the snapshot by name, tolerating keys
// that carry label suffixes.
func gaugeValue(snapshot map[string]*metrics.Metric, name string) float64 {
	if metric, ok := snapshot[name]; ok {
		return metric.Value
	}
	for _, metric := range snapshot {
		if metric.Name == name {
			return metric.Value
		}
	}
	return 0
}
