// Package config defines the scanhud client configuration: which scan
// server to attach to, how the result window behaves, and how aggressively
// the client refetches. Values load from YAML with defaults applied first,
// so a missing file or a sparse file still yields a runnable configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration.
type Config struct {
	// Server connection settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Result window and rendering settings
	View ViewConfig `yaml:"view" json:"view"`

	// WebSocket stream settings
	Stream StreamConfig `yaml:"stream" json:"stream"`

	// Snapshot fetch settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Display loop settings
	Display DisplayConfig `yaml:"display" json:"display"`

	// Local observability listener
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds the scan server endpoint settings.
type ServerConfig struct {
	// Base URL of the scan server (http or https)
	URL string `yaml:"url" json:"url"`

	// User-Agent sent on REST and WebSocket requests
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// ViewConfig holds result window and renderer settings.
type ViewConfig struct {
	// Page size; also the live window capacity
	PageSize int `yaml:"page_size" json:"page_size"`

	// Default view mode (table, gallery)
	Mode string `yaml:"mode" json:"mode"`

	// Maximum rendered width for remote text fields
	MaxFieldWidth int `yaml:"max_field_width" json:"max_field_width"`
}

// StreamConfig holds WebSocket connection settings.
type StreamConfig struct {
	// Fixed delay before a reconnect attempt
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" json:"reconnect_backoff"`

	// Dial handshake timeout
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// Pong wait; read deadline and ping cadence derive from this
	PongWait time.Duration `yaml:"pong_wait" json:"pong_wait"`

	// Maximum inbound message size in bytes
	ReadLimit int64 `yaml:"read_limit" json:"read_limit"`

	// Per-subscriber event buffer size
	SubscriberBuffer int `yaml:"subscriber_buffer" json:"subscriber_buffer"`
}

// FetchConfig holds snapshot request settings.
type FetchConfig struct {
	// Per-request timeout; 0 disables the deadline
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Quiet period before a search edit triggers a fetch
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// DisplayConfig holds render loop settings.
type DisplayConfig struct {
	// Redraw interval for derived values (elapsed, rates)
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// Status/stats re-poll interval; 0 disables the resync job
	ResyncInterval time.Duration `yaml:"resync_interval" json:"resync_interval"`
}

// MonitorConfig holds the optional local metrics listener settings.
type MonitorConfig struct {
	// Enable the /metrics and /healthz listener
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Include source locations in log records
	AddSource bool `yaml:"add_source" json:"add_source"`
}

// Window capacity bounds. The window is the page, so the server-side
// pagination limit caps it.
const (
	MinPageSize     = 1
	MaxPageSize     = 500
	DefaultPageSize = 50
)

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:       "http://localhost:8000",
			UserAgent: "scanhud-client",
		},
		View: ViewConfig{
			PageSize:      DefaultPageSize,
			Mode:          "table",
			MaxFieldWidth: 60,
		},
		Stream: StreamConfig{
			ReconnectBackoff: 3 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			PongWait:         60 * time.Second,
			ReadLimit:        1024 * 1024, // 1MB
			SubscriberBuffer: 64,
		},
		Fetch: FetchConfig{
			Timeout:  10 * time.Second,
			Debounce: 400 * time.Millisecond,
		},
		Display: DisplayConfig{
			TickInterval:   1 * time.Second,
			ResyncInterval: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1",
			Port:       9090,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Output:    "stderr",
			AddSource: false,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse based on file extension
	ext := filepath.Ext(path)
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		// Default to YAML
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config (assumed YAML): %w", err)
		}
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL must include a host")
	}

	// Validate view configuration
	if c.View.PageSize < MinPageSize || c.View.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between %d and %d", MinPageSize, MaxPageSize)
	}
	validViewModes := map[string]bool{
		"table":   true,
		"gallery": true,
	}
	if !validViewModes[c.View.Mode] {
		return fmt.Errorf("invalid view mode: %s", c.View.Mode)
	}
	if c.View.MaxFieldWidth <= 0 {
		return fmt.Errorf("max field width must be positive")
	}

	// Validate stream configuration
	if c.Stream.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect backoff must be positive")
	}
	if c.Stream.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if c.Stream.PongWait <= 0 {
		return fmt.Errorf("pong wait must be positive")
	}
	if c.Stream.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber buffer must be positive")
	}

	// Validate fetch configuration
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative")
	}
	if c.Fetch.Debounce < 0 {
		return fmt.Errorf("debounce interval cannot be negative")
	}

	// Validate display configuration
	if c.Display.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Display.ResyncInterval < 0 {
		return fmt.Errorf("resync interval cannot be negative")
	}

	// Validate monitor configuration
	if c.Monitor.Enabled {
		if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
			return fmt.Errorf("monitor port must be between 1 and 65535")
		}
		if c.Monitor.ListenAddr == "" {
			return fmt.Errorf("monitor listen address is required when the monitor is enabled")
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// WebSocketURL derives the stream endpoint from the server base URL.
// http becomes ws, https becomes wss.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// GetMonitorAddress returns the full monitor listen address.
func (c *Config) GetMonitorAddress() string {
	return fmt.Sprintf("%s:%d", c.Monitor.ListenAddr, c.Monitor.Port)
}

// IsMonitorEnabled returns true if the local metrics listener is enabled.
func (c *Config) IsMonitorEnabled() bool {
	return c.Monitor.Enabled
}

// GetLogOutput returns the log output destination.
func (c *Config) GetLogOutput() string {
	return c.Logging.Output
}
