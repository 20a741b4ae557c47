// Package config resolves the bridge configuration from defaults, an optional
// structured file, the add-on options file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// SupervisorURL is the hub address used when running as a supervised add-on.
	SupervisorURL = "http://supervisor/core"

	// ManualURL is the hub address used with a manually supplied token when no
	// URL is configured.
	ManualURL = "http://localhost:8123"

	// ProtocolVersion is announced in the session greeting and HELP.
	ProtocolVersion = "1.0.0"

	DefaultPort             = 8124
	DefaultHost             = "0.0.0.0"
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = int64(1 << 20)
	DefaultMaxLineBytes     = 4096
	DefaultListLimit        = 50
	DefaultMetricsPort      = 9124

	// DefaultOptionsPath is where the supervisor mounts the add-on options.
	DefaultOptionsPath = "/data/options.json"
)

// TokenSource records where the hub credential came from.
type TokenSource string

const (
	TokenSourceNone       TokenSource = ""
	TokenSourceSupervisor TokenSource = "supervisor"
	TokenSourceManual     TokenSource = "manual"
)

// Config is the resolved bridge configuration. It is read-only after Load.
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Observability ObservabilityConfig `yaml:"observability"`

	tokenSource TokenSource
}

// HomeAssistantConfig configures the hub REST client.
type HomeAssistantConfig struct {
	// URL is the hub base address, without the /api suffix.
	URL string `yaml:"url"`

	// Token is the long-lived bearer credential.
	Token string `yaml:"token"`

	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxResponseBytes caps the size of a response body.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// ServerConfig configures the TCP listener and sessions.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// IdleTimeout closes a session that sends nothing for this long. Zero
	// disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxLineBytes closes a session whose unterminated input grows past it.
	MaxLineBytes int `yaml:"max_line_bytes"`

	// ListLimit caps the entity lines in a LIST reply.
	ListLimit int `yaml:"list_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the HTTP status server that exposes /healthz and
// /metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ObservabilityConfig configures tracing.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Endpoint     string            `yaml:"endpoint"`
	ServiceName  string            `yaml:"service_name"`
	Environment  string            `yaml:"environment"`
	SamplingRate float64           `yaml:"sampling_rate"`
	Insecure     bool              `yaml:"insecure"`
	Attributes   map[string]string `yaml:"attributes"`
}

// TokenSource reports where the hub token was resolved from.
func (c *Config) TokenSource() TokenSource {
	if c == nil {
		return TokenSourceNone
	}
	return c.tokenSource
}

// ListenAddr is the host:port the bridge listens on.
func (c *Config) ListenAddr() string {
	return joinHostPort(c.Server.Host, c.Server.Port)
}

// MetricsAddr is the host:port of the HTTP status server.
func (c *Config) MetricsAddr() string {
	return joinHostPort(c.Metrics.Host, c.Metrics.Port)
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func applyDefaults(cfg *Config) {
	if cfg.HomeAssistant.Timeout == 0 {
		cfg.HomeAssistant.Timeout = DefaultTimeout
	}
	if cfg.HomeAssistant.MaxResponseBytes == 0 {
		cfg.HomeAssistant.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxLineBytes == 0 {
		cfg.Server.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.Server.ListLimit == 0 {
		cfg.Server.ListLimit = DefaultListLimit
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = DefaultHost
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "hatcp"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
}

// ErrMissingToken matches a ValidationError caused by an absent hub token.
var ErrMissingToken = errors.New("config: no Home Assistant token")

// ValidationError aggregates every problem found in a Config.
type ValidationError struct {
	Issues []string

	missingToken bool
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrMissingToken && e != nil && e.missingToken
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config: invalid configuration"
	}
	return "config: " + strings.Join(e.Issues, "; ")
}

// Validate checks a resolved Config. A missing token is always an error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Issues: []string{"config is nil"}}
	}
	var issues []string
	missingToken := strings.TrimSpace(cfg.HomeAssistant.Token) == ""

	if missingToken {
		issues = append(issues, "homeassistant.token is required (set SUPERVISOR_TOKEN or HA_TOKEN)")
	}
	if parsed, err := url.Parse(cfg.HomeAssistant.URL); err != nil || parsed.Host == "" {
		issues = append(issues, fmt.Sprintf("homeassistant.url %q is not an absolute URL", cfg.HomeAssistant.URL))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		issues = append(issues, "homeassistant.url scheme must be http or https")
	}
	if cfg.HomeAssistant.Timeout < 0 {
		issues = append(issues, "homeassistant.timeout must be positive")
	}
	if cfg.HomeAssistant.MaxResponseBytes < 0 {
		issues = append(issues, "homeassistant.max_response_bytes must be positive")
	}
	if !validPort(cfg.Server.Port) {
		issues = append(issues, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Server.IdleTimeout < 0 {
		issues = append(issues, "server.idle_timeout must not be negative")
	}
	if cfg.Server.MaxLineBytes < 0 {
		issues = append(issues, "server.max_line_bytes must be positive")
	}
	if cfg.Server.ListLimit < 0 {
		issues = append(issues, "server.list_limit must be positive")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json or text", cfg.Logging.Format))
	}
	if cfg.Metrics.Enabled && !validPort(cfg.Metrics.Port) {
		issues = append(issues, fmt.Sprintf("metrics.port %d out of range", cfg.Metrics.Port))
	}
	if rate := cfg.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		issues = append(issues, "observability.tracing.sampling_rate must be between 0 and 1")
	}
	if cfg.Observability.Tracing.Enabled && strings.TrimSpace(cfg.Observability.Tracing.Endpoint) == "" {
		issues = append(issues, "observability.tracing.endpoint is required when tracing is enabled")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues, missingToken: missingToken}
	}
	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
