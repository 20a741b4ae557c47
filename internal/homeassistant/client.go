// Package homeassistant is a small client for the Home Assistant REST API.
//
// Client issues the raw requests and never returns a Go error: every outcome,
// including transport failures, is normalized into a *Result. Lister builds
// the entity listings on top of any Requester.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/hatcp/internal/observability"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultMaxResponseBytes = int64(1 << 20) // 1MB
)

// Requester issues a request against the Home Assistant API. endpoint is
// relative to /api/ (for example "states" or "services/light/turn_on").
type Requester interface {
	Request(ctx context.Context, method, endpoint string, body any) *Result
}

// Config configures the Home Assistant client.
type Config struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	MaxResponseBytes int64
	HTTPClient       *http.Client
	Logger           *slog.Logger
	Metrics          *observability.Metrics
	Tracer           *observability.Tracer
}

// Client wraps Home Assistant's REST API.
type Client struct {
	baseURL  string
	token    string
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewClient creates a Home Assistant REST API client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("homeassistant: base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed == nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return nil, fmt.Errorf("homeassistant: invalid base_url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("homeassistant: base_url scheme must be http or https")
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("homeassistant: token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  baseURL,
		token:    token,
		client:   client,
		maxBytes: maxBytes,
		logger:   logger.With("component", "homeassistant"),
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
	}, nil
}

// BaseURL returns the normalized base URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs method against /api/<endpoint>. A non-nil body is sent as
// JSON. Transport and decode failures are reported as status 500 with an
// {"error": ...} body.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) *Result {
	if ctx == nil {
		ctx = context.Background()
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	endpoint = strings.TrimLeft(strings.TrimSpace(endpoint), "/")

	ctx, span := c.tracer.TraceHubRequest(ctx, method, endpoint)
	defer span.End()

	start := time.Now()
	result := c.do(ctx, method, endpoint, body)
	elapsed := time.Since(start)

	c.metrics.RecordHubRequest(method, metricEndpoint(endpoint), strconv.Itoa(result.StatusCode), elapsed.Seconds())
	if result.Err != nil {
		observability.RecordError(span, result.Err)
		c.metrics.RecordError("hub", "request")
		c.logger.WarnContext(ctx, "home assistant request failed",
			"method", method,
			"endpoint", endpoint,
			"error", result.Err,
		)
	} else {
		c.logger.DebugContext(ctx, "home assistant request",
			"method", method,
			"endpoint", endpoint,
			"status", result.StatusCode,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return result
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) *Result {
	var reader io.Reader
	if body != nil && method != http.MethodGet {
		encoded, err := json.Marshal(body)
		if err != nil {
			return failure(fmt.Errorf("homeassistant: encode body: %w", err), nil)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/"+endpoint, reader)
	if err != nil {
		return failure(fmt.Errorf("homeassistant: create request: %w", err), nil)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failure(fmt.Errorf("homeassistant: request failed: %w", err), nil)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return failure(fmt.Errorf("homeassistant: read response: %w", err), nil)
	}
	if int64(len(data)) > c.maxBytes {
		return failure(fmt.Errorf("homeassistant: response too large"), nil)
	}

	result := &Result{StatusCode: resp.StatusCode, Raw: data}
	if len(bytes.TrimSpace(data)) == 0 {
		result.Body = map[string]any{}
		return result
	}
	if err := json.Unmarshal(data, &result.Body); err != nil {
		return failure(fmt.Errorf("homeassistant: decode response (status %d): %w", resp.StatusCode, err), data)
	}
	return result
}

// metricEndpoint keeps label cardinality bounded to the fixed endpoint set.
func metricEndpoint(endpoint string) string {
	if endpoint == "" {
		return "/"
	}
	if strings.HasPrefix(endpoint, "states/") {
		return "states/{entity_id}"
	}
	return endpoint
}
