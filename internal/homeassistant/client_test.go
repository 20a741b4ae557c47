package homeassistant

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/hatcp/internal/observability"
)

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing base url", cfg: Config{Token: "t"}, wantErr: "base_url is required"},
		{name: "relative base url", cfg: Config{BaseURL: "localhost", Token: "t"}, wantErr: "invalid base_url"},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://hub", Token: "t"}, wantErr: "scheme must be http or https"},
		{name: "missing token", cfg: Config{BaseURL: "http://hub:8123"}, wantErr: "token is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v want %q", err, tt.wantErr)
			}
		})
	}

	client, err := NewClient(Config{BaseURL: " http://hub:8123/ ", Token: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.BaseURL() != "http://hub:8123" {
		t.Fatalf("BaseURL=%q", client.BaseURL())
	}
}

func TestClient_RequestGet(t *testing.T) {
	t.Parallel()

	var (
		gotAuth        string
		gotPath        string
		gotContentType string
		gotBody        string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"API running."}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodGet, "", map[string]any{"ignored": true})
	if !res.OK() {
		t.Fatalf("expected success, got status=%d err=%v", res.StatusCode, res.Err)
	}
	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization=%q want %q", gotAuth, "Bearer token")
	}
	if gotPath != "/api/" {
		t.Fatalf("path=%q want /api/", gotPath)
	}
	if gotContentType != "" || gotBody != "" {
		t.Fatalf("GET carried a body: content-type=%q body=%q", gotContentType, gotBody)
	}
	if res.Message("") != "API running." {
		t.Fatalf("message=%q", res.Message(""))
	}
}

func TestClient_RequestPost(t *testing.T) {
	t.Parallel()

	var (
		gotMethod      string
		gotPath        string
		gotContentType string
		gotPayload     map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(`[{"entity_id":"light.kitchen","state":"on"}]`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), "post", "services/light/turn_on", map[string]any{
		"entity_id":  "light.kitchen",
		"brightness": 127,
	})
	if !res.OK() {
		t.Fatalf("expected success, got status=%d err=%v", res.StatusCode, res.Err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method=%s want POST", gotMethod)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content-type=%q", gotContentType)
	}
	if gotPayload["entity_id"] != "light.kitchen" || gotPayload["brightness"] != float64(127) {
		t.Fatalf("payload=%v", gotPayload)
	}
	if _, ok := res.Body.([]any); !ok {
		t.Fatalf("body=%T want []any", res.Body)
	}
}

func TestClient_EmptyBodyYieldsEmptyMap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodPost, "services/button/press", map[string]any{"entity_id": "button.x"})
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	body, ok := res.Body.(map[string]any)
	if !ok || len(body) != 0 {
		t.Fatalf("body=%#v want empty map", res.Body)
	}
}

func TestClient_HubErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "Entity not found"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodPost, "services/button/press", map[string]any{"entity_id": "button.x"})
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.StatusCode != http.StatusBadRequest || res.Err != nil {
		t.Fatalf("status=%d err=%v", res.StatusCode, res.Err)
	}
	if res.Message("fallback") != "Entity not found" {
		t.Fatalf("message=%q", res.Message("fallback"))
	}
	if res.Detail() != `{"message": "Entity not found"}` {
		t.Fatalf("detail=%q", res.Detail())
	}
}

func TestClient_NonJSONResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("401: Unauthorized"))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodGet, "states", nil)
	if res.StatusCode != http.StatusInternalServerError || res.Err == nil {
		t.Fatalf("status=%d err=%v", res.StatusCode, res.Err)
	}
	if string(res.Raw) != "401: Unauthorized" {
		t.Fatalf("raw=%q", res.Raw)
	}
	if !strings.Contains(res.Detail(), "decode response") {
		t.Fatalf("detail=%q", res.Detail())
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	client, err := NewClient(Config{BaseURL: "http://" + addr, Token: "token", Metrics: metrics})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodGet, "", nil)
	if res.OK() || res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", res.StatusCode)
	}
	body, ok := res.Body.(map[string]any)
	if !ok {
		t.Fatalf("body=%T want map", res.Body)
	}
	if desc, _ := body["error"].(string); desc == "" {
		t.Fatalf("missing error description: %v", body)
	}
	if got := testutil.ToFloat64(metrics.HubRequestCounter.WithLabelValues("GET", "/", "500")); got != 1 {
		t.Fatalf("hub request counter=%v want 1", got)
	}
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodGet, "states", nil)
	if res.StatusCode != http.StatusInternalServerError || res.Err == nil {
		t.Fatalf("status=%d err=%v", res.StatusCode, res.Err)
	}
}

func TestClient_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"` + strings.Repeat("x", 64) + `"`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token", MaxResponseBytes: 16})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := client.Request(context.Background(), http.MethodGet, "states", nil)
	if res.Err == nil || !strings.Contains(res.Err.Error(), "too large") {
		t.Fatalf("err=%v want too large", res.Err)
	}
}

func TestResult_Detail(t *testing.T) {
	t.Parallel()

	var nilResult *Result
	if nilResult.OK() {
		t.Fatal("nil result reported OK")
	}
	if got := nilResult.Message("fallback"); got != "fallback" {
		t.Fatalf("Message=%q", got)
	}

	multi := &Result{StatusCode: 400, Raw: []byte("{\n  \"message\": \"bad\"\n}\n")}
	if got := multi.Detail(); got != `{ "message": "bad" }` {
		t.Fatalf("Detail=%q", got)
	}
	empty := &Result{StatusCode: http.StatusNotFound}
	if got := empty.Detail(); got != "Not Found" {
		t.Fatalf("Detail=%q", got)
	}
}

func TestMetricEndpoint(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                       "/",
		"states":                 "states",
		"states/light.kitchen":   "states/{entity_id}",
		"services/light/turn_on": "services/light/turn_on",
	}
	for in, want := range cases {
		if got := metricEndpoint(in); got != want {
			t.Errorf("metricEndpoint(%q)=%q want %q", in, got, want)
		}
	}
}
