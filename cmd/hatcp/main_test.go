package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "ping", "list", "exec"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
	if cmd.PersistentFlags().Lookup("options").DefValue != "/data/options.json" {
		t.Fatalf("unexpected default options path")
	}
}

// setupHub starts a fake hub and writes a config file pointing at it.
func setupHub(t *testing.T) (configPath string, presses *[]string) {
	t.Helper()
	t.Setenv("SUPERVISOR_TOKEN", "")
	t.Setenv("HA_TOKEN", "")
	t.Setenv("HA_URL", "")
	t.Setenv("TCP_PORT", "")
	t.Setenv("LOG_LEVEL", "")

	var pressed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/":
			_, _ = w.Write([]byte(`{"message":"API running."}`))
		case "/api/states":
			_, _ = w.Write([]byte(`[
				{"entity_id":"light.kitchen","state":"on","attributes":{"friendly_name":"Kitchen"}},
				{"entity_id":"button.door","state":"unknown","attributes":{"friendly_name":"Door"}}
			]`))
		case "/api/services/button/press":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			pressed = append(pressed, body["entity_id"].(string))
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	configPath = filepath.Join(dir, "hatcp.yaml")
	contents := "homeassistant:\n  url: " + srv.URL + "\n  token: test-token\nlogging:\n  level: error\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, &pressed
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{"--options", filepath.Join(t.TempDir(), "missing.json")}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestExecPress(t *testing.T) {
	configPath, presses := setupHub(t)

	out, err := runCLI(t, "--config", configPath, "exec", "PRESS", "door")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if strings.TrimSpace(out) != "OK: Pressed button.door" {
		t.Fatalf("output=%q", out)
	}
	if len(*presses) != 1 || (*presses)[0] != "button.door" {
		t.Fatalf("presses=%v", *presses)
	}
}

func TestPingAndList(t *testing.T) {
	configPath, _ := setupHub(t)

	out, err := runCLI(t, "--config", configPath, "ping")
	if err != nil || strings.TrimSpace(out) != "OK: Connected to Home Assistant" {
		t.Fatalf("ping output=%q err=%v", out, err)
	}

	out, err = runCLI(t, "--config", configPath, "list")
	if err != nil || !strings.HasPrefix(out, "OK: 2 entities\n") {
		t.Fatalf("list output=%q err=%v", out, err)
	}

	out, err = runCLI(t, "--config", configPath, "list", "--buttons")
	if err != nil || strings.TrimSpace(out) != "OK: 1 buttons\nbutton.door - Door" {
		t.Fatalf("list --buttons output=%q err=%v", out, err)
	}
}

func TestExecErrorReplyFails(t *testing.T) {
	configPath, _ := setupHub(t)

	out, err := runCLI(t, "--config", configPath, "exec", "LEVEL", "light.kitchen", "500")
	if !errors.Is(err, errCommandFailed) {
		t.Fatalf("err=%v want errCommandFailed", err)
	}
	if out != "ERR: Level must be 0-100\n" {
		t.Fatalf("output=%q", out)
	}
}

func TestServeWithoutTokenFails(t *testing.T) {
	t.Setenv("SUPERVISOR_TOKEN", "")
	t.Setenv("HA_TOKEN", "")

	out, err := runCLI(t, "serve")
	if err == nil {
		t.Fatalf("expected error without token")
	}
	if !strings.Contains(out, "No API token found") {
		t.Fatalf("missing operator hint in %q", out)
	}
	if !strings.Contains(out, "Error: failed to load config") {
		t.Fatalf("config errors should still be reported by cobra, got %q", out)
	}
}
