package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// LoadOptions selects the sources Load reads from.
type LoadOptions struct {
	// ConfigPath is an optional YAML or JSON5 file.
	ConfigPath string

	// OptionsPath is the add-on options file. A missing file is skipped.
	OptionsPath string

	// Port overrides every other port source when non-zero.
	Port int

	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load resolves and validates the configuration. Sources apply in order:
// defaults, config file, options file, environment, then opts.Port.
func Load(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{}
	if strings.TrimSpace(opts.ConfigPath) != "" {
		raw, err := LoadRaw(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.ConfigPath, err)
		}
		decoded, err := decodeRawConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = decoded
	}
	cfg.HomeAssistant.Token = strings.TrimSpace(cfg.HomeAssistant.Token)
	if cfg.HomeAssistant.Token != "" {
		cfg.tokenSource = TokenSourceManual
	}

	if strings.TrimSpace(opts.OptionsPath) != "" {
		if err := applyOptionsFile(cfg, opts.OptionsPath); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}

	if cfg.HomeAssistant.URL == "" {
		if cfg.tokenSource == TokenSourceSupervisor {
			cfg.HomeAssistant.URL = SupervisorURL
		} else {
			cfg.HomeAssistant.URL = ManualURL
		}
	}
	cfg.HomeAssistant.URL = strings.TrimRight(cfg.HomeAssistant.URL, "/")

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the process environment. A supervisor token always wins
// and pins the supervisor URL.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if token := strings.TrimSpace(getenv("SUPERVISOR_TOKEN")); token != "" {
		cfg.HomeAssistant.Token = token
		cfg.HomeAssistant.URL = SupervisorURL
		cfg.tokenSource = TokenSourceSupervisor
	} else {
		if token := strings.TrimSpace(getenv("HA_TOKEN")); token != "" {
			cfg.HomeAssistant.Token = token
			cfg.tokenSource = TokenSourceManual
		}
		if haURL := strings.TrimSpace(getenv("HA_URL")); haURL != "" {
			cfg.HomeAssistant.URL = haURL
		}
	}

	if value := strings.TrimSpace(getenv("TCP_PORT")); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: TCP_PORT %q is not a port number", value)
		}
		cfg.Server.Port = port
	}
	if level := strings.TrimSpace(getenv("LOG_LEVEL")); level != "" {
		cfg.Logging.Level = level
	}
	return nil
}

// applyOptionsFile reads the supervisor's add-on options. Keys other than
// port, log_level and idle_timeout are ignored.
func applyOptionsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read options %s: %w", path, err)
	}
	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse options %s: %w", path, err)
	}

	if value, ok := raw["port"]; ok && value != nil {
		port, err := intValue(value)
		if err != nil {
			return fmt.Errorf("config: options port: %w", err)
		}
		cfg.Server.Port = port
	}
	if value, ok := raw["log_level"].(string); ok && strings.TrimSpace(value) != "" {
		cfg.Logging.Level = strings.TrimSpace(value)
	}
	if value, ok := raw["idle_timeout"]; ok && value != nil {
		timeout, err := durationValue(value)
		if err != nil {
			return fmt.Errorf("config: options idle_timeout: %w", err)
		}
		cfg.Server.IdleTimeout = timeout
	}
	return nil
}

func intValue(value any) (int, error) {
	switch typed := value.(type) {
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("%v is not an integer", typed)
		}
		return int(typed), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(typed))
	default:
		return 0, fmt.Errorf("unsupported value %v", value)
	}
}

// durationValue accepts a number of seconds or a Go duration string.
func durationValue(value any) (time.Duration, error) {
	switch typed := value.(type) {
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	case string:
		typed = strings.TrimSpace(typed)
		if secs, err := strconv.ParseFloat(typed, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(typed)
	default:
		return 0, fmt.Errorf("unsupported value %v", value)
	}
}

// LoadRaw reads a configuration file into a raw map, expanding ${ENV}
// references first.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseRawBytes([]byte(os.ExpandEnv(string(data))), path)
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// decodeRawConfig re-encodes raw as YAML and decodes it strictly, so JSON5
// and YAML files share one schema and unknown keys are rejected.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: serialize: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}
	return &cfg, nil
}
