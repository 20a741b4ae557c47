package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/hatcp/internal/config"
	"github.com/haasonsaas/hatcp/internal/gateway"
	"github.com/haasonsaas/hatcp/internal/observability"
)

// errCommandFailed marks a one-shot command whose reply was an ERR line.
var errCommandFailed = errors.New("command failed")

const missingTokenHint = `ERROR: No API token found!
For add-on: ensure homeassistant_api: true in the add-on config.yaml
For standalone: set the HA_TOKEN environment variable (and HA_URL if needed)
`

// loadConfig resolves the configuration and installs the configured logger
// as the default.
func loadConfig(stderr io.Writer, opts *globalOptions, port int) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigPath:  opts.configPath,
		OptionsPath: opts.optionsPath,
		Port:        port,
	})
	if err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			fmt.Fprint(stderr, missingTokenHint)
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if opts.debug {
		level = "debug"
	}
	slog.SetDefault(observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	}))
	return cfg, nil
}

// runServe implements the serve command: run until SIGINT/SIGTERM, then stop
// gracefully within 30 seconds.
func runServe(ctx context.Context, stderr io.Writer, opts *globalOptions, port int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(stderr, opts, port)
	if err != nil {
		return err
	}

	slog.Info("starting hatcp",
		"version", version,
		"commit", commit,
		"config", opts.configPath,
		"debug", opts.debug,
	)
	slog.Info("configuration loaded",
		"hub_url", cfg.HomeAssistant.URL,
		"token_source", strings.ToUpper(string(cfg.TokenSource())),
		"listen", cfg.ListenAddr(),
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	server, err := gateway.NewManagedServer(gateway.ManagedServerConfig{
		Config: cfg,
		Logger: slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = server.Stop(stopCtx)
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	slog.Info("hatcp started", "addr", server.BridgeAddr().String())

	<-ctx.Done()
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("hatcp stopped gracefully")
	return nil
}

// runOneShot dispatches a single command line and prints the reply. An ERR
// reply is printed once; cobra's error line is silenced for it.
func runOneShot(cmd *cobra.Command, opts *globalOptions, line string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd.ErrOrStderr(), opts, 0)
	if err != nil {
		return err
	}

	components, err := gateway.BuildComponents(cfg, slog.Default(), nil, "")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = components.ShutdownTracer(flushCtx)
	}()

	reply := components.Dispatcher.Handle(ctx, line)
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	if strings.HasPrefix(reply, "ERR:") {
		cmd.SilenceErrors = true
		return errCommandFailed
	}
	return nil
}
