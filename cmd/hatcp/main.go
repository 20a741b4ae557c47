// Package main provides the CLI entry point for hatcp, a line-oriented TCP
// bridge that turns keypad commands into Home Assistant REST calls.
//
// # Basic Usage
//
// Start the bridge:
//
//	hatcp serve
//
// Run a single command without a TCP client:
//
//	hatcp exec PRESS button.kitchen_keypad_bright
//
// # Environment Variables
//
//   - SUPERVISOR_TOKEN: token injected by the Home Assistant supervisor
//   - HA_TOKEN: long-lived access token for standalone installs
//   - HA_URL: hub address for standalone installs (default: http://localhost:8123)
//   - TCP_PORT: listen port (default: 8124)
//   - LOG_LEVEL: debug, info, warn or error
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/hatcp/internal/config"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	optionsPath string
	debug       bool
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errCommandFailed) {
			os.Exit(1)
		}
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "hatcp",
		Short: "hatcp - TCP command bridge for Home Assistant",
		Long: `hatcp accepts plaintext commands over TCP (keypads, telnet) and
translates them into Home Assistant REST API calls.

Commands on the wire: HELP, PING, LIST, LISTBUTTONS, PRESS, ON, OFF, LEVEL.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to an optional YAML or JSON5 configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.optionsPath, "options", config.DefaultOptionsPath,
		"Path to the add-on options file (skipped when missing)")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false,
		"Enable debug logging")

	rootCmd.AddCommand(
		buildServeCmd(opts),
		buildPingCmd(opts),
		buildListCmd(opts),
		buildExecCmd(opts),
	)
	return rootCmd
}
