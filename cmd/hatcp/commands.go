package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the TCP bridge.
func buildServeCmd(opts *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TCP bridge",
		Long: `Start the TCP bridge.

The server will:
1. Resolve configuration from the config file, add-on options and environment
2. Probe Home Assistant once (a failed probe is only logged)
3. Accept TCP connections and answer one reply per command line
4. Optionally serve /healthz and /metrics over HTTP

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Standalone install
  HA_TOKEN=... HA_URL=http://homeassistant.local:8123 hatcp serve

  # Custom port with debug logging
  hatcp serve --port 9000 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.ErrOrStderr(), opts, port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides TCP_PORT and the options file)")
	return cmd
}

// buildPingCmd creates the "ping" command.
func buildPingCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to Home Assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, opts, "PING")
		},
	}
}

// buildListCmd creates the "list" command.
func buildListCmd(opts *globalOptions) *cobra.Command {
	var buttons bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List controllable entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := "LIST"
			if buttons {
				line = "LISTBUTTONS"
			}
			return runOneShot(cmd, opts, line)
		},
	}
	cmd.Flags().BoolVar(&buttons, "buttons", false, "List button entities only")
	return cmd
}

// buildExecCmd creates the "exec" command that runs one protocol command.
func buildExecCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Run one bridge command and print the reply",
		Example: `  hatcp exec ON light.living_room
  hatcp exec LEVEL light.living_room 50`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, opts, strings.Join(args, " "))
		},
	}
}
