// Package gateway assembles the bridge: hub client, command dispatcher, TCP
// server and the optional HTTP status server.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/hatcp/internal/bridge"
	"github.com/haasonsaas/hatcp/internal/commands"
	"github.com/haasonsaas/hatcp/internal/config"
	"github.com/haasonsaas/hatcp/internal/homeassistant"
	"github.com/haasonsaas/hatcp/internal/infra"
	"github.com/haasonsaas/hatcp/internal/observability"
)

// ManagedServerConfig configures a ManagedServer.
type ManagedServerConfig struct {
	Config *config.Config
	Logger *slog.Logger

	// Registry receives the bridge metrics. A fresh registry with Go and
	// process collectors is created when nil.
	Registry *prometheus.Registry

	// Version is announced in the greeting and HELP.
	Version string
}

// ManagedServer owns every long-running component and shuts them down in
// phases.
type ManagedServer struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	hub        *homeassistant.Client
	dispatcher *commands.Dispatcher
	bridge     *bridge.Server
	status     *statusServer

	tracerShutdown func(context.Context) error
	shutdown       *infra.ShutdownCoordinator
	startOnce      sync.Once
	startErr       error
}

// Components bundles the request path shared by the server and the one-shot
// CLI commands.
type Components struct {
	Hub        *homeassistant.Client
	Dispatcher *commands.Dispatcher
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer

	// ShutdownTracer flushes pending spans.
	ShutdownTracer func(context.Context) error
}

// BuildComponents creates the tracer, metrics, hub client and dispatcher
// for cfg. A nil reg registers the metrics on a private registry.
func BuildComponents(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, version string) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	tracing := cfg.Observability.Tracing
	traceCfg := observability.TraceConfig{
		ServiceName:    tracing.ServiceName,
		ServiceVersion: version,
		Environment:    tracing.Environment,
		SamplingRate:   tracing.SamplingRate,
		Attributes:     tracing.Attributes,
		EnableInsecure: tracing.Insecure,
	}
	if tracing.Enabled {
		traceCfg.Endpoint = tracing.Endpoint
	}
	tracer, shutdownTracer := observability.NewTracer(traceCfg)
	metrics := observability.NewMetrics(reg)

	hub, err := homeassistant.NewClient(homeassistant.Config{
		BaseURL:          cfg.HomeAssistant.URL,
		Token:            cfg.HomeAssistant.Token,
		Timeout:          cfg.HomeAssistant.Timeout,
		MaxResponseBytes: cfg.HomeAssistant.MaxResponseBytes,
		Logger:           logger,
		Metrics:          metrics,
		Tracer:           tracer,
	})
	if err != nil {
		_ = shutdownTracer(context.Background())
		return nil, err
	}

	dispatcher := commands.NewDispatcher(commands.DispatcherConfig{
		Hub:       hub,
		Version:   version,
		ListLimit: cfg.Server.ListLimit,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})

	return &Components{
		Hub:            hub,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Tracer:         tracer,
		ShutdownTracer: shutdownTracer,
	}, nil
}

// NewManagedServer wires every component from cfg.Config. Nothing listens
// until Start.
func NewManagedServer(cfg ManagedServerConfig) (*ManagedServer, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("gateway: config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = config.ProtocolVersion
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	components, err := BuildComponents(cfg.Config, logger, registry, version)
	if err != nil {
		return nil, err
	}

	server, err := bridge.NewServer(bridge.ServerConfig{
		Addr:         cfg.Config.ListenAddr(),
		Handler:      components.Dispatcher,
		Version:      version,
		IdleTimeout:  cfg.Config.Server.IdleTimeout,
		MaxLineBytes: cfg.Config.Server.MaxLineBytes,
		Logger:       logger,
		Metrics:      components.Metrics,
	})
	if err != nil {
		_ = components.ShutdownTracer(context.Background())
		return nil, err
	}

	m := &ManagedServer{
		config:         cfg.Config,
		logger:         logger.With("component", "gateway"),
		registry:       registry,
		hub:            components.Hub,
		dispatcher:     components.Dispatcher,
		bridge:         server,
		tracerShutdown: components.ShutdownTracer,
		shutdown:       infra.NewShutdownCoordinator(10*time.Second, logger),
	}
	if cfg.Config.Metrics.Enabled {
		m.status = newStatusServer(cfg.Config.MetricsAddr(), registry, server.ActiveSessions, logger)
	}
	return m, nil
}

// Start probes the hub, then starts the TCP bridge and the status server.
// An unreachable hub is logged, not fatal.
func (m *ManagedServer) Start(ctx context.Context) error {
	m.startOnce.Do(func() {
		m.startErr = m.start(ctx)
	})
	return m.startErr
}

func (m *ManagedServer) start(ctx context.Context) error {
	m.logger.Info("starting tcp bridge",
		"hub_url", m.hub.BaseURL(),
		"token_source", string(m.config.TokenSource()),
		"listen", m.config.ListenAddr(),
	)
	m.shutdown.RegisterFunc("tracer", infra.PhaseCleanup, m.tracerShutdown)
	m.probeHub(ctx)

	if err := m.bridge.Start(ctx); err != nil {
		return err
	}
	m.shutdown.RegisterFunc("bridge-listener", infra.PhaseStopAccepting, func(context.Context) error {
		m.bridge.StopAccepting()
		return nil
	})
	m.shutdown.RegisterFunc("bridge-sessions", infra.PhaseSessions, m.bridge.CloseSessions)

	if m.status != nil {
		if err := m.status.Start(); err != nil {
			return err
		}
		m.shutdown.RegisterFunc("status-http", infra.PhaseServices, m.status.Stop)
	}
	return nil
}

func (m *ManagedServer) probeHub(ctx context.Context) {
	res := m.hub.Request(ctx, http.MethodGet, "", nil)
	if res.OK() {
		m.logger.Info("connected to Home Assistant")
		return
	}
	m.logger.Warn("cannot reach Home Assistant, commands will fail until it is up",
		"status", res.StatusCode,
		"detail", res.Detail(),
	)
}

// Stop shuts down in phases: stop accepting, close sessions, stop the status
// server, flush traces.
func (m *ManagedServer) Stop(ctx context.Context) error {
	return infra.JoinErrors(m.shutdown.Shutdown(ctx))
}

// BridgeAddr is the bound TCP address, or nil before Start.
func (m *ManagedServer) BridgeAddr() net.Addr {
	return m.bridge.Addr()
}

// StatusAddr is the bound status server address, or nil when disabled.
func (m *ManagedServer) StatusAddr() net.Addr {
	if m.status == nil {
		return nil
	}
	return m.status.Addr()
}

// Registry returns the metrics registry served on /metrics.
func (m *ManagedServer) Registry() *prometheus.Registry {
	return m.registry
}

// Dispatcher returns the command dispatcher used by every session.
func (m *ManagedServer) Dispatcher() *commands.Dispatcher {
	return m.dispatcher
}
