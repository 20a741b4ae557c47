// Package bridge runs the TCP side of the command bridge: the accept loop and
// one line-oriented session per connection.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/hatcp/internal/backoff"
	hatcpconfig "github.com/haasonsaas/hatcp/internal/config"
	"github.com/haasonsaas/hatcp/internal/observability"
)

const (
	readSize = 1024
	prompt   = "\r\n> "
)

// Handler turns one command line into one reply.
type Handler interface {
	Handle(ctx context.Context, line string) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, line string) string

func (f HandlerFunc) Handle(ctx context.Context, line string) string {
	return f(ctx, line)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Addr is the host:port to listen on.
	Addr string

	// Handler answers command lines. Required.
	Handler Handler

	// Version is shown in the greeting.
	Version string

	// IdleTimeout closes a session after this long without input. Zero
	// disables it.
	IdleTimeout time.Duration

	// MaxLineBytes closes a session whose unterminated input exceeds it.
	MaxLineBytes int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Server accepts TCP connections and runs a session for each.
type Server struct {
	config   ServerConfig
	greeting string
	logger   *slog.Logger
	metrics  *observability.Metrics

	listener net.Listener

	sessions   map[*session]struct{}
	sessionsMu sync.Mutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	acceptWG  sync.WaitGroup
	sessionWG sync.WaitGroup
}

// NewServer creates a Server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("bridge: handler is required")
	}
	if config.Addr == "" {
		config.Addr = fmt.Sprintf(":%d", hatcpconfig.DefaultPort)
	}
	if config.Version == "" {
		config.Version = hatcpconfig.ProtocolVersion
	}
	if config.MaxLineBytes <= 0 {
		config.MaxLineBytes = hatcpconfig.DefaultMaxLineBytes
	}
	if config.IdleTimeout < 0 {
		return nil, fmt.Errorf("bridge: idle timeout must not be negative")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   config,
		greeting: fmt.Sprintf("HA-TCP Bridge v%s Ready. Type HELP for commands.%s", config.Version, prompt),
		logger:   logger.With("component", "bridge"),
		metrics:  config.Metrics,
		sessions: make(map[*session]struct{}),
	}, nil
}

// Start listens and runs the accept loop in the background. It returns once
// the listener is bound. Sessions inherit ctx.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("bridge: server already running")
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("bridge: listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.logger.Info("tcp bridge listening", "addr", listener.Addr().String())

	s.acceptWG.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ActiveSessions returns the number of open sessions.
func (s *Server) ActiveSessions() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// Stop stops accepting and closes every session.
func (s *Server) Stop(ctx context.Context) error {
	s.StopAccepting()
	return s.CloseSessions(ctx)
}

// StopAccepting closes the listener and waits for the accept loop to exit.
// Open sessions keep running.
func (s *Server) StopAccepting() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("closing listener failed", "error", err)
	}
	s.acceptWG.Wait()
}

// CloseSessions closes every open connection and waits for the session
// goroutines, bounded by ctx.
func (s *Server) CloseSessions(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.sessionsMu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.sessionsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessionWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bridge: waiting for sessions: %w", ctx.Err())
	}
}

func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()

	policy := backoff.AcceptPolicy()
	failures := 0
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			failures++
			s.logger.Warn("accept failed", "error", err, "attempt", failures)
			s.metrics.RecordError("bridge", "accept")
			if backoff.Sleep(s.ctx, policy, failures) != nil {
				return
			}
			continue
		}
		failures = 0

		sess := newSession(s, conn)
		s.sessionsMu.Lock()
		s.sessions[sess] = struct{}{}
		s.sessionsMu.Unlock()

		s.sessionWG.Add(1)
		go func() {
			defer s.sessionWG.Done()
			sess.run()

			s.sessionsMu.Lock()
			delete(s.sessions, sess)
			s.sessionsMu.Unlock()
		}()
	}
}
