// Package infra holds process lifecycle helpers shared by the gateway.
package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownPhase orders shutdown work. Lower phases run first.
type ShutdownPhase int

const (
	// PhaseStopAccepting stops taking new connections.
	PhaseStopAccepting ShutdownPhase = iota
	// PhaseSessions closes live client sessions.
	PhaseSessions
	// PhaseServices stops auxiliary servers.
	PhaseServices
	// PhaseCleanup flushes telemetry and releases what is left.
	PhaseCleanup
	phaseCount
)

func (p ShutdownPhase) String() string {
	switch p {
	case PhaseStopAccepting:
		return "stop-accepting"
	case PhaseSessions:
		return "sessions"
	case PhaseServices:
		return "services"
	case PhaseCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("phase-%d", p)
	}
}

// ShutdownFunc releases one component. ctx ends when its time budget does.
type ShutdownFunc func(ctx context.Context) error

// ShutdownHandler is one registered step.
type ShutdownHandler struct {
	Name    string
	Phase   ShutdownPhase
	Func    ShutdownFunc
	Timeout time.Duration // 0 uses the coordinator default
}

// ShutdownResult reports how one handler finished.
type ShutdownResult struct {
	Name     string
	Phase    ShutdownPhase
	Duration time.Duration
	Error    error
}

// ShutdownCoordinator runs registered handlers phase by phase. Handlers in
// the same phase run concurrently. Shutdown happens at most once.
type ShutdownCoordinator struct {
	mu             sync.Mutex
	handlers       [phaseCount][]ShutdownHandler
	defaultTimeout time.Duration
	logger         *slog.Logger

	once         sync.Once
	shuttingDown atomic.Bool
	results      []ShutdownResult
}

// NewShutdownCoordinator creates a coordinator. defaultTimeout bounds each
// handler that sets no Timeout of its own.
func NewShutdownCoordinator(defaultTimeout time.Duration, logger *slog.Logger) *ShutdownCoordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownCoordinator{
		defaultTimeout: defaultTimeout,
		logger:         logger.With("component", "shutdown"),
	}
}

// Register adds a handler. Out-of-range phases run during cleanup.
func (c *ShutdownCoordinator) Register(handler ShutdownHandler) {
	if handler.Func == nil {
		return
	}
	if handler.Phase < 0 || handler.Phase >= phaseCount {
		handler.Phase = PhaseCleanup
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[handler.Phase] = append(c.handlers[handler.Phase], handler)
}

// RegisterFunc registers fn under name in phase.
func (c *ShutdownCoordinator) RegisterFunc(name string, phase ShutdownPhase, fn ShutdownFunc) {
	c.Register(ShutdownHandler{Name: name, Phase: phase, Func: fn})
}

// Shutdown runs every phase in order and returns the per-handler results.
// A cancelled ctx stops before the next phase. Later calls return the
// results of the first one.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) []ShutdownResult {
	c.once.Do(func() {
		c.shuttingDown.Store(true)
		start := time.Now()
		c.logger.Info("starting graceful shutdown")

		var results []ShutdownResult
		for phase := ShutdownPhase(0); phase < phaseCount; phase++ {
			c.mu.Lock()
			handlers := append([]ShutdownHandler(nil), c.handlers[phase]...)
			c.mu.Unlock()
			if len(handlers) == 0 {
				continue
			}

			c.logger.Debug("shutdown phase", "phase", phase.String(), "handlers", len(handlers))
			results = append(results, c.runPhase(ctx, handlers)...)

			if ctx.Err() != nil {
				c.logger.Warn("shutdown deadline reached", "phase", phase.String())
				break
			}
		}

		c.logger.Info("graceful shutdown complete", "duration", time.Since(start))
		c.mu.Lock()
		c.results = results
		c.mu.Unlock()
	})
	return c.Results()
}

func (c *ShutdownCoordinator) runPhase(ctx context.Context, handlers []ShutdownHandler) []ShutdownResult {
	results := make([]ShutdownResult, len(handlers))
	var wg sync.WaitGroup
	for i, handler := range handlers {
		i, handler := i, handler
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.runHandler(ctx, handler)
		}()
	}
	wg.Wait()
	return results
}

func (c *ShutdownCoordinator) runHandler(ctx context.Context, handler ShutdownHandler) ShutdownResult {
	timeout := handler.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- handler.Func(handlerCtx)
	}()

	result := ShutdownResult{Name: handler.Name, Phase: handler.Phase}
	select {
	case err := <-done:
		result.Error = err
	case <-handlerCtx.Done():
		result.Error = handlerCtx.Err()
	}
	result.Duration = time.Since(start)

	if result.Error != nil {
		c.logger.Warn("shutdown handler failed",
			"handler", handler.Name,
			"phase", handler.Phase.String(),
			"error", result.Error,
		)
	}
	return result
}

// IsShuttingDown reports whether Shutdown has started.
func (c *ShutdownCoordinator) IsShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Results returns the results of the completed shutdown, if any.
func (c *ShutdownCoordinator) Results() []ShutdownResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ShutdownResult(nil), c.results...)
}

// JoinErrors combines the handler errors in results, tagged by handler name.
func JoinErrors(results []ShutdownResult) error {
	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Error))
		}
	}
	return errors.Join(errs...)
}
