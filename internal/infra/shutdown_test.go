package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownCoordinator_PhaseOrder(t *testing.T) {
	t.Parallel()

	coord := NewShutdownCoordinator(5*time.Second, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	coord.RegisterFunc("tracer", PhaseCleanup, record("tracer"))
	coord.RegisterFunc("http", PhaseServices, record("http"))
	coord.RegisterFunc("sessions", PhaseSessions, record("sessions"))
	coord.RegisterFunc("listener", PhaseStopAccepting, record("listener"))

	results := coord.Shutdown(context.Background())

	want := []string{"listener", "sessions", "http", "tracer"}
	if len(order) != len(want) {
		t.Fatalf("order=%v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]=%s want %s", i, order[i], want[i])
		}
	}
	if len(results) != 4 || JoinErrors(results) != nil {
		t.Fatalf("results=%+v", results)
	}
}

func TestShutdownCoordinator_ConcurrentWithinPhase(t *testing.T) {
	t.Parallel()

	coord := NewShutdownCoordinator(5*time.Second, nil)

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	blocker := func(context.Context) error {
		started.Done()
		<-release
		return nil
	}
	coord.RegisterFunc("a", PhaseServices, blocker)
	coord.RegisterFunc("b", PhaseServices, blocker)

	go func() {
		started.Wait()
		close(release)
	}()

	done := make(chan struct{})
	go func() {
		coord.Shutdown(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handlers in one phase did not run concurrently")
	}
}

func TestShutdownCoordinator_HandlerTimeout(t *testing.T) {
	t.Parallel()

	coord := NewShutdownCoordinator(5*time.Second, nil)
	coord.Register(ShutdownHandler{
		Name:    "stuck",
		Phase:   PhaseSessions,
		Timeout: 20 * time.Millisecond,
		Func: func(context.Context) error {
			select {}
		},
	})
	var cleaned atomic.Bool
	coord.RegisterFunc("cleanup", PhaseCleanup, func(context.Context) error {
		cleaned.Store(true)
		return nil
	})

	results := coord.Shutdown(context.Background())
	if len(results) != 2 {
		t.Fatalf("results=%d want 2", len(results))
	}
	if !errors.Is(results[0].Error, context.DeadlineExceeded) {
		t.Fatalf("stuck err=%v want deadline exceeded", results[0].Error)
	}
	if !cleaned.Load() {
		t.Fatalf("cleanup phase skipped after handler timeout")
	}
	if err := JoinErrors(results); err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("JoinErrors=%v", err)
	}
}

func TestShutdownCoordinator_ErrorsReported(t *testing.T) {
	t.Parallel()

	coord := NewShutdownCoordinator(time.Second, nil)
	boom := errors.New("boom")
	coord.RegisterFunc("http", PhaseServices, func(context.Context) error { return boom })

	results := coord.Shutdown(context.Background())
	if len(results) != 1 || !errors.Is(results[0].Error, boom) {
		t.Fatalf("results=%+v", results)
	}
	if err := JoinErrors(results); err == nil || err.Error() != "http: boom" {
		t.Fatalf("JoinErrors=%v", err)
	}
}

func TestShutdownCoordinator_CancelledContextStops(t *testing.T) {
	t.Parallel()

	coord := NewShutdownCoordinator(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	coord.RegisterFunc("first", PhaseStopAccepting, func(context.Context) error {
		cancel()
		return nil
	})
	var ran atomic.Bool
	coord.RegisterFunc("later", PhaseCleanup, func(context.Context) error {
		ran.Store(true)
		return nil
	})

	coord.Shutdown(ctx)
	if ran.Load() {
		t.Fatalf("later phase ran after context cancellation")
	}
}

func TestShutdownCoordinator_Once(t *testing.T) {
	t.Parallel()

	coord := NewShutdownCoordinator(time.Second, nil)
	var calls atomic.Int32
	coord.RegisterFunc("count", PhaseServices, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	if coord.IsShuttingDown() {
		t.Fatalf("IsShuttingDown before Shutdown")
	}
	first := coord.Shutdown(context.Background())
	second := coord.Shutdown(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("handler calls=%d want 1", calls.Load())
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("results=%d/%d want 1/1", len(first), len(second))
	}
	if !coord.IsShuttingDown() {
		t.Fatalf("IsShuttingDown=false after Shutdown")
	}
}

func TestShutdownPhaseString(t *testing.T) {
	t.Parallel()

	if PhaseSessions.String() != "sessions" || ShutdownPhase(9).String() != "phase-9" {
		t.Fatalf("String()=%q/%q", PhaseSessions.String(), ShutdownPhase(9).String())
	}
}
