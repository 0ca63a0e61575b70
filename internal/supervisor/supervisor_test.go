package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSupervisor(interval time.Duration) *Supervisor {
	return New(interval, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRespawnsFailingJob(t *testing.T) {
	s := newTestSupervisor(time.Millisecond)

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s.Add("flaky", func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			cancel()
			return ctx.Err()
		}
		return errors.New("boom")
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	if got := runs.Load(); got < 3 {
		t.Errorf("job ran %d times, want at least 3", got)
	}
}

func TestRecoversFromPanic(t *testing.T) {
	s := newTestSupervisor(time.Millisecond)

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s.Add("panicky", func(ctx context.Context) error {
		if runs.Add(1) >= 2 {
			cancel()
			return ctx.Err()
		}
		panic("kaboom")
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not survive the panic")
	}
	if got := runs.Load(); got < 2 {
		t.Errorf("job ran %d times, want at least 2", got)
	}
}

func TestRunsJobsIndependently(t *testing.T) {
	s := newTestSupervisor(time.Millisecond)

	var aRuns, bRuns atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Add("a", func(ctx context.Context) error {
		aRuns.Add(1)
		return errors.New("a fails fast")
	})
	s.Add("b", func(ctx context.Context) error {
		bRuns.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for aRuns.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("job a never respawned")
		case <-time.After(time.Millisecond):
		}
	}
	if bRuns.Load() != 1 {
		t.Errorf("job b ran %d times while healthy, want 1", bRuns.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}
