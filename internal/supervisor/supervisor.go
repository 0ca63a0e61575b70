// Package supervisor keeps the ingest and serve loops alive: each runs in its
// own goroutine and respawns after a pause whenever it returns or panics.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one supervised loop iteration. Returning an error (or panicking)
// schedules a respawn; returning ctx.Err() after cancellation ends the loop.
type Job func(ctx context.Context) error

// Supervisor restarts its registered jobs until the context is cancelled.
type Supervisor struct {
	logger   *slog.Logger
	interval time.Duration

	mu   sync.Mutex
	jobs []namedJob
}

type namedJob struct {
	name string
	run  Job
}

// New builds a supervisor that waits interval between respawns.
func New(interval time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logger, interval: interval}
}

// Add registers a job under a name used in lifecycle logs.
func (s *Supervisor) Add(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, namedJob{name: name, run: job})
}

// Run blocks until ctx is cancelled and every job loop has exited.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]namedJob, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j namedJob) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
}

func (s *Supervisor) loop(ctx context.Context, j namedJob) {
	for {
		s.logger.Info("worker online", "worker", j.name)
		err := s.runOnce(ctx, j)
		if ctx.Err() != nil {
			s.logger.Info("worker stopped", "worker", j.name)
			return
		}
		s.logger.Warn("worker offline, respawning", "worker", j.name, "error", err, "in", s.interval)

		select {
		case <-ctx.Done():
			s.logger.Info("worker stopped", "worker", j.name)
			return
		case <-time.After(s.interval):
		}
	}
}

// runOnce isolates one job run so a panic kills the iteration, not the
// process.
func (s *Supervisor) runOnce(ctx context.Context, j namedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.run(ctx)
}
