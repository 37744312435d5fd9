// Package supervisor manages a bounded or unbounded collection of in-flight
// tasks, each run under a per-task timeout and joined on shutdown: a bounded
// semaphore to cap concurrency plus a WaitGroup drain on shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Supervisor runs one goroutine per admitted job, optionally bounded by a
// semaphore, each wrapped in a per-task timeout. Callers must call Wait
// during shutdown to drain outstanding tasks before the process exits.
type Supervisor struct {
	wg      sync.WaitGroup
	sem     *semaphore.Weighted
	timeout time.Duration
}

// New returns a Supervisor with the given per-task timeout. maxConcurrent
// <= 0 means unbounded: the worker loop never blocks waiting for a slot.
func New(timeout time.Duration, maxConcurrent int) *Supervisor {
	s := &Supervisor{timeout: timeout}
	if maxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return s
}

// Spawn runs task in a new goroutine under the supervisor's timeout. If the
// supervisor is bounded and no slot is free, Spawn blocks the caller (the
// worker loop) until one is available. task must perform its own cleanup of
// in-flight/failure-accounting state on every exit path; Spawn only manages
// lifecycle and timeout.
func (s *Supervisor) Spawn(ctx context.Context, jobID string, task func(ctx context.Context) error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			slog.Warn("supervisor: context canceled while waiting for a slot", slog.String("job_id", jobID))
			return
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.sem != nil {
			defer s.sem.Release(1)
		}

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := task(taskCtx); err != nil {
			slog.Warn("supervisor: task returned error", slog.String("job_id", jobID), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every spawned task has exited. Called once the worker
// loop has stopped admitting new work, so termination drains cleanly.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// WaitWithDeadline waits up to d for outstanding tasks to finish, returning
// true if they all drained in time, or false if the deadline was reached
// with tasks still running.
func (s *Supervisor) WaitWithDeadline(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
