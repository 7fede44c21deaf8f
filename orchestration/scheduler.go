// Package orchestration provides a periodic background job runner for
// maintenance work that the kernel's per-run execution path doesn't drive
// itself, such as snapshot retention (cleanup_old_states). It uses the
// familiar worker-pool lifecycle shape (Start/Stop, WaitGroup, atomic
// running flag, panic-recovering job execution) scaled down to the single
// generic concern this module actually needs: running a small set of
// named, interval-driven jobs rather than draining an external task queue.
package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
)

// Job is one periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Jobs, each on its own ticker, until
// stopped. One goroutine per job; a panicking job is converted into a
// logged failure rather than taking down the others.
type Scheduler struct {
	jobs   []Job
	logger core.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewScheduler builds a Scheduler over jobs. A nil logger defaults to
// core.NoOpLogger.
func NewScheduler(logger core.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestration/scheduler")
	}
	return &Scheduler{jobs: jobs, logger: logger}
}

// Start launches one goroutine per job and returns immediately; there is
// no queue to drain to completion, so Start never blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return fmt.Errorf("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("starting maintenance scheduler", map[string]interface{}{"job_count": len(s.jobs)})

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(runCtx, job)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("maintenance job panicked", map[string]interface{}{"job": job.Name, "panic": r})
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("maintenance job failed", map[string]interface{}{
			"job": job.Name, "error": err.Error(), "duration_ms": time.Since(start).Milliseconds(),
		})
		return
	}
	s.logger.Info("maintenance job completed", map[string]interface{}{
		"job": job.Name, "duration_ms": time.Since(start).Milliseconds(),
	})
}

// Stop cancels every running job and waits for their goroutines to return,
// up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.running.Store(false)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
