package exec

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/plan"
)

const (
	defaultMaxWorkers = 32
	minWorkers         = 2
)

// ParallelStrategy runs independent plan entries concurrently across a
// bounded worker pool, advancing each entry through the
// PENDING -> ELIGIBLE -> RUNNING -> SUCCESS/FAILED state machine. A
// persistent pool of workers drains a shared queue, generalized here from a
// flat task queue to one that respects depends_on edges and retries with a
// fixed delay rather than a timeout-only model.
type ParallelStrategy struct {
	WorkerCount int
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      core.Logger
}

// NewParallelStrategy builds a strategy, defaulting a non-positive worker
// count or retry delay and a nil logger; a negative maxRetries becomes 0.
func NewParallelStrategy(workerCount, maxRetries int, retryDelay time.Duration, logger core.Logger) *ParallelStrategy {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ParallelStrategy{WorkerCount: workerCount, MaxRetries: maxRetries, RetryDelay: retryDelay, Logger: logger}
}

// DefaultWorkerCount returns min(32, 2*logical CPU count) clamped to at
// least 2.
func DefaultWorkerCount() int {
	n := 2 * runtime.NumCPU()
	if n > defaultMaxWorkers {
		n = defaultMaxWorkers
	}
	if n < minWorkers {
		n = minWorkers
	}
	return n
}

// AdaptiveWorkerCount lowers DefaultWorkerCount's result when available
// memory is scarce, reading /proc/meminfo directly: no memory-introspection
// library appears anywhere in the pack, so this is grounded on the Python
// original's own /proc/meminfo read rather than a third-party gauge.
// Unreadable environments (non-Linux, restricted containers) fall back to
// DefaultWorkerCount.
func AdaptiveWorkerCount() int {
	ceiling := DefaultWorkerCount()
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return ceiling
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			break
		}
		gb := kb / (1024 * 1024)
		n := int(gb * 2)
		if n < minWorkers {
			n = minWorkers
		}
		if n > ceiling {
			n = ceiling
		}
		return n
	}
	return ceiling
}

type taskRecord struct {
	status plan.TaskStatus
	entry  *plan.Entry
}

type workOutcome struct {
	stepID string
	result plan.StepResult
}

func (s *ParallelStrategy) Execute(ctx context.Context, entries []*plan.Entry, handlers map[plan.EntryType]Handler, execCtx *ExecutionContext, db Committer) ([]plan.StepResult, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	order := make([]string, 0, len(entries))
	records := make(map[string]*taskRecord, len(entries))
	for _, entry := range entries {
		deps := make(map[string]struct{}, len(entry.DependsOn))
		for _, d := range entry.DependsOn {
			deps[d] = struct{}{}
		}
		state := plan.TaskPending
		if len(deps) == 0 {
			state = plan.TaskEligible
		}
		records[entry.ID] = &taskRecord{
			status: plan.TaskStatus{StepID: entry.ID, State: state, Dependencies: deps},
			entry:  entry,
		}
		order = append(order, entry.ID)
	}

	readyCap := len(entries) * (s.MaxRetries + 2)
	ready := make(chan string, readyCap)
	retryReady := make(chan string, readyCap)
	outcomes := make(chan workOutcome, readyCap)
	stop := make(chan struct{})
	defer close(stop)

	workers := s.WorkerCount
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-stop:
					return
				case id, ok := <-ready:
					if !ok {
						return
					}
					rec := records[id]
					result := runHandler(ctx, handlers[rec.entry.Type], rec.entry, execCtx)
					select {
					case outcomes <- workOutcome{stepID: id, result: result}:
					case <-stop:
						return
					}
				}
			}
		}()
	}

	results := make(map[string]plan.StepResult, len(entries))
	completed := 0
	running := 0
	awaitingRetry := 0

	dispatch := func(id string) {
		rec := records[id]
		rec.status = rec.status.WithRunning(time.Now())
		running++
		ready <- id
	}

	for _, id := range order {
		if records[id].status.State == plan.TaskEligible {
			dispatch(id)
		}
	}

	var firstErr error
	for completed < len(entries) {
		if running == 0 && awaitingRetry == 0 {
			if firstErr != nil {
				return resultsInEntryOrder(results, order), firstErr
			}
			return resultsInEntryOrder(results, order), deadlockError(order, records, results)
		}

		select {
		case <-ctx.Done():
			return resultsInEntryOrder(results, order), ctx.Err()

		case id := <-retryReady:
			awaitingRetry--
			dispatch(id)

		case o := <-outcomes:
			running--
			rec := records[o.stepID]
			switch {
			case o.result.Success:
				rec.status = rec.status.WithSuccess(time.Now())
				results[o.stepID] = o.result
				completed++

				if db != nil {
					if err := db.CommitChanges(ctx); err != nil && firstErr == nil {
						firstErr = core.NewExecutionError(o.stepID, err)
					}
				}

				if firstErr == nil {
					for _, candidateID := range order {
						candidate := records[candidateID]
						if candidate.status.State != plan.TaskPending {
							continue
						}
						if allDepsSatisfied(candidate, results) {
							candidate.status = candidate.status.WithState(plan.TaskEligible)
							dispatch(candidateID)
						}
					}
				}

			case rec.status.Attempts < s.MaxRetries:
				rec.status = rec.status.WithFailure(plan.TaskEligible, time.Now(), o.result.ErrorMessage)
				awaitingRetry++
				delay := s.RetryDelay
				go func(id string) {
					timer := time.NewTimer(delay)
					defer timer.Stop()
					select {
					case <-timer.C:
						select {
						case retryReady <- id:
						case <-stop:
						}
					case <-stop:
					}
				}(o.stepID)

			default:
				rec.status = rec.status.WithFailure(plan.TaskFailed, time.Now(), o.result.ErrorMessage)
				results[o.stepID] = o.result
				completed++
				if firstErr == nil {
					firstErr = core.NewExecutionError(o.stepID, errors.New(o.result.ErrorMessage))
				}
			}
		}
	}

	return resultsInEntryOrder(results, order), firstErr
}

func allDepsSatisfied(rec *taskRecord, results map[string]plan.StepResult) bool {
	for dep := range rec.status.Dependencies {
		if r, ok := results[dep]; !ok || !r.Success {
			return false
		}
	}
	return true
}

func deadlockError(order []string, records map[string]*taskRecord, results map[string]plan.StepResult) *core.DeadlockError {
	remaining := map[string][]string{}
	for _, id := range order {
		if _, done := results[id]; done {
			continue
		}
		var unmet []string
		for dep := range records[id].status.Dependencies {
			if _, ok := results[dep]; !ok {
				unmet = append(unmet, dep)
			}
		}
		remaining[id] = unmet
	}
	return &core.DeadlockError{Remaining: remaining}
}

var _ Strategy = (*ParallelStrategy)(nil)
