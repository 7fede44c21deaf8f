package exec

import (
	"context"
	"time"

	"github.com/giaosudau/sqlflow-go/plan"
)

// Orchestrator drives a plan to completion (spec §4.10): empty-plan fast
// path, strategy selection, per-step commit, first-failure surfacing, and
// final ExecutionResult aggregation.
type Orchestrator struct {
	Strategy Strategy
}

// NewOrchestrator builds an Orchestrator. A nil strategy defaults to
// SequentialStrategy.
func NewOrchestrator(strategy Strategy) *Orchestrator {
	if strategy == nil {
		strategy = SequentialStrategy{}
	}
	return &Orchestrator{Strategy: strategy}
}

// Execute runs every entry in entries against handlers, using db.CommitChanges
// after each success so dependents observe the change (spec §4.10). The
// returned error is the first step failure or execution-level error (ctx
// cancellation, deadlock); the ExecutionResult is still populated with
// whatever steps ran, per spec invariant 3 ("success is the conjunction of
// every step result").
func (o *Orchestrator) Execute(ctx context.Context, entries []*plan.Entry, handlers map[plan.EntryType]Handler, execCtx *ExecutionContext, db Committer) (plan.ExecutionResult, error) {
	if len(entries) == 0 {
		return plan.NewExecutionResult(nil, 0, execCtx.Variables), nil
	}

	strategy := o.Strategy
	if strategy == nil {
		strategy = SequentialStrategy{}
	}

	start := time.Now()
	results, err := strategy.Execute(ctx, entries, handlers, execCtx, db)
	duration := float64(time.Since(start).Microseconds()) / 1000.0

	execResult := plan.NewExecutionResult(results, duration, execCtx.Variables)
	return execResult, err
}

// ChooseStrategy returns parallel when parallelEnabled is true and parallel
// is non-nil, and SequentialStrategy otherwise; the plan's size plays no
// part. Callers building an Orchestrator decide once, up front, rather than
// per run, since the decision only depends on configuration.
func ChooseStrategy(parallelEnabled bool, parallel *ParallelStrategy) Strategy {
	if !parallelEnabled || parallel == nil {
		return SequentialStrategy{}
	}
	return parallel
}
