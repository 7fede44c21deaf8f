package exec

import (
	"context"

	"github.com/giaosudau/sqlflow-go/plan"
)

// Handler executes one PlanEntry against an ExecutionContext, per spec
// §4.8's shared "observed-execution contract": record start, do the work,
// record success or failure, and never let a panic escape (that last part
// is the strategy's job via runHandler, not the Handler's).
type Handler interface {
	Execute(ctx context.Context, entry *plan.Entry, execCtx *ExecutionContext) plan.StepResult
}

// Committer is the narrow slice of sqlengine.Engine the orchestrator needs
// after every successful step, per spec §4.10 ("commits changes so
// dependents observe them").
type Committer interface {
	CommitChanges(ctx context.Context) error
}

// Strategy runs an ordered (and, for the parallel strategy, dependency-
// respecting) batch of plan entries and returns one StepResult per entry
// that ran, in entries' order, stopping at the first unretryable failure.
type Strategy interface {
	Execute(ctx context.Context, entries []*plan.Entry, handlers map[plan.EntryType]Handler, execCtx *ExecutionContext, db Committer) ([]plan.StepResult, error)
}

func resultsInEntryOrder(results map[string]plan.StepResult, order []string) []plan.StepResult {
	out := make([]plan.StepResult, 0, len(order))
	for _, id := range order {
		if r, ok := results[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
