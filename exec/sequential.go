package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/plan"
)

// SequentialStrategy runs entries one at a time in the order the Planner
// emitted them (already a valid topological order), committing after every
// success. This is the default strategy: NewOrchestrator and
// Orchestrator.Execute fall back to it when no strategy is set, and
// ChooseStrategy returns it when parallel execution is disabled.
type SequentialStrategy struct{}

func (SequentialStrategy) Execute(ctx context.Context, entries []*plan.Entry, handlers map[plan.EntryType]Handler, execCtx *ExecutionContext, db Committer) ([]plan.StepResult, error) {
	results := make([]plan.StepResult, 0, len(entries))
	for _, entry := range entries {
		result := runHandler(ctx, handlers[entry.Type], entry, execCtx)
		results = append(results, result)
		if !result.Success {
			return results, core.NewExecutionError(entry.ID, errors.New(result.ErrorMessage))
		}
		if db != nil {
			if err := db.CommitChanges(ctx); err != nil {
				return results, core.NewExecutionError(entry.ID, err)
			}
		}
	}
	return results, nil
}

var _ Strategy = SequentialStrategy{}

// runHandler executes h against entry, converting a missing handler or a
// panic inside h into a failure StepResult rather than propagating it,
// grounded on orchestration/task_worker.go's executeHandler recover-to-error
// conversion.
func runHandler(ctx context.Context, h Handler, entry *plan.Entry, execCtx *ExecutionContext) (result plan.StepResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = plan.NewErrorResult(entry.ID, entry.Type, start, time.Now(), fmt.Sprintf("handler panic: %v", r), "")
		}
	}()
	if h == nil {
		return plan.NewErrorResult(entry.ID, entry.Type, start, time.Now(), fmt.Sprintf("no handler registered for step type %q", entry.Type), "")
	}
	return h.Execute(ctx, entry, execCtx)
}
