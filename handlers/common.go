// Package handlers implements the four step handlers (spec §4.8): the
// glue between a PlanEntry and the SQL engine / connector registry /
// watermark manager bundled into an exec.ExecutionContext. Every handler
// shares the same observed-execution contract (runStep below): record
// start, do the work, record success or failure on every returning path.
// runStep does not recover panics; exec's runHandler turns a handler panic
// into a failure result.
package handlers

import (
	"context"
	"time"

	"github.com/giaosudau/sqlflow-go/exec"
	"github.com/giaosudau/sqlflow-go/plan"
)

// stepOutcome is what a handler's inner work function reports back to
// runStep on success.
type stepOutcome struct {
	rowsAffected int64
	metrics      map[string]interface{}
	lineage      map[string]interface{}
	outputSchema map[string]string
	inputSchemas map[string]map[string]string
}

// runStep wraps fn with the shared observed-execution contract. errorCode
// is used verbatim on failure, matching spec §4.8's
// "error_code = <TYPE>_EXECUTION_ERROR" convention (e.g. "LOAD_EXECUTION_ERROR").
func runStep(ctx context.Context, execCtx *exec.ExecutionContext, entry *plan.Entry, errorCode string, fn func(ctx context.Context) (stepOutcome, error)) plan.StepResult {
	obs := execCtx.Observability
	if obs == nil {
		obs = exec.NewRecorder(nil)
	}

	start := time.Now()
	obs.RecordStepStart(entry.ID, string(entry.Type))

	outcome, err := fn(ctx)
	end := time.Now()
	durationMS := float64(end.Sub(start).Microseconds()) / 1000.0

	if err != nil {
		obs.RecordStepFailure(entry.ID, string(entry.Type), err.Error(), durationMS)
		return plan.NewErrorResult(entry.ID, entry.Type, start, end, err.Error(), errorCode)
	}

	obs.RecordStepSuccess(entry.ID, string(entry.Type), durationMS)
	obs.RecordRowsAffected(entry.ID, outcome.rowsAffected)
	if len(outcome.metrics) > 0 {
		obs.AddStepMetadata(entry.ID, outcome.metrics)
	}

	result := plan.NewSuccessResult(entry.ID, entry.Type, start, end, outcome.rowsAffected, outcome.metrics)
	result.DataLineage = outcome.lineage
	result.OutputSchema = outcome.outputSchema
	result.InputSchemas = outcome.inputSchemas
	return result
}
