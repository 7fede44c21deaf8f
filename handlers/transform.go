package handlers

import (
	"context"
	"fmt"

	"github.com/giaosudau/sqlflow-go/exec"
	"github.com/giaosudau/sqlflow-go/plan"
	"github.com/giaosudau/sqlflow-go/sqlengine"
)

// TransformHandler materializes a SQL query's result into a managed table,
// rewriting UDF calls through the engine's optional UDFRewriter hook first
// (spec §4.8.3).
type TransformHandler struct {
	// RegisteredUDFs is the set of user-defined function names the engine
	// may rewrite calls to. Populated once at startup from the engine
	// config, not per step.
	RegisteredUDFs []string
}

func (h TransformHandler) Execute(ctx context.Context, entry *plan.Entry, execCtx *exec.ExecutionContext) plan.StepResult {
	return runStep(ctx, execCtx, entry, "TRANSFORM_EXECUTION_ERROR", func(ctx context.Context) (stepOutcome, error) {
		t := entry.Transform
		if t == nil {
			return stepOutcome{}, fmt.Errorf("transform entry %q has no payload", entry.ID)
		}

		query := t.SQLQuery
		if rewriter, ok := execCtx.SQLEngine.(sqlengine.UDFRewriter); ok {
			rewritten, err := rewriter.ProcessQueryForUDFs(ctx, query, h.RegisteredUDFs)
			if err != nil {
				return stepOutcome{}, fmt.Errorf("rewriting UDF calls in %q: %w", t.TargetTable, err)
			}
			query = rewritten
		}

		verb := "CREATE TABLE"
		if t.IsReplace {
			verb = "CREATE OR REPLACE TABLE"
		}
		sql := fmt.Sprintf("%s %s AS %s", verb, t.TargetTable, query)

		cursor, err := execCtx.SQLEngine.ExecuteQuery(ctx, sql)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("materializing %q: %w", t.TargetTable, err)
		}

		var rows int64
		if cursor != nil {
			rows = cursor.RowCount()
		}
		if rows < 0 {
			rows = 0
		}

		schema, err := execCtx.SQLEngine.GetTableSchema(ctx, t.TargetTable)
		if err != nil {
			schema = nil
		}

		return stepOutcome{
			rowsAffected: rows,
			metrics:      map[string]interface{}{"is_replace": t.IsReplace},
			lineage:      map[string]interface{}{"target": t.TargetTable},
			outputSchema: schema,
		}, nil
	})
}

var _ exec.Handler = TransformHandler{}
