package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/giaosudau/sqlflow-go/connector"
	"github.com/giaosudau/sqlflow-go/exec"
	"github.com/giaosudau/sqlflow-go/plan"
	"github.com/giaosudau/sqlflow-go/sqlengine"
)

// LoadHandler reads every chunk a source connector produces and
// materializes it into a managed table, honoring REPLACE/APPEND/UPSERT
// write semantics and, for incremental sources, advancing the watermark
// after a successful load (spec §4.8.2).
type LoadHandler struct{}

func (LoadHandler) Execute(ctx context.Context, entry *plan.Entry, execCtx *exec.ExecutionContext) plan.StepResult {
	return runStep(ctx, execCtx, entry, "LOAD_EXECUTION_ERROR", func(ctx context.Context) (stepOutcome, error) {
		l := entry.Load
		if l == nil {
			return stepOutcome{}, fmt.Errorf("load entry %q has no payload", entry.ID)
		}

		record, ok := execCtx.LookupSource(l.SourceName)
		if !ok {
			return stepOutcome{}, fmt.Errorf("source %q was not defined before load %q", l.SourceName, entry.ID)
		}

		source, err := execCtx.ConnectorRegistry.CreateSourceConnector(record.ConnectorType, record.ResolvedConfig)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("creating source connector %q for load %q: %w", record.ConnectorType, entry.ID, err)
		}

		var chunks <-chan connector.Chunk
		var errs <-chan error

		if record.SyncMode == string(plan.SyncModeIncremental) && record.CursorField != "" {
			incremental, ok := source.(connector.IncrementalSource)
			if !ok {
				return stepOutcome{}, fmt.Errorf("source %q declares incremental sync but connector %q does not support it", l.SourceName, record.ConnectorType)
			}
			after, _, err := execCtx.WatermarkManager.GetSourceWatermark(ctx, execCtx.Pipeline, l.SourceName, record.CursorField)
			if err != nil {
				return stepOutcome{}, err
			}
			chunks, errs = incremental.ReadIncremental(ctx, record.CursorField, after)
		} else {
			chunks, errs = source.Read(ctx)
		}

		exists, err := execCtx.SQLEngine.TableExists(ctx, l.TargetTable)
		if err != nil {
			return stepOutcome{}, err
		}

		var totalRows int64
		firstChunk := true
		var maxCursorValue string

		for chunks != nil || errs != nil {
			select {
			case chunk, open := <-chunks:
				if !open {
					chunks = nil
					continue
				}
				if err := materializeChunk(ctx, execCtx.SQLEngine, l, chunk, exists, firstChunk); err != nil {
					return stepOutcome{}, err
				}
				totalRows += int64(chunk.Len())
				firstChunk = false
				exists = true
				if record.CursorField != "" {
					if v := maxCursorInChunk(chunk, record.CursorField); v != "" && v > maxCursorValue {
						maxCursorValue = v
					}
				}
			case err, open := <-errs:
				if !open {
					errs = nil
					continue
				}
				if err != nil {
					return stepOutcome{}, err
				}
			}
		}

		if record.SyncMode == string(plan.SyncModeIncremental) && record.CursorField != "" && maxCursorValue != "" {
			if err := execCtx.WatermarkManager.UpdateSourceWatermark(ctx, execCtx.Pipeline, l.SourceName, record.CursorField, maxCursorValue); err != nil {
				// A load that already succeeded should not be failed by a
				// watermark bookkeeping error; a subsequent run will simply
				// re-load the overlap region.
				execCtx.Logger.Warn("failed to update watermark after successful load", map[string]interface{}{
					"step_id": entry.ID, "source": l.SourceName, "cursor_field": record.CursorField, "error": err.Error(),
				})
			}
		}

		return stepOutcome{
			rowsAffected: totalRows,
			metrics:      map[string]interface{}{"mode": string(l.Mode), "chunks_processed": !firstChunk},
			lineage:      map[string]interface{}{"source": l.SourceName, "target": l.TargetTable},
		}, nil
	})
}

func maxCursorInChunk(chunk connector.Chunk, cursorField string) string {
	cols := chunk.Columns()
	idx := -1
	for i, c := range cols {
		if c == cursorField {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	var max string
	for _, row := range chunk.Rows() {
		if idx >= len(row) {
			continue
		}
		v := fmt.Sprintf("%v", row[idx])
		if v > max {
			max = v
		}
	}
	return max
}

// materializeChunk registers chunk as a temporary table and folds it into
// l.TargetTable according to l.Mode.
func materializeChunk(ctx context.Context, engine sqlengine.Engine, l *plan.LoadEntry, chunk connector.Chunk, targetExists, firstChunk bool) error {
	tempName := fmt.Sprintf("__chunk_%s", sanitizeIdent(l.TargetTable))
	if err := engine.RegisterTable(ctx, tempName, columnsFromChunk(chunk)); err != nil {
		return fmt.Errorf("registering chunk for %q: %w", l.TargetTable, err)
	}

	switch l.Mode {
	case plan.LoadModeReplace:
		if firstChunk {
			_, err := engine.ExecuteQuery(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", l.TargetTable, tempName))
			return err
		}
		_, err := engine.ExecuteQuery(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", l.TargetTable, tempName))
		return err

	case plan.LoadModeAppend:
		if !targetExists {
			_, err := engine.ExecuteQuery(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", l.TargetTable, tempName))
			return err
		}
		_, err := engine.ExecuteQuery(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", l.TargetTable, tempName))
		return err

	case plan.LoadModeUpsert:
		if !targetExists {
			_, err := engine.ExecuteQuery(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", l.TargetTable, tempName))
			return err
		}
		if len(l.UpsertKeys) == 0 {
			return fmt.Errorf("upsert load %q declares no upsert keys", l.TargetTable)
		}
		keys := strings.Join(l.UpsertKeys, ", ")
		deleteSQL := fmt.Sprintf(
			"DELETE FROM %s WHERE (%s) IN (SELECT %s FROM %s)",
			l.TargetTable, keys, keys, tempName,
		)
		if _, err := engine.ExecuteQuery(ctx, deleteSQL); err != nil {
			return fmt.Errorf("upsert delete phase for %q: %w", l.TargetTable, err)
		}
		_, err := engine.ExecuteQuery(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", l.TargetTable, tempName))
		return err

	default:
		return fmt.Errorf("unknown load mode %q", l.Mode)
	}
}

func columnsFromChunk(chunk connector.Chunk) map[string][]interface{} {
	cols := chunk.Columns()
	out := make(map[string][]interface{}, len(cols))
	for _, c := range cols {
		out[c] = make([]interface{}, 0, chunk.Len())
	}
	for _, row := range chunk.Rows() {
		for i, v := range row {
			if i >= len(cols) {
				continue
			}
			out[cols[i]] = append(out[cols[i]], v)
		}
	}
	return out
}

func sanitizeIdent(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

var _ exec.Handler = LoadHandler{}
