package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/giaosudau/sqlflow-go/exec"
	"github.com/giaosudau/sqlflow-go/plan"
)

// ExportHandler runs a query (either the export's own SQL or a plain
// select against its source table), fetches the full result, and writes it
// to a destination connector (spec §4.8.4).
type ExportHandler struct{}

func (ExportHandler) Execute(ctx context.Context, entry *plan.Entry, execCtx *exec.ExecutionContext) plan.StepResult {
	return runStep(ctx, execCtx, entry, "EXPORT_EXECUTION_ERROR", func(ctx context.Context) (stepOutcome, error) {
		x := entry.Export
		if x == nil {
			return stepOutcome{}, fmt.Errorf("export entry %q has no payload", entry.ID)
		}

		query := x.SQLQuery
		if query == "" {
			query = fmt.Sprintf("SELECT * FROM %s", x.SourceTable)
		}

		cursor, err := execCtx.SQLEngine.ExecuteQuery(ctx, query)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("querying %q for export: %w", x.SourceTable, err)
		}
		rows, err := cursor.FetchAll(ctx)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("fetching export rows for %q: %w", x.SourceTable, err)
		}

		chunk := &sliceChunk{columns: cursor.Description(), rows: rows}

		connType := x.SourceConnectorType
		if connType == "" {
			connType = detectConnectorTypeFromTarget(x.DestinationURI)
		}

		resolved, err := execCtx.ConnectorRegistry.ResolveConfiguration(connType, false, nil, x.Options)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("resolving destination configuration %q: %w", connType, err)
		}

		dest, err := execCtx.ConnectorRegistry.CreateDestinationConnector(connType, resolved.Config)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("creating destination connector %q: %w", connType, err)
		}

		if err := dest.Write(ctx, chunk, resolved.Config); err != nil {
			return stepOutcome{}, fmt.Errorf("writing export to %q: %w", x.DestinationURI, err)
		}

		if execCtx.Feedback != nil {
			execCtx.Feedback(fmt.Sprintf("Exported %d rows from %s to %s", len(rows), x.SourceTable, x.DestinationURI))
		}

		return stepOutcome{
			rowsAffected: int64(len(rows)),
			metrics:      map[string]interface{}{"destination_uri": x.DestinationURI, "connector_type": connType},
			lineage:      map[string]interface{}{"source": x.SourceTable, "destination": x.DestinationURI},
		}, nil
	})
}

// detectConnectorTypeFromTarget infers a destination connector type from a
// target URI or path when none was declared explicitly: s3:// URIs map to
// "s3", and local paths map by extension, defaulting to "csv" for anything
// unrecognized (spec §4.8.4 step 5).
func detectConnectorTypeFromTarget(target string) string {
	if strings.HasPrefix(target, "s3://") {
		return "s3"
	}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".csv":
		return "csv"
	case ".parquet", ".pq":
		return "parquet"
	case ".json", ".jsonl":
		return "json"
	default:
		return "csv"
	}
}

// sliceChunk is the minimal connector.Chunk implementation wrapping an
// already-materialized result set, used only at export time since the
// engine hands back a Cursor rather than a Chunk.
type sliceChunk struct {
	columns []string
	rows    [][]interface{}
}

func (c *sliceChunk) Columns() []string     { return c.columns }
func (c *sliceChunk) Rows() [][]interface{} { return c.rows }
func (c *sliceChunk) Len() int              { return len(c.rows) }

var _ exec.Handler = ExportHandler{}
