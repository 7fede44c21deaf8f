// Package sqlengine specifies the embedded analytic SQL engine contract
// (spec §6.1). The concrete engine is out of scope; only the interface the
// kernel programs against lives here.
package sqlengine

import "context"

// Cursor is the result of a query execution.
type Cursor interface {
	FetchOne(ctx context.Context) ([]interface{}, error)
	FetchAll(ctx context.Context) ([][]interface{}, error)
	// RowCount is -1 if the engine cannot report it.
	RowCount() int64
	// Description returns the column names in result order.
	Description() []string
}

// Engine is the SQL engine contract every step handler executes against.
type Engine interface {
	ExecuteQuery(ctx context.Context, sql string) (Cursor, error)
	TableExists(ctx context.Context, name string) (bool, error)
	// RegisterTable makes an in-memory columnar dataset (column name ->
	// values) available as a temporary view or table named name.
	RegisterTable(ctx context.Context, name string, columns map[string][]interface{}) error
	GetTableSchema(ctx context.Context, name string) (map[string]string, error)
	Commit(ctx context.Context) error
	Close() error
}

// UDFRewriter is the optional UDF call-rewriting hook (spec §6.1
// "process_query_for_udfs"); a transform handler calls it when present.
type UDFRewriter interface {
	ProcessQueryForUDFs(ctx context.Context, sql string, registeredUDFs []string) (string, error)
}
