package handlers

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/giaosudau/sqlflow-go/connector"
	"github.com/giaosudau/sqlflow-go/sqlengine"
)

// stubEngine is a minimal, test-only sqlengine.Engine that understands only
// the handful of SQL shapes the handlers in this package actually emit
// (CREATE [OR REPLACE] TABLE ... AS ..., INSERT INTO ... SELECT * FROM ...,
// the upsert DELETE/IN form, and a plain SELECT * FROM ...). It does not
// evaluate predicates; WHERE clauses are accepted syntactically and ignored.
type stubEngine struct {
	tables map[string]tableData
}

type tableData struct {
	columns []string
	rows    [][]interface{}
}

func newStubEngine() *stubEngine {
	return &stubEngine{tables: map[string]tableData{}}
}

func (e *stubEngine) TableExists(ctx context.Context, name string) (bool, error) {
	_, ok := e.tables[name]
	return ok, nil
}

func (e *stubEngine) RegisterTable(ctx context.Context, name string, columns map[string][]interface{}) error {
	cols := make([]string, 0, len(columns))
	for c := range columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var rows [][]interface{}
	if len(cols) > 0 {
		n := len(columns[cols[0]])
		for i := 0; i < n; i++ {
			row := make([]interface{}, len(cols))
			for j, c := range cols {
				row[j] = columns[c][i]
			}
			rows = append(rows, row)
		}
	}
	e.tables[name] = tableData{columns: cols, rows: rows}
	return nil
}

var (
	createPattern = regexp.MustCompile(`(?i)^CREATE (?:OR REPLACE )?TABLE (\S+) AS (.+)$`)
	insertPattern = regexp.MustCompile(`(?i)^INSERT INTO (\S+) SELECT \* FROM (\S+)$`)
	deletePattern = regexp.MustCompile(`(?i)^DELETE FROM (\S+) WHERE \((.+)\) IN \(SELECT (.+) FROM (\S+)\)$`)
	fromPattern   = regexp.MustCompile(`(?i)FROM (\S+)`)
)

func (e *stubEngine) ExecuteQuery(ctx context.Context, sqlText string) (sqlengine.Cursor, error) {
	switch {
	case createPattern.MatchString(sqlText):
		m := createPattern.FindStringSubmatch(sqlText)
		target, inner := m[1], m[2]
		src := fromTable(inner)
		data := e.tables[src]
		e.tables[target] = data
		return &stubCursor{columns: data.columns, rows: data.rows}, nil

	case insertPattern.MatchString(sqlText):
		m := insertPattern.FindStringSubmatch(sqlText)
		target, src := m[1], m[2]
		t := e.tables[target]
		s := e.tables[src]
		t.rows = append(t.rows, s.rows...)
		e.tables[target] = t
		return &stubCursor{rows: s.rows}, nil

	case deletePattern.MatchString(sqlText):
		m := deletePattern.FindStringSubmatch(sqlText)
		target, keysRaw, tempName := m[1], m[2], m[4]
		keyCol := strings.TrimSpace(strings.Split(keysRaw, ",")[0])
		t := e.tables[target]
		temp := e.tables[tempName]
		keyIdx := indexOf(t.columns, keyCol)
		tempKeyIdx := indexOf(temp.columns, keyCol)
		if keyIdx < 0 || tempKeyIdx < 0 {
			return &stubCursor{}, nil
		}
		doomed := map[interface{}]bool{}
		for _, row := range temp.rows {
			doomed[row[tempKeyIdx]] = true
		}
		var kept [][]interface{}
		for _, row := range t.rows {
			if !doomed[row[keyIdx]] {
				kept = append(kept, row)
			}
		}
		t.rows = kept
		e.tables[target] = t
		return &stubCursor{}, nil

	default:
		m := fromPattern.FindStringSubmatch(sqlText)
		if m == nil {
			return &stubCursor{}, nil
		}
		data := e.tables[m[1]]
		return &stubCursor{columns: data.columns, rows: data.rows}, nil
	}
}

func fromTable(query string) string {
	m := fromPattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func (e *stubEngine) GetTableSchema(ctx context.Context, name string) (map[string]string, error) {
	t := e.tables[name]
	schema := map[string]string{}
	for _, c := range t.columns {
		schema[c] = "any"
	}
	return schema, nil
}

func (e *stubEngine) Commit(ctx context.Context) error { return nil }
func (e *stubEngine) Close() error                     { return nil }

var _ sqlengine.Engine = (*stubEngine)(nil)

type stubCursor struct {
	columns []string
	rows    [][]interface{}
}

func (c *stubCursor) FetchOne(ctx context.Context) ([]interface{}, error) {
	if len(c.rows) == 0 {
		return nil, nil
	}
	return c.rows[0], nil
}
func (c *stubCursor) FetchAll(ctx context.Context) ([][]interface{}, error) { return c.rows, nil }
func (c *stubCursor) RowCount() int64                                      { return int64(len(c.rows)) }
func (c *stubCursor) Description() []string                                { return c.columns }

var _ sqlengine.Cursor = (*stubCursor)(nil)

type rowsChunk struct {
	columns []string
	rows    [][]interface{}
}

func (c *rowsChunk) Columns() []string     { return c.columns }
func (c *rowsChunk) Rows() [][]interface{} { return c.rows }
func (c *rowsChunk) Len() int              { return len(c.rows) }

var _ connector.Chunk = (*rowsChunk)(nil)

type stubSource struct {
	chunks []connector.Chunk
}

func (s *stubSource) Read(ctx context.Context) (<-chan connector.Chunk, <-chan error) {
	chunkCh := make(chan connector.Chunk, len(s.chunks))
	errCh := make(chan error)
	for _, c := range s.chunks {
		chunkCh <- c
	}
	close(chunkCh)
	close(errCh)
	return chunkCh, errCh
}

var _ connector.Source = (*stubSource)(nil)

type stubDestination struct {
	written []connector.Chunk
}

func (d *stubDestination) Write(ctx context.Context, data connector.Chunk, options map[string]interface{}) error {
	d.written = append(d.written, data)
	return nil
}

var _ connector.Destination = (*stubDestination)(nil)

func buildRegistry(src connector.Source, dest connector.Destination) *connector.Registry {
	reg := connector.NewRegistry()
	reg.RegisterSource(connector.Descriptor{Type: "csv", RequiredParams: []string{"path"}}, func(cfg map[string]interface{}) (connector.Source, error) {
		return src, nil
	})
	reg.RegisterDestination(connector.Descriptor{Type: "csv"}, func(cfg map[string]interface{}) (connector.Destination, error) {
		return dest, nil
	})
	return reg
}
