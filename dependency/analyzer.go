// Package dependency builds the table-to-producer map and step dependency
// edges the planner needs to topologically order a pipeline (spec §4.5).
package dependency

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/plan"
)

// builtinTables are skipped during SQL reference extraction: they name
// table-valued functions or system catalogs, never a pipeline-produced table.
var builtinTables = map[string]struct{}{
	"read_csv_auto":      {},
	"read_csv":           {},
	"read_parquet":       {},
	"read_json":          {},
	"information_schema": {},
	"pg_catalog":         {},
	"main":               {},
}

var (
	fromJoinPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	pythonFuncPattern = regexp.MustCompile(`(?i)PYTHON_FUNC\s*\(\s*'[^']*'\s*,\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\)`)
)

// ExtractTableReferences scans sql case-insensitively for FROM/JOIN clauses
// and the PYTHON_FUNC table-UDF pattern, skipping builtin pseudo-tables.
func ExtractTableReferences(sql string) []string {
	seen := map[string]struct{}{}
	var refs []string
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, ok := builtinTables[name]; ok {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		refs = append(refs, name)
	}

	for _, m := range fromJoinPattern.FindAllStringSubmatch(sql, -1) {
		for _, tbl := range strings.Split(m[1], ",") {
			add(tbl)
		}
	}
	for _, m := range pythonFuncPattern.FindAllStringSubmatch(sql, -1) {
		add(m[1])
	}
	return refs
}

// producerKind tags which directive kind produced a table, for the duplicate
// table detection rule in step 1 below.
type producerKind int

const (
	producerLoad producerKind = iota
	producerSQLReplace
	producerSQLNonReplace
)

type producer struct {
	stepID string
	kind   producerKind
	line   int
}

// Graph is the result of analysis: the table producer map plus directed
// edges keyed by consumer step id, and the set of undefined table
// references collected for the planner's typo-detection pass.
type Graph struct {
	Edges               map[string][]string // step id -> depends_on step ids
	TableProducer        map[string]string   // table name -> producing step id
	UndefinedReferences map[string][]undefinedRef
}

type undefinedRef struct {
	Table string
	Line  int
}

// UndefinedRef exposes one (table, line) pair where a SQL statement
// referenced a table with no known producer.
type UndefinedRef = undefinedRef

// Entry pairs a step id with the directive and SQL text (if any) relevant to
// dependency extraction, along with the source name for Load directives.
type Entry struct {
	StepID     string
	Kind       string // "load", "transform", "export", "source_definition"
	TableName  string
	SQLQuery   string
	SourceName string
	IsReplace  bool
	Line       int
}

// Analyze builds the producer map and dependency edges over entries, in the
// order given (source order matters for "first producer wins").
func Analyze(entries []Entry) (*Graph, error) {
	producers := map[string]producer{}
	g := &Graph{
		Edges:               map[string][]string{},
		TableProducer:        map[string]string{},
		UndefinedReferences: map[string][]undefinedRef{},
	}

	sourceSteps := map[string]string{} // source name -> source_definition step id

	// Pass 1: build the table -> producer map. Table names are matched
	// case-insensitively since SQL reference extraction lower-cases them.
	for _, e := range entries {
		table := strings.ToLower(e.TableName)
		switch e.Kind {
		case "source_definition":
			sourceSteps[e.TableName] = e.StepID
		case "load":
			if existing, ok := producers[table]; ok {
				if existing.kind != producerLoad {
					return nil, duplicateError(e, existing)
				}
				// Multiple Loads into the same table are permitted and all
				// preserved; only the first is kept as the producer for
				// dependency purposes.
			} else {
				producers[table] = producer{stepID: e.StepID, kind: producerLoad, line: e.Line}
			}
			if _, ok := g.TableProducer[table]; !ok {
				g.TableProducer[table] = e.StepID
			}
		case "transform":
			if e.IsReplace {
				// A CREATE OR REPLACE block coexisting with a non-replace
				// SQLBlock on the same table is permitted; both execute in
				// order, so an existing non-replace producer is not a
				// duplicate here. Replace blocks are not recorded in
				// producers.
				if existing, ok := producers[table]; ok && existing.kind == producerSQLReplace {
					return nil, duplicateError(e, existing)
				}
			} else {
				if existing, ok := producers[table]; ok {
					return nil, duplicateError(e, existing)
				}
				producers[table] = producer{stepID: e.StepID, kind: producerSQLNonReplace, line: e.Line}
			}
			if _, ok := g.TableProducer[table]; !ok {
				g.TableProducer[table] = e.StepID
			}
		}
	}

	// Pass 2: build edges.
	for _, e := range entries {
		switch e.Kind {
		case "load":
			if sourceStep, ok := sourceSteps[e.SourceName]; ok {
				g.addEdge(e.StepID, sourceStep)
			}
		case "transform":
			g.linkSQLReferences(e.StepID, e.SQLQuery, e.Line)
		case "export":
			if e.SQLQuery != "" {
				g.linkSQLReferences(e.StepID, e.SQLQuery, e.Line)
			} else if e.TableName != "" {
				if producerStep, ok := g.TableProducer[strings.ToLower(e.TableName)]; ok {
					g.addEdge(e.StepID, producerStep)
				}
			}
		}
	}

	return g, nil
}

func (g *Graph) linkSQLReferences(stepID, sql string, line int) {
	for _, table := range ExtractTableReferences(sql) {
		if producerStep, ok := g.TableProducer[table]; ok {
			if producerStep != stepID {
				g.addEdge(stepID, producerStep)
			}
			continue
		}
		g.UndefinedReferences[table] = append(g.UndefinedReferences[table], undefinedRef{Table: table, Line: line})
	}
}

func (g *Graph) addEdge(consumer, producerStepID string) {
	for _, existing := range g.Edges[consumer] {
		if existing == producerStepID {
			return
		}
	}
	g.Edges[consumer] = append(g.Edges[consumer], producerStepID)
}

func duplicateError(e Entry, existing producer) error {
	return core.NewPlanningError(
		"duplicate table producer",
		core.ErrDuplicateTable,
		fmt.Sprintf("table %q produced again at line %d (first produced at line %d)", e.TableName, e.Line, existing.line),
	)
}
