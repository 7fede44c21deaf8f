// Package planner implements the build_plan contract (spec §4.7): it
// validates variables, flattens conditionals, assigns canonical step ids,
// analyzes dependencies, detects likely-typo table references, resolves
// execution order, and emits the final sequence of plan.Entry values. The
// Planner never executes anything and persists no state.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/giaosudau/sqlflow-go/condition"
	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/dependency"
	"github.com/giaosudau/sqlflow-go/order"
	"github.com/giaosudau/sqlflow-go/plan"
	"github.com/giaosudau/sqlflow-go/vars"
)

// Result is the outcome of a successful Build: the emitted plan plus any
// non-fatal warnings (external-table references, unresolved variables found
// during the post-emission re-validation pass).
type Result struct {
	Entries  []*plan.Entry
	Warnings []string
}

// Build runs the full eight-step build_plan pipeline over directives.
func Build(directives []plan.Directive, cliVars, profileVars map[string]interface{}) (*Result, error) {
	mgr := vars.NewManager(cliVars, profileVars, nil)
	gatherSetVars(directives, mgr)

	if err := validateVariables(directives, mgr); err != nil {
		return nil, err
	}

	flatMgr := vars.NewManager(cliVars, profileVars, nil)
	flattened, err := flatten(directives, flatMgr)
	if err != nil {
		return nil, err
	}

	ids, labels := assignIDs(flattened)

	depEntries := make([]dependency.Entry, 0, len(flattened))
	for i, d := range flattened {
		depEntries = append(depEntries, toDependencyEntry(ids[i], d))
	}
	graph, err := dependency.Analyze(depEntries)
	if err != nil {
		return nil, err
	}

	warnings, err := classifyUndefinedReferences(graph)
	if err != nil {
		return nil, err
	}

	ordered, err := order.Resolve(ids, graph.Edges, func(stepID string) string {
		return labels[stepID]
	})
	if err != nil {
		return nil, err
	}
	ordered = recoverMissingSteps(ordered, ids)

	byID := make(map[string]plan.Directive, len(flattened))
	dependsOn := make(map[string][]string, len(flattened))
	for i, id := range ids {
		byID[id] = flattened[i]
	}
	for _, id := range ids {
		dependsOn[id] = append([]string{}, graph.Edges[id]...)
	}

	entries := make([]*plan.Entry, 0, len(ordered))
	for _, id := range ordered {
		e, err := buildEntry(id, byID[id], dependsOn[id])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	substituteEntries(entries, flatMgr)
	warnings = append(warnings, revalidateEntries(entries, flatMgr)...)

	return &Result{Entries: entries, Warnings: warnings}, nil
}

// gatherSetVars seeds mgr with every Set directive's value, walking into
// every ConditionalBlock branch and else-branch, since variable validation
// (step 1) runs before conditional flattening and must see every SET value
// regardless of which branch eventually gets selected.
func gatherSetVars(directives []plan.Directive, mgr *vars.Manager) {
	for _, d := range directives {
		switch v := d.(type) {
		case *plan.Set:
			mgr.SetVariable(v.VariableName, v.VariableValue)
		case *plan.ConditionalBlock:
			for _, b := range v.Branches {
				gatherSetVars(b.Steps, mgr)
			}
			gatherSetVars(v.ElseBranch, mgr)
		}
	}
}

// validateVariables implements build_plan step 1: every ${...} reference
// across all directive text must resolve or carry a default; every default
// must use valid syntax. Both failure kinds are reported together per kind,
// not one at a time.
func validateVariables(directives []plan.Directive, mgr *vars.Manager) error {
	texts := collectTexts(directives)

	missing := mgr.ValidateRequired(texts)
	if len(missing) > 0 {
		causes := make([]string, 0, len(missing))
		for _, m := range missing {
			causes = append(causes, fmt.Sprintf("variable %q referenced at line(s) %v has no resolved value and no default", m.Name, m.Lines))
		}
		return core.NewPlanningError("missing required variable", core.ErrMissingVariable, causes...)
	}

	var invalidDefaults []string
	lineNumbers := make([]int, 0, len(texts))
	for line := range texts {
		lineNumbers = append(lineNumbers, line)
	}
	sort.Ints(lineNumbers)
	for _, line := range lineNumbers {
		for _, ref := range vars.Scan(texts[line]) {
			if ref.InvalidDefault {
				invalidDefaults = append(invalidDefaults, fmt.Sprintf("reference %s at line %d: unquoted default must not contain whitespace", ref.Raw, line))
			}
		}
	}
	if len(invalidDefaults) > 0 {
		return core.NewPlanningError("invalid variable default syntax", core.ErrInvalidDefault, invalidDefaults...)
	}
	return nil
}

func collectTexts(directives []plan.Directive) map[int]string {
	out := map[int]string{}
	var walk func([]plan.Directive)
	walk = func(ds []plan.Directive) {
		for _, d := range ds {
			switch v := d.(type) {
			case *plan.SourceDefinition:
				out[v.LineNumber] += " " + joinStringValues(v.Params)
			case *plan.Load:
				out[v.LineNumber] += " " + v.TableName + " " + v.SourceName
			case *plan.SQLBlock:
				out[v.LineNumber] += " " + v.SQLQuery
			case *plan.Export:
				out[v.LineNumber] += " " + v.SQLQuery + " " + v.DestinationURI + " " + v.TableName + " " + joinStringValues(v.Options)
			case *plan.Set:
				out[v.LineNumber] += " " + v.VariableValue
			case *plan.ConditionalBlock:
				for _, b := range v.Branches {
					out[v.LineNumber] += " " + b.Condition
					walk(b.Steps)
				}
				walk(v.ElseBranch)
			}
		}
	}
	walk(directives)
	return out
}

func joinStringValues(m map[string]interface{}) string {
	var b strings.Builder
	for _, v := range m {
		if s, ok := v.(string); ok {
			b.WriteString(s)
			b.WriteString(" ")
		}
	}
	return b.String()
}

// flatten implements build_plan step 2: Set directives update mgr in source
// order and disappear; ConditionalBlocks evaluate their branches in order,
// including the first true branch's steps (else the else-branch, else
// nothing), recursing into nested blocks.
func flatten(directives []plan.Directive, mgr *vars.Manager) ([]plan.Directive, error) {
	var out []plan.Directive
	for _, d := range directives {
		switch v := d.(type) {
		case *plan.Set:
			mgr.SetVariable(v.VariableName, v.VariableValue)
		case *plan.ConditionalBlock:
			selected, err := selectBranch(v, mgr)
			if err != nil {
				return nil, err
			}
			children, err := flatten(selected, mgr)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		default:
			out = append(out, d)
		}
	}
	return out, nil
}

func selectBranch(block *plan.ConditionalBlock, mgr *vars.Manager) ([]plan.Directive, error) {
	for _, b := range block.Branches {
		literalExpr := mgr.SubstituteForExpression(b.Condition)
		ok, err := condition.Evaluate(literalExpr, nil)
		if err != nil {
			return nil, core.NewPlanningError(
				fmt.Sprintf("condition evaluation failed at line %d", block.LineNumber),
				core.ErrConditionEvaluation,
				err.Error(),
			)
		}
		if ok {
			return b.Steps, nil
		}
	}
	return block.ElseBranch, nil
}

// assignIDs implements build_plan step 3, per the invariants in spec §3.
// Load and Transform share a single position counter (both are the
// "mutation" step kinds the position suffix disambiguates), matching the
// worked example in spec §8 S1 where the first Load gets position 1 and the
// following Transform gets position 2. It also returns a human-readable
// label per id for cycle-error reporting.
func assignIDs(directives []plan.Directive) ([]string, map[string]string) {
	ids := make([]string, len(directives))
	labels := make(map[string]string, len(directives))
	position := 0

	for i, d := range directives {
		switch v := d.(type) {
		case *plan.SourceDefinition:
			ids[i] = "source_" + v.Name
			labels[ids[i]] = "SOURCE " + v.Name
		case *plan.Load:
			position++
			ids[i] = fmt.Sprintf("load_%s_%s_%d", v.TableName, strings.ToLower(string(v.Mode)), position)
			labels[ids[i]] = "LOAD " + v.TableName
		case *plan.SQLBlock:
			position++
			suffix := ""
			if v.IsReplace {
				suffix = "_replace"
			}
			ids[i] = fmt.Sprintf("transform_%s%s_%d", v.TableName, suffix, position)
			labels[ids[i]] = "CREATE TABLE " + v.TableName
		case *plan.Export:
			connType := strings.ToLower(v.ConnectorType)
			if v.TableName != "" {
				ids[i] = fmt.Sprintf("export_%s_%s", connType, v.TableName)
				labels[ids[i]] = fmt.Sprintf("EXPORT %s to %s", v.TableName, v.ConnectorType)
			} else {
				position++
				ids[i] = fmt.Sprintf("export_%s_%d", connType, position)
				labels[ids[i]] = fmt.Sprintf("EXPORT query result to %s", v.ConnectorType)
			}
		}
	}
	return ids, labels
}

func toDependencyEntry(id string, d plan.Directive) dependency.Entry {
	switch v := d.(type) {
	case *plan.SourceDefinition:
		return dependency.Entry{StepID: id, Kind: "source_definition", TableName: v.Name, Line: v.LineNumber}
	case *plan.Load:
		return dependency.Entry{StepID: id, Kind: "load", TableName: v.TableName, SourceName: v.SourceName, Line: v.LineNumber}
	case *plan.SQLBlock:
		return dependency.Entry{StepID: id, Kind: "transform", TableName: v.TableName, SQLQuery: v.SQLQuery, IsReplace: v.IsReplace, Line: v.LineNumber}
	case *plan.Export:
		return dependency.Entry{StepID: id, Kind: "export", TableName: v.TableName, SQLQuery: v.SQLQuery, Line: v.LineNumber}
	default:
		return dependency.Entry{StepID: id, Line: d.Line()}
	}
}

// recoverMissingSteps is a safety net for build_plan step 7's "missing-step
// recovery": order.Resolve is given the complete id list, so every step is
// already present in its output, but a defensive append guards against a
// future change to the ordering call that narrows the input set.
func recoverMissingSteps(ordered, allIDs []string) []string {
	seen := make(map[string]struct{}, len(ordered))
	for _, id := range ordered {
		seen[id] = struct{}{}
	}
	for _, id := range allIDs {
		if _, ok := seen[id]; !ok {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

func buildEntry(id string, d plan.Directive, dependsOn []string) (*plan.Entry, error) {
	e := &plan.Entry{ID: id, DependsOn: dependsOn, LineNumber: d.Line()}
	switch v := d.(type) {
	case *plan.SourceDefinition:
		e.Type = plan.EntryTypeSourceDefinition
		e.SourceDef = &plan.SourceEntry{
			Name:                 v.Name,
			SourceConnectorType:  v.ConnectorType,
			ProfileConnectorName: v.ProfileConnectorName,
			IsFromProfile:        v.IsFromProfile,
			SyncMode:             v.SyncMode,
			CursorField:          v.CursorField,
			PrimaryKey:           v.PrimaryKey,
			Params:               v.Params,
		}
	case *plan.Load:
		e.Type = plan.EntryTypeLoad
		e.Load = &plan.LoadEntry{
			SourceName:  v.SourceName,
			TargetTable: v.TableName,
			Mode:        v.Mode,
			UpsertKeys:  v.UpsertKeys,
		}
	case *plan.SQLBlock:
		e.Type = plan.EntryTypeTransform
		e.Transform = &plan.TransformEntry{
			TargetTable: v.TableName,
			SQLQuery:    v.SQLQuery,
			IsReplace:   v.IsReplace,
		}
	case *plan.Export:
		e.Type = plan.EntryTypeExport
		e.Export = &plan.ExportEntry{
			SourceTable:         v.TableName,
			SourceConnectorType: v.ConnectorType,
			SQLQuery:            v.SQLQuery,
			DestinationURI:      v.DestinationURI,
			Options:             v.Options,
		}
	default:
		return nil, fmt.Errorf("planner: unsupported directive kind %q", d.Kind())
	}
	return e, nil
}

// substituteEntries runs variable substitution over every emitted entry's
// text fields in place (build_plan step 8).
func substituteEntries(entries []*plan.Entry, mgr *vars.Manager) {
	for _, e := range entries {
		switch e.Type {
		case plan.EntryTypeSourceDefinition:
			e.SourceDef.Params = substituteMap(e.SourceDef.Params, mgr)
		case plan.EntryTypeTransform:
			if s, ok := mgr.Substitute(e.Transform.SQLQuery).(string); ok {
				e.Transform.SQLQuery = s
			}
		case plan.EntryTypeExport:
			if s, ok := mgr.Substitute(e.Export.SQLQuery).(string); ok {
				e.Export.SQLQuery = s
			}
			if s, ok := mgr.Substitute(e.Export.DestinationURI).(string); ok {
				e.Export.DestinationURI = s
			}
			e.Export.Options = substituteMap(e.Export.Options, mgr)
		}
	}
}

func substituteMap(m map[string]interface{}, mgr *vars.Manager) map[string]interface{} {
	if m == nil {
		return nil
	}
	substituted := mgr.Substitute(m)
	out, _ := substituted.(map[string]interface{})
	return out
}

// revalidateEntries re-runs variable validation over the substituted plan;
// anything still unresolved is a warning only at this stage, not a failure
// (build_plan step 8).
func revalidateEntries(entries []*plan.Entry, mgr *vars.Manager) []string {
	texts := map[int]string{}
	for _, e := range entries {
		switch e.Type {
		case plan.EntryTypeTransform:
			texts[e.LineNumber] += " " + e.Transform.SQLQuery
		case plan.EntryTypeExport:
			texts[e.LineNumber] += " " + e.Export.SQLQuery + " " + e.Export.DestinationURI
		}
	}
	missing := mgr.ValidateRequired(texts)
	warnings := make([]string, 0, len(missing))
	for _, m := range missing {
		warnings = append(warnings, fmt.Sprintf("variable %q at line(s) %v remains unresolved after plan emission", m.Name, m.Lines))
	}
	return warnings
}

// classifyUndefinedReferences implements build_plan step 5: references of
// 3 characters or fewer are skipped as common test tokens; the rest are
// compared against every known table name for a likely typo (edit distance
// ≤2, or one name is the other plus a listed "_" suffix or any "_"-joined
// suffix of up to 10 characters; prefixes are not matched). A likely typo
// is fatal; anything else is logged as a warning (an external table).
func classifyUndefinedReferences(graph *dependency.Graph) ([]string, error) {
	defined := make([]string, 0, len(graph.TableProducer))
	for table := range graph.TableProducer {
		defined = append(defined, table)
	}
	sort.Strings(defined)

	refNames := make([]string, 0, len(graph.UndefinedReferences))
	for ref := range graph.UndefinedReferences {
		refNames = append(refNames, ref)
	}
	sort.Strings(refNames)

	var warnings []string
	for _, ref := range refNames {
		locs := graph.UndefinedReferences[ref]
		lines := make([]int, 0, len(locs))
		for _, l := range locs {
			lines = append(lines, l.Line)
		}
		sort.Ints(lines)

		if len(ref) <= 3 {
			warnings = append(warnings, fmt.Sprintf("undefined table %q at line(s) %v treated as external (too short to classify)", ref, lines))
			continue
		}

		suggestion := nearestTypoCandidate(ref, defined)
		if suggestion != "" {
			return nil, &core.ValidationError{
				Reference:  ref,
				Suggestion: suggestion,
				Locations:  lines,
				Err:        core.ErrLikelyTypo,
			}
		}
		warnings = append(warnings, fmt.Sprintf("undefined table %q at line(s) %v treated as external", ref, lines))
	}
	return warnings, nil
}

var typoSuffixes = []string{
	"_failed", "_wrong", "_test", "_old", "_new", "_backup",
	"_temp", "_copy", "_typo", "_error", "_bad", "_fixed",
}

func nearestTypoCandidate(ref string, defined []string) string {
	for _, candidate := range defined {
		if looksLikeTypo(ref, candidate) {
			return candidate
		}
	}
	return ""
}

func looksLikeTypo(ref, candidate string) bool {
	if ref == candidate {
		return false
	}
	if levenshtein(ref, candidate) <= 2 {
		return true
	}
	for _, suf := range typoSuffixes {
		if ref == candidate+suf || candidate == ref+suf {
			return true
		}
	}
	if suffixWithin(ref, candidate, 10) || suffixWithin(candidate, ref, 10) {
		return true
	}
	return false
}

// suffixWithin reports whether longer == shorter + "_" + <=maxLen more chars.
func suffixWithin(longer, shorter string, maxLen int) bool {
	prefix := shorter + "_"
	if !strings.HasPrefix(longer, prefix) {
		return false
	}
	return len(longer)-len(prefix) <= maxLen
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
