// Package plan holds the data model shared by every stage of the kernel:
// the parsed Directive nodes the planner consumes, the PlanEntry values it
// emits, and the runtime TaskStatus/StepResult/ExecutionResult types the
// executor produces.
package plan

// SyncMode is the incremental-load mode declared on a SourceDefinition.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// LoadMode is the write strategy declared on a Load directive.
type LoadMode string

const (
	LoadModeReplace LoadMode = "REPLACE"
	LoadModeAppend  LoadMode = "APPEND"
	LoadModeUpsert  LoadMode = "UPSERT"
)

// Directive is a parsed pipeline AST node. Kind() names its directive kind
// and Line() its source line; the planner type-switches on the concrete
// node types below.
type Directive interface {
	Kind() string
	Line() int
}

// SourceDefinition declares an external data source and how it should be
// read incrementally.
type SourceDefinition struct {
	LineNumber          int
	Name                string
	ConnectorType       string
	Params              map[string]interface{}
	IsFromProfile       bool
	ProfileConnectorName string
	SyncMode            SyncMode
	CursorField         string
	PrimaryKey          []string
}

func (d *SourceDefinition) Kind() string { return "source_definition" }
func (d *SourceDefinition) Line() int    { return d.LineNumber }

// Load loads a source into a managed table.
type Load struct {
	LineNumber int
	TableName  string
	SourceName string
	Mode       LoadMode
	UpsertKeys []string
}

func (d *Load) Kind() string { return "load" }
func (d *Load) Line() int    { return d.LineNumber }

// SQLBlock transforms data via a SQL statement materialized into a table.
type SQLBlock struct {
	LineNumber int
	TableName  string
	SQLQuery   string
	IsReplace  bool
}

func (d *SQLBlock) Kind() string { return "transform" }
func (d *SQLBlock) Line() int    { return d.LineNumber }

// Export writes a table or query result to a file or object store.
type Export struct {
	LineNumber      int
	TableName       string
	SQLQuery        string
	DestinationURI  string
	ConnectorType   string
	Options         map[string]interface{}
}

func (d *Export) Kind() string { return "export" }
func (d *Export) Line() int    { return d.LineNumber }

// Set assigns a pipeline variable. Set directives never produce PlanEntries.
type Set struct {
	LineNumber    int
	VariableName  string
	VariableValue string
}

func (d *Set) Kind() string { return "set" }
func (d *Set) Line() int    { return d.LineNumber }

// ConditionalBranch is one `condition -> steps` arm of a ConditionalBlock.
type ConditionalBranch struct {
	Condition string
	Steps     []Directive
}

// ConditionalBlock flattens to at most one branch's steps (or the else
// branch, or nothing) once variables are resolved.
type ConditionalBlock struct {
	LineNumber int
	Branches   []ConditionalBranch
	ElseBranch []Directive
}

func (d *ConditionalBlock) Kind() string { return "conditional" }
func (d *ConditionalBlock) Line() int    { return d.LineNumber }
