// Package exec implements the Execution Context (C10), Orchestrator (C11),
// and Parallel Strategy (C12): the runtime half of the kernel that takes a
// Planner-emitted plan and drives it to completion against the SQL engine,
// connector registry, and watermark manager.
package exec

import (
	"fmt"
	"strings"
	"sync"

	"github.com/giaosudau/sqlflow-go/connector"
	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/sqlengine"
	"github.com/giaosudau/sqlflow-go/vars"
	"github.com/giaosudau/sqlflow-go/watermark"
	"github.com/google/uuid"
)

// StdoutFeedback is the default Feedback sink: callers wire
// `execCtx.Feedback = exec.StdoutFeedback` when they want handler progress
// lines printed directly, matching the Python original's console output
// alongside its structured logging.
func StdoutFeedback(line string) {
	fmt.Println(line)
}

// SourceRecord is what the Source-Definition Handler records about a source
// it just instantiated, so a later Load directive naming the same source
// can find its connector type and resolved configuration (spec §4.8.1:
// "records the source definition in the execution context").
type SourceRecord struct {
	ConnectorType  string
	ResolvedConfig map[string]interface{}
	SyncMode       string
	CursorField    string
	PrimaryKey     []string
}

// ExecutionContext is the immutable-by-convention per-run bundle injected
// into every step handler (spec §4.9). Variables and Config are replaced
// wholesale by WithVariables/WithConfig, never mutated in place; Sources is
// a shared, mutex-guarded registry because steps within the same run need
// to observe each other's source registrations, unlike Variables/Config
// which are per-call snapshots.
type ExecutionContext struct {
	SQLEngine         sqlengine.Engine
	ConnectorRegistry *connector.Registry
	VariableManager   *vars.Manager
	WatermarkManager  *watermark.Manager
	Observability     Observability
	RunID             string
	Pipeline          string
	Variables         map[string]interface{}
	Config            map[string]interface{}

	// Feedback, if non-nil, receives human-readable progress lines a step
	// handler wants to surface directly (e.g. ExportHandler's "Exported N
	// rows from X to Y"), alongside the structured Observability metrics.
	// Nil by default, and NewExecutionContext leaves it nil; callers set it
	// (e.g. to StdoutFeedback) to receive these lines.
	Feedback func(string)

	// Logger is used by handlers for conditions that are worth surfacing
	// but don't constitute a step failure (e.g. a post-load watermark
	// update that fails but shouldn't fail an otherwise-successful load).
	// Defaults to core.NoOpLogger.
	Logger core.Logger

	sources *sourceRegistry
}

type sourceRegistry struct {
	mu   sync.RWMutex
	byID map[string]SourceRecord
}

func newSourceRegistry() *sourceRegistry {
	return &sourceRegistry{byID: map[string]SourceRecord{}}
}

// NewRunID generates a short random run identifier: "run_" followed by 8
// lowercase hex characters, per spec §4.9 ("a short random id").
func NewRunID() string {
	id := uuid.NewString()
	return "run_" + strings.ReplaceAll(id, "-", "")[:8]
}

// NewExecutionContext builds a context for one run, generating a RunID if
// none is supplied.
func NewExecutionContext(
	engine sqlengine.Engine,
	registry *connector.Registry,
	varManager *vars.Manager,
	wmManager *watermark.Manager,
	obs Observability,
	runID string,
	variables, config map[string]interface{},
) *ExecutionContext {
	if runID == "" {
		runID = NewRunID()
	}
	if variables == nil {
		variables = map[string]interface{}{}
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return &ExecutionContext{
		SQLEngine:         engine,
		ConnectorRegistry: registry,
		VariableManager:   varManager,
		WatermarkManager:  wmManager,
		Observability:     obs,
		RunID:             runID,
		Pipeline:          runID,
		Variables:         variables,
		Config:            config,
		Logger:            &core.NoOpLogger{},
		sources:           newSourceRegistry(),
	}
}

// WithVariables returns a new ExecutionContext whose Variables is the
// receiver's Variables overlaid with delta; the receiver is unchanged.
func (c *ExecutionContext) WithVariables(delta map[string]interface{}) *ExecutionContext {
	merged := make(map[string]interface{}, len(c.Variables)+len(delta))
	for k, v := range c.Variables {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	next := *c
	next.Variables = merged
	return &next
}

// WithConfig returns a new ExecutionContext whose Config is the receiver's
// Config overlaid with delta; the receiver is unchanged.
func (c *ExecutionContext) WithConfig(delta map[string]interface{}) *ExecutionContext {
	merged := make(map[string]interface{}, len(c.Config)+len(delta))
	for k, v := range c.Config {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	next := *c
	next.Config = merged
	return &next
}

// RecordSource registers name's connector type and resolved config, so a
// later Load handler naming the same source can find it.
func (c *ExecutionContext) RecordSource(name string, record SourceRecord) {
	c.sources.mu.Lock()
	defer c.sources.mu.Unlock()
	c.sources.byID[name] = record
}

// LookupSource returns the source record for name, if one was recorded
// during this run.
func (c *ExecutionContext) LookupSource(name string) (SourceRecord, bool) {
	c.sources.mu.RLock()
	defer c.sources.mu.RUnlock()
	rec, ok := c.sources.byID[name]
	return rec, ok
}
