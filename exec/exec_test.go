package exec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	fail    bool
	failN   int32 // fail this many times then succeed
	calls   int32
	panicOn bool
}

func (h *fakeHandler) Execute(ctx context.Context, entry *plan.Entry, execCtx *ExecutionContext) plan.StepResult {
	n := atomic.AddInt32(&h.calls, 1)
	start := time.Now()
	if h.panicOn {
		panic("boom")
	}
	if h.fail || n <= h.failN {
		return plan.NewErrorResult(entry.ID, entry.Type, start, time.Now(), "synthetic failure", "")
	}
	return plan.NewSuccessResult(entry.ID, entry.Type, start, time.Now(), 1, nil)
}

func mkEntry(id string, deps ...string) *plan.Entry {
	return &plan.Entry{ID: id, Type: plan.EntryTypeTransform, DependsOn: deps, Transform: &plan.TransformEntry{TargetTable: id}}
}

type noopCommitter struct{ commits int32 }

func (c *noopCommitter) CommitChanges(ctx context.Context) error {
	atomic.AddInt32(&c.commits, 1)
	return nil
}

func TestExecutionContextWithVariablesIsImmutable(t *testing.T) {
	base := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", map[string]interface{}{"a": 1}, nil)
	next := base.WithVariables(map[string]interface{}{"b": 2})

	assert.Equal(t, map[string]interface{}{"a": 1}, base.Variables)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, next.Variables)
}

func TestExecutionContextSourceRegistryIsShared(t *testing.T) {
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "", nil, nil)
	execCtx.RecordSource("orders", SourceRecord{ConnectorType: "csv"})

	rec, ok := execCtx.LookupSource("orders")
	require.True(t, ok)
	assert.Equal(t, "csv", rec.ConnectorType)

	_, ok = execCtx.LookupSource("missing")
	assert.False(t, ok)
}

func TestNewRunIDIsWellFormed(t *testing.T) {
	id := NewRunID()
	assert.Regexp(t, `^run_[0-9a-f]{8}$`, id)
}

func TestSequentialStrategyStopsAtFirstFailure(t *testing.T) {
	ok := &fakeHandler{}
	bad := &fakeHandler{fail: true}
	entries := []*plan.Entry{mkEntry("a"), mkEntry("b", "a"), mkEntry("c", "b")}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: bad}
	_ = ok

	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	committer := &noopCommitter{}
	results, err := SequentialStrategy{}.Execute(context.Background(), entries, handlers, execCtx, committer)

	require.Error(t, err)
	var execErr *core.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "a", execErr.StepID)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, int32(0), committer.commits)
}

func TestSequentialStrategyCommitsAfterEachSuccess(t *testing.T) {
	ok := &fakeHandler{}
	entries := []*plan.Entry{mkEntry("a"), mkEntry("b", "a")}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: ok}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	committer := &noopCommitter{}

	results, err := SequentialStrategy{}.Execute(context.Background(), entries, handlers, execCtx, committer)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), committer.commits)
}

func TestSequentialStrategyConvertsPanicToFailure(t *testing.T) {
	panicky := &fakeHandler{panicOn: true}
	entries := []*plan.Entry{mkEntry("a")}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: panicky}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)

	results, err := SequentialStrategy{}.Execute(context.Background(), entries, handlers, execCtx, nil)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].ErrorMessage, "handler panic")
}

func TestParallelStrategyRunsIndependentStepsAndRespectsDependencies(t *testing.T) {
	ok := &fakeHandler{}
	entries := []*plan.Entry{
		mkEntry("a"),
		mkEntry("b"),
		mkEntry("c", "a", "b"),
	}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: ok}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	strategy := NewParallelStrategy(4, 0, time.Millisecond, nil)

	results, err := strategy.Execute(context.Background(), entries, handlers, execCtx, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestParallelStrategyRetriesBeforeFailingTerminally(t *testing.T) {
	flaky := &fakeHandler{failN: 2}
	entries := []*plan.Entry{mkEntry("a")}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: flaky}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	strategy := NewParallelStrategy(2, 3, time.Millisecond, nil)

	results, err := strategy.Execute(context.Background(), entries, handlers, execCtx, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, int32(3), flaky.calls)
}

func TestParallelStrategyExhaustsRetriesAndFails(t *testing.T) {
	alwaysFails := &fakeHandler{fail: true}
	entries := []*plan.Entry{mkEntry("a")}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: alwaysFails}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	strategy := NewParallelStrategy(1, 1, time.Millisecond, nil)

	results, err := strategy.Execute(context.Background(), entries, handlers, execCtx, nil)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, int32(1), alwaysFails.calls)
}

func TestParallelStrategyDetectsDeadlock(t *testing.T) {
	ok := &fakeHandler{}
	entries := []*plan.Entry{
		mkEntry("a", "missing_dependency"),
	}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: ok}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	strategy := NewParallelStrategy(2, 0, time.Millisecond, nil)

	_, err := strategy.Execute(context.Background(), entries, handlers, execCtx, nil)
	require.Error(t, err)
	var deadlockErr *core.DeadlockError
	require.ErrorAs(t, err, &deadlockErr)
	assert.Contains(t, deadlockErr.Remaining, "a")
}

func TestOrchestratorEmptyPlanIsVacuouslySuccessful(t *testing.T) {
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", map[string]interface{}{"x": 1}, nil)
	orch := NewOrchestrator(nil)

	result, err := orch.Execute(context.Background(), nil, nil, execCtx, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, float64(0), result.TotalDurationMS)
}

func TestOrchestratorAggregatesSequentialRun(t *testing.T) {
	ok := &fakeHandler{}
	entries := []*plan.Entry{mkEntry("a"), mkEntry("b", "a")}
	handlers := map[plan.EntryType]Handler{plan.EntryTypeTransform: ok}
	execCtx := NewExecutionContext(nil, nil, nil, nil, nil, "run_1", nil, nil)
	orch := NewOrchestrator(SequentialStrategy{})

	result, err := orch.Execute(context.Background(), entries, handlers, execCtx, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.TotalRowsAffected())
}

func TestRecorderTracksAlertsAndMetrics(t *testing.T) {
	r := NewRecorder(nil)
	r.RecordStepStart("s1", "transform")
	r.RecordRowsAffected("s1", 10)
	r.RecordStepFailure("s1", "transform", "boom", 12.5)
	r.AddStepMetadata("s1", map[string]interface{}{"rows_read": 10})

	alerts := r.GetAlerts()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "boom")

	metrics := r.GetMetrics()
	assert.Equal(t, int64(10), metrics["s1.rows_affected"])
	assert.Equal(t, 10, metrics["s1.rows_read"])
}

func TestChooseStrategy(t *testing.T) {
	parallel := NewParallelStrategy(2, 0, time.Millisecond, nil)
	assert.IsType(t, SequentialStrategy{}, ChooseStrategy(false, parallel))
	assert.Same(t, Strategy(parallel), ChooseStrategy(true, parallel))
}
