package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/giaosudau/sqlflow-go/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "state")
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	return store
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*plan.Entry{
		{ID: "source_orders", Type: plan.EntryTypeSourceDefinition, SourceDef: &plan.SourceEntry{Name: "orders"}},
		{ID: "transform_orders_clean_2", Type: plan.EntryTypeTransform, Transform: &plan.TransformEntry{TargetTable: "orders_clean", SQLQuery: "SELECT 1"}},
	}
	encodedPlan, err := EncodePlan(entries)
	require.NoError(t, err)

	s := State{
		RunID:    "run_abc123",
		Pipeline: "orders_pipeline",
		Status:   StatusFailed,
		Plan:     encodedPlan,
		TaskStatuses: []plan.TaskStatus{
			{StepID: "source_orders", State: plan.TaskSuccess},
			{StepID: "load_orders_raw_replace_1", State: plan.TaskSuccess},
		},
		CompletedResults: []plan.StepResult{
			plan.NewSuccessResult("source_orders", plan.EntryTypeSourceDefinition, time.Now(), time.Now(), 0, nil),
			plan.NewSuccessResult("load_orders_raw_replace_1", plan.EntryTypeLoad, time.Now(), time.Now(), 100, nil),
		},
		Variables:   map[string]interface{}{"batch_date": "2026-07-29"},
		ResumePoint: "transform_orders_clean_2",
	}
	require.NoError(t, store.Save(ctx, s))

	loaded, ok, err := store.Load(ctx, "run_abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.Pipeline, loaded.Pipeline)
	assert.Equal(t, s.ResumePoint, loaded.ResumePoint)
	require.Len(t, loaded.CompletedResults, 2)
	assert.Equal(t, "load_orders_raw_replace_1", loaded.CompletedResults[1].StepID)
	assert.Equal(t, int64(100), loaded.CompletedResults[1].RowsAffected)
	require.Len(t, loaded.TaskStatuses, 2)
	assert.Equal(t, plan.TaskSuccess, loaded.TaskStatuses[0].State)

	decoded, err := DecodePlan(loaded.Plan)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "source_orders", decoded[0].ID)
	assert.Equal(t, "SELECT 1", decoded[1].Transform.SQLQuery)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestFileStoreLoadMissingReturnsNotFoundNoError(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.Load(context.Background(), "run_does_not_exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreLoadCorruptFileIsSkippedNotFailed(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.path("run_bad")), 0o755))
	require.NoError(t, os.WriteFile(store.path("run_bad"), []byte("{not json"), 0o644))

	_, ok, err := store.Load(context.Background(), "run_bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, State{RunID: "run_1", Status: StatusRunning}))

	require.NoError(t, store.Delete(ctx, "run_1"))
	require.NoError(t, store.Delete(ctx, "run_1"))

	_, ok, err := store.Load(ctx, "run_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreListResumableFiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, State{RunID: "run_failed", Status: StatusFailed}))
	require.NoError(t, store.Save(ctx, State{RunID: "run_running", Status: StatusRunning}))
	require.NoError(t, store.Save(ctx, State{RunID: "run_paused", Status: StatusPaused}))
	require.NoError(t, store.Save(ctx, State{RunID: "run_done", Status: StatusSucceeded}))

	states, err := store.ListResumable(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)

	ids := map[string]bool{}
	for _, s := range states {
		ids[s.RunID] = true
	}
	assert.True(t, ids["run_failed"])
	assert.True(t, ids["run_running"])
	assert.True(t, ids["run_paused"])
	assert.False(t, ids["run_done"])
}

func TestFileStoreCleanupOlderThanRemovesStaleSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, State{RunID: "run_old", Status: StatusFailed, SavedAt: time.Now().AddDate(0, 0, -10)}))
	require.NoError(t, store.Save(ctx, State{RunID: "run_recent", Status: StatusFailed, SavedAt: time.Now()}))

	removed, err := store.CleanupOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := store.Load(ctx, "run_old")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Load(ctx, "run_recent")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManagerCanResumeReflectsStatus(t *testing.T) {
	store := newTestStore(t)
	mgr := NewManager(store)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, State{RunID: "run_failed", Status: StatusFailed, ResumePoint: "transform_x"}))
	require.NoError(t, store.Save(ctx, State{RunID: "run_done", Status: StatusSucceeded}))

	canResume, err := mgr.CanResume(ctx, "run_failed")
	require.NoError(t, err)
	assert.True(t, canResume)

	canResume, err = mgr.CanResume(ctx, "run_done")
	require.NoError(t, err)
	assert.False(t, canResume)

	canResume, err = mgr.CanResume(ctx, "run_unknown")
	require.NoError(t, err)
	assert.False(t, canResume)
}

func TestManagerGetResumePointReturnsErrorWhenMissing(t *testing.T) {
	store := newTestStore(t)
	mgr := NewManager(store)

	_, err := mgr.GetResumePoint(context.Background(), "run_unknown")
	require.Error(t, err)

	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManagerDumpYAMLRendersSnapshot(t *testing.T) {
	store := newTestStore(t)
	mgr := NewManager(store)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, State{RunID: "run_1", Pipeline: "orders_pipeline", Status: StatusFailed, ResumePoint: "transform_x"}))

	out, err := mgr.DumpYAML(ctx, "run_1")
	require.NoError(t, err)
	assert.Contains(t, out, "pipeline: orders_pipeline")
	assert.Contains(t, out, "resume_point: transform_x")
}

func TestManagerDumpYAMLMissingRunReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	mgr := NewManager(store)

	_, err := mgr.DumpYAML(context.Background(), "run_missing")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManagerGetResumePointReturnsStoredStep(t *testing.T) {
	store := newTestStore(t)
	mgr := NewManager(store)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, State{RunID: "run_1", Status: StatusFailed, ResumePoint: "load_orders_raw_replace_1"}))

	point, err := mgr.GetResumePoint(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, "load_orders_raw_replace_1", point)
}
