// Package snapshot implements the State Snapshot Manager (C13, spec
// §4.12): persisting enough of an in-progress or failed run to resume it
// later, listing resumable runs, and pruning old snapshots.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giaosudau/sqlflow-go/plan"
	"gopkg.in/yaml.v3"
)

// RunStatus is the lifecycle status recorded in a snapshot.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusFailed    RunStatus = "FAILED"
	StatusPaused    RunStatus = "PAUSED"
	StatusSucceeded RunStatus = "SUCCEEDED"
)

// State is what gets persisted once per run, updated as the run progresses.
// Its shape is spec §4.12's {execution_state, task_statuses,
// completed_results, plan, variables}: Plan carries the entries a resumed
// run needs to reconstruct what to re-execute, and CompletedResults carries
// each finished step's full StepResult (rows affected, metrics, output
// schema) rather than a bare step id, since final result aggregation after
// a resume needs that detail, not just which steps ran.
type State struct {
	RunID            string                 `json:"run_id" yaml:"run_id"`
	Pipeline         string                 `json:"pipeline" yaml:"pipeline"`
	Status           RunStatus              `json:"status" yaml:"status"`
	Plan             []json.RawMessage      `json:"plan" yaml:"plan"`
	TaskStatuses     []plan.TaskStatus      `json:"task_statuses" yaml:"task_statuses"`
	CompletedResults []plan.StepResult      `json:"completed_results" yaml:"completed_results"`
	Variables        map[string]interface{} `json:"variables" yaml:"variables"`
	ResumePoint      string                 `json:"resume_point" yaml:"resume_point"`
	SavedAt          time.Time              `json:"saved_at" yaml:"saved_at"`
}

// EncodePlan serializes entries using the canonical PlanEntry wire format
// (plan.Entry.ToJSON), so a snapshot carries enough of the plan for a
// resumed run to reconstruct what to re-execute.
func EncodePlan(entries []*plan.Entry) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		data, err := e.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("encoding plan entry %q: %w", e.ID, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// DecodePlan reverses EncodePlan.
func DecodePlan(raw []json.RawMessage) ([]*plan.Entry, error) {
	out := make([]*plan.Entry, 0, len(raw))
	for _, data := range raw {
		e, err := plan.FromJSON(data)
		if err != nil {
			return nil, fmt.Errorf("decoding plan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// resumable reports whether status is one list_resumes/can_resume should
// surface (spec §4.12: FAILED, RUNNING, or PAUSED).
func (s State) resumable() bool {
	switch s.Status {
	case StatusFailed, StatusRunning, StatusPaused:
		return true
	default:
		return false
	}
}

// Store is the snapshot persistence contract. FileStore is the default
// (spec §4.12's "JSON file per run"); RedisStore is the optional
// shared-state alternative for multi-host orchestration.
type Store interface {
	Save(ctx context.Context, s State) error
	// Load returns (state, false, nil) when no snapshot exists or the
	// persisted snapshot is corrupt (skipped, not an error; FileStore also
	// logs it).
	Load(ctx context.Context, runID string) (State, bool, error)
	Delete(ctx context.Context, runID string) error
	ListResumable(ctx context.Context) ([]State, error)
	CleanupOlderThan(ctx context.Context, keepDays int) (int, error)
}

// Manager is the run-resumability API every Store backs (spec §4.12's
// can_resume/get_resume_point), independent of which Store is plugged in.
type Manager struct {
	Store Store
}

// NewManager builds a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{Store: store}
}

// CanResume reports whether runID has a snapshot in a resumable status.
func (m *Manager) CanResume(ctx context.Context, runID string) (bool, error) {
	s, ok, err := m.Store.Load(ctx, runID)
	if err != nil || !ok {
		return false, err
	}
	return s.resumable(), nil
}

// GetResumePoint returns the step id execution should resume from.
func (m *Manager) GetResumePoint(ctx context.Context, runID string) (string, error) {
	s, ok, err := m.Store.Load(ctx, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{RunID: runID}
	}
	return s.ResumePoint, nil
}

// DumpYAML renders runID's snapshot as YAML, for operator-facing
// debugging output: YAML reads more easily on a terminal than the
// on-disk JSON, without changing what's persisted.
func (m *Manager) DumpYAML(ctx context.Context, runID string) (string, error) {
	s, ok, err := m.Store.Load(ctx, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{RunID: runID}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("rendering snapshot for run %q as yaml: %w", runID, err)
	}
	return string(data), nil
}

// NotFoundError reports that no snapshot exists for a run id.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return "no snapshot for run " + e.RunID
}
