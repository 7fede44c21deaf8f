package plan

import (
	"strings"
	"time"
)

// TaskState is the runtime lifecycle of a single PlanEntry during execution.
type TaskState string

const (
	TaskPending  TaskState = "PENDING"
	TaskEligible TaskState = "ELIGIBLE"
	TaskRunning  TaskState = "RUNNING"
	TaskSuccess  TaskState = "SUCCESS"
	TaskFailed   TaskState = "FAILED"
)

// TaskStatus is an immutable value type; every transition below returns a
// new TaskStatus rather than mutating the receiver, per spec §3.
type TaskStatus struct {
	StepID       string
	State        TaskState
	Attempts     int
	Dependencies map[string]struct{}
	StartTime    *time.Time
	EndTime      *time.Time
	ErrorMessage string
}

// WithState returns a copy of t transitioned to state.
func (t TaskStatus) WithState(state TaskState) TaskStatus {
	t.State = state
	return t
}

// WithRunning returns a copy of t transitioned to RUNNING with attempts
// incremented and StartTime stamped.
func (t TaskStatus) WithRunning(now time.Time) TaskStatus {
	t.State = TaskRunning
	t.Attempts++
	t.StartTime = &now
	return t
}

// WithSuccess returns a copy of t transitioned to SUCCESS with EndTime stamped.
func (t TaskStatus) WithSuccess(now time.Time) TaskStatus {
	t.State = TaskSuccess
	t.EndTime = &now
	t.ErrorMessage = ""
	return t
}

// WithFailure returns a copy of t transitioned to state (ELIGIBLE if retries
// remain, FAILED if terminal) carrying errMsg.
func (t TaskStatus) WithFailure(state TaskState, now time.Time, errMsg string) TaskStatus {
	t.State = state
	t.EndTime = &now
	t.ErrorMessage = errMsg
	return t
}

// StepResult reports the outcome of executing a single PlanEntry.
// success==false must always carry a non-empty ErrorMessage (spec invariant 5).
type StepResult struct {
	StepID              string
	StepType            EntryType
	Success             bool
	StartTime           time.Time
	EndTime             time.Time
	RowsAffected        int64
	ErrorMessage        string
	ErrorCode           string
	PerformanceMetrics  map[string]interface{}
	DataLineage         map[string]interface{}
	OutputSchema        map[string]string
	InputSchemas        map[string]map[string]string
	AttemptsObserved    int
}

// DurationMS is the wall-clock duration of the step in milliseconds.
func (r StepResult) DurationMS() float64 {
	return float64(r.EndTime.Sub(r.StartTime).Microseconds()) / 1000.0
}

// Validate enforces the success/error_message invariant (spec invariant 5).
func (r StepResult) Validate() error {
	if !r.Success && r.ErrorMessage == "" {
		return errSuccessInvariant
	}
	if r.Success && r.ErrorMessage != "" {
		return errSuccessInvariant
	}
	return nil
}

// NewSuccessResult builds a successful StepResult.
func NewSuccessResult(stepID string, stepType EntryType, start, end time.Time, rowsAffected int64, metrics map[string]interface{}) StepResult {
	return StepResult{
		StepID:             stepID,
		StepType:           stepType,
		Success:            true,
		StartTime:          start,
		EndTime:            end,
		RowsAffected:       rowsAffected,
		PerformanceMetrics: metrics,
	}
}

// NewErrorResult builds a failed StepResult; errorCode defaults to
// "<TYPE>_EXECUTION_ERROR" when empty, matching spec §4.8's observed-execution
// contract.
func NewErrorResult(stepID string, stepType EntryType, start, end time.Time, errMsg, errorCode string) StepResult {
	if errorCode == "" {
		errorCode = strings.ToUpper(string(stepType)) + "_EXECUTION_ERROR"
	}
	return StepResult{
		StepID:       stepID,
		StepType:     stepType,
		Success:      false,
		StartTime:    start,
		EndTime:      end,
		ErrorMessage: errMsg,
		ErrorCode:    errorCode,
	}
}

// ExecutionResult aggregates every StepResult of one run.
type ExecutionResult struct {
	Success          bool
	StepResults      []StepResult
	TotalDurationMS  float64
	Variables        map[string]interface{}
	Metadata         map[string]interface{}
}

// NewExecutionResult builds an ExecutionResult from step results, enforcing
// spec invariant 3: success is the conjunction of every step's success, and
// an empty plan is vacuously successful with zero duration.
func NewExecutionResult(results []StepResult, totalDurationMS float64, variables map[string]interface{}) ExecutionResult {
	if len(results) == 0 {
		return ExecutionResult{Success: true, StepResults: results, TotalDurationMS: 0, Variables: variables}
	}
	success := true
	for _, r := range results {
		if !r.Success {
			success = false
			break
		}
	}
	return ExecutionResult{
		Success:         success,
		StepResults:     results,
		TotalDurationMS: totalDurationMS,
		Variables:       variables,
	}
}

// TotalRowsAffected sums RowsAffected across every step result.
func (r ExecutionResult) TotalRowsAffected() int64 {
	var total int64
	for _, s := range r.StepResults {
		total += s.RowsAffected
	}
	return total
}

// FailedSteps returns the subset of step results that failed.
func (r ExecutionResult) FailedSteps() []StepResult {
	var failed []StepResult
	for _, s := range r.StepResults {
		if !s.Success {
			failed = append(failed, s)
		}
	}
	return failed
}

var errSuccessInvariant = stepResultInvariantError{}

type stepResultInvariantError struct{}

func (stepResultInvariantError) Error() string {
	return "StepResult invariant violated: success must be false iff error_message is present"
}
