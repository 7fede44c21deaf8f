package exec

import (
	"fmt"
	"sync"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
)

// Observability is the recording surface every step handler writes through
// on every execution path, success or failure (spec §6.6 / §4.8): step
// lifecycle events, row counts, arbitrary metadata, and a queryable alert
// and metric log for the final ExecutionResult / CLI summary.
type Observability interface {
	RecordStepStart(stepID, stepType string)
	RecordStepSuccess(stepID, stepType string, durationMS float64)
	RecordStepFailure(stepID, stepType, message string, durationMS float64)
	RecordRowsAffected(stepID string, rows int64)
	AddStepMetadata(stepID string, metadata map[string]interface{})
	GetAlerts() []string
	GetMetrics() map[string]interface{}
}

// Recorder is the default in-process Observability implementation: it logs
// step start/success/failure events through core.Logger, tagging each line
// with step_id and step_type fields, and keeps an in-memory alert/metric log.
type Recorder struct {
	logger core.Logger

	mu       sync.Mutex
	alerts   []string
	rows     map[string]int64
	metadata map[string]map[string]interface{}
}

// NewRecorder builds a Recorder. A nil logger falls back to core.NoOpLogger.
func NewRecorder(logger core.Logger) *Recorder {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Recorder{
		logger:   logger,
		rows:     map[string]int64{},
		metadata: map[string]map[string]interface{}{},
	}
}

func (r *Recorder) RecordStepStart(stepID, stepType string) {
	r.logger.Info("step started", map[string]interface{}{"step_id": stepID, "step_type": stepType})
}

func (r *Recorder) RecordStepSuccess(stepID, stepType string, durationMS float64) {
	r.logger.Info("step succeeded", map[string]interface{}{"step_id": stepID, "step_type": stepType, "duration_ms": durationMS})
}

func (r *Recorder) RecordStepFailure(stepID, stepType, message string, durationMS float64) {
	r.logger.Error("step failed", map[string]interface{}{"step_id": stepID, "step_type": stepType, "duration_ms": durationMS, "error": message})
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, fmt.Sprintf("step %s (%s) failed after %.1fms: %s", stepID, stepType, durationMS, message))
}

func (r *Recorder) RecordRowsAffected(stepID string, rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[stepID] += rows
}

func (r *Recorder) AddStepMetadata(stepID string, metadata map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.metadata[stepID]
	if !ok {
		existing = map[string]interface{}{}
		r.metadata[stepID] = existing
	}
	for k, v := range metadata {
		existing[k] = v
	}
}

func (r *Recorder) GetAlerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.alerts))
	copy(out, r.alerts)
	return out
}

func (r *Recorder) GetMetrics() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics := make(map[string]interface{}, len(r.rows)+len(r.metadata))
	for stepID, rows := range r.rows {
		metrics[stepID+".rows_affected"] = rows
	}
	for stepID, meta := range r.metadata {
		for k, v := range meta {
			metrics[fmt.Sprintf("%s.%s", stepID, k)] = v
		}
	}
	return metrics
}

var _ Observability = (*Recorder)(nil)

// since returns the elapsed duration in milliseconds.
func since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
