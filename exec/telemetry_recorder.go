package exec

import (
	"context"
	"errors"
	"sync"

	"github.com/giaosudau/sqlflow-go/core"
)

// TelemetryRecorder decorates Recorder with the OpenTelemetry span/metric
// emission spec §6.6 asks for ("every step start/success/failure emits a
// span and duration/row-count metrics"), grounded on `telemetry.OTelProvider`
// implementing core.Telemetry (SPEC_FULL.md domain stack's otel entry).
// Observability has no ctx parameter, so spans are rooted at
// context.Background() rather than threaded through the call chain; this
// matches Recorder's own context-free design.
type TelemetryRecorder struct {
	*Recorder
	telemetry core.Telemetry

	mu    sync.Mutex
	spans map[string]core.Span
}

// NewTelemetryRecorder builds a TelemetryRecorder. A nil telemetry falls
// back to core.NoOpTelemetry.
func NewTelemetryRecorder(logger core.Logger, telemetry core.Telemetry) *TelemetryRecorder {
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &TelemetryRecorder{
		Recorder:  NewRecorder(logger),
		telemetry: telemetry,
		spans:     map[string]core.Span{},
	}
}

func (t *TelemetryRecorder) RecordStepStart(stepID, stepType string) {
	t.Recorder.RecordStepStart(stepID, stepType)

	_, span := t.telemetry.StartSpan(context.Background(), "step."+stepType)
	span.SetAttribute("step_id", stepID)
	span.SetAttribute("step_type", stepType)

	t.mu.Lock()
	t.spans[stepID] = span
	t.mu.Unlock()
}

func (t *TelemetryRecorder) endSpan(stepID string, stepErr error) {
	t.mu.Lock()
	span, ok := t.spans[stepID]
	if ok {
		delete(t.spans, stepID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if stepErr != nil {
		span.RecordError(stepErr)
	}
	span.End()
}

func (t *TelemetryRecorder) RecordStepSuccess(stepID, stepType string, durationMS float64) {
	t.Recorder.RecordStepSuccess(stepID, stepType, durationMS)
	t.endSpan(stepID, nil)
	t.telemetry.RecordMetric(stepType+".duration_ms", durationMS, map[string]string{"step_id": stepID, "status": "success"})
}

func (t *TelemetryRecorder) RecordStepFailure(stepID, stepType, message string, durationMS float64) {
	t.Recorder.RecordStepFailure(stepID, stepType, message, durationMS)
	t.endSpan(stepID, errors.New(message))
	t.telemetry.RecordMetric(stepType+".duration_ms", durationMS, map[string]string{"step_id": stepID, "status": "failed"})
}

func (t *TelemetryRecorder) RecordRowsAffected(stepID string, rows int64) {
	t.Recorder.RecordRowsAffected(stepID, rows)
	t.telemetry.RecordMetric("rows_affected", float64(rows), map[string]string{"step_id": stepID})
}

var _ Observability = (*TelemetryRecorder)(nil)
