package exec

import (
	"testing"

	"github.com/giaosudau/sqlflow-go/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryRecorderEmitsSpansAndMetricsAndStillRecordsLocally(t *testing.T) {
	provider, err := telemetry.NewOTelProvider("sqlflow-test-run")
	require.NoError(t, err)

	rec := NewTelemetryRecorder(nil, provider)

	rec.RecordStepStart("load_orders_raw_replace_1", "load")
	rec.RecordRowsAffected("load_orders_raw_replace_1", 42)
	rec.RecordStepSuccess("load_orders_raw_replace_1", "load", 12.5)

	metrics := rec.GetMetrics()
	assert.Equal(t, int64(42), metrics["load_orders_raw_replace_1.rows_affected"])
	assert.Empty(t, rec.GetAlerts())
}

func TestTelemetryRecorderRecordsFailureAsAlertAndEndsSpanWithError(t *testing.T) {
	provider, err := telemetry.NewOTelProvider("sqlflow-test-run-2")
	require.NoError(t, err)

	rec := NewTelemetryRecorder(nil, provider)

	rec.RecordStepStart("transform_orders_clean_2", "transform")
	rec.RecordStepFailure("transform_orders_clean_2", "transform", "query failed", 5.0)

	alerts := rec.GetAlerts()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "transform_orders_clean_2")
	assert.Contains(t, alerts[0], "query failed")
}

func TestTelemetryRecorderDefaultsToNoOpTelemetry(t *testing.T) {
	rec := NewTelemetryRecorder(nil, nil)
	rec.RecordStepStart("s1", "load")
	rec.RecordStepSuccess("s1", "load", 1.0)
	assert.Empty(t, rec.GetAlerts())
}
