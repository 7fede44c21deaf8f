package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturingLogger(t *testing.T, format string) (*StructuredLogger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("SQLFLOW_LOG_FORMAT", format)
	t.Setenv("SQLFLOW_LOG_LEVEL", "")
	logger := NewStructuredLogger("sqlflow-test")
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	return logger, buf
}

func TestStructuredLoggerJSONFormatIncludesServiceAndFields(t *testing.T) {
	logger, buf := newCapturingLogger(t, "json")

	logger.Info("step started", map[string]interface{}{"step_id": "load_1", "rows": 3})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sqlflow-test", entry["service"])
	assert.Equal(t, "step started", entry["message"])
	assert.Equal(t, "load_1", entry["step_id"])
	assert.Equal(t, float64(3), entry["rows"])
}

func TestStructuredLoggerTextFormatIncludesComponentTag(t *testing.T) {
	logger, buf := newCapturingLogger(t, "text")
	scoped := logger.WithComponent("handlers/load")

	scoped.Info("step started", nil)

	line := buf.String()
	assert.Contains(t, line, "[sqlflow-test:handlers/load]")
	assert.Contains(t, line, "step started")
}

func TestStructuredLoggerDebugSuppressedBelowConfiguredLevel(t *testing.T) {
	logger, buf := newCapturingLogger(t, "text")
	logger.Debug("should not appear", nil)
	assert.Empty(t, buf.String())
}

func TestStructuredLoggerDebugLevelEnablesDebugLines(t *testing.T) {
	t.Setenv("SQLFLOW_LOG_FORMAT", "text")
	t.Setenv("SQLFLOW_LOG_LEVEL", "debug")
	logger := NewStructuredLogger("sqlflow-test")
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)

	logger.Debug("trace detail", nil)
	assert.Contains(t, buf.String(), "trace detail")
}

func TestStructuredLoggerWithRunIDAddsFieldOnContextVariants(t *testing.T) {
	logger, buf := newCapturingLogger(t, "json")
	ctx := WithRunID(context.Background(), "run_abc123")

	logger.InfoWithContext(ctx, "step started", map[string]interface{}{"step_id": "load_1"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run_abc123", entry["run_id"])
}

func TestStructuredLoggerDefaultsToJSONUnderKubernetes(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	t.Setenv("SQLFLOW_LOG_FORMAT", "")
	logger := NewStructuredLogger("sqlflow-test")
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)

	logger.Info("hello", nil)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))

	_ = os.Unsetenv("KUBERNETES_SERVICE_HOST")
}
