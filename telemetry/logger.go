package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
)

// StructuredLogger is the default core.ComponentAwareLogger implementation:
// JSON lines when run inside Kubernetes (detected via KUBERNETES_SERVICE_HOST,
// overridable with SQLFLOW_LOG_FORMAT), plain text otherwise.
type StructuredLogger struct {
	level     string
	debug     bool
	service   string
	component string
	format    string
	output    io.Writer
	mu        *sync.RWMutex
}

// NewStructuredLogger builds a logger for serviceName, reading level and
// format from the environment:
//
//	SQLFLOW_LOG_LEVEL  - DEBUG, INFO, WARN, ERROR (default INFO)
//	SQLFLOW_LOG_FORMAT - "json" or "text" (default: json under Kubernetes, else text)
func NewStructuredLogger(serviceName string) *StructuredLogger {
	level := os.Getenv("SQLFLOW_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	level = strings.ToUpper(level)

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("SQLFLOW_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &StructuredLogger{
		level:   level,
		debug:   level == "DEBUG",
		service: serviceName,
		format:  format,
		output:  os.Stdout,
		mu:      &sync.RWMutex{},
	}
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *StructuredLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) { l.log("ERROR", msg, fields) }
func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *StructuredLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withRunID(ctx, fields))
}
func (l *StructuredLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, withRunID(ctx, fields))
}
func (l *StructuredLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withRunID(ctx, fields))
}
func (l *StructuredLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, withRunID(ctx, fields))
}

// runIDKey is the context key WithRunID stores a run id under, so the
// *WithContext log methods can add it as a run_id field without threading it
// through every call explicitly.
type runIDKey struct{}

// WithRunID returns a context carrying runID for later retrieval by loggers.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func withRunID(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	runID, ok := ctx.Value(runIDKey{}).(string)
	if !ok || runID == "" {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["run_id"] = runID
	return out
}

// WithComponent returns a derived logger tagging every line with component,
// starting from a copy of the parent's level, format, and output, so a later
// SetOutput on one affects neither the other.
func (l *StructuredLogger) WithComponent(component string) core.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &StructuredLogger{
		level:     l.level,
		debug:     l.debug,
		service:   l.service,
		component: component,
		format:    l.format,
		output:    l.output,
		mu:        l.mu,
	}
}

func (l *StructuredLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *StructuredLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.service,
		"message":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		if _, reserved := entry[k]; !reserved {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *StructuredLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	tag := l.service
	if l.component != "" {
		tag = l.service + ":" + l.component
	}

	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}

	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, tag, msg, b.String())
}

var logLevels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

func (l *StructuredLogger) shouldLog(level string) bool {
	current, ok1 := logLevels[l.level]
	incoming, ok2 := logLevels[level]
	if !ok1 || !ok2 {
		return true
	}
	return incoming >= current
}

// SetOutput redirects log output, used by tests to capture log lines.
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}
