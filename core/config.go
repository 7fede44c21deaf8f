// Package core provides the ambient stack shared by every sqlflow-go
// package: structured errors, the Logger/ComponentAwareLogger contracts, and
// process configuration. It has no dependency on the planner or executor
// packages so that both can depend on it without a cycle.
package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable for a pipeline run. Layering follows the same
// priority the rest of the stack uses: defaults, then environment variables,
// then functional options supplied by the caller (highest).
type Config struct {
	// StateDir is where run snapshots are written, one JSON file per run_id.
	StateDir string `json:"state_dir" env:"SQLFLOW_STATE_DIR" default:"./.sqlflow/state"`

	// StateDatabasePath is the embedded analytic database file backing the
	// watermark and kv_state tables. Empty means in-memory.
	StateDatabasePath string `json:"state_database_path" env:"SQLFLOW_STATE_DB" default:"./.sqlflow/sqlflow.db"`

	Execution ExecutionConfig `json:"execution"`
	Retry     RetryConfig     `json:"retry"`
	Snapshot  SnapshotConfig  `json:"snapshot"`
	Logging   LoggingConfig   `json:"logging"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ExecutionConfig controls the parallel strategy's worker pool.
type ExecutionConfig struct {
	// MaxWorkers caps the pool; 0 means auto-size to min(32, 2*NumCPU),
	// floored at 2, per the adaptive sizing rule.
	MaxWorkers int `json:"max_workers" env:"SQLFLOW_MAX_WORKERS" default:"0"`
	// AdaptiveMemory further reduces pool size based on available memory
	// (~2 workers/GB) when true.
	AdaptiveMemory bool `json:"adaptive_memory" env:"SQLFLOW_ADAPTIVE_MEMORY" default:"false"`
	// PollInterval is the scheduler's sleep between drain passes.
	PollInterval time.Duration `json:"poll_interval" env:"SQLFLOW_POLL_INTERVAL" default:"10ms"`
	// Sequential forces the orchestrator to use the single-threaded strategy
	// regardless of plan shape (useful for deterministic tests).
	Sequential bool `json:"sequential" env:"SQLFLOW_SEQUENTIAL" default:"false"`
}

// RetryConfig governs per-step retry behavior inside the parallel strategy.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" env:"SQLFLOW_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryDelay  time.Duration `json:"retry_delay" env:"SQLFLOW_RETRY_DELAY" default:"250ms"`
}

// SnapshotConfig controls resumability.
type SnapshotConfig struct {
	KeepDays int  `json:"keep_days" env:"SQLFLOW_SNAPSHOT_KEEP_DAYS" default:"7"`
	// RedisURL, when set, switches the snapshot store to a Redis-backed
	// implementation suited to multi-process deployments; empty keeps the
	// default local filesystem store.
	RedisURL string `json:"redis_url" env:"SQLFLOW_SNAPSHOT_REDIS_URL,REDIS_URL"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" env:"SQLFLOW_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"SQLFLOW_LOG_FORMAT" default:"text"`
}

// TelemetryConfig controls OpenTelemetry tracing of plan execution.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" env:"SQLFLOW_TELEMETRY_ENABLED" default:"false"`
	Exporter string `json:"exporter" env:"SQLFLOW_TELEMETRY_EXPORTER" default:"stdout"`
	Endpoint string `json:"endpoint" env:"SQLFLOW_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Option is a functional option applied after defaults and environment
// variables have been loaded.
type Option func(*Config) error

// DefaultConfig returns sensible defaults for local, single-process runs.
func DefaultConfig() *Config {
	cfg := &Config{
		StateDir:          "./.sqlflow/state",
		StateDatabasePath: "./.sqlflow/sqlflow.db",
		Execution: ExecutionConfig{
			MaxWorkers:   0,
			PollInterval: 10 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			RetryDelay:  250 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			KeepDays: 7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
	}
	cfg.loadFromEnv()
	return cfg
}

// NewConfig builds a Config from defaults, the environment, then opts in
// that order, returning the first option error encountered.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("core.NewConfig: %w", err)
		}
	}
	return cfg, nil
}

// loadFromEnv overlays recognized environment variables onto cfg. Kept as
// explicit field assignments rather than reflection over struct tags: the
// set of fields is small and fixed, and explicit code is easier to audit
// than a reflective walk for a handful of values.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("SQLFLOW_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("SQLFLOW_STATE_DB"); v != "" {
		c.StateDatabasePath = v
	}
	if v := envInt("SQLFLOW_MAX_WORKERS"); v != nil {
		c.Execution.MaxWorkers = *v
	}
	if v := envBool("SQLFLOW_ADAPTIVE_MEMORY"); v != nil {
		c.Execution.AdaptiveMemory = *v
	}
	if v := envDuration("SQLFLOW_POLL_INTERVAL"); v != nil {
		c.Execution.PollInterval = *v
	}
	if v := envBool("SQLFLOW_SEQUENTIAL"); v != nil {
		c.Execution.Sequential = *v
	}
	if v := envInt("SQLFLOW_RETRY_MAX_ATTEMPTS"); v != nil {
		c.Retry.MaxAttempts = *v
	}
	if v := envDuration("SQLFLOW_RETRY_DELAY"); v != nil {
		c.Retry.RetryDelay = *v
	}
	if v := envInt("SQLFLOW_SNAPSHOT_KEEP_DAYS"); v != nil {
		c.Snapshot.KeepDays = *v
	}
	if v := os.Getenv("SQLFLOW_SNAPSHOT_REDIS_URL"); v != "" {
		c.Snapshot.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Snapshot.RedisURL = v
	}
	if v := os.Getenv("SQLFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SQLFLOW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := envBool("SQLFLOW_TELEMETRY_ENABLED"); v != nil {
		c.Telemetry.Enabled = *v
	}
	if v := os.Getenv("SQLFLOW_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := os.Getenv("SQLFLOW_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func envBool(key string) *bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return nil
	}
	b := v == "true" || v == "1" || v == "yes"
	return &b
}

func envDuration(key string) *time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil
	}
	return &d
}

// WithStateDir overrides the snapshot directory.
func WithStateDir(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return fmt.Errorf("state dir cannot be empty")
		}
		c.StateDir = dir
		return nil
	}
}

// WithMaxWorkers overrides the parallel strategy's pool size.
func WithMaxWorkers(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("max workers cannot be negative")
		}
		c.Execution.MaxWorkers = n
		return nil
	}
}

// WithMaxRetries overrides the per-step retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("max retries must be >= 1")
		}
		c.Retry.MaxAttempts = n
		return nil
	}
}

// WithSequential forces single-threaded execution.
func WithSequential(sequential bool) Option {
	return func(c *Config) error {
		c.Execution.Sequential = sequential
		return nil
	}
}
