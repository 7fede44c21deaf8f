// Package state implements the durable key/value backend (C1): watermark,
// execution-history, and generic kv_state tables over an embedded analytic
// database, with ACID transaction scoping.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/resilience"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS watermarks (
	pipeline TEXT NOT NULL,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	cursor_field TEXT NOT NULL,
	cursor_value TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	sync_mode TEXT,
	UNIQUE(pipeline, source, target, cursor_field)
);
CREATE TABLE IF NOT EXISTS execution_history (
	watermark_id INTEGER,
	start TEXT,
	end TEXT,
	rows_processed INTEGER,
	status TEXT,
	error_message TEXT
);
`

// Backend is the C1 State Backend contract: a persistent key/value map with
// ACID transactions, plus the watermark and history tables the Watermark
// Manager builds on.
type Backend struct {
	db     *sql.DB
	logger core.Logger
	cb     *resilience.CircuitBreaker
}

// Open creates or attaches to a sqlite database at path, creating the schema
// on first use. path may be ":memory:" for tests.
func Open(path string, logger core.Logger) (*Backend, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state backend: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writers; avoid SQLITE_BUSY under the library's own concurrency

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state backend schema: %w", err)
	}

	cbConfig := resilience.DefaultConfig()
	cbConfig.Name = "state_backend"
	cbConfig.Logger = logger
	cb, err := resilience.NewCircuitBreaker(cbConfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create state backend circuit breaker: %w", err)
	}

	return &Backend{db: db, logger: logger, cb: cb}, nil
}

// Close is idempotent.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Get returns the JSON-decoded value stored at key, or (nil, false) if absent.
func (b *Backend) Get(ctx context.Context, key string) (interface{}, bool, error) {
	var raw string
	var found bool
	err := b.cb.Execute(ctx, func() error {
		scanErr := b.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&raw)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, core.NewConnectorError("state_backend", err)
	}
	if !found {
		return nil, false, nil
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, core.NewConnectorError("state_backend", err)
	}
	return value, true, nil
}

// Set upserts key with value JSON-encoded, idempotent within a transaction.
func (b *Backend) Set(ctx context.Context, key string, value interface{}, timestamp time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state value: %w", err)
	}
	err = b.cb.Execute(ctx, func() error {
		_, execErr := b.db.ExecContext(ctx, `
			INSERT INTO kv_state (key, value, timestamp) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp
		`, key, string(raw), timestamp.Format(time.RFC3339))
		return execErr
	})
	if err != nil {
		return core.NewConnectorError("state_backend", err)
	}
	return nil
}

// QueryRow runs a read-only query directly against the database, for callers
// (like the watermark manager) that need to read outside a write transaction.
func (b *Backend) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return b.db.QueryRowContext(ctx, query, args...)
}

// Delete removes key, reporting whether it existed.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	var n int64
	err := b.cb.Execute(ctx, func() error {
		res, execErr := b.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key = ?`, key)
		if execErr != nil {
			return execErr
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return false, core.NewConnectorError("state_backend", err)
	}
	return n > 0, nil
}

// Tx is the scoped transaction handle passed to Transaction's fn; Transaction
// itself commits or rolls it back.
type Tx struct {
	tx *sql.Tx
}

// Transaction begins a transaction and invokes fn with it. fn's returned
// error triggers a rollback; a nil return commits. Any panic inside fn is
// recovered into a rollback and re-panicked, guaranteeing rollback on every
// exit path.
func (b *Backend) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return b.cb.Execute(ctx, func() error {
		sqlTx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return core.NewConnectorError("state_backend", err)
		}
		tx := &Tx{tx: sqlTx}

		defer func() {
			if p := recover(); p != nil {
				_ = sqlTx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return core.NewConnectorError("state_backend", err)
		}
		return nil
	})
}

// Exec runs a statement within the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryRow runs a single-row query within the transaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}
