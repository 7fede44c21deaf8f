// Package watermark implements the semantic layer over the state backend
// keyed by (pipeline, source, target, cursor-field) (spec §4.2).
package watermark

import (
	"context"
	"database/sql"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/giaosudau/sqlflow-go/state"
)

// Manager reads and atomically updates watermarks, wrapping any backend
// failure as a ConnectorError per spec §4.2/§7.
type Manager struct {
	backend *state.Backend
	logger  core.Logger
}

// NewManager builds a watermark Manager over backend.
func NewManager(backend *state.Backend, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{backend: backend, logger: logger}
}

// GetWatermark returns the current cursor value, or ("", false) if unset.
func (m *Manager) GetWatermark(ctx context.Context, pipeline, source, target, field string) (string, bool, error) {
	row := m.backend.QueryRow(ctx, `
		SELECT cursor_value FROM watermarks
		WHERE pipeline = ? AND source = ? AND target = ? AND cursor_field = ?
	`, pipeline, source, target, field)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, core.NewConnectorError("watermark_manager", err)
	}
	return value, true, nil
}

// UpdateWatermarkAtomic sets the cursor value for (pipeline, source, target,
// field) to value, stamped with the current time, inside a single C1
// transaction.
func (m *Manager) UpdateWatermarkAtomic(ctx context.Context, pipeline, source, target, field, value string) error {
	return m.backend.Transaction(ctx, func(tx *state.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO watermarks (pipeline, source, target, cursor_field, cursor_value, last_updated)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(pipeline, source, target, cursor_field)
			DO UPDATE SET cursor_value = excluded.cursor_value, last_updated = excluded.last_updated
		`, pipeline, source, target, field, value, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return core.NewConnectorError("watermark_manager", err)
		}
		return nil
	})
}

// GetSourceWatermark composes keys using source as both source and target,
// for "source-level" watermarks (spec §4.2; preserved per DESIGN NOTES §9's
// explicit guidance not to change this mapping).
func (m *Manager) GetSourceWatermark(ctx context.Context, pipeline, source, field string) (string, bool, error) {
	return m.GetWatermark(ctx, pipeline, source, source, field)
}

// UpdateSourceWatermark mirrors GetSourceWatermark's key composition.
func (m *Manager) UpdateSourceWatermark(ctx context.Context, pipeline, source, field, value string) error {
	return m.UpdateWatermarkAtomic(ctx, pipeline, source, source, field, value)
}

// ResetWatermark deletes the watermark row, reporting whether one existed.
func (m *Manager) ResetWatermark(ctx context.Context, pipeline, source, target, field string) (bool, error) {
	var existed bool
	err := m.backend.Transaction(ctx, func(tx *state.Tx) error {
		res, err := tx.Exec(ctx, `
			DELETE FROM watermarks WHERE pipeline = ? AND source = ? AND target = ? AND cursor_field = ?
		`, pipeline, source, target, field)
		if err != nil {
			return core.NewConnectorError("watermark_manager", err)
		}
		n, _ := res.RowsAffected()
		existed = n > 0
		return nil
	})
	return existed, err
}
