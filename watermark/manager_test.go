package watermark

import (
	"context"
	"testing"

	"github.com/giaosudau/sqlflow-go/state"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	backend, err := state.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewManager(backend, nil)
}

func TestWatermarkRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, ok, err := m.GetWatermark(ctx, "p1", "orders", "orders", "updated_at")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.UpdateWatermarkAtomic(ctx, "p1", "orders", "orders", "updated_at", "2024-01-16 11:00:00"))

	value, ok, err := m.GetWatermark(ctx, "p1", "orders", "orders", "updated_at")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2024-01-16 11:00:00", value)

	require.NoError(t, m.UpdateWatermarkAtomic(ctx, "p1", "orders", "orders", "updated_at", "2024-01-17 09:00:00"))
	value, _, err = m.GetWatermark(ctx, "p1", "orders", "orders", "updated_at")
	require.NoError(t, err)
	require.Equal(t, "2024-01-17 09:00:00", value)
}

func TestSourceWatermarkComposesSourceAsTarget(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.UpdateSourceWatermark(ctx, "p1", "orders", "id", "100"))
	value, ok, err := m.GetWatermark(ctx, "p1", "orders", "orders", "id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "100", value)
}

func TestResetWatermark(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.UpdateWatermarkAtomic(ctx, "p1", "orders", "orders", "id", "5"))
	existed, err := m.ResetWatermark(ctx, "p1", "orders", "orders", "id")
	require.NoError(t, err)
	require.True(t, existed)

	_, ok, err := m.GetWatermark(ctx, "p1", "orders", "orders", "id")
	require.NoError(t, err)
	require.False(t, ok)
}
