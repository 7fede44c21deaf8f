package orchestration

import (
	"context"

	"github.com/giaosudau/sqlflow-go/snapshot"
)

// fakeCleanupStore is a minimal snapshot.Store fake recording
// CleanupOlderThan invocations, standing in for a real Store.
type fakeCleanupStore struct {
	calls    int
	keepDays int
}

func (f *fakeCleanupStore) Save(ctx context.Context, s snapshot.State) error { return nil }
func (f *fakeCleanupStore) Load(ctx context.Context, runID string) (snapshot.State, bool, error) {
	return snapshot.State{}, false, nil
}
func (f *fakeCleanupStore) Delete(ctx context.Context, runID string) error { return nil }
func (f *fakeCleanupStore) ListResumable(ctx context.Context) ([]snapshot.State, error) {
	return nil, nil
}
func (f *fakeCleanupStore) CleanupOlderThan(ctx context.Context, keepDays int) (int, error) {
	f.calls++
	f.keepDays = keepDays
	return 0, nil
}

var _ snapshot.Store = (*fakeCleanupStore)(nil)
