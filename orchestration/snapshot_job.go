package orchestration

import (
	"context"
	"time"

	"github.com/giaosudau/sqlflow-go/snapshot"
)

// SnapshotCleanupJob builds the Job that sweeps stale run snapshots
// (spec §4.12's cleanup_old_states(keep_days)) on interval, wiring the
// snapshot manager's Store to the scheduler rather than requiring a
// caller to remember to invoke cleanup manually.
func SnapshotCleanupJob(store snapshot.Store, keepDays int, interval time.Duration) Job {
	return Job{
		Name:     "snapshot-cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := store.CleanupOlderThan(ctx, keepDays)
			return err
		},
	}
}
