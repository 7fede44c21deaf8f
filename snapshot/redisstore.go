package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is the optional shared-state alternative to FileStore (spec
// §4.12's domain stack: Redis-backed state for multi-host orchestration,
// where a local ./.sqlflow/state/ directory wouldn't be visible across
// the hosts sharing a single run).
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a RedisStore over an existing client. prefix
// defaults to "sqlflow:snapshot:". ttl of zero means snapshots never
// expire on their own; CleanupOlderThan still sweeps them by SavedAt.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sqlflow:snapshot:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(runID string) string { return r.prefix + runID }

func (r *RedisStore) Save(ctx context.Context, s State) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot for run %q: %w", s.RunID, err)
	}
	if err := r.client.Set(ctx, r.key(s.RunID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing snapshot for run %q: %w", s.RunID, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, runID string) (State, bool, error) {
	data, err := r.client.Get(ctx, r.key(runID)).Bytes()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("reading snapshot for run %q: %w", runID, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, false, nil
	}
	return s, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, runID string) error {
	return r.client.Del(ctx, r.key(runID)).Err()
}

func (r *RedisStore) ListResumable(ctx context.Context) ([]State, error) {
	var states []State
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		runID := strings.TrimPrefix(iter.Val(), r.prefix)
		s, ok, err := r.Load(ctx, runID)
		if err != nil {
			return nil, err
		}
		if !ok || !s.resumable() {
			continue
		}
		states = append(states, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning snapshot keys: %w", err)
	}
	return states, nil
}

// CleanupOlderThan sweeps snapshots whose SavedAt predates the cutoff.
// Redis TTL (if configured) already expires keys on its own; this is for
// snapshots saved with ttl=0 or callers that want an explicit, immediate
// prune rather than waiting on expiry.
func (r *RedisStore) CleanupOlderThan(ctx context.Context, keepDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -keepDays)
	states, err := r.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range states {
		if s.SavedAt.Before(cutoff) {
			if err := r.Delete(ctx, s.RunID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// ListAll returns every snapshot regardless of status, used internally by
// CleanupOlderThan since cleanup applies to succeeded runs too.
func (r *RedisStore) ListAll(ctx context.Context) ([]State, error) {
	var states []State
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		runID := strings.TrimPrefix(iter.Val(), r.prefix)
		s, ok, err := r.Load(ctx, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		states = append(states, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning snapshot keys: %w", err)
	}
	return states, nil
}

var _ Store = (*RedisStore)(nil)
