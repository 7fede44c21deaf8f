package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
)

// FileStore persists one JSON file per run under a state directory
// (spec §4.12's default ./.sqlflow/state/), the default Store.
type FileStore struct {
	dir    string
	logger core.Logger
}

// NewFileStore creates (if needed) dir and returns a FileStore rooted there.
// An empty dir defaults to "./.sqlflow/state".
func NewFileStore(dir string, logger core.Logger) (*FileStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if dir == "" {
		dir = filepath.Join(".sqlflow", "state")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (f *FileStore) path(runID string) string {
	return filepath.Join(f.dir, runID+".json")
}

// Save writes s atomically: encode to a temp file, then rename over the
// target, so a reader never observes a partially written snapshot.
func (f *FileStore) Save(ctx context.Context, s State) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot for run %q: %w", s.RunID, err)
	}
	tmp := f.path(s.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot for run %q: %w", s.RunID, err)
	}
	if err := os.Rename(tmp, f.path(s.RunID)); err != nil {
		return fmt.Errorf("finalizing snapshot for run %q: %w", s.RunID, err)
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context, runID string) (State, bool, error) {
	data, err := os.ReadFile(f.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("reading snapshot for run %q: %w", runID, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		f.logger.Warn("skipping corrupt snapshot", map[string]interface{}{"run_id": runID, "error": err.Error()})
		return State{}, false, nil
	}
	return s, true, nil
}

func (f *FileStore) Delete(ctx context.Context, runID string) error {
	err := os.Remove(f.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileStore) ListResumable(ctx context.Context) ([]State, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot directory %q: %w", f.dir, err)
	}
	var states []State
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		runID := strings.TrimSuffix(e.Name(), ".json")
		s, ok, err := f.Load(ctx, runID)
		if err != nil {
			return nil, err
		}
		if !ok || !s.resumable() {
			continue
		}
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].SavedAt.Before(states[j].SavedAt) })
	return states, nil
}

func (f *FileStore) CleanupOlderThan(ctx context.Context, keepDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -keepDays)
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("listing snapshot directory %q: %w", f.dir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		runID := strings.TrimSuffix(e.Name(), ".json")
		s, ok, err := f.Load(ctx, runID)
		if err != nil || !ok {
			continue
		}
		if s.SavedAt.Before(cutoff) {
			if err := f.Delete(ctx, runID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

var _ Store = (*FileStore)(nil)
