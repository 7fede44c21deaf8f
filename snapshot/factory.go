package snapshot

import (
	"fmt"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/go-redis/redis/v8"
)

// NewStoreFromConfig selects RedisStore when cfg.Snapshot.RedisURL is set,
// otherwise a FileStore rooted at cfg.StateDir, mirroring the layered
// defaults/env/options precedence the rest of the config surface uses.
func NewStoreFromConfig(cfg core.Config, logger core.Logger) (Store, error) {
	if cfg.Snapshot.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Snapshot.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing snapshot redis url: %w", err)
		}
		client := redis.NewClient(opts)
		return NewRedisStore(client, "", 0), nil
	}
	return NewFileStore(cfg.StateDir, logger)
}
