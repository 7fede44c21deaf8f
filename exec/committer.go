package exec

import (
	"context"

	"github.com/giaosudau/sqlflow-go/sqlengine"
)

// EngineCommitter adapts a sqlengine.Engine to the Committer interface the
// orchestrator and parallel strategy depend on.
type EngineCommitter struct {
	Engine sqlengine.Engine
}

func (c EngineCommitter) CommitChanges(ctx context.Context) error {
	return c.Engine.Commit(ctx)
}

var _ Committer = EngineCommitter{}
