package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/provider"
)

// guard admits capability calls for one run. Once sealed, only synthesis is
// admitted.
type guard struct {
	sealed atomic.Bool
}

func (g *guard) seal() {
	g.sealed.Store(true)
}

func (g *guard) admit(capability string) error {
	if g.sealed.Load() && capability != provider.CapSynthesize {
		return fmt.Errorf("%w: %s call rejected", ErrRunSealed, capability)
	}
	return nil
}

var errDeclined = errors.New("declined by user")

// guardedNode wraps a node executor with the run guard and the user's
// confirmation decisions. inner may be nil.
type guardedNode struct {
	inner    executor.NodeExecutor
	guard    *guard
	rejected map[models.NodeID]bool
	warn     func(format string, args ...any)
}

func (g guardedNode) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	if g.rejected[node.ID] {
		return nil, executor.NewNodeError(node, models.FailureRejected, errDeclined)
	}
	if err := g.guard.admit(string(node.Type)); err != nil {
		g.warn("%v", err)
		return nil, executor.NewNodeError(node, models.FailureRejected, err)
	}
	if g.inner == nil {
		return nil, fmt.Errorf("%w: %s", executor.ErrNoProvider, node.Type)
	}
	return g.inner.Execute(ctx, node)
}
