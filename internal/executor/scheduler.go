// Package executor runs validated plans: it walks order groups ascending,
// dispatches each group's nodes concurrently under per-type ceilings, and
// records exactly one ExecutionResult per node.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/harrison/agentflow/internal/metrics"
	"github.com/harrison/agentflow/internal/models"
)

const (
	// DefaultCeiling is the default maximum number of in-flight calls per node type
	DefaultCeiling = 4

	// DefaultResearchCeiling caps concurrent research calls, matching the
	// per-group research limit flagged by plan validation
	DefaultResearchCeiling = 2
)

// NodeExecutor is the capability provider contract as seen by the scheduler:
// one typed request in, a payload or a failure out. Implementations must be
// safe for concurrent and repeated use.
type NodeExecutor interface {
	Execute(ctx context.Context, node models.PlanNode) (models.Payload, error)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, node models.PlanNode) (models.Payload, error)

// Execute calls f.
func (f NodeExecutorFunc) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	return f(ctx, node)
}

// Observer receives scheduling progress. Implementations must be safe for
// concurrent use because node results arrive from worker goroutines.
type Observer interface {
	LogGroupStart(group models.Group)
	LogNodeResult(result models.ExecutionResult)
	LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults)
}

// Config holds the scheduler's concurrency and timeout settings.
type Config struct {
	DefaultCeiling int                     // In-flight cap for types without an explicit ceiling
	Ceilings       map[models.NodeType]int // Per-type in-flight caps
	NodeTimeout    time.Duration           // Per-node provider timeout (0 = none)
}

// DefaultConfig returns the default ceilings: research=2, everything else 4.
func DefaultConfig() Config {
	return Config{
		DefaultCeiling: DefaultCeiling,
		Ceilings:       map[models.NodeType]int{models.NodeResearch: DefaultResearchCeiling},
	}
}

// Ceiling returns the in-flight cap for a node type.
func (c Config) Ceiling(t models.NodeType) int {
	if n, ok := c.Ceilings[t]; ok && n > 0 {
		return n
	}
	if c.DefaultCeiling > 0 {
		return c.DefaultCeiling
	}
	return DefaultCeiling
}

// Scheduler executes plans. It holds no per-plan state between Execute calls.
type Scheduler struct {
	executors map[models.NodeType]NodeExecutor
	config    Config
	observer  Observer
	metrics   *metrics.Metrics
}

// NewScheduler constructs a Scheduler over the given per-type executors.
// The observer parameter is optional and can be nil to disable logging.
func NewScheduler(executors map[models.NodeType]NodeExecutor, cfg Config, observer Observer) *Scheduler {
	return &Scheduler{
		executors: executors,
		config:    cfg,
		observer:  observer,
	}
}

// SetMetrics enables Prometheus instrumentation of node dispatches.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Execute runs the plan group by group and returns one result per node.
// Parallelism happens only within a group; group g never starts before every
// node of earlier groups has a recorded result. Node failures never abort the
// plan. If ctx is cancelled, nodes not yet dispatched are recorded as
// cancelled and the returned results are marked cancelled.
// Results are keyed by arena index; the caller's plan is not modified.
func (s *Scheduler) Execute(ctx context.Context, plan *models.Plan) *models.AggregatedResults {
	results := models.NewAggregatedResults()
	if plan == nil {
		return results
	}
	plan = plan.Clone()
	plan.Normalize()

	groups := plan.Groups()
	members := make(map[int][]models.NodeID, len(groups))
	for _, g := range groups {
		for _, n := range g.Nodes {
			members[g.Order] = append(members[g.Order], n.ID)
		}
	}

	sems := make(map[models.NodeType]*semaphore.Weighted)
	var semMu sync.Mutex
	semFor := func(t models.NodeType) *semaphore.Weighted {
		semMu.Lock()
		defer semMu.Unlock()
		sem, ok := sems[t]
		if !ok {
			sem = semaphore.NewWeighted(int64(s.config.Ceiling(t)))
			sems[t] = sem
		}
		return sem
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			for _, node := range group.Nodes {
				s.record(results, failed(node, models.FailureCancelled, fmt.Errorf("task cancelled before group %d started: %w", group.Order, err), 0))
			}
			continue
		}

		if s.observer != nil {
			s.observer.LogGroupStart(group)
		}
		groupStart := time.Now()

		// Resolve dependencies for the whole group before any sibling can record.
		var runnable []models.PlanNode
		for _, node := range group.Nodes {
			if unmet := unmetDependencies(node, members, results); len(unmet) > 0 {
				err := fmt.Errorf("%w: orders %v", ErrUnmetDependency, unmet)
				s.record(results, failed(node, models.FailureUnmetDependency, err, 0))
				continue
			}
			runnable = append(runnable, node)
		}

		var eg errgroup.Group
		for _, node := range runnable {
			eg.Go(func() error {
				s.dispatch(ctx, node, semFor(node.Type), results)
				return nil
			})
		}
		_ = eg.Wait()

		if s.observer != nil {
			s.observer.LogGroupComplete(group, time.Since(groupStart), results)
		}
	}

	if ctx.Err() != nil {
		results.MarkCancelled()
	}
	return results
}

// unmetDependencies returns the dependency orders that have no nodes or whose
// nodes do not all have a recorded result yet.
func unmetDependencies(node models.PlanNode, members map[int][]models.NodeID, results *models.AggregatedResults) []int {
	var unmet []int
	for _, dep := range node.Dependencies {
		ids, ok := members[dep]
		if !ok || dep >= node.Order {
			unmet = append(unmet, dep)
			continue
		}
		for _, id := range ids {
			if !results.Has(id) {
				unmet = append(unmet, dep)
				break
			}
		}
	}
	return unmet
}

// dispatch acquires the type's ceiling slot, invokes the provider and records
// the outcome.
func (s *Scheduler) dispatch(ctx context.Context, node models.PlanNode, sem *semaphore.Weighted, results *models.AggregatedResults) {
	if err := sem.Acquire(ctx, 1); err != nil {
		s.record(results, failed(node, models.FailureCancelled, fmt.Errorf("cancelled while waiting for a %s slot: %w", node.Type, err), 0))
		return
	}
	defer sem.Release(1)

	exec, ok := s.executors[node.Type]
	if !ok || exec == nil {
		s.record(results, failed(node, models.FailureNoProvider, fmt.Errorf("%w: %s", ErrNoProvider, node.Type), 0))
		return
	}

	nodeCtx := ctx
	cancel := func() {}
	if s.config.NodeTimeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, s.config.NodeTimeout)
	}
	defer cancel()

	s.metrics.NodeDispatched(node.Type)
	start := time.Now()
	payload, err := invoke(nodeCtx, exec, node)
	duration := time.Since(start)
	s.metrics.NodeReturned(node.Type, duration)

	if err == nil && payload == nil {
		err = fmt.Errorf("provider returned no payload")
	}
	if err != nil {
		s.record(results, failed(node, classify(err, nodeCtx, ctx), err, duration))
		return
	}
	s.record(results, models.ExecutionResult{Node: node, Payload: payload, Duration: duration})
}

// invoke calls the executor, converting a panic into a node failure.
func invoke(ctx context.Context, exec NodeExecutor, node models.PlanNode) (payload models.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = NewNodeError(node, models.FailurePanic, fmt.Errorf("provider panic: %v\n%s", r, debug.Stack()))
		}
	}()
	return exec.Execute(ctx, node)
}

func failed(node models.PlanNode, kind models.FailureKind, err error, duration time.Duration) models.ExecutionResult {
	ne := NewNodeError(node, kind, err)
	return models.ExecutionResult{Node: node, Failure: ne.Failure(), Duration: duration}
}

func (s *Scheduler) record(results *models.AggregatedResults, r models.ExecutionResult) {
	if !results.Record(r) {
		return
	}
	s.metrics.NodeFinished(r.Node.Type, r.Status())
	if s.observer != nil {
		s.observer.LogNodeResult(r)
	}
}
