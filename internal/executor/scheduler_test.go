package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/harrison/agentflow/internal/models"
)

func mkPlan(nodes ...models.PlanNode) *models.Plan {
	p := &models.Plan{Task: "task", Nodes: nodes}
	p.Normalize()
	return p
}

func mkNode(t models.NodeType, order int, deps ...int) models.PlanNode {
	return models.PlanNode{Type: t, Order: order, Purpose: "p", Query: "q", Dependencies: deps}
}

func answerExec(text string) NodeExecutor {
	return NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
		return models.AnswerPayload{Answer: text}, nil
	})
}

func allTypes(exec NodeExecutor) map[models.NodeType]NodeExecutor {
	m := make(map[models.NodeType]NodeExecutor)
	for _, t := range models.NodeTypes {
		m[t] = exec
	}
	return m
}

// orderTracker records the group order of every call and fails if a call
// arrives for a group lower than one already started.
type orderTracker struct {
	mu        sync.Mutex
	started   []int
	finished  map[int]int
	sizes     map[int]int
	violation string
}

func newOrderTracker(plan *models.Plan) *orderTracker {
	sizes := make(map[int]int)
	for _, n := range plan.Nodes {
		sizes[n.Order]++
	}
	return &orderTracker{finished: make(map[int]int), sizes: sizes}
}

func (o *orderTracker) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	o.mu.Lock()
	for order, size := range o.sizes {
		if order < node.Order && o.finished[order] != size {
			o.violation = "group started before an earlier group finished"
		}
	}
	o.started = append(o.started, node.Order)
	o.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	o.mu.Lock()
	o.finished[node.Order]++
	o.mu.Unlock()
	return models.AnswerPayload{Answer: node.Query}, nil
}

func TestScheduler_GroupsRunInAscendingOrderWithBarrier(t *testing.T) {
	plan := mkPlan(
		mkNode(models.NodeDirectQA, 3, 1),
		mkNode(models.NodeResearch, 1),
		mkNode(models.NodeDocumentSearch, 1),
		mkNode(models.NodeDiagramAnalysis, 2, 1),
		mkNode(models.NodeDirectQA, 2),
	)
	tracker := newOrderTracker(plan)
	s := NewScheduler(allTypes(tracker), DefaultConfig(), nil)

	results := s.Execute(context.Background(), plan)

	require.Equal(t, 5, results.Len())
	assert.Empty(t, tracker.violation)
	assert.Equal(t, []int{1, 1, 2, 2, 3}, tracker.started)
	assert.Empty(t, results.Failed())
}

type concurrencyProbe struct {
	mu       sync.Mutex
	current  map[models.NodeType]int
	maxSeen  map[models.NodeType]int
	duration time.Duration
}

func newConcurrencyProbe(d time.Duration) *concurrencyProbe {
	return &concurrencyProbe{
		current:  make(map[models.NodeType]int),
		maxSeen:  make(map[models.NodeType]int),
		duration: d,
	}
}

func (p *concurrencyProbe) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	p.mu.Lock()
	p.current[node.Type]++
	if p.current[node.Type] > p.maxSeen[node.Type] {
		p.maxSeen[node.Type] = p.current[node.Type]
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(p.duration):
	}

	p.mu.Lock()
	p.current[node.Type]--
	p.mu.Unlock()
	return models.AnswerPayload{Answer: "ok"}, nil
}

func TestScheduler_ResearchCeiling(t *testing.T) {
	plan := mkPlan(
		mkNode(models.NodeResearch, 1),
		mkNode(models.NodeResearch, 1),
		mkNode(models.NodeResearch, 1),
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeDirectQA, 1),
	)
	probe := newConcurrencyProbe(30 * time.Millisecond)
	s := NewScheduler(allTypes(probe), DefaultConfig(), nil)

	results := s.Execute(context.Background(), plan)

	require.Equal(t, 6, results.Len())
	assert.Empty(t, results.Failed(), "throttled nodes still run")
	assert.Equal(t, 2, probe.maxSeen[models.NodeResearch])
	assert.Equal(t, 3, probe.maxSeen[models.NodeDirectQA], "other types run unthrottled up to the default ceiling")
}

func TestScheduler_CustomCeiling(t *testing.T) {
	plan := mkPlan(
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeDirectQA, 1),
	)
	probe := newConcurrencyProbe(20 * time.Millisecond)
	cfg := Config{DefaultCeiling: 1}
	s := NewScheduler(allTypes(probe), cfg, nil)

	s.Execute(context.Background(), plan)

	assert.Equal(t, 1, probe.maxSeen[models.NodeDirectQA])
}

func TestScheduler_FailureIsolation(t *testing.T) {
	plan := mkPlan(
		mkNode(models.NodeResearch, 1),
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeDirectQA, 2, 1),
	)
	execs := allTypes(answerExec("fine"))
	execs[models.NodeResearch] = NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
		return nil, errors.New("search backend down")
	})
	s := NewScheduler(execs, DefaultConfig(), nil)

	results := s.Execute(context.Background(), plan)

	require.Equal(t, 3, results.Len())
	failed := results.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, models.NodeID(0), failed[0].Node.ID)
	assert.Equal(t, models.FailureProvider, failed[0].Failure.Kind)
	assert.Contains(t, failed[0].Failure.Message, "search backend down")

	dependent, ok := results.Get(2)
	require.True(t, ok)
	assert.True(t, dependent.Succeeded(), "dependents of a failed node are still attempted")
}

func TestScheduler_FailureKinds(t *testing.T) {
	tests := []struct {
		name string
		exec NodeExecutor
		cfg  Config
		want models.FailureKind
	}{
		{
			name: "panic",
			exec: NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
				panic("boom")
			}),
			want: models.FailurePanic,
		},
		{
			name: "timeout",
			exec: NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			cfg:  Config{NodeTimeout: 10 * time.Millisecond},
			want: models.FailureTimeout,
		},
		{
			name: "nil payload",
			exec: NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
				return nil, nil
			}),
			want: models.FailureProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(allTypes(tt.exec), tt.cfg, nil)
			results := s.Execute(context.Background(), mkPlan(mkNode(models.NodeDirectQA, 1)))

			r, ok := results.Get(0)
			require.True(t, ok)
			require.NotNil(t, r.Failure)
			assert.Equal(t, tt.want, r.Failure.Kind)
		})
	}
}

func TestScheduler_NoProvider(t *testing.T) {
	execs := map[models.NodeType]NodeExecutor{models.NodeDirectQA: answerExec("x")}
	s := NewScheduler(execs, DefaultConfig(), nil)

	results := s.Execute(context.Background(), mkPlan(
		mkNode(models.NodeDiagramAnalysis, 1),
		mkNode(models.NodeDirectQA, 1),
	))

	r, _ := results.Get(0)
	require.NotNil(t, r.Failure)
	assert.Equal(t, models.FailureNoProvider, r.Failure.Kind)
	ok, _ := results.Get(1)
	assert.True(t, ok.Succeeded())
}

func TestScheduler_UnmetDependency(t *testing.T) {
	called := false
	execs := allTypes(NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
		called = true
		return models.AnswerPayload{Answer: "x"}, nil
	}))
	s := NewScheduler(execs, DefaultConfig(), nil)

	// Unvalidated plan: dependency on an order no node has.
	results := s.Execute(context.Background(), mkPlan(mkNode(models.NodeDirectQA, 2, 1)))

	r, ok := results.Get(0)
	require.True(t, ok)
	require.NotNil(t, r.Failure)
	assert.Equal(t, models.FailureUnmetDependency, r.Failure.Kind)
	assert.False(t, called)
}

func TestScheduler_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	execs := allTypes(NodeExecutorFunc(func(c context.Context, node models.PlanNode) (models.Payload, error) {
		if node.Order == 1 {
			cancel()
			<-c.Done()
			return nil, c.Err()
		}
		return models.AnswerPayload{Answer: "late"}, nil
	}))
	s := NewScheduler(execs, DefaultConfig(), nil)

	plan := mkPlan(
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeDirectQA, 2, 1),
		mkNode(models.NodeDirectQA, 3, 2),
	)
	results := s.Execute(ctx, plan)

	assert.True(t, results.Cancelled())
	require.Equal(t, 3, results.Len(), "every node gets exactly one result, even when cancelled")
	for _, r := range results.All() {
		require.NotNil(t, r.Failure)
		assert.Equal(t, models.FailureCancelled, r.Failure.Kind)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	events   []string
	nodeSeen int
}

func (o *recordingObserver) LogGroupStart(group models.Group) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "start "+group.Name())
}

func (o *recordingObserver) LogNodeResult(result models.ExecutionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeSeen++
}

func (o *recordingObserver) LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "complete "+group.Name())
}

func TestScheduler_ObserverCallbacks(t *testing.T) {
	obs := &recordingObserver{}
	s := NewScheduler(allTypes(answerExec("x")), DefaultConfig(), obs)

	s.Execute(context.Background(), mkPlan(
		mkNode(models.NodeDirectQA, 1),
		mkNode(models.NodeResearch, 1),
		mkNode(models.NodeDirectQA, 4, 1),
	))

	assert.Equal(t, []string{"start Group 1", "complete Group 1", "start Group 4", "complete Group 4"}, obs.events)
	assert.Equal(t, 3, obs.nodeSeen)
}

func TestScheduler_NilPlan(t *testing.T) {
	s := NewScheduler(nil, DefaultConfig(), nil)
	assert.Equal(t, 0, s.Execute(context.Background(), nil).Len())
}

func TestScheduler_ExactlyOneResultPerNode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "nodes")
		var nodes []models.PlanNode
		for i := 0; i < n; i++ {
			order := rapid.IntRange(1, 4).Draw(t, "order")
			var deps []int
			if rapid.Bool().Draw(t, "has_dep") {
				deps = append(deps, rapid.IntRange(0, 5).Draw(t, "dep"))
			}
			nodes = append(nodes, models.PlanNode{
				Type:         rapid.SampledFrom(models.NodeTypes).Draw(t, "type"),
				Order:        order,
				Query:        "q",
				Dependencies: deps,
			})
		}
		plan := mkPlan(nodes...)
		failing := rapid.SampledFrom(models.NodeTypes).Draw(t, "failing_type")

		execs := allTypes(answerExec("ok"))
		execs[failing] = NodeExecutorFunc(func(ctx context.Context, node models.PlanNode) (models.Payload, error) {
			return nil, errors.New("nope")
		})
		results := NewScheduler(execs, DefaultConfig(), nil).Execute(context.Background(), plan)

		if results.Len() != len(plan.Nodes) {
			t.Fatalf("got %d results for %d nodes", results.Len(), len(plan.Nodes))
		}
		for _, node := range plan.Nodes {
			r, ok := results.Get(node.ID)
			if !ok {
				t.Fatalf("node %s has no result", node.Label())
			}
			if r.Succeeded() == (r.Failure != nil) {
				t.Fatalf("node %s has both or neither payload and failure", node.Label())
			}
		}
	})
}

func TestScheduler_UnnormalizedPlan(t *testing.T) {
	plan := &models.Plan{Task: "task", Nodes: []models.PlanNode{
		{Type: models.NodeDirectQA, Order: 1, Query: "a"},
		{Type: models.NodeDirectQA, Order: 1, Query: "b"},
		{Type: models.NodeDirectQA, Order: 2, Query: "c", Dependencies: []int{1}},
	}}

	results := NewScheduler(allTypes(answerExec("ok")), DefaultConfig(), nil).Execute(context.Background(), plan)

	require.Equal(t, 3, results.Len())
	for i := range plan.Nodes {
		r, ok := results.Get(models.NodeID(i))
		require.True(t, ok, "node %d has no result", i)
		assert.True(t, r.Succeeded())
	}
	for _, n := range plan.Nodes {
		assert.Equal(t, models.NodeID(0), n.ID, "caller's plan must not be modified")
	}
}
