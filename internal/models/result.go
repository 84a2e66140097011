package models

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Node result status constants
const (
	StatusSucceeded = "SUCCEEDED" // Provider returned a payload
	StatusFailed    = "FAILED"    // Node recorded a typed failure
)

// FailureKind classifies why a node failed.
type FailureKind string

const (
	FailureProvider        FailureKind = "provider"         // Provider returned an error
	FailureTimeout         FailureKind = "timeout"          // Provider exceeded the node timeout
	FailureUnmetDependency FailureKind = "unmet-dependency" // A referenced group never completed
	FailureCancelled       FailureKind = "cancelled"        // Task cancelled before dispatch finished
	FailureNoProvider      FailureKind = "no-provider"      // No capability registered for the node type
	FailurePanic           FailureKind = "panic"            // Provider panicked
	FailureRejected        FailureKind = "rejected"         // User declined or the run was sealed
)

// NodeFailure is the typed failure recorded for a node.
type NodeFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Node    NodeID      `json:"node"`
}

// Error implements the error interface.
func (f *NodeFailure) Error() string {
	return fmt.Sprintf("node #%d %s: %s", f.Node, f.Kind, f.Message)
}

// ExecutionResult is the outcome of one plan node: a payload or a failure.
type ExecutionResult struct {
	Node     PlanNode      // The node that was executed
	Payload  Payload       // Success payload (nil on failure)
	Failure  *NodeFailure  // Failure (nil on success)
	Duration time.Duration // Time spent in the provider
}

// Succeeded reports whether the node produced a payload.
func (r ExecutionResult) Succeeded() bool {
	return r.Failure == nil && r.Payload != nil
}

// Status returns StatusSucceeded or StatusFailed.
func (r ExecutionResult) Status() string {
	if r.Succeeded() {
		return StatusSucceeded
	}
	return StatusFailed
}

// ResultView is a serializable rendering of an ExecutionResult.
type ResultView struct {
	Node    PlanNode     `json:"node"`
	Status  string       `json:"status"`
	Summary string       `json:"summary,omitempty"`
	Failure *NodeFailure `json:"failure,omitempty"`
}

// View renders the result for collaborators.
func (r ExecutionResult) View() ResultView {
	v := ResultView{Node: r.Node, Status: r.Status(), Failure: r.Failure}
	if r.Payload != nil {
		v.Summary = r.Payload.Summary()
	}
	return v
}

// AggregatedResults holds exactly one ExecutionResult per executed node, keyed
// by node identity. It is safe for concurrent recording.
type AggregatedResults struct {
	mu        sync.RWMutex
	results   map[NodeID]ExecutionResult
	cancelled bool
}

// NewAggregatedResults returns an empty collection.
func NewAggregatedResults() *AggregatedResults {
	return &AggregatedResults{results: make(map[NodeID]ExecutionResult)}
}

// Record stores the result for its node. A second result for the same node is
// ignored and Record returns false.
func (a *AggregatedResults) Record(r ExecutionResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.results[r.Node.ID]; exists {
		return false
	}
	a.results[r.Node.ID] = r
	return true
}

// Get looks up a result by node ID.
func (a *AggregatedResults) Get(id NodeID) (ExecutionResult, bool) {
	if a == nil {
		return ExecutionResult{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.results[id]
	return r, ok
}

// Lookup looks up a result by node reference.
func (a *AggregatedResults) Lookup(node PlanNode) (ExecutionResult, bool) {
	return a.Get(node.ID)
}

// Has reports whether the node has a recorded result.
func (a *AggregatedResults) Has(id NodeID) bool {
	_, ok := a.Get(id)
	return ok
}

// Len returns the number of recorded results.
func (a *AggregatedResults) Len() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.results)
}

// All returns every result ordered by node ID.
func (a *AggregatedResults) All() []ExecutionResult {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	out := make([]ExecutionResult, 0, len(a.results))
	for _, r := range a.results {
		out = append(out, r)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Node.ID < out[j].Node.ID })
	return out
}

// Failed returns the failed results ordered by node ID.
func (a *AggregatedResults) Failed() []ExecutionResult {
	var failed []ExecutionResult
	for _, r := range a.All() {
		if !r.Succeeded() {
			failed = append(failed, r)
		}
	}
	return failed
}

// MarkCancelled annotates the collection as produced by a cancelled task.
func (a *AggregatedResults) MarkCancelled() {
	a.mu.Lock()
	a.cancelled = true
	a.mu.Unlock()
}

// Cancelled reports whether the task was cancelled while executing.
func (a *AggregatedResults) Cancelled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancelled
}

// Views renders every result for collaborators.
func (a *AggregatedResults) Views() []ResultView {
	all := a.All()
	views := make([]ResultView, 0, len(all))
	for _, r := range all {
		views = append(views, r.View())
	}
	return views
}

// Summary renders all results as text, one block per node.
func (a *AggregatedResults) Summary() string {
	all := a.All()
	if len(all) == 0 {
		return "No sub-task results."
	}
	var sb strings.Builder
	if a.Cancelled() {
		sb.WriteString("[cancelled: results are partial]\n")
	}
	for _, r := range all {
		fmt.Fprintf(&sb, "## %s (%s): %s\n", r.Node.Label(), r.Status(), r.Node.Purpose)
		if r.Succeeded() {
			sb.WriteString(r.Payload.Summary())
		} else if r.Failure != nil {
			fmt.Fprintf(&sb, "failure (%s): %s", r.Failure.Kind, r.Failure.Message)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ExecutionSummary is the aggregate count view of a scheduler run.
type ExecutionSummary struct {
	TotalNodes  int               // Total number of nodes in the plan
	Succeeded   int               // Number of nodes with a payload
	Failed      int               // Number of nodes with a failure
	Cancelled   bool              // Whether the task was cancelled mid-execution
	Duration    time.Duration     // Total execution time
	FailedNodes []ExecutionResult // Details of failed nodes
}

// Summarize computes counts over the collection.
func (a *AggregatedResults) Summarize(duration time.Duration) ExecutionSummary {
	s := ExecutionSummary{Duration: duration, Cancelled: a.Cancelled()}
	for _, r := range a.All() {
		s.TotalNodes++
		if r.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
			s.FailedNodes = append(s.FailedNodes, r)
		}
	}
	return s
}
