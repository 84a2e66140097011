package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

var (
	// ErrNoProvider is returned when no capability is registered for a node type.
	ErrNoProvider = errors.New("no capability provider registered for node type")

	// ErrUnmetDependency marks a node whose dependency group has not fully completed.
	ErrUnmetDependency = errors.New("dependency group has not completed")
)

// NodeError represents a node-local failure during plan execution.
// It includes context about which node failed and when.
type NodeError struct {
	Node      models.PlanNode    // The node that failed
	Kind      models.FailureKind // Failure classification
	Err       error              // Underlying error (optional)
	Timestamp time.Time          // When the error occurred
}

// NewNodeError creates a new NodeError with the current timestamp.
func NewNodeError(node models.PlanNode, kind models.FailureKind, err error) *NodeError {
	return &NodeError{
		Node:      node,
		Kind:      kind,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for NodeError.
func (e *NodeError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("node %s: %s", e.Node.Label(), e.Kind))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// Failure converts the error into the failure recorded in AggregatedResults.
func (e *NodeError) Failure() *models.NodeFailure {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &models.NodeFailure{Kind: e.Kind, Message: msg, Node: e.Node.ID}
}

// classify maps a provider error onto a failure kind. nodeCtx is the per-node
// context, parentCtx the task context.
func classify(err error, nodeCtx, parentCtx context.Context) models.FailureKind {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	if parentCtx.Err() != nil {
		return models.FailureCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	if errors.Is(err, ErrNoProvider) {
		return models.FailureNoProvider
	}
	if errors.Is(err, ErrUnmetDependency) {
		return models.FailureUnmetDependency
	}
	return models.FailureProvider
}

// IsNodeError checks if the error is or wraps a NodeError.
func IsNodeError(err error) bool {
	if err == nil {
		return false
	}
	var ne *NodeError
	return errors.As(err, &ne)
}
