// Package validation checks candidate plans against the structural rules that
// must hold before a plan is handed to the scheduler.
//
// ValidatePlan is a pure function: it never mutates the plan and it collects
// every violation instead of stopping at the first, so callers can present or
// re-plan with full diagnostics.
package validation

import (
	"fmt"
	"strings"

	"github.com/harrison/agentflow/internal/models"
)

// MaxResearchPerGroup is the number of research nodes a single order group may
// hold before the rate-limit rule is flagged.
const MaxResearchPerGroup = 2

// Rule identifies which structural check produced a violation.
type Rule string

const (
	RuleDanglingDependency Rule = "dangling-dependency"
	RuleForwardDependency  Rule = "forward-dependency"
	RuleMissingQuery       Rule = "missing-query"
	RuleUnknownType        Rule = "unknown-type"
	RuleResearchRateLimit  Rule = "research-rate-limit"
)

// Violation is a single rule failure with the node it concerns.
type Violation struct {
	Rule    Rule
	Node    models.NodeID
	Order   int
	Message string
}

func (v Violation) Error() string {
	if v.Rule == RuleResearchRateLimit {
		return fmt.Sprintf("group %d: %s - %s", v.Order, v.Rule, v.Message)
	}
	return fmt.Sprintf("node #%d (order %d): %s - %s", v.Node, v.Order, v.Rule, v.Message)
}

// Result holds the outcome of validating one plan. Errors invalidate the plan;
// Warnings are flagged but do not.
type Result struct {
	Errors   []Violation
	Warnings []Violation
}

// HasErrors returns true if validation found structural errors
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// OK reports whether the plan may be executed.
func (r *Result) OK() bool {
	return !r.HasErrors()
}

// Err returns a *ValidationError when the plan is invalid, nil otherwise.
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return &ValidationError{Violations: append([]Violation(nil), r.Errors...)}
}

// Messages renders every error as a line, for feeding back to the planner.
func (r *Result) Messages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, v := range r.Errors {
		msgs = append(msgs, v.Error())
	}
	return msgs
}

// ValidationError is returned for a structurally invalid plan.
type ValidationError struct {
	Violations []Violation
}

// Error returns aggregated error message
func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "plan validation failed with %d error(s):", len(e.Violations))
	for _, v := range e.Violations {
		fmt.Fprintf(&sb, "\n  - %s", v.Error())
	}
	return sb.String()
}

// ValidatePlan runs the structural checks in order: dangling dependencies,
// non-backward dependencies, missing queries, then the per-group research
// limit (a warning only).
func ValidatePlan(plan *models.Plan) *Result {
	result := &Result{}
	if plan == nil {
		result.Errors = append(result.Errors, Violation{Node: -1, Message: "plan is nil"})
		return result
	}

	orders := make(map[int]bool, len(plan.Nodes))
	for _, n := range plan.Nodes {
		orders[n.Order] = true
	}

	result.Errors = append(result.Errors, checkDanglingDependencies(plan, orders)...)
	result.Errors = append(result.Errors, checkBackwardDependencies(plan)...)
	result.Errors = append(result.Errors, checkQueries(plan)...)
	result.Warnings = append(result.Warnings, checkResearchLimit(plan)...)

	return result
}

func checkDanglingDependencies(plan *models.Plan, orders map[int]bool) []Violation {
	var out []Violation
	for i, n := range plan.Nodes {
		for _, dep := range n.Dependencies {
			if !orders[dep] {
				out = append(out, Violation{
					Rule:    RuleDanglingDependency,
					Node:    models.NodeID(i),
					Order:   n.Order,
					Message: fmt.Sprintf("depends on order %d, which no node in the plan has", dep),
				})
			}
		}
	}
	return out
}

func checkBackwardDependencies(plan *models.Plan) []Violation {
	var out []Violation
	for i, n := range plan.Nodes {
		for _, dep := range n.Dependencies {
			if dep >= n.Order {
				msg := fmt.Sprintf("depends on order %d; dependencies must reference strictly earlier groups", dep)
				if dep == n.Order {
					msg = fmt.Sprintf("depends on its own order %d", dep)
				}
				out = append(out, Violation{
					Rule:    RuleForwardDependency,
					Node:    models.NodeID(i),
					Order:   n.Order,
					Message: msg,
				})
			}
		}
	}
	return out
}

func checkQueries(plan *models.Plan) []Violation {
	var out []Violation
	for i, n := range plan.Nodes {
		if !n.Type.Valid() {
			out = append(out, Violation{
				Rule:    RuleUnknownType,
				Node:    models.NodeID(i),
				Order:   n.Order,
				Message: fmt.Sprintf("type %q is not one of research, document-search, diagram-analysis, direct-qa", n.Type),
			})
			continue
		}
		if n.Type.RequiresQuery() && strings.TrimSpace(n.Query) == "" {
			out = append(out, Violation{
				Rule:    RuleMissingQuery,
				Node:    models.NodeID(i),
				Order:   n.Order,
				Message: fmt.Sprintf("%s node has an empty query", n.Type),
			})
		}
	}
	return out
}

func checkResearchLimit(plan *models.Plan) []Violation {
	var out []Violation
	for _, g := range plan.Groups() {
		count := 0
		for _, n := range g.Nodes {
			if n.Type == models.NodeResearch {
				count++
			}
		}
		if count > MaxResearchPerGroup {
			out = append(out, Violation{
				Rule:    RuleResearchRateLimit,
				Node:    -1,
				Order:   g.Order,
				Message: fmt.Sprintf("%d research nodes in one group (limit %d); calls will be throttled", count, MaxResearchPerGroup),
			})
		}
	}
	return out
}
