// Package provider defines the capability contracts the workflow calls out to
// and the adapters that turn them into plan-node executors.
//
// Every capability is a request/response pair. Providers are treated as
// stateless and reentrant: the workflow may call them concurrently and
// repeatedly, and never assumes they hold per-task state across calls.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/agentflow/internal/models"
)

// Capability names, used for logging, metrics and the command provider protocol.
const (
	CapClassify     = "classify"
	CapFeasibility  = "feasibility"
	CapCompleteness = "completeness"
	CapPlan         = "plan"
	CapResearch     = "research"
	CapDocuments    = "document-search"
	CapDiagram      = "diagram-analysis"
	CapAnswer       = "direct-qa"
	CapEvaluate     = "evaluate"
	CapSynthesize   = "synthesize"
)

// Classifier assigns a complexity tier to a request.
type Classifier interface {
	Classify(ctx context.Context, query string) (models.Classification, error)
}

// FeasibilityAssessor decides whether a request can be fulfilled at all and
// whether the context is complete enough to plan it.
type FeasibilityAssessor interface {
	AssessFeasibility(ctx context.Context, query string, history []models.Turn) (models.FeasibilityVerdict, error)
}

// CompletenessChecker is an optional second look at the context. A non-empty
// question means information is missing.
type CompletenessChecker interface {
	CheckCompleteness(ctx context.Context, query string, history []models.Turn) (string, error)
}

// PlanRequest is the planner input. Feedback carries validation errors from a
// rejected previous attempt.
type PlanRequest struct {
	Query          string                `json:"query"`
	Classification models.Classification `json:"classification"`
	Context        []models.Turn         `json:"context,omitempty"`
	Feedback       []string              `json:"feedback,omitempty"`
}

// Planner produces a raw, unvalidated plan.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*models.Plan, error)
}

// Researcher runs web searches, one result set per query.
type Researcher interface {
	Research(ctx context.Context, queries []string) ([]models.ResearchQueryResult, error)
}

// DocumentSearcher extracts context relevant to a query from local documents.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, query string, docs []models.Document) (models.DocumentSearchResponse, error)
}

// DiagramAnalyzer produces diagram source for a query.
type DiagramAnalyzer interface {
	AnalyzeDiagram(ctx context.Context, query string) (models.DiagramResponse, error)
}

// DirectAnswerer answers a factual question directly.
type DirectAnswerer interface {
	Answer(ctx context.Context, query string, history []models.Turn) (models.AnswerResponse, error)
}

// EvaluationRequest is the evaluation provider input.
type EvaluationRequest struct {
	Query     string              `json:"query"`
	Context   []models.Turn       `json:"context,omitempty"`
	Results   []models.ResultView `json:"results"`
	Summary   string              `json:"summary"`
	Cancelled bool                `json:"cancelled,omitempty"`
}

// EvaluationProvider judges aggregated results against the request.
type EvaluationProvider interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (models.EvaluationVerdict, error)
}

// SynthesisRequest carries everything accumulated during a run. Pointer fields
// are nil when the run never reached the phase that produces them.
type SynthesisRequest struct {
	Query          string                     `json:"query"`
	Context        []models.Turn              `json:"context,omitempty"`
	Framing        models.Framing             `json:"framing"`
	Classification *models.Classification     `json:"classification,omitempty"`
	Feasibility    *models.FeasibilityVerdict `json:"feasibility,omitempty"`
	Plan           *models.Plan               `json:"plan,omitempty"`
	Results        []models.ResultView        `json:"results,omitempty"`
	Summary        string                     `json:"summary,omitempty"`
	Verdict        *models.EvaluationVerdict  `json:"verdict,omitempty"`
	Notes          []string                   `json:"notes,omitempty"`
}

// Synthesizer produces the final answer text.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// Set is the full capability set a workflow runs against. Node-type providers
// may be nil; nodes of a type with no provider fail with no-provider.
type Set struct {
	Classifier   Classifier
	Feasibility  FeasibilityAssessor
	Completeness CompletenessChecker // optional
	Planner      Planner
	Evaluator    EvaluationProvider
	Synthesizer  Synthesizer

	Research  Researcher
	Documents DocumentSearcher
	Diagrams  DiagramAnalyzer
	Answers   DirectAnswerer
}

// Validate checks that the phase-level capabilities are present.
func (s *Set) Validate() error {
	if s == nil {
		return errors.New("provider set is nil")
	}
	var missing []string
	if s.Classifier == nil {
		missing = append(missing, CapClassify)
	}
	if s.Feasibility == nil {
		missing = append(missing, CapFeasibility)
	}
	if s.Planner == nil {
		missing = append(missing, CapPlan)
	}
	if s.Evaluator == nil {
		missing = append(missing, CapEvaluate)
	}
	if s.Synthesizer == nil {
		missing = append(missing, CapSynthesize)
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider set missing required capabilities: %s", strings.Join(missing, ", "))
	}
	return nil
}

// All returns a Set with every capability served by p. Capabilities p does
// not implement are left nil.
func All(p any) *Set {
	s := &Set{}
	s.Classifier, _ = p.(Classifier)
	s.Feasibility, _ = p.(FeasibilityAssessor)
	s.Completeness, _ = p.(CompletenessChecker)
	s.Planner, _ = p.(Planner)
	s.Evaluator, _ = p.(EvaluationProvider)
	s.Synthesizer, _ = p.(Synthesizer)
	s.Research, _ = p.(Researcher)
	s.Documents, _ = p.(DocumentSearcher)
	s.Diagrams, _ = p.(DiagramAnalyzer)
	s.Answers, _ = p.(DirectAnswerer)
	return s
}
