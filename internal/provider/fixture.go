package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/parser"
)

// Fixture is a file of canned capability responses. It lets the workflow run
// end to end without live collaborators.
//
//	classification: {tier: trivial, rationale: arithmetic}
//	feasibility: {possible: true, rationale: easy}
//	ask_once: "Which currency?"     # asked until the user has replied once
//	plans:                          # one per planning attempt, last repeats
//	  - task: What is 2+2?
//	    nodes: []
//	plan_file: plan.md              # alternative to plans
//	research:
//	  "go errors": [{url: https://go.dev/blog/errors, text: errors are values}]
//	documents: {found_context: "..."}
//	diagram: {diagram_source: "graph TD; A-->B"}
//	answers: {"2+2": "4"}
//	evaluation: {judgement: passed, explanation: consistent}
//	synthesis: "The answer is 4."
type Fixture struct {
	Classification models.Classification           `yaml:"classification"`
	Feasibility    models.FeasibilityVerdict       `yaml:"feasibility"`
	AskOnce        string                          `yaml:"ask_once"`
	Plans          []yaml.Node                     `yaml:"plans"`
	PlanFile       string                          `yaml:"plan_file"`
	Research       map[string][]models.ResearchHit `yaml:"research"`
	Documents      models.DocumentSearchResponse   `yaml:"documents"`
	Diagram        models.DiagramResponse          `yaml:"diagram"`
	Answers        map[string]string               `yaml:"answers"`
	Evaluation     models.EvaluationVerdict        `yaml:"evaluation"`
	Synthesis      string                          `yaml:"synthesis"`
}

// FixtureProvider serves every capability from a Fixture.
type FixtureProvider struct {
	fixture Fixture
	plans   []*models.Plan

	mu       sync.Mutex
	attempts int
}

// LoadFixture reads a fixture file. A relative plan_file is resolved against
// the fixture's directory.
func LoadFixture(path string) (*FixtureProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	if f.PlanFile != "" && !filepath.IsAbs(f.PlanFile) {
		f.PlanFile = filepath.Join(filepath.Dir(path), f.PlanFile)
	}
	return NewFixtureProvider(f)
}

// NewFixtureProvider builds a provider from an in-memory fixture.
func NewFixtureProvider(f Fixture) (*FixtureProvider, error) {
	p := &FixtureProvider{fixture: f}
	for i := range f.Plans {
		plan, err := parser.ParseYAMLNode(&f.Plans[i])
		if err != nil {
			return nil, fmt.Errorf("fixture plan %d: %w", i+1, err)
		}
		p.plans = append(p.plans, plan)
	}
	if f.PlanFile != "" {
		plan, err := parser.ParseFile(f.PlanFile)
		if err != nil {
			return nil, err
		}
		p.plans = append(p.plans, plan)
	}
	return p, nil
}

// Classify implements Classifier.
func (p *FixtureProvider) Classify(ctx context.Context, query string) (models.Classification, error) {
	return p.fixture.Classification, ctx.Err()
}

// AssessFeasibility implements FeasibilityAssessor. The ask_once question is
// returned as missing information until a user turn replies to anything.
func (p *FixtureProvider) AssessFeasibility(ctx context.Context, query string, history []models.Turn) (models.FeasibilityVerdict, error) {
	v := p.fixture.Feasibility
	if v.Possible && p.fixture.AskOnce != "" && !hasReply(history) {
		v.MissingInformation = p.fixture.AskOnce
	}
	return v, ctx.Err()
}

func hasReply(history []models.Turn) bool {
	for _, t := range history {
		if t.Role == models.RoleUser && t.ReplyTo != "" {
			return true
		}
	}
	return false
}

// Plan implements Planner. Successive attempts walk the fixture's plans; the
// last one repeats. A fixture without plans yields an empty plan.
func (p *FixtureProvider) Plan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	idx := p.attempts
	p.attempts++
	p.mu.Unlock()

	if len(p.plans) == 0 {
		return &models.Plan{Task: req.Query}, nil
	}
	if idx >= len(p.plans) {
		idx = len(p.plans) - 1
	}
	plan := p.plans[idx].Clone()
	if plan.Task == "" {
		plan.Task = req.Query
	}
	return plan, nil
}

// Research implements Researcher. Queries without canned hits report an error.
func (p *FixtureProvider) Research(ctx context.Context, queries []string) ([]models.ResearchQueryResult, error) {
	out := make([]models.ResearchQueryResult, 0, len(queries))
	for _, q := range queries {
		hits, ok := p.fixture.Research[q]
		if !ok {
			out = append(out, models.ResearchQueryResult{Query: q, Error: "no fixture results"})
			continue
		}
		out = append(out, models.ResearchQueryResult{Query: q, Results: hits})
	}
	return out, ctx.Err()
}

// SearchDocuments implements DocumentSearcher. Without a canned response it
// returns the documents whose content mentions the query.
func (p *FixtureProvider) SearchDocuments(ctx context.Context, query string, docs []models.Document) (models.DocumentSearchResponse, error) {
	if p.fixture.Documents.FoundContext != "" || p.fixture.Documents.Error != "" {
		return p.fixture.Documents, ctx.Err()
	}
	var found []string
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Content), strings.ToLower(query)) {
			found = append(found, fmt.Sprintf("[%s]\n%s", d.Name, d.Content))
		}
	}
	if len(found) == 0 {
		return models.DocumentSearchResponse{Error: "no document mentions the query"}, ctx.Err()
	}
	return models.DocumentSearchResponse{FoundContext: strings.Join(found, "\n\n")}, ctx.Err()
}

// AnalyzeDiagram implements DiagramAnalyzer.
func (p *FixtureProvider) AnalyzeDiagram(ctx context.Context, query string) (models.DiagramResponse, error) {
	if p.fixture.Diagram.DiagramSource == "" && p.fixture.Diagram.Error == "" {
		return models.DiagramResponse{Error: "no fixture diagram"}, ctx.Err()
	}
	return p.fixture.Diagram, ctx.Err()
}

// Answer implements DirectAnswerer.
func (p *FixtureProvider) Answer(ctx context.Context, query string, history []models.Turn) (models.AnswerResponse, error) {
	if a, ok := p.fixture.Answers[query]; ok {
		return models.AnswerResponse{Answer: a}, ctx.Err()
	}
	return models.AnswerResponse{Error: fmt.Sprintf("no fixture answer for %q", query)}, ctx.Err()
}

// Evaluate implements EvaluationProvider. An empty fixture judgement passes.
func (p *FixtureProvider) Evaluate(ctx context.Context, req EvaluationRequest) (models.EvaluationVerdict, error) {
	v := p.fixture.Evaluation
	if v.Judgement == "" {
		v.Judgement = models.JudgementPassed
	}
	return v, ctx.Err()
}

// Synthesize implements Synthesizer. Without canned text it answers from the
// results summary.
func (p *FixtureProvider) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	if p.fixture.Synthesis != "" {
		return p.fixture.Synthesis, ctx.Err()
	}
	if req.Framing == models.FramingAnswer && req.Summary != "" {
		return req.Summary, ctx.Err()
	}
	return fmt.Sprintf("%s: %s", req.Framing, req.Query), ctx.Err()
}
