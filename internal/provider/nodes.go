package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/models"
)

// ErrAllQueriesFailed is returned when every query of a research node errored.
var ErrAllQueriesFailed = errors.New("every research query failed")

// NodeInput is the task-scoped material node adapters pass to providers.
type NodeInput struct {
	Documents []models.Document
	History   []models.Turn
}

// NodeExecutors returns one executor per node type that has a provider.
func (s *Set) NodeExecutors(in NodeInput) map[models.NodeType]executor.NodeExecutor {
	execs := make(map[models.NodeType]executor.NodeExecutor)
	if s.Research != nil {
		execs[models.NodeResearch] = researchNode{s.Research}
	}
	if s.Documents != nil {
		execs[models.NodeDocumentSearch] = documentNode{s.Documents, in.Documents}
	}
	if s.Diagrams != nil {
		execs[models.NodeDiagramAnalysis] = diagramNode{s.Diagrams}
	}
	if s.Answers != nil {
		execs[models.NodeDirectQA] = answerNode{s.Answers, in.History}
	}
	return execs
}

// SplitQueries turns a research node's query into individual search queries,
// one per non-empty line.
func SplitQueries(query string) []string {
	var out []string
	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

type researchNode struct{ p Researcher }

func (n researchNode) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	queries := SplitQueries(node.Query)
	if len(queries) == 0 {
		return nil, errors.New("research node has no queries")
	}
	results, err := n.p.Research(ctx, queries)
	if err != nil {
		return nil, err
	}
	results = fillMissingQueries(queries, results)
	var errs []string
	for _, r := range results {
		if r.Error != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", r.Query, r.Error))
		}
	}
	if len(errs) == len(results) {
		return nil, fmt.Errorf("%w: %s", ErrAllQueriesFailed, strings.Join(errs, "; "))
	}
	return models.ResearchPayload{Queries: results}, nil
}

// fillMissingQueries records every query the provider left unanswered as an
// errored entry, so each query has exactly one result.
func fillMissingQueries(queries []string, results []models.ResearchQueryResult) []models.ResearchQueryResult {
	answered := make(map[string]int, len(results))
	for _, r := range results {
		answered[r.Query]++
	}
	for _, q := range queries {
		if answered[q] > 0 {
			answered[q]--
			continue
		}
		results = append(results, models.ResearchQueryResult{Query: q, Error: "no result returned"})
	}
	return results
}

type documentNode struct {
	p    DocumentSearcher
	docs []models.Document
}

func (n documentNode) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	resp, err := n.p.SearchDocuments(ctx, node.Query, n.docs)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return models.DocumentSearchPayload{FoundContext: resp.FoundContext}, nil
}

type diagramNode struct{ p DiagramAnalyzer }

func (n diagramNode) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	resp, err := n.p.AnalyzeDiagram(ctx, node.Query)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return models.DiagramPayload{DiagramSource: resp.DiagramSource}, nil
}

type answerNode struct {
	p       DirectAnswerer
	history []models.Turn
}

func (n answerNode) Execute(ctx context.Context, node models.PlanNode) (models.Payload, error) {
	resp, err := n.p.Answer(ctx, node.Query, n.history)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return models.AnswerPayload{Answer: resp.Answer}, nil
}
