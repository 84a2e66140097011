package models

import (
	"fmt"
	"strings"
)

// Payload is the provider-specific success value of a node.
type Payload interface {
	// Kind returns the node type that produced the payload.
	Kind() NodeType
	// Summary renders the payload as text for evaluation and synthesis.
	Summary() string
}

// ResearchHit is one search result.
type ResearchHit struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	URL   string `json:"url" yaml:"url"`
	Text  string `json:"text" yaml:"text"`
}

// ResearchQueryResult is the provider response for a single research query.
type ResearchQueryResult struct {
	Query   string        `json:"query" yaml:"query"`
	Results []ResearchHit `json:"results" yaml:"results"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ResearchPayload holds per-query research results.
type ResearchPayload struct {
	Queries []ResearchQueryResult `json:"queries"`
}

func (p ResearchPayload) Kind() NodeType { return NodeResearch }

func (p ResearchPayload) Summary() string {
	var sb strings.Builder
	for _, q := range p.Queries {
		fmt.Fprintf(&sb, "Query: %s\n", q.Query)
		if q.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", q.Error)
			continue
		}
		for _, hit := range q.Results {
			if hit.Title != "" {
				fmt.Fprintf(&sb, "  - %s (%s): %s\n", hit.Title, hit.URL, hit.Text)
			} else {
				fmt.Fprintf(&sb, "  - %s: %s\n", hit.URL, hit.Text)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// DocumentSearchResponse is the provider response for a document search.
type DocumentSearchResponse struct {
	FoundContext string `json:"found_context" yaml:"found_context"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

// DocumentSearchPayload holds context extracted from local documents.
type DocumentSearchPayload struct {
	FoundContext string `json:"found_context"`
}

func (p DocumentSearchPayload) Kind() NodeType { return NodeDocumentSearch }
func (p DocumentSearchPayload) Summary() string { return p.FoundContext }

// DiagramResponse is the provider response for a diagram request.
type DiagramResponse struct {
	DiagramSource string `json:"diagram_source" yaml:"diagram_source"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// DiagramPayload holds generated diagram source.
type DiagramPayload struct {
	DiagramSource string `json:"diagram_source"`
}

func (p DiagramPayload) Kind() NodeType { return NodeDiagramAnalysis }
func (p DiagramPayload) Summary() string { return p.DiagramSource }

// AnswerResponse is the provider response for a direct factual question.
type AnswerResponse struct {
	Answer string `json:"answer" yaml:"answer"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// AnswerPayload holds a direct answer.
type AnswerPayload struct {
	Answer string `json:"answer"`
}

func (p AnswerPayload) Kind() NodeType  { return NodeDirectQA }
func (p AnswerPayload) Summary() string { return p.Answer }
