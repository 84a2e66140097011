package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/agentflow/internal/models"
)

// YAMLParser parses plans of the form:
//
//	task: Compare Go and Rust error handling
//	nodes:
//	  - type: research
//	    order: 1
//	    purpose: gather sources
//	    queries: [go errors, rust result type]
//	  - type: direct-qa
//	    order: 2
//	    dependencies: [1]
//	    query: summarize the differences
type YAMLParser struct{}

// NewYAMLParser creates a YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlPlan struct {
	Task  string     `yaml:"task"`
	Nodes []yamlNode `yaml:"nodes"`
}

type yamlNode struct {
	Type         string   `yaml:"type"`
	Order        int      `yaml:"order"`
	Purpose      string   `yaml:"purpose"`
	Dependencies []int    `yaml:"dependencies"`
	Query        string   `yaml:"query"`
	Queries      []string `yaml:"queries"`
}

// Parse implements Parser.
func (p *YAMLParser) Parse(r io.Reader) (*models.Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw yamlPlan
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return &models.Plan{}, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return raw.toPlan(), nil
}

// ParseYAMLNode converts an already-decoded YAML node into a plan.
func ParseYAMLNode(node *yaml.Node) (*models.Plan, error) {
	var raw yamlPlan
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return raw.toPlan(), nil
}

func (raw yamlPlan) toPlan() *models.Plan {
	plan := &models.Plan{Task: raw.Task, Nodes: make([]models.PlanNode, 0, len(raw.Nodes))}
	for _, n := range raw.Nodes {
		query := n.Query
		if len(n.Queries) > 0 {
			lines := append([]string{}, n.Queries...)
			if query != "" {
				lines = append([]string{query}, lines...)
			}
			query = strings.Join(lines, "\n")
		}
		plan.Nodes = append(plan.Nodes, models.PlanNode{
			Type:         models.NodeType(n.Type),
			Order:        n.Order,
			Purpose:      n.Purpose,
			Dependencies: n.Dependencies,
			Query:        query,
		})
	}
	normalizeTypes(plan)
	return plan
}
