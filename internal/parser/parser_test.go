package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/models"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"plan.md", FormatMarkdown},
		{"plan.MARKDOWN", FormatMarkdown},
		{"plan.yaml", FormatYAML},
		{"plan.yml", FormatYAML},
		{"plan.json", FormatUnknown},
		{"plan", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.name))
		})
	}
}

const yamlPlanText = `task: Compare Go and Rust error handling
nodes:
  - type: research
    order: 1
    purpose: gather sources
    queries: [go errors, rust result type]
  - type: document_search
    order: 1
    purpose: check notes
    query: error handling notes
  - type: direct-qa
    order: 2
    purpose: summarize
    dependencies: [1]
    query: summarize the differences
`

func TestYAMLParser(t *testing.T) {
	plan, err := NewYAMLParser().Parse(strings.NewReader(yamlPlanText))
	require.NoError(t, err)

	assert.Equal(t, "Compare Go and Rust error handling", plan.Task)
	require.Len(t, plan.Nodes, 3)

	assert.Equal(t, models.NodeResearch, plan.Nodes[0].Type)
	assert.Equal(t, "go errors\nrust result type", plan.Nodes[0].Query)
	assert.Equal(t, models.NodeDocumentSearch, plan.Nodes[1].Type, "alternate spelling is normalized")
	assert.Equal(t, []int{1}, plan.Nodes[2].Dependencies)
	assert.Equal(t, models.NodeID(2), plan.Nodes[2].ID)
}

func TestYAMLParser_RejectsUnknownFields(t *testing.T) {
	_, err := NewYAMLParser().Parse(strings.NewReader("task: x\nnodes:\n  - type: research\n    oder: 1\n"))
	require.Error(t, err)
}

func TestYAMLParser_Empty(t *testing.T) {
	plan, err := NewYAMLParser().Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, plan.Nodes)
}

const markdownPlanText = `# Plan: Compare Go and Rust error handling

## research (order 1)
- Purpose: gather sources
- Query:
  - go errors
  - rust result type

## Document Search (order 1)
- **Purpose**: check notes
- Query: error handling notes

## direct-qa (order 2)
- Purpose: summarize
- Depends on: order 1
- Query: summarize the differences

## Notes
- Purpose: ignored, not a node heading
`

func TestMarkdownParser(t *testing.T) {
	plan, err := NewMarkdownParser().Parse(strings.NewReader(markdownPlanText))
	require.NoError(t, err)

	assert.Equal(t, "Compare Go and Rust error handling", plan.Task)
	require.Len(t, plan.Nodes, 3)

	research := plan.Nodes[0]
	assert.Equal(t, models.NodeResearch, research.Type)
	assert.Equal(t, 1, research.Order)
	assert.Equal(t, "gather sources", research.Purpose)
	assert.Equal(t, "go errors\nrust result type", research.Query)

	assert.Equal(t, models.NodeDocumentSearch, plan.Nodes[1].Type)
	assert.Equal(t, "check notes", plan.Nodes[1].Purpose)

	qa := plan.Nodes[2]
	assert.Equal(t, models.NodeDirectQA, qa.Type)
	assert.Equal(t, []int{1}, qa.Dependencies)
	assert.Equal(t, "summarize the differences", qa.Query)
}

func TestMarkdownParser_Frontmatter(t *testing.T) {
	src := "---\ntask: What is 2+2?\n---\n\n## direct-qa (order 1)\nAnswer directly.\n\n- Query: 2+2\n"
	plan, err := NewMarkdownParser().Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "What is 2+2?", plan.Task)
	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, "Answer directly.", plan.Nodes[0].Purpose)
	assert.Equal(t, "2+2", plan.Nodes[0].Query)
}

func TestMarkdownParser_BadDependency(t *testing.T) {
	src := "## research (order 2)\n- Depends on: first\n"
	_, err := NewMarkdownParser().Parse(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dependency")
}

func TestParseDependencies(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"none", nil},
		{"1", []int{1}},
		{"1, 2", []int{1, 2}},
		{"Order 1, order 3", []int{1, 3}},
	}
	for _, tt := range tests {
		got, err := parseDependencies(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlPlanText), 0o644))
	plan, err := ParseFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, plan.Nodes, 3)

	mdPath := filepath.Join(dir, "plan.md")
	require.NoError(t, os.WriteFile(mdPath, []byte(markdownPlanText), 0o644))
	plan, err = ParseFile(mdPath)
	require.NoError(t, err)
	assert.Len(t, plan.Nodes, 3)

	_, err = ParseFile(filepath.Join(dir, "plan.txt"))
	require.Error(t, err)

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
