package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/models"
)

const fixtureText = `classification: {tier: moderate, rationale: two sources}
feasibility: {possible: true, rationale: doable}
ask_once: Which version of Go?
plans:
  - nodes:
      - {type: research, order: 1, query: ""}
  - nodes:
      - {type: research, order: 1, purpose: look, queries: [go errors]}
      - {type: direct-qa, order: 2, dependencies: [1], query: "2+2"}
research:
  go errors:
    - {url: "https://go.dev/blog/go1.13-errors", text: wrapping}
answers:
  "2+2": "4"
evaluation: {judgement: not-verified, explanation: thin sources}
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFixture(t *testing.T) {
	fp, err := LoadFixture(writeFixture(t, fixtureText))
	require.NoError(t, err)
	ctx := context.Background()

	c, err := fp.Classify(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, models.TierModerate, c.Tier)

	v, err := fp.AssessFeasibility(ctx, "q", nil)
	require.NoError(t, err)
	assert.True(t, v.NeedsInformation())

	answered := []models.Turn{{Role: models.RoleUser, Content: "1.22", ReplyTo: "req-1"}}
	v, err = fp.AssessFeasibility(ctx, "q", answered)
	require.NoError(t, err)
	assert.False(t, v.NeedsInformation(), "question is asked once")

	first, err := fp.Plan(ctx, PlanRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "q", first.Task)
	assert.Empty(t, first.Nodes[0].Query)

	second, err := fp.Plan(ctx, PlanRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, second.Nodes, 2)
	assert.Equal(t, "go errors", second.Nodes[0].Query)

	third, err := fp.Plan(ctx, PlanRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, second, third, "last plan repeats")

	res, err := fp.Research(ctx, []string{"go errors", "rust"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Empty(t, res[0].Error)
	assert.NotEmpty(t, res[1].Error)

	a, err := fp.Answer(ctx, "2+2", nil)
	require.NoError(t, err)
	assert.Equal(t, "4", a.Answer)

	ev, err := fp.Evaluate(ctx, EvaluationRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.JudgementNotVerified, ev.Judgement)
}

func TestLoadFixture_PlanFileRelative(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.md"), []byte("## direct-qa (order 1)\n- Query: 2+2\n"), 0o644))
	path := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plan_file: plan.md\n"), 0o644))

	fp, err := LoadFixture(path)
	require.NoError(t, err)
	plan, err := fp.Plan(context.Background(), PlanRequest{Query: "What is 2+2?"})
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, models.NodeDirectQA, plan.Nodes[0].Type)
}

func TestFixture_Defaults(t *testing.T) {
	fp, err := NewFixtureProvider(Fixture{})
	require.NoError(t, err)
	ctx := context.Background()

	plan, err := fp.Plan(ctx, PlanRequest{Query: "What is 2+2?"})
	require.NoError(t, err)
	assert.Empty(t, plan.Nodes)

	docs := []models.Document{{Name: "notes.md", Content: "The budget is 40k"}, {Name: "other", Content: "nothing"}}
	found, err := fp.SearchDocuments(ctx, "budget", docs)
	require.NoError(t, err)
	assert.Contains(t, found.FoundContext, "notes.md")
	assert.NotContains(t, found.FoundContext, "other")

	d, err := fp.AnalyzeDiagram(ctx, "x")
	require.NoError(t, err)
	assert.NotEmpty(t, d.Error)

	text, err := fp.Synthesize(ctx, SynthesisRequest{Query: "q", Framing: models.FramingAnswer, Summary: "4"})
	require.NoError(t, err)
	assert.Equal(t, "4", text)

	text, err = fp.Synthesize(ctx, SynthesisRequest{Query: "q", Framing: models.FramingNotPossible})
	require.NoError(t, err)
	assert.Equal(t, "not-possible: q", text)
}

func TestLoadFixture_Errors(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadFixture(writeFixture(t, "classification: {tier: legendary}\n"))
	require.Error(t, err)
}
