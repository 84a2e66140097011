package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/models"
)

type stubResearcher struct {
	results []models.ResearchQueryResult
	err     error
	got     []string
}

func (s *stubResearcher) Research(ctx context.Context, queries []string) ([]models.ResearchQueryResult, error) {
	s.got = queries
	return s.results, s.err
}

type stubAnswerer struct{ resp models.AnswerResponse }

func (s stubAnswerer) Answer(ctx context.Context, query string, history []models.Turn) (models.AnswerResponse, error) {
	return s.resp, nil
}

func TestSplitQueries(t *testing.T) {
	assert.Equal(t, []string{"go errors", "rust result"}, SplitQueries("go errors\n\n- rust result\n"))
	assert.Equal(t, []string{"single"}, SplitQueries("  single  "))
	assert.Empty(t, SplitQueries(" \n "))
}

func TestResearchNode(t *testing.T) {
	node := models.PlanNode{Type: models.NodeResearch, Query: "a\nb"}

	t.Run("partial errors still succeed", func(t *testing.T) {
		r := &stubResearcher{results: []models.ResearchQueryResult{
			{Query: "a", Results: []models.ResearchHit{{URL: "https://a", Text: "A"}}},
			{Query: "b", Error: "quota"},
		}}
		payload, err := researchNode{r}.Execute(context.Background(), node)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, r.got)
		assert.Equal(t, models.NodeResearch, payload.Kind())
		assert.Contains(t, payload.Summary(), "https://a")
	})

	t.Run("all queries errored", func(t *testing.T) {
		r := &stubResearcher{results: []models.ResearchQueryResult{
			{Query: "a", Error: "quota"},
			{Query: "b", Error: "quota"},
		}}
		_, err := researchNode{r}.Execute(context.Background(), node)
		require.ErrorIs(t, err, ErrAllQueriesFailed)
	})

	t.Run("missing queries are recorded as errors", func(t *testing.T) {
		r := &stubResearcher{results: []models.ResearchQueryResult{
			{Query: "a", Results: []models.ResearchHit{{URL: "https://a", Text: "A"}}},
		}}
		payload, err := researchNode{r}.Execute(context.Background(), node)
		require.NoError(t, err)
		research := payload.(models.ResearchPayload)
		require.Len(t, research.Queries, 2)
		assert.Equal(t, "b", research.Queries[1].Query)
		assert.Equal(t, "no result returned", research.Queries[1].Error)
	})

	t.Run("short errored response fails", func(t *testing.T) {
		r := &stubResearcher{results: []models.ResearchQueryResult{{Query: "a", Error: "quota"}}}
		_, err := researchNode{r}.Execute(context.Background(), node)
		require.ErrorIs(t, err, ErrAllQueriesFailed)
		assert.Contains(t, err.Error(), "b: no result returned")
	})

	t.Run("empty response fails", func(t *testing.T) {
		_, err := researchNode{&stubResearcher{}}.Execute(context.Background(), node)
		require.ErrorIs(t, err, ErrAllQueriesFailed)
	})

	t.Run("provider error", func(t *testing.T) {
		r := &stubResearcher{err: errors.New("down")}
		_, err := researchNode{r}.Execute(context.Background(), node)
		require.EqualError(t, err, "down")
	})
}

func TestAnswerNode_ResponseErrorIsFailure(t *testing.T) {
	_, err := answerNode{p: stubAnswerer{models.AnswerResponse{Error: "unknown"}}}.Execute(context.Background(), models.PlanNode{Query: "q"})
	require.EqualError(t, err, "unknown")

	payload, err := answerNode{p: stubAnswerer{models.AnswerResponse{Answer: "4"}}}.Execute(context.Background(), models.PlanNode{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "4", payload.Summary())
}

func TestSet_NodeExecutors(t *testing.T) {
	s := &Set{Research: &stubResearcher{}, Answers: stubAnswerer{}}
	execs := s.NodeExecutors(NodeInput{})

	assert.Len(t, execs, 2)
	assert.Contains(t, execs, models.NodeResearch)
	assert.Contains(t, execs, models.NodeDirectQA)
	assert.NotContains(t, execs, models.NodeDiagramAnalysis)
}

func TestSet_Validate(t *testing.T) {
	var nilSet *Set
	require.Error(t, nilSet.Validate())

	err := (&Set{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classify, feasibility, plan, evaluate, synthesize")

	fp, err := NewFixtureProvider(Fixture{})
	require.NoError(t, err)
	require.NoError(t, All(fp).Validate())
}

func TestAll_FixtureServesEveryCapability(t *testing.T) {
	fp, err := NewFixtureProvider(Fixture{})
	require.NoError(t, err)
	s := All(fp)

	assert.NotNil(t, s.Research)
	assert.NotNil(t, s.Documents)
	assert.NotNil(t, s.Diagrams)
	assert.NotNil(t, s.Answers)
	assert.Nil(t, s.Completeness, "fixture has no completeness check")
}
