package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

// CommandProvider serves every capability by invoking an external executable
// as `<Path> [Args...] <capability>`, writing the JSON request to stdin and
// reading the JSON response from stdout.
type CommandProvider struct {
	Path    string
	Args    []string
	Timeout time.Duration // Per-invocation timeout (0 = none)
}

// InvocationResult captures the result of one command invocation
type InvocationResult struct {
	Output   []byte
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// NewCommandProvider creates a CommandProvider for the given executable.
func NewCommandProvider(path string, timeout time.Duration, args ...string) *CommandProvider {
	return &CommandProvider{Path: path, Args: args, Timeout: timeout}
}

// BuildCommandArgs constructs the command-line arguments for a capability call
func (c *CommandProvider) BuildCommandArgs(capability string) []string {
	args := append([]string{}, c.Args...)
	return append(args, capability)
}

// Invoke runs the command for one capability and returns its raw output.
func (c *CommandProvider) Invoke(ctx context.Context, capability string, request any) (*InvocationResult, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", capability, err)
	}

	startTime := time.Now()
	cmd := exec.CommandContext(ctx, c.Path, c.BuildCommandArgs(capability)...)
	cmd.Stdin = bytes.NewReader(body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result := &InvocationResult{
		Output:   stdout.Bytes(),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(startTime),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("%s: %w", capability, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%s: exit code %d: %s", capability, result.ExitCode, result.Stderr)
		}
		return result, fmt.Errorf("%s: %w", capability, err)
	}
	return result, nil
}

// call invokes a capability and decodes its JSON response into out.
func (c *CommandProvider) call(ctx context.Context, capability string, request, out any) error {
	res, err := c.Invoke(ctx, capability, request)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Output, out); err != nil {
		return fmt.Errorf("%s: malformed response: %w", capability, err)
	}
	return nil
}

type queryRequest struct {
	Query     string            `json:"query,omitempty"`
	Queries   []string          `json:"queries,omitempty"`
	Context   []models.Turn     `json:"context,omitempty"`
	Documents []models.Document `json:"documents,omitempty"`
}

// Classify implements Classifier.
func (c *CommandProvider) Classify(ctx context.Context, query string) (models.Classification, error) {
	var out models.Classification
	err := c.call(ctx, CapClassify, queryRequest{Query: query}, &out)
	return out, err
}

// AssessFeasibility implements FeasibilityAssessor.
func (c *CommandProvider) AssessFeasibility(ctx context.Context, query string, history []models.Turn) (models.FeasibilityVerdict, error) {
	var out models.FeasibilityVerdict
	err := c.call(ctx, CapFeasibility, queryRequest{Query: query, Context: history}, &out)
	return out, err
}

// CheckCompleteness implements CompletenessChecker.
func (c *CommandProvider) CheckCompleteness(ctx context.Context, query string, history []models.Turn) (string, error) {
	var out struct {
		Question string `json:"question"`
	}
	err := c.call(ctx, CapCompleteness, queryRequest{Query: query, Context: history}, &out)
	return out.Question, err
}

// Plan implements Planner.
func (c *CommandProvider) Plan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	var out models.Plan
	if err := c.call(ctx, CapPlan, req, &out); err != nil {
		return nil, err
	}
	if out.Task == "" {
		out.Task = req.Query
	}
	return &out, nil
}

// Research implements Researcher.
func (c *CommandProvider) Research(ctx context.Context, queries []string) ([]models.ResearchQueryResult, error) {
	var out []models.ResearchQueryResult
	err := c.call(ctx, CapResearch, queryRequest{Queries: queries}, &out)
	return out, err
}

// SearchDocuments implements DocumentSearcher.
func (c *CommandProvider) SearchDocuments(ctx context.Context, query string, docs []models.Document) (models.DocumentSearchResponse, error) {
	var out models.DocumentSearchResponse
	err := c.call(ctx, CapDocuments, queryRequest{Query: query, Documents: docs}, &out)
	return out, err
}

// AnalyzeDiagram implements DiagramAnalyzer.
func (c *CommandProvider) AnalyzeDiagram(ctx context.Context, query string) (models.DiagramResponse, error) {
	var out models.DiagramResponse
	err := c.call(ctx, CapDiagram, queryRequest{Query: query}, &out)
	return out, err
}

// Answer implements DirectAnswerer.
func (c *CommandProvider) Answer(ctx context.Context, query string, history []models.Turn) (models.AnswerResponse, error) {
	var out models.AnswerResponse
	err := c.call(ctx, CapAnswer, queryRequest{Query: query, Context: history}, &out)
	return out, err
}

// Evaluate implements EvaluationProvider. The output may be JSON or a
// "Judgement: <tag>" text block.
func (c *CommandProvider) Evaluate(ctx context.Context, req EvaluationRequest) (models.EvaluationVerdict, error) {
	res, err := c.Invoke(ctx, CapEvaluate, req)
	if err != nil {
		return models.EvaluationVerdict{}, err
	}
	v, err := ParseVerdict(res.Output)
	if err != nil {
		return models.EvaluationVerdict{}, fmt.Errorf("%s: %w", CapEvaluate, err)
	}
	return v, nil
}

// Synthesize implements Synthesizer. A response that is not a JSON object is
// taken as the answer text itself.
func (c *CommandProvider) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	res, err := c.Invoke(ctx, CapSynthesize, req)
	if err != nil {
		return "", err
	}
	return ParseTextOutput(res.Output), nil
}

// ParseTextOutput extracts the "text" (or "content") field from JSON output.
// If the output is not a JSON object, the raw output is returned trimmed.
func ParseTextOutput(output []byte) string {
	var obj struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(output, &obj); err != nil {
		return strings.TrimSpace(string(output))
	}
	if obj.Text != "" {
		return obj.Text
	}
	return obj.Content
}
