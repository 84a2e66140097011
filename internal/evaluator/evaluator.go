// Package evaluator judges aggregated execution results before synthesis.
//
// Evaluate is total: provider errors, panics, timeouts and malformed
// judgements all become a verdict with judgement "error" whose explanation
// describes the fault. Callers never receive an error from it.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/agentflow/internal/metrics"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/provider"
)

// ErrNoProvider is the fault reported when no evaluation provider is configured.
var ErrNoProvider = errors.New("no evaluation provider configured")

// Evaluator wraps an evaluation provider with the fault-to-verdict contract.
type Evaluator struct {
	provider provider.EvaluationProvider
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// New creates an Evaluator. A zero timeout means the caller's context bounds
// the call.
func New(p provider.EvaluationProvider, timeout time.Duration) *Evaluator {
	return &Evaluator{provider: p, timeout: timeout}
}

// SetMetrics enables provider call instrumentation.
func (e *Evaluator) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Fault converts an internal failure into a verdict.
func Fault(err error) models.EvaluationVerdict {
	return models.EvaluationVerdict{
		Judgement:   models.JudgementError,
		Explanation: fmt.Sprintf("evaluation failed: %v", err),
	}
}

// Request builds the provider request from the task and results.
func Request(results *models.AggregatedResults, task *models.Task) provider.EvaluationRequest {
	req := provider.EvaluationRequest{
		Results:   results.Views(),
		Summary:   results.Summary(),
		Cancelled: results.Cancelled(),
	}
	if task != nil {
		req.Query = task.Request
		req.Context = task.History()
	}
	return req
}

// Evaluate returns exactly one verdict for the results.
func (e *Evaluator) Evaluate(ctx context.Context, results *models.AggregatedResults, task *models.Task) (verdict models.EvaluationVerdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Fault(fmt.Errorf("evaluator panic: %v", r))
		}
	}()

	if e == nil || e.provider == nil {
		return Fault(ErrNoProvider)
	}
	if results == nil {
		results = models.NewAggregatedResults()
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := e.provider.Evaluate(ctx, Request(results, task))
	e.metrics.ProviderCall(provider.CapEvaluate, time.Since(start), err)
	if err != nil {
		return Fault(err)
	}

	j, err := models.ParseJudgement(string(v.Judgement))
	if err != nil {
		return Fault(fmt.Errorf("%w: %v", provider.ErrMalformedVerdict, err))
	}
	v.Judgement = j
	return v
}
