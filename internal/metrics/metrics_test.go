package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/harrison/agentflow/internal/models"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.PhaseEntered(models.PhaseAssessment)
	m.PhaseCompleted(models.PhaseAssessment, time.Second)
	m.ProviderCall("classify", time.Second, nil)
	m.NodeDispatched(models.NodeResearch)
	m.NodeReturned(models.NodeResearch, time.Second)
	m.NodeFinished(models.NodeResearch, models.StatusSucceeded)
	m.PlanAccepted(3)
	m.PlanRejected()
	m.Suspended(models.SuspendedForInformation)
	m.Verdict(models.JudgementPassed)
	m.Finished(models.FramingAnswer)
}

func TestRecording(t *testing.T) {
	_, m := NewRegistry()

	m.PhaseEntered(models.PhasePlanning)
	m.PhaseEntered(models.PhasePlanning)
	if got := testutil.ToFloat64(m.PhaseTransitions.WithLabelValues("planning")); got != 2 {
		t.Errorf("planning transitions = %v, want 2", got)
	}

	m.NodeDispatched(models.NodeResearch)
	m.NodeDispatched(models.NodeResearch)
	m.NodeReturned(models.NodeResearch, 10*time.Millisecond)
	if got := testutil.ToFloat64(m.NodesInFlight.WithLabelValues("research")); got != 1 {
		t.Errorf("research in flight = %v, want 1", got)
	}

	m.NodeFinished(models.NodeResearch, models.StatusFailed)
	if got := testutil.ToFloat64(m.NodeExecutions.WithLabelValues("research", models.StatusFailed)); got != 1 {
		t.Errorf("failed research executions = %v, want 1", got)
	}

	m.ProviderCall("plan", time.Second, nil)
	if got := testutil.ToFloat64(m.ProviderCalls.WithLabelValues("plan", "true")); got != 1 {
		t.Errorf("plan calls = %v, want 1", got)
	}

	m.PlanAccepted(4)
	m.PlanRejected()
	if got := testutil.ToFloat64(m.PlanAttempts.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected plans = %v, want 1", got)
	}

	m.Finished(models.FramingNotPossible)
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("not-possible")); got != 1 {
		t.Errorf("not-possible runs = %v, want 1", got)
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.Verdict(models.JudgementHallucination)

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(buf.String(), `agentflow_verdicts_total{judgement="hallucination"} 1`) {
		t.Errorf("metrics output missing verdict counter:\n%s", buf.String())
	}
}
