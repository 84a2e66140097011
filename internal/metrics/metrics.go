// Package metrics exposes Prometheus instrumentation for workflow runs.
// Every recording method is safe to call on a nil *Metrics, so components can
// hold an optional instance without guarding each call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harrison/agentflow/internal/models"
)

// Metrics holds all Prometheus metrics for agentflow
type Metrics struct {
	// Phase metrics
	PhaseTransitions *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec

	// Capability provider metrics
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	// Plan execution metrics
	NodesInFlight  *prometheus.GaugeVec
	NodeExecutions *prometheus.CounterVec
	NodeDuration   *prometheus.HistogramVec
	PlanNodeCount  prometheus.Histogram
	PlanAttempts   *prometheus.CounterVec

	// Run outcome metrics
	Suspensions *prometheus.CounterVec
	Verdicts    *prometheus.CounterVec
	Runs        *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_phase_transitions_total",
				Help: "Total number of phases entered",
			},
			[]string{"phase"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_phase_duration_seconds",
				Help:    "Time spent in each phase in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0, 300.0},
			},
			[]string{"phase"},
		),

		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_provider_calls_total",
				Help: "Total number of capability provider calls",
			},
			[]string{"capability", "success"},
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_provider_latency_seconds",
				Help:    "Capability provider call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"capability"},
		),

		NodesInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentflow_nodes_in_flight",
				Help: "Plan nodes currently dispatched to a provider",
			},
			[]string{"type"},
		),
		NodeExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_node_executions_total",
				Help: "Total number of plan node results by type and status",
			},
			[]string{"type", "status"},
		),
		NodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_node_duration_seconds",
				Help:    "Plan node provider duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		PlanNodeCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentflow_plan_node_count",
				Help:    "Number of nodes in accepted plans",
				Buckets: []float64{1, 2, 5, 10, 20, 50},
			},
		),
		PlanAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_plan_attempts_total",
				Help: "Total number of planning attempts by outcome",
			},
			[]string{"outcome"},
		),

		Suspensions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_suspensions_total",
				Help: "Total number of runs parked awaiting user input",
			},
			[]string{"kind"},
		),
		Verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_verdicts_total",
				Help: "Total number of evaluation verdicts by judgement",
			},
			[]string{"judgement"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_runs_total",
				Help: "Total number of synthesized final answers by framing",
			},
			[]string{"framing"},
		),
	}
}

// PhaseEntered counts a phase transition.
func (m *Metrics) PhaseEntered(phase models.Phase) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(string(phase)).Inc()
}

// PhaseCompleted observes how long a phase took.
func (m *Metrics) PhaseCompleted(phase models.Phase, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// ProviderCall records one capability call.
func (m *Metrics) ProviderCall(capability string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(capability, boolLabel(err == nil)).Inc()
	m.ProviderLatency.WithLabelValues(capability).Observe(d.Seconds())
}

// NodeDispatched marks a node as handed to its provider.
func (m *Metrics) NodeDispatched(t models.NodeType) {
	if m == nil {
		return
	}
	m.NodesInFlight.WithLabelValues(string(t)).Inc()
}

// NodeReturned marks a dispatched node's provider call as done.
func (m *Metrics) NodeReturned(t models.NodeType, d time.Duration) {
	if m == nil {
		return
	}
	m.NodesInFlight.WithLabelValues(string(t)).Dec()
	m.NodeDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

// NodeFinished counts a recorded node result, including nodes that never
// reached a provider.
func (m *Metrics) NodeFinished(t models.NodeType, status string) {
	if m == nil {
		return
	}
	m.NodeExecutions.WithLabelValues(string(t), status).Inc()
}

// PlanAccepted records the size of a validated plan.
func (m *Metrics) PlanAccepted(nodes int) {
	if m == nil {
		return
	}
	m.PlanAttempts.WithLabelValues("accepted").Inc()
	m.PlanNodeCount.Observe(float64(nodes))
}

// PlanRejected counts a planning attempt that failed validation or errored.
func (m *Metrics) PlanRejected() {
	if m == nil {
		return
	}
	m.PlanAttempts.WithLabelValues("rejected").Inc()
}

// Suspended counts a parked run.
func (m *Metrics) Suspended(kind models.SuspensionKind) {
	if m == nil {
		return
	}
	m.Suspensions.WithLabelValues(string(kind)).Inc()
}

// Verdict counts an evaluation verdict.
func (m *Metrics) Verdict(j models.Judgement) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(string(j)).Inc()
}

// Finished counts a synthesized final answer.
func (m *Metrics) Finished(f models.Framing) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(f)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
