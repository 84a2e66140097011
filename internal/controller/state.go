package controller

import (
	"github.com/harrison/agentflow/internal/models"
)

// state is the tagged union of controller phases. Each variant carries exactly
// the artifacts that exist at that point of the run.
type state interface {
	phase() models.Phase
}

type assessing struct{}

type planning struct {
	classification models.Classification
	feasibility    models.FeasibilityVerdict
}

type executing struct {
	classification models.Classification
	feasibility    models.FeasibilityVerdict
	plan           *models.Plan
	rejected       map[models.NodeID]bool
}

type evaluating struct {
	classification models.Classification
	feasibility    models.FeasibilityVerdict
	plan           *models.Plan
	results        *models.AggregatedResults
}

type synthesizing struct {
	framing        models.Framing
	classification *models.Classification
	feasibility    *models.FeasibilityVerdict
	plan           *models.Plan
	results        *models.AggregatedResults
	verdict        *models.EvaluationVerdict
	notes          []string
}

// suspended is parked at the phase boundary it was raised from.
type suspended struct {
	suspension *models.Suspension
	at         models.Phase
}

type done struct {
	answer *models.FinalAnswer
}

func (assessing) phase() models.Phase { return models.PhaseAssessment }
func (planning) phase() models.Phase { return models.PhasePlanning }
func (executing) phase() models.Phase { return models.PhaseExecution }
func (evaluating) phase() models.Phase { return models.PhaseEvaluation }
func (synthesizing) phase() models.Phase { return models.PhaseSynthesis }
func (s suspended) phase() models.Phase { return s.at }
func (done) phase() models.Phase { return models.PhaseDone }
