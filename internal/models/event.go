package models

import "time"

// Phase is one of the five fixed stages of a workflow run, plus the terminal state.
type Phase string

const (
	PhaseAssessment Phase = "assessment"
	PhasePlanning   Phase = "planning"
	PhaseExecution  Phase = "execution"
	PhaseEvaluation Phase = "evaluation"
	PhaseSynthesis  Phase = "synthesis"
	PhaseDone       Phase = "synthesized"
)

// Rank returns the position of the phase in the fixed sequence.
func (p Phase) Rank() int {
	switch p {
	case PhaseAssessment:
		return 0
	case PhasePlanning:
		return 1
	case PhaseExecution:
		return 2
	case PhaseEvaluation:
		return 3
	case PhaseSynthesis:
		return 4
	case PhaseDone:
		return 5
	default:
		return -1
	}
}

// EventKind distinguishes observable transitions.
type EventKind string

const (
	EventPhaseEntered   EventKind = "phase-entered"
	EventPhaseCompleted EventKind = "phase-completed"
	EventArtifact       EventKind = "artifact"
	EventGroupCompleted EventKind = "group-completed"
	EventSuspended      EventKind = "suspended"
	EventFinal          EventKind = "final"
	EventWarning        EventKind = "warning"
)

// Event is emitted on every phase transition. Artifact carries whatever the
// phase produced: *Classification, *FeasibilityVerdict, *Plan,
// *AggregatedResults (partial during execution), *EvaluationVerdict,
// *Suspension or *FinalAnswer.
type Event struct {
	TaskID    string
	Phase     Phase
	Kind      EventKind
	Artifact  any
	Message   string
	Timestamp time.Time
}

// SuspensionKind names what the run is waiting for.
type SuspensionKind string

const (
	SuspendedForInformation  SuspensionKind = "information"
	SuspendedForConfirmation SuspensionKind = "confirmation"
)

// Suspension is returned instead of a FinalAnswer when the run is parked.
// Token is the key for resuming it.
type Suspension struct {
	Token        string               `json:"token"`
	TaskID       string               `json:"task_id"`
	Kind         SuspensionKind       `json:"kind"`
	Information  *InformationRequest  `json:"information,omitempty"`
	Confirmation *ConfirmationRequest `json:"confirmation,omitempty"`
}

// Prompt returns the question put to the user.
func (s *Suspension) Prompt() string {
	switch {
	case s.Information != nil:
		return s.Information.Question
	case s.Confirmation != nil:
		return s.Confirmation.Prompt
	}
	return ""
}
