package models

import (
	"fmt"
	"strings"
	"time"
)

// Judgement is the evaluator's tag for the aggregated results.
type Judgement string

const (
	JudgementPassed        Judgement = "passed"
	JudgementHallucination Judgement = "hallucination"
	JudgementNotVerified   Judgement = "not-verified"
	JudgementNotAligned    Judgement = "not-aligned"
	JudgementError         Judgement = "error"
)

// ParseJudgement normalizes a judgement string ("NOT_VERIFIED", "Passed").
func ParseJudgement(s string) (Judgement, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	switch Judgement(normalized) {
	case JudgementPassed, JudgementHallucination, JudgementNotVerified, JudgementNotAligned, JudgementError:
		return Judgement(normalized), nil
	}
	return JudgementError, fmt.Errorf("unknown judgement %q", s)
}

// EvaluationVerdict is produced exactly once per task by the evaluator.
type EvaluationVerdict struct {
	Judgement   Judgement `json:"judgement" yaml:"judgement"`
	Explanation string    `json:"explanation" yaml:"explanation"`
}

// Framing describes which path led to the final answer.
type Framing string

const (
	FramingAnswer           Framing = "answer"            // Normal path through all five phases
	FramingNotPossible      Framing = "not-possible"      // Feasibility said no
	FramingPlanningFailed   Framing = "planning-failed"   // No valid plan after retry
	FramingAssessmentFailed Framing = "assessment-failed" // Classification or feasibility provider failed
	FramingCancelled        Framing = "cancelled"         // Task cancelled; partial results were used
)

// FinalAnswer is the synthesized result of a task. Verdict is nil when the run
// short-circuited before Evaluation.
type FinalAnswer struct {
	TaskID   string             `json:"task_id"`
	Text     string             `json:"text"`
	Framing  Framing            `json:"framing"`
	Verdict  *EvaluationVerdict `json:"verdict,omitempty"`
	Notes    []string           `json:"notes,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// JudgementLabel returns the verdict judgement or "none".
func (a FinalAnswer) JudgementLabel() string {
	if a.Verdict == nil {
		return "none"
	}
	return string(a.Verdict.Judgement)
}
