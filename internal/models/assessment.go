package models

import (
	"fmt"
	"strings"
)

// ComplexityTier is one of six ordered complexity levels assigned during Assessment.
type ComplexityTier int

const (
	TierTrivial ComplexityTier = iota
	TierSimple
	TierModerate
	TierComplex
	TierAdvanced
	TierCritical
)

var tierNames = []string{"trivial", "simple", "moderate", "complex", "advanced", "critical"}

// String returns the lowercase tier name.
func (t ComplexityTier) String() string {
	if t < TierTrivial || t > TierCritical {
		return "unknown"
	}
	return tierNames[t]
}

// ParseComplexityTier converts a tier name (case-insensitive) to a ComplexityTier.
func ParseComplexityTier(s string) (ComplexityTier, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if name == normalized {
			return ComplexityTier(i), nil
		}
	}
	return TierTrivial, fmt.Errorf("unknown complexity tier %q (want one of: %s)", s, strings.Join(tierNames, ", "))
}

// MarshalText encodes the tier as its name.
func (t ComplexityTier) MarshalText() ([]byte, error) {
	if t < TierTrivial || t > TierCritical {
		return nil, fmt.Errorf("invalid complexity tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *ComplexityTier) UnmarshalText(b []byte) error {
	parsed, err := ParseComplexityTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Classification is produced once per task by the classification provider.
type Classification struct {
	Tier      ComplexityTier `json:"tier" yaml:"tier"`
	Rationale string         `json:"rationale" yaml:"rationale"`
}

// FeasibilityVerdict tells whether the task can be done at all, and whether the
// context is complete enough to plan it. A non-empty MissingInformation is the
// question to put to the user.
type FeasibilityVerdict struct {
	Possible           bool   `json:"possible" yaml:"possible"`
	Rationale          string `json:"rationale" yaml:"rationale"`
	MissingInformation string `json:"missing_information,omitempty" yaml:"missing_information,omitempty"`
}

// NeedsInformation reports whether the verdict asks for more input.
func (v FeasibilityVerdict) NeedsInformation() bool {
	return v.Possible && strings.TrimSpace(v.MissingInformation) != ""
}

// InformationRequest asks the user a question. It is satisfied only when a user
// turn replying to ID is appended at or after TargetTurn.
type InformationRequest struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	TargetTurn int    `json:"target_turn"`
}

// ConfirmationRequest asks the user to approve the nodes that require direct
// confirmation before the plan is executed.
type ConfirmationRequest struct {
	ID     string   `json:"id"`
	Prompt string   `json:"prompt"`
	Nodes  []NodeID `json:"nodes"`
}
