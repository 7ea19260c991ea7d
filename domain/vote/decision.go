// Package vote defines the resolved outcome of one persona's vote and the
// configuration of the six-factor scoring model.
package vote

import (
	"errors"
	"fmt"

	"electsim/domain/core"
	"electsim/domain/persona"
)

// DecisionSource records which tier produced a decision.
type DecisionSource string

const (
	// SourceRule is a tier-1 deterministic scoring decision.
	SourceRule DecisionSource = "rule"
	// SourceGenerative is a tier-2 generative-delegate decision.
	SourceGenerative DecisionSource = "generative"
	// SourceFallback is a tier-1 decision retained after tier-2 retries
	// were exhausted for the persona.
	SourceFallback DecisionSource = "fallback"
	// SourceCalibrated marks a generative decision flipped by the
	// post-hoc calibration stage.
	SourceCalibrated DecisionSource = "calibrated"
)

// FactorScores is the per-factor contribution breakdown for one candidate.
type FactorScores struct {
	PartyLoyalty    float64 `json:"party_loyalty"`
	PolicyAlignment float64 `json:"policy_alignment"`
	CandidateAppeal float64 `json:"candidate_appeal"`
	MediaInfluence  float64 `json:"media_influence"`
	LocalConnection float64 `json:"local_connection"`
	StrategicVoting float64 `json:"strategic_voting"`
	Total           float64 `json:"total"`
}

// Decision is one persona's resolved outcome. Immutable after creation;
// calibration produces a replacement rather than mutating in place.
type Decision struct {
	PersonaID        core.PersonaID              `json:"persona_id"`
	DistrictID       core.DistrictID             `json:"district_id"`
	WillVote         bool                        `json:"will_vote"`
	AbstentionReason string                      `json:"abstention_reason,omitempty"`
	CandidateID      core.CandidateID            `json:"candidate_id,omitempty"`
	CandidateName    string                      `json:"candidate_name,omitempty"`
	Party            core.PartyID                `json:"party,omitempty"`
	ProportionalParty core.PartyID               `json:"proportional_party,omitempty"`
	Confidence       float64                     `json:"confidence"`
	Source           DecisionSource              `json:"source"`
	NeedsDelegate    bool                        `json:"needs_delegate"`
	SwingLevel       persona.SwingTendency       `json:"swing_level"`
	StatedReason     string                      `json:"stated_reason,omitempty"`
	ScoreBreakdown   map[string]FactorScores     `json:"score_breakdown,omitempty"`
}

// Weights are the six factor weights of the scoring model. Callers may
// override them per experiment; the effective set is recorded in the
// experiment parameters.
type Weights struct {
	PartyLoyalty    float64 `json:"party_loyalty" yaml:"party_loyalty"`
	PolicyAlignment float64 `json:"policy_alignment" yaml:"policy_alignment"`
	CandidateAppeal float64 `json:"candidate_appeal" yaml:"candidate_appeal"`
	MediaInfluence  float64 `json:"media_influence" yaml:"media_influence"`
	LocalConnection float64 `json:"local_connection" yaml:"local_connection"`
	StrategicVoting float64 `json:"strategic_voting" yaml:"strategic_voting"`
}

// DefaultWeights returns the standard factor weights.
func DefaultWeights() Weights {
	return Weights{
		PartyLoyalty:    0.30,
		PolicyAlignment: 0.25,
		CandidateAppeal: 0.20,
		MediaInfluence:  0.10,
		LocalConnection: 0.10,
		StrategicVoting: 0.05,
	}
}

// Sum returns the total of all six weights.
func (w Weights) Sum() float64 {
	return w.PartyLoyalty + w.PolicyAlignment + w.CandidateAppeal +
		w.MediaInfluence + w.LocalConnection + w.StrategicVoting
}

// Validate checks that all weights are non-negative and sum to 1 within
// rounding tolerance.
func (w Weights) Validate() error {
	for _, v := range []float64{
		w.PartyLoyalty, w.PolicyAlignment, w.CandidateAppeal,
		w.MediaInfluence, w.LocalConnection, w.StrategicVoting,
	} {
		if v < 0 {
			return errors.New("factor weights must be non-negative")
		}
	}
	if s := w.Sum(); s < 0.99 || s > 1.01 {
		return fmt.Errorf("factor weights must sum to 1, got %.3f", s)
	}
	return nil
}

// SwingNoise maps a swing-tendency class to the standard deviation of the
// Gaussian noise added to candidate scores.
func SwingNoise(s persona.SwingTendency) float64 {
	switch s {
	case persona.SwingVeryLow:
		return 0.05
	case persona.SwingLow:
		return 0.10
	case persona.SwingModerate:
		return 0.20
	case persona.SwingModerateHigh:
		return 0.25
	case persona.SwingHigh:
		return 0.35
	case persona.SwingVeryHigh:
		return 0.45
	}
	return 0.20
}
