// Package persona defines the synthetic voter agent and its swing-tendency
// vocabulary. Personas are ephemeral: owned by exactly one simulation run,
// never shared across districts or runs.
package persona

import "electsim/domain/core"

// SwingTendency is a persona's categorical propensity toward decision
// uncertainty. It drives both the scoring noise level and tier routing.
type SwingTendency string

const (
	SwingVeryLow      SwingTendency = "very_low"
	SwingLow          SwingTendency = "low"
	SwingModerate     SwingTendency = "moderate"
	SwingModerateHigh SwingTendency = "moderate_high"
	SwingHigh         SwingTendency = "high"
	SwingVeryHigh     SwingTendency = "very_high"
)

// NeedsDelegate reports whether the tendency routes to the generative
// delegate (tier 2). Low-uncertainty personas resolve deterministically.
func (s SwingTendency) NeedsDelegate() bool {
	switch s {
	case SwingModerate, SwingModerateHigh, SwingHigh, SwingVeryHigh:
		return true
	}
	return false
}

// Valid reports whether s is a known tendency class.
func (s SwingTendency) Valid() bool {
	switch s {
	case SwingVeryLow, SwingLow, SwingModerate, SwingModerateHigh, SwingHigh, SwingVeryHigh:
		return true
	}
	return false
}

// Persona is one synthetic voter. Archetype-generated personas carry
// ArchetypeID; demographic-generated personas carry the census-style
// attributes instead (IndustrySector, HouseholdType, ...). Both strategies
// always populate TurnoutProbability and SwingTendency.
type Persona struct {
	ID         core.PersonaID  `json:"persona_id"`
	DistrictID core.DistrictID `json:"district_id"`

	ArchetypeID   string `json:"archetype_id,omitempty"`
	ArchetypeName string `json:"archetype_name,omitempty"`

	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Occupation     string `json:"occupation"`
	IndustrySector string `json:"industry_sector,omitempty"`
	HouseholdType  string `json:"household_type,omitempty"`
	IncomeBracket  string `json:"income_bracket,omitempty"`
	EducationLevel string `json:"education_level,omitempty"`
	Urbanization   string `json:"urbanization,omitempty"`

	PoliticalEngagement string        `json:"political_engagement"`
	TurnoutProbability  float64       `json:"turnout_probability"`
	SwingTendency       SwingTendency `json:"swing_tendency"`
	TopConcerns         []string      `json:"top_concerns,omitempty"`
	InformationSources  []string      `json:"information_sources,omitempty"`
	PartyAffinity       core.PartyID  `json:"party_affinity"`
	Ideology            string        `json:"ideology"`
}

// Class returns the grouping key used for result breakdowns: the archetype
// for archetype personas, the industry sector for demographic ones.
func (p Persona) Class() string {
	if p.ArchetypeID != "" {
		return p.ArchetypeID
	}
	if p.IndustrySector != "" {
		return p.IndustrySector
	}
	return "unknown"
}
