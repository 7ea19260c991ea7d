package persona

import (
	"fmt"
	"math/rand"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/internal/errors"
	"electsim/internal/rng"
	"electsim/ports"
)

// ArchetypeSource generates personas by drawing archetypes from each
// district's composition table and instantiating concrete attributes from
// the archetype library.
type ArchetypeSource struct {
	cfg     *Config
	streams ports.RNG
}

// NewArchetypeSource builds the archetype strategy over a loaded library.
func NewArchetypeSource(cfg *Config, streams ports.RNG) *ArchetypeSource {
	return &ArchetypeSource{cfg: cfg, streams: streams}
}

// Name identifies the strategy in experiment parameters.
func (s *ArchetypeSource) Name() string { return "archetype" }

// Generate produces exactly count personas for the district. The same
// (district, count, seed) triple always yields an identical population.
func (s *ArchetypeSource) Generate(district election.District, count int, seed int64) ([]persona.Persona, error) {
	if count <= 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("persona count must be positive, got %d", count))
	}
	if seed < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("seed must be non-negative, got %d", seed))
	}
	if len(district.ArchetypeWeights) == 0 {
		return nil, errors.GenerationError(string(district.ID),
			errors.ConfigInvalid("district has no archetype composition table"))
	}
	var total float64
	for id, w := range district.ArchetypeWeights {
		if _, ok := s.cfg.Archetype(id); !ok {
			return nil, errors.GenerationError(string(district.ID),
				errors.ConfigInvalid("composition table references unknown archetype "+id))
		}
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return nil, errors.GenerationError(string(district.ID),
			errors.ConfigInvalid("composition table has no positive weights"))
	}

	r := s.streams.Stream(string(district.ID), rng.StagePersonas, seed)
	out := make([]persona.Persona, 0, count)
	for i := 0; i < count; i++ {
		id := weightedChoice(r, district.ArchetypeWeights)
		arch, _ := s.cfg.Archetype(id)

		p := persona.Persona{
			ID:            newPersonaID(district.ID, i),
			DistrictID:    district.ID,
			ArchetypeID:   arch.ID,
			ArchetypeName: arch.Name,

			Age:        arch.AgeRange[0] + r.Intn(arch.AgeRange[1]-arch.AgeRange[0]+1),
			Gender:     drawGender(r, arch.Gender),
			Occupation: pick(r, arch.Occupations),

			Urbanization:        district.Urbanization,
			PoliticalEngagement: arch.PoliticalEngagement,
			TurnoutProbability:  arch.TurnoutProbability,
			SwingTendency:       arch.SwingTendency,
			TopConcerns:         append([]string(nil), arch.TypicalConcerns...),
			InformationSources:  append([]string(nil), arch.InformationSources...),
			PartyAffinity:       drawAffinity(r, district),
			Ideology:            drawIdeology(r, arch.Ideology),
		}
		out = append(out, p)
	}
	return out, nil
}

func drawGender(r *rand.Rand, gender string) string {
	switch gender {
	case "male", "female":
		return gender
	}
	if r.Float64() < 0.5 {
		return "male"
	}
	return "female"
}

func drawIdeology(r *rand.Rand, table map[string]float64) string {
	if v := weightedChoice(r, table); v != "" {
		return v
	}
	return "centrist"
}

// newPersonaID derives a stable id from the district and ordinal so two
// runs with the same seed name the same voters.
func newPersonaID(district core.DistrictID, ordinal int) core.PersonaID {
	return core.PersonaID(fmt.Sprintf("%s_p%04d", district, ordinal))
}

var _ ports.PersonaSource = (*ArchetypeSource)(nil)
