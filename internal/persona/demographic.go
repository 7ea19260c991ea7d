package persona

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/internal/errors"
	"electsim/internal/rng"
	"electsim/ports"
)

// DemographicSource generates personas from census-style regional attribute
// distributions instead of archetype tables. Engagement, turnout and swing
// tendency are derived from the sampled attributes.
type DemographicSource struct {
	cfg     *Config
	streams ports.RNG
}

// NewDemographicSource builds the demographic strategy over a loaded config.
func NewDemographicSource(cfg *Config, streams ports.RNG) *DemographicSource {
	return &DemographicSource{cfg: cfg, streams: streams}
}

// Name identifies the strategy in experiment parameters.
func (s *DemographicSource) Name() string { return "demographic" }

// occupationPool maps an industry sector to representative occupations.
var occupationPool = map[string][]string{
	"primary":   {"farmer", "fisher", "forestry worker"},
	"secondary": {"factory worker", "construction worker", "plant technician", "manufacturing engineer"},
	"tertiary":  {"office clerk", "retail staff", "nurse", "teacher", "software engineer", "civil servant", "restaurant staff"},
}

// Generate produces exactly count personas for the district from its
// region's demographic profile.
func (s *DemographicSource) Generate(district election.District, count int, seed int64) ([]persona.Persona, error) {
	if count <= 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("persona count must be positive, got %d", count))
	}
	if seed < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("seed must be non-negative, got %d", seed))
	}
	profile, ok := s.cfg.Profile(district.Region)
	if !ok {
		return nil, errors.GenerationError(string(district.ID),
			errors.ConfigInvalid("no demographic profile for region "+district.Region+" and no default"))
	}
	if len(profile.AgeBands) == 0 {
		return nil, errors.GenerationError(string(district.ID),
			errors.ConfigInvalid("demographic profile for region "+district.Region+" has no age bands"))
	}

	r := s.streams.Stream(string(district.ID), rng.StagePersonas, seed)
	out := make([]persona.Persona, 0, count)
	for i := 0; i < count; i++ {
		age, err := drawAge(r, profile.AgeBands)
		if err != nil {
			return nil, errors.GenerationError(string(district.ID), err)
		}
		sector := orDefault(weightedChoice(r, profile.IndustrySectors), "tertiary")
		engagement := deriveEngagement(r, age)

		p := persona.Persona{
			ID:         newPersonaID(district.ID, i),
			DistrictID: district.ID,

			Age:            age,
			Gender:         orDefault(weightedChoice(r, profile.GenderRatio), drawGender(r, "any")),
			Occupation:     deriveOccupation(r, sector, age),
			IndustrySector: sector,
			HouseholdType:  orDefault(weightedChoice(r, profile.HouseholdTypes), "single"),
			IncomeBracket:  orDefault(weightedChoice(r, profile.IncomeBrackets), "middle"),
			EducationLevel: orDefault(weightedChoice(r, profile.EducationLevels), "high_school"),
			Urbanization:   district.Urbanization,

			PoliticalEngagement: engagement,
			TurnoutProbability:  deriveTurnout(age, engagement),
			SwingTendency:       deriveSwing(age, engagement),
			PartyAffinity:       drawAffinity(r, district),
			Ideology:            deriveIdeology(r, age),
		}
		out = append(out, p)
	}
	return out, nil
}

// drawAge samples an age band then a uniform age within it. Bands are
// "lo-hi" or "lo+" (open-ended, capped at 95).
func drawAge(r *rand.Rand, bands map[string]float64) (int, error) {
	band := weightedChoice(r, bands)
	if band == "" {
		return 0, errors.ConfigInvalid("age band table has no positive weights")
	}
	if strings.HasSuffix(band, "+") {
		lo, err := strconv.Atoi(strings.TrimSuffix(band, "+"))
		if err != nil {
			return 0, errors.ConfigInvalid("malformed age band " + band)
		}
		return lo + r.Intn(95-lo+1), nil
	}
	parts := strings.SplitN(band, "-", 2)
	if len(parts) != 2 {
		return 0, errors.ConfigInvalid("malformed age band " + band)
	}
	lo, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hi < lo {
		return 0, errors.ConfigInvalid("malformed age band " + band)
	}
	return lo + r.Intn(hi-lo+1), nil
}

func deriveOccupation(r *rand.Rand, sector string, age int) string {
	if age >= 65 && r.Float64() < 0.6 {
		return "retired"
	}
	pool := occupationPool[sector]
	if len(pool) == 0 {
		pool = occupationPool["tertiary"]
	}
	return pick(r, pool)
}

// deriveEngagement draws an engagement level with age-shifted odds: older
// cohorts skew high, younger cohorts skew low.
func deriveEngagement(r *rand.Rand, age int) string {
	roll := r.Float64()
	switch {
	case age < 30:
		if roll < 0.45 {
			return "low"
		} else if roll < 0.85 {
			return "medium"
		}
		return "high"
	case age < 60:
		if roll < 0.25 {
			return "low"
		} else if roll < 0.75 {
			return "medium"
		}
		return "high"
	default:
		if roll < 0.10 {
			return "low"
		} else if roll < 0.55 {
			return "medium"
		}
		return "high"
	}
}

// deriveTurnout combines an age-cohort base rate with an engagement shift.
func deriveTurnout(age int, engagement string) float64 {
	var base float64
	switch {
	case age < 30:
		base = 0.40
	case age < 45:
		base = 0.52
	case age < 60:
		base = 0.62
	case age < 75:
		base = 0.72
	default:
		base = 0.60
	}
	switch engagement {
	case "high":
		base += 0.15
	case "low":
		base -= 0.15
	}
	if base < 0.05 {
		base = 0.05
	}
	if base > 0.95 {
		base = 0.95
	}
	return base
}

// deriveSwing assigns decision uncertainty: disengaged young voters swing
// hardest, engaged seniors barely at all.
func deriveSwing(age int, engagement string) persona.SwingTendency {
	switch engagement {
	case "high":
		if age >= 60 {
			return persona.SwingVeryLow
		}
		return persona.SwingLow
	case "low":
		if age < 45 {
			return persona.SwingVeryHigh
		}
		return persona.SwingHigh
	default:
		if age >= 60 {
			return persona.SwingLow
		}
		if age < 30 {
			return persona.SwingModerateHigh
		}
		return persona.SwingModerate
	}
}

func deriveIdeology(r *rand.Rand, age int) string {
	roll := r.Float64()
	if age >= 60 {
		if roll < 0.45 {
			return "conservative"
		} else if roll < 0.85 {
			return "centrist"
		}
		return "liberal"
	}
	if roll < 0.25 {
		return "conservative"
	} else if roll < 0.65 {
		return "centrist"
	} else if roll < 0.90 {
		return "liberal"
	}
	return "apathetic"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var _ ports.PersonaSource = (*DemographicSource)(nil)
