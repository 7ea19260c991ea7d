package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/internal/errors"
	"electsim/internal/rng"
)

func testConfig() *Config {
	cfg := &Config{
		Archetypes: []Archetype{
			{
				ID:                  "urban_young_worker",
				Name:                "Urban young worker",
				AgeRange:            [2]int{22, 34},
				Gender:              "any",
				Occupations:         []string{"office clerk", "retail staff"},
				PoliticalEngagement: "low",
				TurnoutProbability:  0.35,
				SwingTendency:       "high",
				TypicalConcerns:     []string{"wages", "housing"},
				InformationSources:  []string{"social media"},
				Ideology:            map[string]float64{"centrist": 0.5, "liberal": 0.3, "apathetic": 0.2},
			},
			{
				ID:                  "rural_senior",
				Name:                "Rural senior",
				AgeRange:            [2]int{65, 84},
				Gender:              "any",
				Occupations:         []string{"retired", "farmer"},
				PoliticalEngagement: "high",
				TurnoutProbability:  0.80,
				SwingTendency:       "very_low",
				TypicalConcerns:     []string{"pensions", "healthcare"},
				InformationSources:  []string{"newspaper", "tv"},
				Ideology:            map[string]float64{"conservative": 0.7, "centrist": 0.3},
			},
		},
		Alignment: map[string]map[string]float64{
			"urban_young_worker": {"dem_alliance": 0.6, "cons_union": 0.3},
			"rural_senior":       {"cons_union": 0.8},
		},
		Demographics: DemographicConfig{
			Regions: map[string]RegionProfile{
				"default": {
					AgeBands:        map[string]float64{"18-29": 0.18, "30-44": 0.25, "45-59": 0.25, "60-74": 0.22, "75+": 0.10},
					GenderRatio:     map[string]float64{"male": 0.49, "female": 0.51},
					IndustrySectors: map[string]float64{"primary": 0.05, "secondary": 0.25, "tertiary": 0.70},
					IncomeBrackets:  map[string]float64{"low": 0.3, "middle": 0.5, "high": 0.2},
					EducationLevels: map[string]float64{"high_school": 0.45, "university": 0.40, "graduate": 0.15},
					HouseholdTypes:  map[string]float64{"single": 0.35, "couple": 0.25, "family": 0.40},
				},
			},
		},
	}
	cfg.index()
	return cfg
}

func testDistrict() election.District {
	return election.District{
		ID:               core.DistrictID("13_1"),
		Name:             "Tokyo 1st",
		Prefecture:       "Tokyo",
		Region:           "kanto",
		Seats:            1,
		RegisteredVoters: 420000,
		Urbanization:     "urban",
		PartySupport: map[core.PartyID]float64{
			"cons_union":   0.38,
			"dem_alliance": 0.27,
		},
		SwingRate: 0.35,
		ArchetypeWeights: map[string]float64{
			"urban_young_worker": 0.6,
			"rural_senior":       0.4,
		},
	}
}

func TestArchetypeSource_Reproducible(t *testing.T) {
	src := NewArchetypeSource(testConfig(), rng.New())
	d := testDistrict()

	a, err := src.Generate(d, 200, 42)
	require.NoError(t, err)
	b, err := src.Generate(d, 200, 42)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different populations (-first +second):\n%s", diff)
	}
}

func TestArchetypeSource_SeedChangesPopulation(t *testing.T) {
	src := NewArchetypeSource(testConfig(), rng.New())
	d := testDistrict()

	a, err := src.Generate(d, 200, 42)
	require.NoError(t, err)
	b, err := src.Generate(d, 200, 43)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff == "" {
		t.Error("different seeds produced identical populations")
	}
}

func TestArchetypeSource_DistributionApproximatesWeights(t *testing.T) {
	src := NewArchetypeSource(testConfig(), rng.New())
	d := testDistrict()

	personas, err := src.Generate(d, 2000, 7)
	require.NoError(t, err)
	require.Len(t, personas, 2000)

	var young int
	for _, p := range personas {
		if p.ArchetypeID == "urban_young_worker" {
			young++
		}
		assert.GreaterOrEqual(t, p.Age, 18)
		assert.True(t, p.SwingTendency.Valid(), "persona %s has invalid swing tendency", p.ID)
		assert.NotEmpty(t, p.PartyAffinity)
	}
	share := float64(young) / 2000
	assert.InDelta(t, 0.6, share, 0.05, "archetype share should track the composition table")
}

func TestArchetypeSource_RejectsInvalidInputs(t *testing.T) {
	src := NewArchetypeSource(testConfig(), rng.New())
	d := testDistrict()

	_, err := src.Generate(d, 0, 42)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = src.Generate(d, 10, -1)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestArchetypeSource_MalformedCompositionTable(t *testing.T) {
	src := NewArchetypeSource(testConfig(), rng.New())

	d := testDistrict()
	d.ArchetypeWeights = map[string]float64{"ghost_archetype": 1.0}
	_, err := src.Generate(d, 10, 42)
	require.Error(t, err)
	assert.Equal(t, errors.CodeGenerationError, errors.GetCode(err))

	d.ArchetypeWeights = nil
	_, err = src.Generate(d, 10, 42)
	require.Error(t, err)
	assert.Equal(t, errors.CodeGenerationError, errors.GetCode(err))
}

func TestDemographicSource_Reproducible(t *testing.T) {
	src := NewDemographicSource(testConfig(), rng.New())
	d := testDistrict()

	a, err := src.Generate(d, 300, 42)
	require.NoError(t, err)
	b, err := src.Generate(d, 300, 42)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different populations (-first +second):\n%s", diff)
	}
}

func TestDemographicSource_DerivedAttributes(t *testing.T) {
	src := NewDemographicSource(testConfig(), rng.New())

	personas, err := src.Generate(testDistrict(), 500, 9)
	require.NoError(t, err)
	require.Len(t, personas, 500)

	for _, p := range personas {
		assert.Empty(t, p.ArchetypeID, "demographic personas carry no archetype")
		assert.NotEmpty(t, p.IndustrySector)
		assert.GreaterOrEqual(t, p.TurnoutProbability, 0.05)
		assert.LessOrEqual(t, p.TurnoutProbability, 0.95)
		assert.True(t, p.SwingTendency.Valid())
		if p.Age >= 60 && p.PoliticalEngagement == "high" {
			assert.Equal(t, "very_low", string(p.SwingTendency))
		}
	}
}

func TestDemographicSource_MissingProfile(t *testing.T) {
	cfg := testConfig()
	cfg.Demographics.Regions = map[string]RegionProfile{}
	src := NewDemographicSource(cfg, rng.New())

	_, err := src.Generate(testDistrict(), 10, 42)
	require.Error(t, err)
	assert.Equal(t, errors.CodeGenerationError, errors.GetCode(err))
}

func TestLoadConfig_HashAndValidation(t *testing.T) {
	doc := `
archetypes:
  - id: urban_young_worker
    name: Urban young worker
    age_range: [22, 34]
    gender: any
    occupations: [office clerk]
    political_engagement: low
    turnout_probability: 0.35
    swing_tendency: high
    ideology: {centrist: 1.0}
alignment:
  urban_young_worker:
    cons_union: 0.3
`
	dir := t.TempDir()
	path := filepath.Join(dir, "persona_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, hash, err := LoadConfig(path)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Len(t, cfg.Archetypes, 1)
	assert.Equal(t, 0.3, cfg.PolicyAlignment("urban_young_worker", "cons_union"))
	assert.Equal(t, 0.5, cfg.PolicyAlignment("urban_young_worker", "unknown_party"))

	_, hash2, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, hash, hash2, "config hash must be stable")
}

func TestLoadConfig_RejectsBadTendency(t *testing.T) {
	doc := `
archetypes:
  - id: broken
    name: Broken
    age_range: [30, 40]
    turnout_probability: 0.5
    swing_tendency: sideways
`
	dir := t.TempDir()
	path := filepath.Join(dir, "persona_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, _, err := LoadConfig(path)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
