// Package persona implements the two synthetic voter generation strategies:
// archetype-based (district composition tables over a YAML archetype
// library) and demographic (census-style regional profiles). Both produce
// reproducible populations from a seed.
package persona

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"electsim/domain/core"
	"electsim/domain/persona"
	"electsim/domain/vote"
	"electsim/internal/errors"
)

// Archetype is one entry of the voter archetype library.
type Archetype struct {
	ID                  string                `yaml:"id"`
	Name                string                `yaml:"name"`
	AgeRange            [2]int                `yaml:"age_range"`
	Gender              string                `yaml:"gender"` // male, female or any
	Occupations         []string              `yaml:"occupations"`
	PoliticalEngagement string                `yaml:"political_engagement"`
	TurnoutProbability  float64               `yaml:"turnout_probability"`
	SwingTendency       persona.SwingTendency `yaml:"swing_tendency"`
	TypicalConcerns     []string              `yaml:"typical_concerns"`
	InformationSources  []string              `yaml:"information_sources"`
	Ideology            map[string]float64    `yaml:"ideology"`
}

// RegionProfile holds the attribute distributions used by the demographic
// strategy for one region. All maps are weight tables; weights need not
// sum to one.
type RegionProfile struct {
	AgeBands        map[string]float64 `yaml:"age_bands"` // "18-29", "30-44", ...
	GenderRatio     map[string]float64 `yaml:"gender_ratio"`
	IndustrySectors map[string]float64 `yaml:"industry_sectors"`
	IncomeBrackets  map[string]float64 `yaml:"income_brackets"`
	EducationLevels map[string]float64 `yaml:"education_levels"`
	HouseholdTypes  map[string]float64 `yaml:"household_types"`
}

// DemographicConfig maps region names to their attribute profiles. The
// "default" region, when present, backs districts without a dedicated
// profile.
type DemographicConfig struct {
	Regions map[string]RegionProfile `yaml:"regions"`
}

// Config is the persona configuration document. Alignment maps archetype
// id to per-party policy alignment scores consumed by the vote calculator.
type Config struct {
	Archetypes    []Archetype                   `yaml:"archetypes"`
	Alignment     map[string]map[string]float64 `yaml:"alignment"`
	FactorWeights *vote.Weights                 `yaml:"factor_weights,omitempty"`
	Demographics  DemographicConfig             `yaml:"demographics"`

	byID map[string]Archetype
}

// LoadConfig reads and validates a persona configuration file, returning
// the content hash used in run fingerprints.
func LoadConfig(path string) (*Config, core.ConfigHash, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading persona config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, "", errors.ConfigInvalid("persona config is not valid YAML: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	cfg.index()
	return &cfg, core.ConfigHash(core.NewHash(raw)), nil
}

// Validate checks the structural invariants of the library.
func (c *Config) Validate() error {
	if len(c.Archetypes) == 0 {
		return errors.ConfigInvalid("persona config defines no archetypes")
	}
	seen := make(map[string]bool, len(c.Archetypes))
	for _, a := range c.Archetypes {
		if a.ID == "" {
			return errors.ConfigInvalid("archetype with empty id")
		}
		if seen[a.ID] {
			return errors.ConfigInvalid("duplicate archetype id " + a.ID)
		}
		seen[a.ID] = true
		if a.AgeRange[0] < 18 || a.AgeRange[1] < a.AgeRange[0] {
			return errors.ConfigInvalid("archetype " + a.ID + " has an invalid age range")
		}
		if a.TurnoutProbability < 0 || a.TurnoutProbability > 1 {
			return errors.ConfigInvalid("archetype " + a.ID + " turnout probability outside [0,1]")
		}
		if !a.SwingTendency.Valid() {
			return errors.ConfigInvalid("archetype " + a.ID + " has unknown swing tendency " + string(a.SwingTendency))
		}
	}
	if c.FactorWeights != nil {
		if err := c.FactorWeights.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) index() {
	c.byID = make(map[string]Archetype, len(c.Archetypes))
	for _, a := range c.Archetypes {
		c.byID[a.ID] = a
	}
}

// Archetype looks up an archetype by id.
func (c *Config) Archetype(id string) (Archetype, bool) {
	if c.byID == nil {
		c.index()
	}
	a, ok := c.byID[id]
	return a, ok
}

// PolicyAlignment returns the alignment score of an archetype toward a
// party, defaulting to a neutral 0.5 when unconfigured.
func (c *Config) PolicyAlignment(archetypeID string, party core.PartyID) float64 {
	if row, ok := c.Alignment[archetypeID]; ok {
		if v, ok := row[string(party)]; ok {
			return v
		}
	}
	return 0.5
}

// Profile resolves the demographic profile for a region, falling back to
// the "default" profile.
func (c *Config) Profile(region string) (RegionProfile, bool) {
	if p, ok := c.Demographics.Regions[region]; ok {
		return p, true
	}
	p, ok := c.Demographics.Regions["default"]
	return p, ok
}

// sortedKeys returns the table's keys in lexicographic order. Weighted
// draws must walk keys in a fixed order or map iteration would break
// reproducibility.
func sortedKeys(table map[string]float64) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
