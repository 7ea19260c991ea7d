// Package election holds the immutable reference catalog the simulation
// consumes: districts, candidates, parties and proportional blocks. Catalog
// data is created at load time and never mutated by a run.
package election

import "electsim/domain/core"

// CandidateStatus describes a candidate's standing in the race.
type CandidateStatus string

const (
	StatusIncumbent CandidateStatus = "incumbent"
	StatusFormer    CandidateStatus = "former"
	StatusNew       CandidateStatus = "new"
)

// Candidate is one entry on a district's roster.
type Candidate struct {
	ID            core.CandidateID `json:"id"`
	Name          string           `json:"name"`
	DistrictID    core.DistrictID  `json:"district_id"`
	PartyID       core.PartyID     `json:"party_id"`
	Status        CandidateStatus  `json:"status"`
	PreviousWins  int              `json:"previous_wins"`
	DualCandidacy bool             `json:"dual_candidacy"`
}

// PartyNone marks an unaffiliated persona. It never appears in the catalog.
const PartyNone core.PartyID = "none"

// Party is a registered party's display record.
type Party struct {
	ID     core.PartyID `json:"id"`
	Name   string       `json:"name"`
	Color  string       `json:"color"`
	Leader string       `json:"leader"`
}

// District is a single-member constituency with its simulation context.
// PartySupport carries the district's historical party-support shares; it
// doubles as the calibration target distribution. ArchetypeWeights is the
// per-district persona composition table for the archetype strategy.
type District struct {
	ID               core.DistrictID        `json:"id"`
	Name             string                 `json:"name"`
	Prefecture       string                 `json:"prefecture"`
	PrefectureCode   string                 `json:"prefecture_code"`
	Region           string                 `json:"region"`
	Seats            int                    `json:"seats"`
	RegisteredVoters int                    `json:"registered_voters"`
	Urbanization     string                 `json:"urbanization"`
	PartySupport     map[core.PartyID]float64 `json:"party_support"`
	SwingRate        float64                `json:"swing_rate"`
	ArchetypeWeights map[string]float64     `json:"archetype_weights"`
	Candidates       []Candidate            `json:"candidates"`
}

// ProportionalBlock is a multi-member block allocating Seats across the
// party vote totals of its member prefectures.
type ProportionalBlock struct {
	ID          core.BlockID `json:"id"`
	Name        string       `json:"name"`
	Seats       int          `json:"seats"`
	Prefectures []string     `json:"prefectures"`
}

// Catalog bundles all reference data for one run. Loaded once, read-only.
type Catalog struct {
	Districts []District
	Parties   map[core.PartyID]Party
	Blocks    []ProportionalBlock
}

// District returns the district with the given id, if present.
func (c *Catalog) District(id core.DistrictID) (District, bool) {
	for _, d := range c.Districts {
		if d.ID == id {
			return d, true
		}
	}
	return District{}, false
}

// BlockFor resolves the proportional block containing the prefecture.
func (c *Catalog) BlockFor(prefecture string) (ProportionalBlock, bool) {
	for _, b := range c.Blocks {
		for _, p := range b.Prefectures {
			if p == prefecture {
				return b, true
			}
		}
	}
	return ProportionalBlock{}, false
}
