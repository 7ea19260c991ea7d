// Package catalog loads the immutable reference data for a run: district,
// party and proportional-block tables from JSON, and the candidate roster
// from CSV.
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/internal/errors"
)

// Reference data file names inside the data directory.
const (
	districtsFile  = "districts.json"
	partiesFile    = "parties.json"
	blocksFile     = "blocks.json"
	candidatesFile = "candidates.csv"
)

// Load reads the full catalog from a data directory and cross-validates
// it: every candidate must reference a known district and party, and every
// district id must be well-formed.
func Load(dir string) (*election.Catalog, error) {
	var districts []election.District
	if err := readJSON(filepath.Join(dir, districtsFile), &districts); err != nil {
		return nil, err
	}
	var parties []election.Party
	if err := readJSON(filepath.Join(dir, partiesFile), &parties); err != nil {
		return nil, err
	}
	var blocks []election.ProportionalBlock
	if err := readJSON(filepath.Join(dir, blocksFile), &blocks); err != nil {
		return nil, err
	}
	candidates, err := readCandidates(filepath.Join(dir, candidatesFile))
	if err != nil {
		return nil, err
	}

	cat := &election.Catalog{
		Districts: districts,
		Parties:   make(map[core.PartyID]election.Party, len(parties)),
		Blocks:    blocks,
	}
	for _, p := range parties {
		cat.Parties[p.ID] = p
	}

	index := make(map[core.DistrictID]int, len(districts))
	for i, d := range districts {
		if !core.ValidDistrictID(string(d.ID)) {
			return nil, errors.ConfigInvalid(fmt.Sprintf("malformed district id %q", d.ID))
		}
		if _, dup := index[d.ID]; dup {
			return nil, errors.ConfigInvalid(fmt.Sprintf("duplicate district id %q", d.ID))
		}
		index[d.ID] = i
	}

	for _, c := range candidates {
		i, ok := index[c.DistrictID]
		if !ok {
			return nil, errors.ConfigInvalid(fmt.Sprintf("candidate %s references unknown district %q", c.ID, c.DistrictID))
		}
		if _, ok := cat.Parties[c.PartyID]; !ok {
			return nil, errors.ConfigInvalid(fmt.Sprintf("candidate %s references unknown party %q", c.ID, c.PartyID))
		}
		cat.Districts[i].Candidates = append(cat.Districts[i].Candidates, c)
	}
	return cat, nil
}

func readJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading "+filepath.Base(path))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.ConfigInvalid(filepath.Base(path) + " is not valid JSON: " + err.Error())
	}
	return nil
}

// readCandidates parses the roster CSV. Expected header:
// id,name,district_id,party_id,status,previous_wins,dual_candidacy
func readCandidates(path string) ([]election.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading "+filepath.Base(path))
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errors.ConfigInvalid("candidates.csv is empty")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"id", "name", "district_id", "party_id", "status"} {
		if _, ok := col[required]; !ok {
			return nil, errors.ConfigInvalid("candidates.csv is missing column " + required)
		}
	}

	var out []election.Candidate
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("candidates.csv line %d: %v", line, err))
		}
		c := election.Candidate{
			ID:         core.CandidateID(rec[col["id"]]),
			Name:       rec[col["name"]],
			DistrictID: core.DistrictID(rec[col["district_id"]]),
			PartyID:    core.PartyID(rec[col["party_id"]]),
			Status:     election.CandidateStatus(rec[col["status"]]),
		}
		switch c.Status {
		case election.StatusIncumbent, election.StatusFormer, election.StatusNew:
		default:
			return nil, errors.ConfigInvalid(fmt.Sprintf("candidates.csv line %d: unknown status %q", line, c.Status))
		}
		if i, ok := col["previous_wins"]; ok && rec[i] != "" {
			n, err := strconv.Atoi(rec[i])
			if err != nil || n < 0 {
				return nil, errors.ConfigInvalid(fmt.Sprintf("candidates.csv line %d: bad previous_wins %q", line, rec[i]))
			}
			c.PreviousWins = n
		}
		if i, ok := col["dual_candidacy"]; ok {
			c.DualCandidacy = rec[i] == "true" || rec[i] == "1"
		}
		out = append(out, c)
	}
	return out, nil
}
