// Package result holds the aggregate records derived from vote decisions.
// All types here are pure data, recomputed each run and immutable once
// produced.
package result

import "electsim/domain/core"

// ClassBreakdown is the vote breakdown for one persona class (archetype or
// industry sector) within a district.
type ClassBreakdown struct {
	Count              int                      `json:"count"`
	Voted              int                      `json:"voted"`
	Parties            map[core.PartyID]int     `json:"parties"`
	ProportionalParties map[core.PartyID]int    `json:"proportional_parties"`
}

// DistrictResult is the per-district aggregate.
type DistrictResult struct {
	DistrictID    core.DistrictID `json:"district_id"`
	DistrictName  string          `json:"district_name"`
	TotalPersonas int             `json:"total_personas"`
	TurnoutCount  int             `json:"turnout_count"`
	TurnoutRate   float64         `json:"turnout_rate"`

	Winner        string          `json:"winner"`
	WinnerParty   core.PartyID    `json:"winner_party"`
	WinnerVotes   int             `json:"winner_votes"`
	RunnerUp      string          `json:"runner_up"`
	RunnerUpParty core.PartyID    `json:"runner_up_party"`
	RunnerUpVotes int             `json:"runner_up_votes"`
	Margin        int             `json:"margin"`

	CandidateVotes    map[string]int          `json:"candidate_votes"`
	ProportionalVotes map[core.PartyID]int    `json:"proportional_votes"`

	ClassBreakdowns   map[string]*ClassBreakdown `json:"class_breakdowns,omitempty"`
	AbstentionReasons map[string]int             `json:"abstention_reasons,omitempty"`
}

// PartySeats is one party's allocation within a proportional block.
type PartySeats struct {
	Party     core.PartyID `json:"party"`
	Votes     int          `json:"votes"`
	VoteShare float64      `json:"vote_share"`
	Seats     int          `json:"seats"`
}

// BlockResult is the proportional outcome of one block.
type BlockResult struct {
	BlockID   core.BlockID `json:"block_id"`
	BlockName string       `json:"block_name"`
	Seats     int          `json:"seats"`
	Parties   []PartySeats `json:"parties"`
}

// SeatSplit is a party's seats by origin.
type SeatSplit struct {
	SMD   int `json:"smd"`
	PR    int `json:"pr"`
	Total int `json:"total"`
}

// NationalSummary rolls all districts and blocks up to the national level.
type NationalSummary struct {
	TotalDistricts      int                        `json:"total_districts"`
	FailedDistricts     []string                   `json:"failed_districts,omitempty"`
	TotalPersonas       int                        `json:"total_personas"`
	NationalTurnoutRate float64                    `json:"national_turnout_rate"`
	SMDSeats            map[core.PartyID]int       `json:"smd_seats"`
	ProportionalSeats   map[core.PartyID]int       `json:"proportional_seats"`
	TotalSeats          map[core.PartyID]SeatSplit `json:"total_seats"`
	MajorityThreshold   int                        `json:"majority_threshold"`
}

// CalibrationSignal records the per-party gap between the delegate's raw
// output share and the historical target for one district.
type CalibrationSignal struct {
	DistrictID     core.DistrictID `json:"district_id"`
	Party          core.PartyID    `json:"party_id"`
	TargetShare    float64         `json:"target_share"`
	PredictedShare float64         `json:"predicted_share"`
	Correction     float64         `json:"correction"`
}
