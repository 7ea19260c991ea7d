// Package aggregate turns raw vote decisions into district results, runs
// the D'Hondt allocation over proportional blocks, and rolls everything up
// into the national summary.
package aggregate

import (
	"sort"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/domain/result"
	"electsim/domain/vote"
)

// TallyDistrict aggregates one district's decisions. Personas are the full
// generated population so class breakdowns cover abstainers too.
func TallyDistrict(district election.District, personas []persona.Persona, decisions []vote.Decision) result.DistrictResult {
	res := result.DistrictResult{
		DistrictID:        district.ID,
		DistrictName:      district.Name,
		TotalPersonas:     len(personas),
		CandidateVotes:    make(map[string]int),
		ProportionalVotes: make(map[core.PartyID]int),
		ClassBreakdowns:   make(map[string]*result.ClassBreakdown),
		AbstentionReasons: make(map[string]int),
	}
	for _, cand := range district.Candidates {
		res.CandidateVotes[string(cand.ID)] = 0
	}

	classOf := make(map[core.PersonaID]string, len(personas))
	for _, p := range personas {
		cls := p.Class()
		classOf[p.ID] = cls
		if res.ClassBreakdowns[cls] == nil {
			res.ClassBreakdowns[cls] = &result.ClassBreakdown{
				Parties:             make(map[core.PartyID]int),
				ProportionalParties: make(map[core.PartyID]int),
			}
		}
		res.ClassBreakdowns[cls].Count++
	}

	for _, d := range decisions {
		cls := classOf[d.PersonaID]
		bd := res.ClassBreakdowns[cls]
		if !d.WillVote {
			if d.AbstentionReason != "" {
				res.AbstentionReasons[d.AbstentionReason]++
			}
			continue
		}
		res.TurnoutCount++
		res.CandidateVotes[string(d.CandidateID)]++
		res.ProportionalVotes[d.ProportionalParty]++
		if bd != nil {
			bd.Voted++
			bd.Parties[d.Party]++
			bd.ProportionalParties[d.ProportionalParty]++
		}
	}
	if res.TotalPersonas > 0 {
		res.TurnoutRate = float64(res.TurnoutCount) / float64(res.TotalPersonas)
	}

	fillRanking(&res, district)
	return res
}

// fillRanking determines winner and runner-up. Vote ties break toward the
// lexicographically smaller candidate id so the outcome never depends on
// map iteration or roster order.
func fillRanking(res *result.DistrictResult, district election.District) {
	type entry struct {
		cand  election.Candidate
		votes int
	}
	entries := make([]entry, 0, len(district.Candidates))
	for _, cand := range district.Candidates {
		entries = append(entries, entry{cand: cand, votes: res.CandidateVotes[string(cand.ID)]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].votes != entries[j].votes {
			return entries[i].votes > entries[j].votes
		}
		return entries[i].cand.ID < entries[j].cand.ID
	})
	if len(entries) == 0 {
		return
	}
	res.Winner = entries[0].cand.Name
	res.WinnerParty = entries[0].cand.PartyID
	res.WinnerVotes = entries[0].votes
	if len(entries) > 1 {
		res.RunnerUp = entries[1].cand.Name
		res.RunnerUpParty = entries[1].cand.PartyID
		res.RunnerUpVotes = entries[1].votes
		res.Margin = entries[0].votes - entries[1].votes
	} else {
		res.Margin = entries[0].votes
	}
}

// AllocateDHondt distributes seats proportionally by highest averages.
// Quotient ties break toward the party holding fewer seats so far, then
// toward the smaller party id.
func AllocateDHondt(votes map[core.PartyID]int, seats int) map[core.PartyID]int {
	out := make(map[core.PartyID]int, len(votes))
	parties := make([]core.PartyID, 0, len(votes))
	for p, v := range votes {
		if v > 0 {
			parties = append(parties, p)
		}
		out[p] = 0
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })
	if len(parties) == 0 {
		return out
	}

	for s := 0; s < seats; s++ {
		var best core.PartyID
		bestSet := false
		var bestQ float64
		for _, p := range parties {
			q := float64(votes[p]) / float64(out[p]+1)
			switch {
			case !bestSet || q > bestQ:
				best, bestQ, bestSet = p, q, true
			case q == bestQ:
				if out[p] < out[best] {
					best = p
				}
			}
		}
		out[best]++
	}
	return out
}

// TallyBlock runs D'Hondt over a block's pooled proportional votes.
func TallyBlock(block election.ProportionalBlock, votes map[core.PartyID]int) result.BlockResult {
	res := result.BlockResult{
		BlockID:   block.ID,
		BlockName: block.Name,
		Seats:     block.Seats,
	}
	var total int
	for _, v := range votes {
		total += v
	}
	alloc := AllocateDHondt(votes, block.Seats)

	parties := make([]core.PartyID, 0, len(votes))
	for p := range votes {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool {
		if votes[parties[i]] != votes[parties[j]] {
			return votes[parties[i]] > votes[parties[j]]
		}
		return parties[i] < parties[j]
	})
	for _, p := range parties {
		share := 0.0
		if total > 0 {
			share = float64(votes[p]) / float64(total)
		}
		res.Parties = append(res.Parties, result.PartySeats{
			Party:     p,
			Votes:     votes[p],
			VoteShare: share,
			Seats:     alloc[p],
		})
	}
	return res
}

// Summarize rolls districts and blocks up to the national level.
func Summarize(districts []result.DistrictResult, blocks []result.BlockResult, failed []string, majorityThreshold int) result.NationalSummary {
	sum := result.NationalSummary{
		TotalDistricts:    len(districts),
		FailedDistricts:   failed,
		SMDSeats:          make(map[core.PartyID]int),
		ProportionalSeats: make(map[core.PartyID]int),
		TotalSeats:        make(map[core.PartyID]result.SeatSplit),
		MajorityThreshold: majorityThreshold,
	}

	var voted int
	for _, d := range districts {
		sum.TotalPersonas += d.TotalPersonas
		voted += d.TurnoutCount
		if d.WinnerParty != "" {
			sum.SMDSeats[d.WinnerParty]++
		}
	}
	if sum.TotalPersonas > 0 {
		sum.NationalTurnoutRate = float64(voted) / float64(sum.TotalPersonas)
	}
	for _, b := range blocks {
		for _, ps := range b.Parties {
			if ps.Seats > 0 {
				sum.ProportionalSeats[ps.Party] += ps.Seats
			}
		}
	}
	for p, n := range sum.SMDSeats {
		split := sum.TotalSeats[p]
		split.SMD = n
		split.Total += n
		sum.TotalSeats[p] = split
	}
	for p, n := range sum.ProportionalSeats {
		split := sum.TotalSeats[p]
		split.PR = n
		split.Total += n
		sum.TotalSeats[p] = split
	}
	return sum
}
