// Package calibrate nudges a district's decision set toward its historical
// party-support distribution. Only high-uncertainty voters are eligible to
// flip, so the deterministic core of the electorate stays untouched.
package calibrate

import (
	"math/rand"
	"sort"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/result"
	"electsim/domain/vote"
	"electsim/internal/rng"
	"electsim/ports"
)

// tolerance is the share deviation below which a party is left alone.
const tolerance = 0.01

// Calibrator applies post-hoc distribution correction.
type Calibrator struct {
	streams  ports.RNG
	strength float64 // 0 disables calibration, 1 corrects at full excess
}

// New builds a calibrator. Strength outside [0,1] is clamped.
func New(streams ports.RNG, strength float64) *Calibrator {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}
	return &Calibrator{streams: streams, strength: strength}
}

// Apply flips a strength-scaled share of over-predicted swing voters toward
// under-predicted parties. It returns the adjusted decisions (input order
// preserved) and one signal per party that was outside tolerance.
// Deterministic for fixed (district, decisions, seed).
func (c *Calibrator) Apply(district election.District, decisions []vote.Decision, seed int64) ([]vote.Decision, []result.CalibrationSignal) {
	if c.strength == 0 || len(decisions) == 0 {
		return decisions, nil
	}

	target := normalizedTargets(district)
	if len(target) == 0 {
		return decisions, nil
	}

	// Predicted shares over actual voters.
	var voters int
	counts := make(map[core.PartyID]int)
	for _, d := range decisions {
		if d.WillVote {
			voters++
			counts[d.Party]++
		}
	}
	if voters == 0 {
		return decisions, nil
	}

	parties := make([]core.PartyID, 0, len(target))
	for p := range target {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })

	var signals []result.CalibrationSignal
	excess := make(map[core.PartyID]float64)
	deficit := make(map[core.PartyID]float64)
	for _, p := range parties {
		predicted := float64(counts[p]) / float64(voters)
		diff := predicted - target[p]
		if diff > tolerance {
			excess[p] = diff
		} else if -diff > tolerance {
			deficit[p] = -diff
		}
		if diff > tolerance || -diff > tolerance {
			signals = append(signals, result.CalibrationSignal{
				DistrictID:     district.ID,
				Party:          p,
				TargetShare:    target[p],
				PredictedShare: predicted,
				Correction:     -diff * c.strength,
			})
		}
	}
	if len(excess) == 0 || len(deficit) == 0 {
		return decisions, signals
	}

	candidateFor := make(map[core.PartyID]election.Candidate)
	for _, cand := range district.Candidates {
		if _, ok := candidateFor[cand.PartyID]; !ok {
			candidateFor[cand.PartyID] = cand
		}
	}

	r := c.streams.Stream(string(district.ID), rng.StageCalibration, seed)
	out := make([]vote.Decision, len(decisions))
	copy(out, decisions)
	for i, d := range out {
		if !d.WillVote || !d.NeedsDelegate {
			continue
		}
		over, ok := excess[d.Party]
		if !ok {
			continue
		}
		if r.Float64() >= over*c.strength {
			continue
		}
		dest := drawDeficitParty(r, deficit, parties)
		cand, ok := candidateFor[dest]
		if !ok {
			continue
		}
		d.CandidateID = cand.ID
		d.CandidateName = cand.Name
		d.Party = cand.PartyID
		d.ProportionalParty = cand.PartyID
		d.Confidence *= 0.8
		d.Source = vote.SourceCalibrated
		out[i] = d
	}
	return out, signals
}

// normalizedTargets renormalizes the district's support shares over the
// parties that actually field a candidate.
func normalizedTargets(district election.District) map[core.PartyID]float64 {
	fielded := make(map[core.PartyID]bool, len(district.Candidates))
	for _, cand := range district.Candidates {
		fielded[cand.PartyID] = true
	}
	var total float64
	for p, share := range district.PartySupport {
		if fielded[p] && share > 0 {
			total += share
		}
	}
	if total <= 0 {
		return nil
	}
	out := make(map[core.PartyID]float64)
	for p, share := range district.PartySupport {
		if fielded[p] && share > 0 {
			out[p] = share / total
		}
	}
	return out
}

// drawDeficitParty samples a destination party weighted by how far each
// one is under target. Parties are walked in sorted order for determinism.
func drawDeficitParty(r *rand.Rand, deficit map[core.PartyID]float64, ordered []core.PartyID) core.PartyID {
	var total float64
	for _, p := range ordered {
		total += deficit[p]
	}
	target := r.Float64() * total
	var acc float64
	var last core.PartyID
	for _, p := range ordered {
		w := deficit[p]
		if w <= 0 {
			continue
		}
		last = p
		acc += w
		if target < acc {
			return p
		}
	}
	return last
}
