// Package vote implements the deterministic six-factor scoring model that
// resolves every persona's ballot (tier 1) and doubles as the fallback when
// the generative delegate fails.
package vote

import (
	"math/rand"
	"sort"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/domain/vote"
	"electsim/internal/rng"
	"electsim/ports"
)

// AlignmentLookup resolves a persona class's policy alignment toward a
// party on a [0,1] scale. The persona config's alignment table implements
// this; 0.5 is the neutral default.
type AlignmentLookup interface {
	PolicyAlignment(class string, party core.PartyID) float64
}

// Options tune the calculator per experiment.
type Options struct {
	Weights          vote.Weights
	TurnoutBoost     float64 // additive shift on turnout probability
	SwingNoiseOffset float64 // additive shift on the noise stddev
}

// Calculator scores candidates for personas. Stateless across districts;
// all randomness comes from the per-district votes stream.
type Calculator struct {
	alignment AlignmentLookup
	streams   ports.RNG
	opts      Options
}

// NewCalculator builds a calculator. Zero weights fall back to the
// standard set.
func NewCalculator(alignment AlignmentLookup, streams ports.RNG, opts Options) *Calculator {
	if opts.Weights.Sum() == 0 {
		opts.Weights = vote.DefaultWeights()
	}
	return &Calculator{alignment: alignment, streams: streams, opts: opts}
}

// DecideDistrict resolves tier-1 decisions for a whole district population
// in input order. Reproducible for a fixed (district, personas, seed).
func (c *Calculator) DecideDistrict(district election.District, personas []persona.Persona, seed int64) ([]vote.Decision, error) {
	if len(district.Candidates) == 0 {
		return nil, core.ErrEmptyRoster
	}
	r := c.streams.Stream(string(district.ID), rng.StageVotes, seed)
	out := make([]vote.Decision, 0, len(personas))
	for _, p := range personas {
		out = append(out, c.decide(r, district, p))
	}
	return out, nil
}

func (c *Calculator) decide(r *rand.Rand, district election.District, p persona.Persona) vote.Decision {
	d := vote.Decision{
		PersonaID:  p.ID,
		DistrictID: district.ID,
		Source:     vote.SourceRule,
		SwingLevel: p.SwingTendency,
	}

	turnout := clamp(p.TurnoutProbability+c.opts.TurnoutBoost, 0.05, 0.95)
	if r.Float64() >= turnout {
		d.WillVote = false
		d.AbstentionReason = abstentionReason(r, p)
		d.Confidence = 1 - turnout
		return d
	}
	d.WillVote = true
	d.NeedsDelegate = p.SwingTendency.NeedsDelegate()

	noise := clampLow(vote.SwingNoise(p.SwingTendency)+c.opts.SwingNoiseOffset, 0)
	breakdown := make(map[string]vote.FactorScores, len(district.Candidates))
	totals := make(map[core.CandidateID]float64, len(district.Candidates))
	for _, cand := range district.Candidates {
		fs := c.score(district, p, cand)
		fs.Total += r.NormFloat64() * noise
		breakdown[string(cand.ID)] = fs
		totals[cand.ID] = fs.Total
	}

	first, second := rank(district.Candidates, totals)
	winner := candidateByID(district.Candidates, first)
	d.CandidateID = winner.ID
	d.CandidateName = winner.Name
	d.Party = winner.PartyID
	d.Confidence = clamp((totals[first]-totals[second])*2, 0.1, 1)
	if len(district.Candidates) == 1 {
		d.Confidence = 1
	}
	d.ScoreBreakdown = breakdown
	d.ProportionalParty = c.proportionalParty(r, district, d.Party, noise)
	return d
}

// score computes the weighted six-factor total for one candidate, without
// noise.
func (c *Calculator) score(district election.District, p persona.Persona, cand election.Candidate) vote.FactorScores {
	var fs vote.FactorScores

	switch {
	case p.PartyAffinity == cand.PartyID:
		fs.PartyLoyalty = 1.0
	case p.PartyAffinity == election.PartyNone:
		fs.PartyLoyalty = 0.3
	default:
		fs.PartyLoyalty = 0.1
	}

	fs.PolicyAlignment = c.alignment.PolicyAlignment(p.Class(), cand.PartyID)

	fs.CandidateAppeal = 0.5
	switch cand.Status {
	case election.StatusIncumbent:
		fs.CandidateAppeal += 0.3
	case election.StatusFormer:
		fs.CandidateAppeal += 0.15
	}
	fs.CandidateAppeal += clampHigh(float64(cand.PreviousWins)*0.05, 0.2)

	// District support share proxies media presence.
	fs.MediaInfluence = district.PartySupport[cand.PartyID]

	fs.LocalConnection = 0.5
	if cand.Status == election.StatusIncumbent {
		fs.LocalConnection += 0.3
	}

	fs.StrategicVoting = 0.5
	if cand.Status == election.StatusIncumbent {
		fs.StrategicVoting += 0.2
	}
	if cand.DualCandidacy {
		fs.StrategicVoting -= 0.1
	}

	w := c.opts.Weights
	fs.Total = w.PartyLoyalty*fs.PartyLoyalty +
		w.PolicyAlignment*fs.PolicyAlignment +
		w.CandidateAppeal*fs.CandidateAppeal +
		w.MediaInfluence*fs.MediaInfluence +
		w.LocalConnection*fs.LocalConnection +
		w.StrategicVoting*fs.StrategicVoting
	return fs
}

// proportionalParty picks the party-list vote. Most voters vote straight
// ticket; swing-prone voters split with probability proportional to their
// noise level.
func (c *Calculator) proportionalParty(r *rand.Rand, district election.District, smd core.PartyID, noise float64) core.PartyID {
	if r.Float64() < noise*0.5 && len(district.PartySupport) > 0 {
		table := make(map[string]float64, len(district.PartySupport))
		for p, share := range district.PartySupport {
			table[string(p)] = share
		}
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		target := r.Float64()
		var total, acc float64
		for _, k := range keys {
			total += table[k]
		}
		if total > 0 {
			target *= total
			for _, k := range keys {
				acc += table[k]
				if target < acc {
					return core.PartyID(k)
				}
			}
		}
	}
	return smd
}

// abstentionReason explains a no-show in terms of the persona's profile.
func abstentionReason(r *rand.Rand, p persona.Persona) string {
	if p.PoliticalEngagement == "low" {
		return "low political interest"
	}
	reasons := []string{"scheduling conflict", "travel or work away from home", "illness"}
	return reasons[r.Intn(len(reasons))]
}

// rank returns the top two candidate ids by total score. Exact ties break
// toward the lexicographically smaller id so results never depend on
// roster order.
func rank(roster []election.Candidate, totals map[core.CandidateID]float64) (core.CandidateID, core.CandidateID) {
	ids := make([]core.CandidateID, 0, len(roster))
	for _, cand := range roster {
		ids = append(ids, cand.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		if totals[ids[i]] != totals[ids[j]] {
			return totals[ids[i]] > totals[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) == 1 {
		return ids[0], ids[0]
	}
	return ids[0], ids[1]
}

func candidateByID(roster []election.Candidate, id core.CandidateID) election.Candidate {
	for _, cand := range roster {
		if cand.ID == id {
			return cand
		}
	}
	return election.Candidate{}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampLow(v, lo float64) float64 {
	if v < lo {
		return lo
	}
	return v
}

func clampHigh(v, hi float64) float64 {
	if v > hi {
		return hi
	}
	return v
}
