package persona

import (
	"math/rand"

	"electsim/domain/core"
	"electsim/domain/election"
)

// weightedChoice draws one key from a weight table. Keys are walked in
// lexicographic order so the draw is a pure function of the stream state.
// Returns "" when the table is empty or all weights are non-positive.
func weightedChoice(r *rand.Rand, table map[string]float64) string {
	keys := sortedKeys(table)
	var total float64
	for _, k := range keys {
		if table[k] > 0 {
			total += table[k]
		}
	}
	if total <= 0 {
		return ""
	}
	target := r.Float64() * total
	var acc float64
	for _, k := range keys {
		if table[k] <= 0 {
			continue
		}
		acc += table[k]
		if target < acc {
			return k
		}
	}
	return keys[len(keys)-1]
}

// pick draws one element from a slice, or "" when empty.
func pick(r *rand.Rand, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[r.Intn(len(options))]
}

// drawAffinity samples a party affinity from the district's historical
// support shares, with the swing rate as the weight of the unaffiliated
// option.
func drawAffinity(r *rand.Rand, d election.District) core.PartyID {
	table := make(map[string]float64, len(d.PartySupport)+1)
	for p, share := range d.PartySupport {
		table[string(p)] = share
	}
	table[string(election.PartyNone)] = d.SwingRate
	choice := weightedChoice(r, table)
	if choice == "" {
		return election.PartyNone
	}
	return core.PartyID(choice)
}
