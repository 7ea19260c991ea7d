// Package compare computes accuracy metrics between two simulation runs or
// between a run and recorded actual results. Metrics are nil, not zero,
// when the paired data is insufficient to compute them.
package compare

import (
	"fmt"
	"math"
	"sort"
	"strings"

	montana "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"electsim/domain/core"
	"electsim/domain/result"
)

// minBattleground is the smallest number of shared districts for which a
// lowest-quartile margin subset is meaningful.
const minBattleground = 4

// pair is one district matched across both sides.
type pair struct {
	a, b result.DistrictResult
}

// Side is one comparand: a run's district results plus its national
// summary. Actual recorded results use the same shape.
type Side struct {
	Label     string
	Districts []result.DistrictResult
	Summary   result.NationalSummary
}

// Report is the full metric set. Pointer fields distinguish "not
// computable" from a zero value.
type Report struct {
	RunA string `json:"run_a"`
	RunB string `json:"run_b"`

	CommonDistricts   int `json:"common_districts"`
	ExcludedDistricts int `json:"excluded_districts"`

	WinnerMatchRate      *float64 `json:"winner_match_rate"`
	SeatMAE              *float64 `json:"seat_mae"`
	TurnoutCorrelation   *float64 `json:"turnout_correlation"`
	BattlegroundAccuracy *float64 `json:"battleground_accuracy"`
	BattlegroundCount    int      `json:"battleground_count"`
	MajorityCallMatch    *bool    `json:"majority_call_match"`
	TurnoutDifference    *float64 `json:"turnout_difference"`

	Districts []DistrictDelta `json:"districts,omitempty"`
}

// DistrictDelta is one paired district's comparison row.
type DistrictDelta struct {
	DistrictID   core.DistrictID `json:"district_id"`
	WinnerA      core.PartyID    `json:"winner_a"`
	WinnerB      core.PartyID    `json:"winner_b"`
	WinnerMatch  bool            `json:"winner_match"`
	TurnoutDelta float64         `json:"turnout_delta"`
	MarginRateA  float64         `json:"margin_rate_a"`
}

// Compare pairs the two sides on district id and computes every metric the
// overlap supports. Districts present on only one side are excluded and
// counted.
func Compare(a, b Side) Report {
	rep := Report{RunA: a.Label, RunB: b.Label}

	byID := make(map[core.DistrictID]result.DistrictResult, len(b.Districts))
	for _, d := range b.Districts {
		byID[d.DistrictID] = d
	}

	var pairs []pair
	for _, d := range a.Districts {
		if other, ok := byID[d.DistrictID]; ok {
			pairs = append(pairs, pair{a: d, b: other})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].a.DistrictID < pairs[j].a.DistrictID })

	rep.CommonDistricts = len(pairs)
	rep.ExcludedDistricts = (len(a.Districts) - len(pairs)) + (len(b.Districts) - len(pairs))

	for _, p := range pairs {
		rep.Districts = append(rep.Districts, DistrictDelta{
			DistrictID:   p.a.DistrictID,
			WinnerA:      p.a.WinnerParty,
			WinnerB:      p.b.WinnerParty,
			WinnerMatch:  p.a.WinnerParty == p.b.WinnerParty,
			TurnoutDelta: p.a.TurnoutRate - p.b.TurnoutRate,
			MarginRateA:  marginRate(p.a),
		})
	}

	if len(pairs) > 0 {
		var matches int
		for _, p := range pairs {
			if p.a.WinnerParty == p.b.WinnerParty {
				matches++
			}
		}
		rate := float64(matches) / float64(len(pairs))
		rep.WinnerMatchRate = &rate
	}

	if len(pairs) >= 2 {
		x := make([]float64, len(pairs))
		y := make([]float64, len(pairs))
		for i, p := range pairs {
			x[i] = p.a.TurnoutRate
			y[i] = p.b.TurnoutRate
		}
		if r := stat.Correlation(x, y, nil); !math.IsNaN(r) {
			rep.TurnoutCorrelation = &r
		}
	}

	if len(pairs) >= minBattleground {
		margins := make(montana.Float64Data, len(pairs))
		for i, p := range pairs {
			margins[i] = marginRate(p.a)
		}
		if q, err := montana.Percentile(margins, 25); err == nil {
			var n, matches int
			for _, p := range pairs {
				if marginRate(p.a) <= q {
					n++
					if p.a.WinnerParty == p.b.WinnerParty {
						matches++
					}
				}
			}
			if n > 0 {
				acc := float64(matches) / float64(n)
				rep.BattlegroundAccuracy = &acc
				rep.BattlegroundCount = n
			}
		}
	}

	if aSeats, bSeats, ok := pairSeatTotals(a, b, pairs); ok {
		rep.SeatMAE = seatMAE(aSeats, bSeats)
	}

	if a.Summary.TotalPersonas > 0 && b.Summary.TotalPersonas > 0 {
		diff := a.Summary.NationalTurnoutRate - b.Summary.NationalTurnoutRate
		rep.TurnoutDifference = &diff
	}

	// A majority call needs real national seat totals and a threshold on
	// both sides; recorded actual results carry neither.
	if len(a.Summary.TotalSeats) > 0 && len(b.Summary.TotalSeats) > 0 &&
		a.Summary.MajorityThreshold > 0 && b.Summary.MajorityThreshold > 0 {
		match := majorityHolder(a.Summary) == majorityHolder(b.Summary)
		rep.MajorityCallMatch = &match
	}
	return rep
}

// pairSeatTotals resolves per-party seat totals for both sides. When
// either side lacks a summary seat table (recorded actual results ship
// district rows only), both sides fall back to counting constituency wins
// over the shared districts, so the totals stay commensurate.
func pairSeatTotals(a, b Side, pairs []pair) (map[core.PartyID]int, map[core.PartyID]int, bool) {
	if len(a.Summary.TotalSeats) > 0 && len(b.Summary.TotalSeats) > 0 {
		at := make(map[core.PartyID]int, len(a.Summary.TotalSeats))
		for p, s := range a.Summary.TotalSeats {
			at[p] = s.Total
		}
		bt := make(map[core.PartyID]int, len(b.Summary.TotalSeats))
		for p, s := range b.Summary.TotalSeats {
			bt[p] = s.Total
		}
		return at, bt, true
	}
	if len(pairs) == 0 {
		return nil, nil, false
	}
	at := make(map[core.PartyID]int)
	bt := make(map[core.PartyID]int)
	for _, p := range pairs {
		at[p.a.WinnerParty]++
		bt[p.b.WinnerParty]++
	}
	return at, bt, true
}

// marginRate normalizes a district's winning margin by its turnout so
// districts of different population sizes are comparable.
func marginRate(d result.DistrictResult) float64 {
	if d.TurnoutCount == 0 {
		return 0
	}
	return float64(d.Margin) / float64(d.TurnoutCount)
}

// seatMAE is the mean absolute per-party difference in seat totals, over
// the union of parties holding seats on either side.
func seatMAE(a, b map[core.PartyID]int) *float64 {
	parties := make(map[core.PartyID]bool)
	for p := range a {
		parties[p] = true
	}
	for p := range b {
		parties[p] = true
	}
	if len(parties) == 0 {
		return nil
	}
	diffs := make(montana.Float64Data, 0, len(parties))
	for p := range parties {
		diffs = append(diffs, math.Abs(float64(a[p]-b[p])))
	}
	mae, err := montana.Mean(diffs)
	if err != nil {
		return nil
	}
	return &mae
}

// majorityHolder returns the party whose total seats cross the majority
// threshold, or "" when none does.
func majorityHolder(s result.NationalSummary) core.PartyID {
	threshold := s.MajorityThreshold
	if threshold <= 0 {
		return ""
	}
	var best core.PartyID
	bestSeats := 0
	parties := make([]core.PartyID, 0, len(s.TotalSeats))
	for p := range s.TotalSeats {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })
	for _, p := range parties {
		if n := s.TotalSeats[p].Total; n >= threshold && n > bestSeats {
			best, bestSeats = p, n
		}
	}
	return best
}

// Format renders a report as an aligned plain-text block for CLI output.
func Format(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Comparison: %s vs %s\n", rep.RunA, rep.RunB)
	fmt.Fprintf(&b, "  common districts:    %d (excluded %d)\n", rep.CommonDistricts, rep.ExcludedDistricts)
	fmt.Fprintf(&b, "  winner match rate:   %s\n", fmtRate(rep.WinnerMatchRate))
	fmt.Fprintf(&b, "  seat MAE:            %s\n", fmtFloat(rep.SeatMAE))
	fmt.Fprintf(&b, "  turnout correlation: %s\n", fmtFloat(rep.TurnoutCorrelation))
	if rep.BattlegroundAccuracy != nil {
		fmt.Fprintf(&b, "  battleground:        %s over %d districts\n", fmtRate(rep.BattlegroundAccuracy), rep.BattlegroundCount)
	} else {
		fmt.Fprintf(&b, "  battleground:        n/a\n")
	}
	if rep.MajorityCallMatch != nil {
		fmt.Fprintf(&b, "  majority call match: %t\n", *rep.MajorityCallMatch)
	} else {
		fmt.Fprintf(&b, "  majority call match: n/a\n")
	}
	fmt.Fprintf(&b, "  turnout difference:  %s\n", fmtFloat(rep.TurnoutDifference))
	return b.String()
}

func fmtRate(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}
