// Package validate runs the fixed consistency battery over a completed
// run's results. Checks never abort a run; the report is persisted next to
// the results for operator review.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"electsim/domain/core"
	"electsim/domain/result"
	"electsim/internal/errors"
)

// Options tune the battery. Zero values fall back to defaults.
type Options struct {
	ExpectedPersonas int
	// TurnoutBand is the plausible turnout-rate interval. Outside it the
	// district draws a warning, not an error.
	TurnoutLow  float64
	TurnoutHigh float64
}

func (o Options) withDefaults() Options {
	if o.TurnoutLow == 0 && o.TurnoutHigh == 0 {
		o.TurnoutLow, o.TurnoutHigh = 0.05, 0.95
	}
	return o
}

// Run executes all checks over the district and block results. Hard checks
// are vote conservation, winner validity and non-negativity; everything
// else is informational. Passed is true iff no hard check failed.
func Run(districts []result.DistrictResult, blocks []result.BlockResult, opts Options) result.ValidationReport {
	opts = opts.withDefaults()
	report := result.ValidationReport{Passed: true}

	add := func(c result.ValidationCheck) {
		report.Checks = append(report.Checks, c)
		if c.Passed {
			return
		}
		if c.Hard {
			report.Errors = append(report.Errors, c.Name+": "+c.Detail)
			report.Passed = false
		} else {
			report.Warnings = append(report.Warnings, c.Name+": "+c.Detail)
		}
	}

	add(checkPersonaCounts(districts, opts.ExpectedPersonas))
	add(checkTurnoutBand(districts, opts.TurnoutLow, opts.TurnoutHigh))
	add(checkVoteConservation(districts))
	add(checkWinnerValidity(districts))
	add(checkNonNegativity(districts, blocks))
	add(checkDistrictIDFormat(districts))
	add(checkProportionalBound(districts))
	return report
}

// Err converts a report's hard failures into a single VALIDATION_ERROR for
// callers that want a nonzero exit on invalid results. Nil when the report
// passed.
func Err(report result.ValidationReport) error {
	if report.Passed {
		return nil
	}
	return errors.ValidationError("results failed validation: " + strings.Join(report.Errors, "; "))
}

func checkPersonaCounts(districts []result.DistrictResult, expected int) result.ValidationCheck {
	c := result.ValidationCheck{Name: "persona_count", Passed: true}
	if expected <= 0 {
		c.Detail = "no configured count, skipped"
		return c
	}
	var off []string
	for _, d := range districts {
		if d.TotalPersonas != expected {
			off = append(off, fmt.Sprintf("%s=%d", d.DistrictID, d.TotalPersonas))
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = fmt.Sprintf("expected %d personas per district, deviations: %s", expected, join(off))
	}
	return c
}

func checkTurnoutBand(districts []result.DistrictResult, low, high float64) result.ValidationCheck {
	c := result.ValidationCheck{Name: "turnout_band", Passed: true}
	var off []string
	for _, d := range districts {
		if d.TurnoutRate < low || d.TurnoutRate > high {
			off = append(off, fmt.Sprintf("%s=%.3f", d.DistrictID, d.TurnoutRate))
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = fmt.Sprintf("turnout outside [%.2f,%.2f]: %s", low, high, join(off))
	}
	return c
}

func checkVoteConservation(districts []result.DistrictResult) result.ValidationCheck {
	c := result.ValidationCheck{Name: "vote_conservation", Passed: true, Hard: true}
	var off []string
	for _, d := range districts {
		var sum int
		for _, v := range d.CandidateVotes {
			sum += v
		}
		if sum != d.TurnoutCount {
			off = append(off, fmt.Sprintf("%s: votes=%d turnout=%d", d.DistrictID, sum, d.TurnoutCount))
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = "candidate votes do not sum to turnout: " + join(off)
	}
	return c
}

func checkWinnerValidity(districts []result.DistrictResult) result.ValidationCheck {
	c := result.ValidationCheck{Name: "winner_validity", Passed: true, Hard: true}
	var off []string
	for _, d := range districts {
		for id, v := range d.CandidateVotes {
			if v > d.WinnerVotes {
				off = append(off, fmt.Sprintf("%s: %s has %d > winner %d", d.DistrictID, id, v, d.WinnerVotes))
			}
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = "winner does not hold the maximum: " + join(off)
	}
	return c
}

func checkNonNegativity(districts []result.DistrictResult, blocks []result.BlockResult) result.ValidationCheck {
	c := result.ValidationCheck{Name: "non_negativity", Passed: true, Hard: true}
	var off []string
	for _, d := range districts {
		for id, v := range d.CandidateVotes {
			if v < 0 {
				off = append(off, fmt.Sprintf("%s/%s=%d", d.DistrictID, id, v))
			}
		}
		for p, v := range d.ProportionalVotes {
			if v < 0 {
				off = append(off, fmt.Sprintf("%s/pr/%s=%d", d.DistrictID, p, v))
			}
		}
	}
	for _, b := range blocks {
		for _, ps := range b.Parties {
			if ps.Votes < 0 || ps.Seats < 0 {
				off = append(off, fmt.Sprintf("%s/%s votes=%d seats=%d", b.BlockID, ps.Party, ps.Votes, ps.Seats))
			}
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = "negative totals: " + join(off)
	}
	return c
}

func checkDistrictIDFormat(districts []result.DistrictResult) result.ValidationCheck {
	c := result.ValidationCheck{Name: "district_id_format", Passed: true}
	var off []string
	for _, d := range districts {
		if !core.ValidDistrictID(string(d.DistrictID)) {
			off = append(off, string(d.DistrictID))
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = "malformed district ids: " + join(off)
	}
	return c
}

func checkProportionalBound(districts []result.DistrictResult) result.ValidationCheck {
	c := result.ValidationCheck{Name: "proportional_bound", Passed: true}
	var off []string
	for _, d := range districts {
		var sum int
		for _, v := range d.ProportionalVotes {
			sum += v
		}
		if sum > d.TurnoutCount {
			off = append(off, fmt.Sprintf("%s: pr=%d turnout=%d", d.DistrictID, sum, d.TurnoutCount))
		}
	}
	if len(off) > 0 {
		c.Passed = false
		c.Detail = "proportional votes exceed turnout: " + join(off)
	}
	return c
}

// join renders at most five offenders so reports stay readable on large
// runs.
func join(off []string) string {
	sort.Strings(off)
	if len(off) > 5 {
		return fmt.Sprintf("%v and %d more", off[:5], len(off)-5)
	}
	return fmt.Sprintf("%v", off)
}
