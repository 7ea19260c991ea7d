package vote

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/domain/vote"
	"electsim/internal/rng"
)

type flatAlignment map[string]map[core.PartyID]float64

func (a flatAlignment) PolicyAlignment(class string, party core.PartyID) float64 {
	if row, ok := a[class]; ok {
		if v, ok := row[party]; ok {
			return v
		}
	}
	return 0.5
}

func twoPartyDistrict() election.District {
	return election.District{
		ID:           core.DistrictID("13_1"),
		Name:         "Tokyo 1st",
		Prefecture:   "Tokyo",
		Region:       "kanto",
		Seats:        1,
		Urbanization: "urban",
		PartySupport: map[core.PartyID]float64{
			"cons_union":   0.40,
			"dem_alliance": 0.30,
		},
		SwingRate: 0.30,
		Candidates: []election.Candidate{
			{ID: "c_incumbent", Name: "Sato", DistrictID: "13_1", PartyID: "cons_union", Status: election.StatusIncumbent, PreviousWins: 3},
			{ID: "c_challenger", Name: "Tanaka", DistrictID: "13_1", PartyID: "dem_alliance", Status: election.StatusNew},
		},
	}
}

func loyalVoter(id string, party core.PartyID, tendency persona.SwingTendency) persona.Persona {
	return persona.Persona{
		ID:                  core.PersonaID(id),
		DistrictID:          "13_1",
		ArchetypeID:         "loyalist",
		Age:                 55,
		PoliticalEngagement: "high",
		TurnoutProbability:  0.9,
		SwingTendency:       tendency,
		PartyAffinity:       party,
		Ideology:            "conservative",
	}
}

func newCalculator(opts Options) *Calculator {
	return NewCalculator(flatAlignment{}, rng.New(), opts)
}

func TestDecideDistrict_Reproducible(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()
	personas := []persona.Persona{
		loyalVoter("p1", "cons_union", persona.SwingVeryLow),
		loyalVoter("p2", "dem_alliance", persona.SwingHigh),
		loyalVoter("p3", election.PartyNone, persona.SwingModerate),
	}

	a, err := calc.DecideDistrict(d, personas, 42)
	require.NoError(t, err)
	b, err := calc.DecideDistrict(d, personas, 42)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different decisions:\n%s", diff)
	}
}

func TestDecideDistrict_EmptyRoster(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()
	d.Candidates = nil

	_, err := calc.DecideDistrict(d, []persona.Persona{loyalVoter("p1", "cons_union", persona.SwingLow)}, 42)
	assert.ErrorIs(t, err, core.ErrEmptyRoster)
}

func TestDecide_LoyaltyDominatesForCommittedVoters(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()

	// 50 committed opposition supporters with near-zero noise: the loyalty
	// factor should out-pull the incumbent bonuses for nearly all of them.
	personas := make([]persona.Persona, 0, 50)
	for i := 0; i < 50; i++ {
		p := loyalVoter("p", "dem_alliance", persona.SwingVeryLow)
		p.ID = core.PersonaID(string(rune('a' + i%26)))
		personas = append(personas, p)
	}
	decisions, err := calc.DecideDistrict(d, personas, 42)
	require.NoError(t, err)

	var challenger int
	for _, dec := range decisions {
		if !dec.WillVote {
			continue
		}
		if dec.CandidateID == "c_challenger" {
			challenger++
		}
		assert.Equal(t, vote.SourceRule, dec.Source)
		require.Contains(t, dec.ScoreBreakdown, "c_challenger")
		assert.Equal(t, 1.0, dec.ScoreBreakdown["c_challenger"].PartyLoyalty)
		assert.Equal(t, 0.1, dec.ScoreBreakdown["c_incumbent"].PartyLoyalty)
	}
	assert.Greater(t, challenger, 40)
}

func TestDecide_IncumbentBonusesInBreakdown(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()

	decisions, err := calc.DecideDistrict(d, []persona.Persona{loyalVoter("p1", election.PartyNone, persona.SwingVeryLow)}, 3)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	dec := decisions[0]
	require.True(t, dec.WillVote)

	inc := dec.ScoreBreakdown["c_incumbent"]
	ch := dec.ScoreBreakdown["c_challenger"]
	assert.InDelta(t, 0.95, inc.CandidateAppeal, 1e-9) // 0.5 + 0.3 incumbent + 3 wins capped
	assert.InDelta(t, 0.5, ch.CandidateAppeal, 1e-9)
	assert.InDelta(t, 0.8, inc.LocalConnection, 1e-9)
	assert.InDelta(t, 0.7, inc.StrategicVoting, 1e-9)
	assert.InDelta(t, 0.40, inc.MediaInfluence, 1e-9)
}

func TestDecide_TurnoutBoostAndClamp(t *testing.T) {
	d := twoPartyDistrict()
	never := loyalVoter("p1", "cons_union", persona.SwingLow)
	never.TurnoutProbability = 0

	// Even with probability zero the clamp leaves a 5% floor; with a large
	// boost the 95% ceiling still lets some personas abstain.
	low := newCalculator(Options{})
	high := newCalculator(Options{TurnoutBoost: 5})

	var lowVotes, highVotes int
	for seed := int64(0); seed < 200; seed++ {
		ld, err := low.DecideDistrict(d, []persona.Persona{never}, seed)
		require.NoError(t, err)
		hd, err := high.DecideDistrict(d, []persona.Persona{never}, seed)
		require.NoError(t, err)
		if ld[0].WillVote {
			lowVotes++
		}
		if hd[0].WillVote {
			highVotes++
		}
	}
	assert.Greater(t, lowVotes, 0, "floor should produce some voters")
	assert.Less(t, lowVotes, 40)
	assert.Greater(t, highVotes, 160)
	assert.Less(t, highVotes, 200, "ceiling should leave some abstainers")
}

func TestDecide_AbstentionReasonTracksEngagement(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()

	apathetic := loyalVoter("p1", "cons_union", persona.SwingLow)
	apathetic.TurnoutProbability = 0
	apathetic.PoliticalEngagement = "low"

	for seed := int64(0); seed < 100; seed++ {
		decs, err := calc.DecideDistrict(d, []persona.Persona{apathetic}, seed)
		require.NoError(t, err)
		if !decs[0].WillVote {
			assert.Equal(t, "low political interest", decs[0].AbstentionReason)
			return
		}
	}
	t.Fatal("expected at least one abstention in 100 seeds")
}

func TestDecide_DelegateRoutingFollowsTendencyAndTurnout(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()

	swing := loyalVoter("p1", election.PartyNone, persona.SwingVeryHigh)
	stable := loyalVoter("p2", "cons_union", persona.SwingVeryLow)

	decs, err := calc.DecideDistrict(d, []persona.Persona{swing, stable}, 42)
	require.NoError(t, err)
	for _, dec := range decs {
		if !dec.WillVote {
			assert.False(t, dec.NeedsDelegate, "abstainers never route to the delegate")
			continue
		}
		switch dec.PersonaID {
		case "p1":
			assert.True(t, dec.NeedsDelegate)
		case "p2":
			assert.False(t, dec.NeedsDelegate)
		}
	}
}

func TestDecide_ConfidenceBounds(t *testing.T) {
	calc := newCalculator(Options{})
	d := twoPartyDistrict()

	personas := make([]persona.Persona, 0, 100)
	for i := 0; i < 100; i++ {
		p := loyalVoter("p", election.PartyNone, persona.SwingVeryHigh)
		p.ID = core.PersonaID(string(rune('a'+i%26)) + string(rune('a'+i/26)))
		personas = append(personas, p)
	}
	decs, err := calc.DecideDistrict(d, personas, 11)
	require.NoError(t, err)
	for _, dec := range decs {
		if !dec.WillVote {
			continue
		}
		assert.GreaterOrEqual(t, dec.Confidence, 0.1)
		assert.LessOrEqual(t, dec.Confidence, 1.0)
		assert.NotEmpty(t, dec.ProportionalParty)
	}
}

func TestWeightOverridesShiftOutcomes(t *testing.T) {
	d := twoPartyDistrict()
	voter := loyalVoter("p1", "dem_alliance", persona.SwingVeryLow)

	// All weight on candidate appeal makes the incumbent win even against
	// a committed opposition supporter.
	appealOnly := newCalculator(Options{Weights: vote.Weights{CandidateAppeal: 1.0}})
	decs, err := appealOnly.DecideDistrict(d, []persona.Persona{voter}, 42)
	require.NoError(t, err)
	if decs[0].WillVote {
		assert.Equal(t, core.CandidateID("c_incumbent"), decs[0].CandidateID)
	}
}
