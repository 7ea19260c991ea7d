package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/domain/vote"
	"electsim/internal"
	"electsim/ports"
)

// scriptedCaller echoes a decision for every persona id it finds in the
// prompt, after an optional number of scripted failures.
type scriptedCaller struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	mutate    func(*batchResponse)
}

func (c *scriptedCaller) GetJsonResponse(ctx context.Context, system, prompt string) (*batchResponse, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if n <= c.failFirst {
		return nil, fmt.Errorf("scripted failure %d", n)
	}

	var resp batchResponse
	for _, line := range strings.Split(prompt, "\n") {
		if id, ok := strings.CutPrefix(line, "### persona_id: "); ok {
			resp.Decisions = append(resp.Decisions, batchDecision{
				PersonaID:         id,
				WillVote:          true,
				CandidateID:       "c1",
				ProportionalParty: "cons_union",
				Confidence:        0.7,
				Reason:            "the incumbent has delivered here",
			})
		}
	}
	if c.mutate != nil {
		c.mutate(&resp)
	}
	return &resp, nil
}

func testBatchContext() ports.BatchContext {
	return ports.BatchContext{
		District: election.District{
			ID:   "13_1",
			Name: "Tokyo 1st",
			Candidates: []election.Candidate{
				{ID: "c1", Name: "Sato", PartyID: "cons_union", Status: election.StatusIncumbent},
				{ID: "c2", Name: "Tanaka", PartyID: "dem_alliance", Status: election.StatusNew},
			},
			PartySupport: map[core.PartyID]float64{"cons_union": 0.4, "dem_alliance": 0.3},
		},
		Parties: map[string]election.Party{
			"cons_union":   {ID: "cons_union", Name: "Conservative Union"},
			"dem_alliance": {ID: "dem_alliance", Name: "Democratic Alliance"},
		},
		Leanings: map[string]vote.Decision{},
	}
}

func swingPersonas(n int) []persona.Persona {
	out := make([]persona.Persona, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, persona.Persona{
			ID:            core.PersonaID(fmt.Sprintf("13_1_p%04d", i)),
			DistrictID:    "13_1",
			SwingTendency: persona.SwingHigh,
			Age:           30 + i%40,
		})
	}
	return out
}

func newTestDelegate(caller jsonCaller, batchSize int) *Delegate {
	return &Delegate{
		client:     caller,
		log:        internal.NewLogger(internal.LogLevelError),
		batchSize:  batchSize,
		maxRetries: 2,
		sem:        semaphore.NewWeighted(4),
	}
}

func TestDecideBatch_ChunksIntoBatches(t *testing.T) {
	caller := &scriptedCaller{}
	d := newTestDelegate(caller, 15)

	decisions, err := d.DecideBatch(context.Background(), testBatchContext(), swingPersonas(35))
	require.NoError(t, err)
	assert.Equal(t, 3, caller.calls, "35 personas at batch size 15 should need 3 calls")
	assert.Len(t, decisions, 35)
	for _, dec := range decisions {
		assert.Equal(t, vote.SourceGenerative, dec.Source)
		assert.True(t, dec.NeedsDelegate)
		assert.Equal(t, core.CandidateID("c1"), dec.CandidateID)
		assert.Equal(t, core.PartyID("cons_union"), dec.Party)
	}
}

func TestDecideBatch_RetriesTransientFailure(t *testing.T) {
	caller := &scriptedCaller{failFirst: 1}
	d := newTestDelegate(caller, 15)

	decisions, err := d.DecideBatch(context.Background(), testBatchContext(), swingPersonas(5))
	require.NoError(t, err)
	assert.Equal(t, 2, caller.calls)
	assert.Len(t, decisions, 5)
}

func TestDecideBatch_ExhaustedRetriesReturnPartial(t *testing.T) {
	// Every call fails: the delegate reports no decisions but no error,
	// leaving all personas on their tier-1 fallback.
	caller := &scriptedCaller{failFirst: 100}
	d := newTestDelegate(caller, 15)

	decisions, err := d.DecideBatch(context.Background(), testBatchContext(), swingPersonas(5))
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestDecideBatch_DropsMalformedEntries(t *testing.T) {
	caller := &scriptedCaller{mutate: func(r *batchResponse) {
		r.Decisions[0].CandidateID = "c_ghost"                 // unknown candidate
		r.Decisions[1].PersonaID = "intruder"                  // not in batch
		r.Decisions[2].WillVote = false                        // abstainer carrying a candidate
		r.Decisions = append(r.Decisions, r.Decisions[3])      // duplicate persona
		r.Decisions[4].Confidence = 3.5                        // clamped, not dropped
	}}
	d := newTestDelegate(caller, 15)

	decisions, err := d.DecideBatch(context.Background(), testBatchContext(), swingPersonas(6))
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	for _, dec := range decisions {
		assert.LessOrEqual(t, dec.Confidence, 1.0)
	}
}

func TestDecideBatch_UnknownListPartyInheritsConstituencyVote(t *testing.T) {
	caller := &scriptedCaller{mutate: func(r *batchResponse) {
		for i := range r.Decisions {
			r.Decisions[i].ProportionalParty = "made_up_party"
		}
	}}
	d := newTestDelegate(caller, 15)

	decisions, err := d.DecideBatch(context.Background(), testBatchContext(), swingPersonas(3))
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	for _, dec := range decisions {
		assert.Equal(t, core.PartyID("cons_union"), dec.ProportionalParty)
	}
}

func TestDecideBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	caller := &scriptedCaller{failFirst: 100}
	d := newTestDelegate(caller, 15)

	_, err := d.DecideBatch(ctx, testBatchContext(), swingPersonas(5))
	assert.Error(t, err)
}

func TestBuildBatchPrompt_ContainsRosterAndLeanings(t *testing.T) {
	bc := testBatchContext()
	personas := swingPersonas(2)
	bc.Leanings[string(personas[0].ID)] = vote.Decision{
		PersonaID:   personas[0].ID,
		WillVote:    true,
		CandidateID: "c2",
		Party:       "dem_alliance",
		Confidence:  0.4,
	}

	prompt := buildBatchPrompt(bc, personas)
	assert.Contains(t, prompt, "id=c1")
	assert.Contains(t, prompt, "id=c2")
	assert.Contains(t, prompt, string(personas[0].ID))
	assert.Contains(t, prompt, string(personas[1].ID))
	assert.Contains(t, prompt, "Current leaning")
	assert.Contains(t, prompt, "Tokyo 1st")
}

func TestCleanJSONContent(t *testing.T) {
	raw := "```json\n{\"decisions\": []}\n```"
	assert.Equal(t, `{"decisions": []}`, cleanJSONContent(raw))

	chatter := "Here is the result\n{\"decisions\": []}"
	assert.Equal(t, `{"decisions": []}`, cleanJSONContent(chatter))
}
