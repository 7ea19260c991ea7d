package ai

import (
	"fmt"
	"sort"
	"strings"

	"electsim/domain/core"
	"electsim/domain/persona"
	"electsim/ports"
)

// systemPrompt frames the model as a ballot resolver with a strict JSON
// contract.
const systemPrompt = `You simulate how individual voters resolve their ballot in a single-member district election.
For each voter profile you receive, decide whether they vote, and if so which candidate they choose and which party they support on the proportional list.
Stay in character for each profile: their age, occupation, concerns, party affinity and uncertainty level all matter.
Respond only with a JSON object matching the requested schema.`

// batchResponse is the typed schema the delegate expects back.
type batchResponse struct {
	Decisions []batchDecision `json:"decisions"`
}

type batchDecision struct {
	PersonaID         string  `json:"persona_id"`
	WillVote          bool    `json:"will_vote"`
	CandidateID       string  `json:"candidate_id"`
	ProportionalParty string  `json:"proportional_party"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
}

// buildBatchPrompt renders the district context and one block per persona.
// Personas arrive with their tier-1 leaning attached so the model anchors
// on a plausible prior instead of guessing cold.
func buildBatchPrompt(bc ports.BatchContext, personas []persona.Persona) string {
	leanings := bc.Leanings
	var b strings.Builder

	d := bc.District
	fmt.Fprintf(&b, "# District: %s (%s)\n", d.Name, d.ID)
	fmt.Fprintf(&b, "Prefecture: %s, urbanization: %s\n", d.Prefecture, d.Urbanization)
	if bc.NationalContext != "" {
		fmt.Fprintf(&b, "National context: %s\n", bc.NationalContext)
	}

	b.WriteString("\n## Candidates\n")
	for _, cand := range d.Candidates {
		party := string(cand.PartyID)
		if p, ok := bc.Parties[party]; ok {
			party = p.Name
		}
		fmt.Fprintf(&b, "- id=%s name=%s party=%s status=%s previous_wins=%d\n",
			cand.ID, cand.Name, party, cand.Status, cand.PreviousWins)
	}

	b.WriteString("\n## Historical party support in this district\n")
	parties := make([]string, 0, len(d.PartySupport))
	for p := range d.PartySupport {
		parties = append(parties, string(p))
	}
	sort.Strings(parties)
	for _, p := range parties {
		fmt.Fprintf(&b, "- %s: %.1f%%\n", p, d.PartySupport[core.PartyID(p)]*100)
	}

	b.WriteString("\n## Voters\n")
	for _, p := range personas {
		fmt.Fprintf(&b, "\n### persona_id: %s\n", p.ID)
		fmt.Fprintf(&b, "Age %d, %s, %s. Engagement: %s. Uncertainty: %s.\n",
			p.Age, p.Gender, p.Occupation, p.PoliticalEngagement, p.SwingTendency)
		if len(p.TopConcerns) > 0 {
			fmt.Fprintf(&b, "Top concerns: %s.\n", strings.Join(p.TopConcerns, ", "))
		}
		if len(p.InformationSources) > 0 {
			fmt.Fprintf(&b, "Information sources: %s.\n", strings.Join(p.InformationSources, ", "))
		}
		fmt.Fprintf(&b, "Party affinity: %s. Ideology: %s.\n", p.PartyAffinity, p.Ideology)
		if lean, ok := leanings[string(p.ID)]; ok && lean.WillVote {
			fmt.Fprintf(&b, "Current leaning from their profile: candidate %s (%s), confidence %.2f.\n",
				lean.CandidateID, lean.Party, lean.Confidence)
		}
	}

	b.WriteString(`
## Task
Return a JSON object:
{"decisions": [{"persona_id": "...", "will_vote": true, "candidate_id": "...", "proportional_party": "...", "confidence": 0.0, "reason": "..."}]}
Rules:
- One entry per persona_id listed above, no extras.
- candidate_id must be one of the listed candidate ids; leave it empty when will_vote is false.
- proportional_party must be one of the listed party ids.
- confidence is in [0,1].
- reason is one short sentence in the voter's own voice.
`)
	return b.String()
}
