package ports

import (
	"context"

	"electsim/domain/election"
	"electsim/domain/persona"
	"electsim/domain/vote"
)

// BatchContext carries everything a delegate call embeds in its request:
// the district (roster plus historical party-support distribution) and the
// national context paragraph.
type BatchContext struct {
	District        election.District
	Parties         map[string]election.Party
	NationalContext string

	// Leanings carries the tier-1 decision per persona id, used both to
	// anchor the generative prompt and as the fallback outcome.
	Leanings map[string]vote.Decision
}

// BatchDecider resolves the district/proportional choice for tier-2
// (swing) personas through an external generative decision service.
//
// DecideBatch must return one decision per persona whose entry could be
// recovered; personas missing from the result fall back to their tier-1
// decision in the engine. Implementations never fabricate entries and
// never drop the whole batch on a partial response.
type BatchDecider interface {
	DecideBatch(ctx context.Context, bc BatchContext, personas []persona.Persona) ([]vote.Decision, error)
}
