package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"electsim/domain/core"
	"electsim/domain/persona"
	"electsim/domain/vote"
	"electsim/internal"
	"electsim/internal/config"
	"electsim/internal/errors"
	"electsim/ports"
)

// jsonCaller is the slice of StructuredClient the delegate needs; tests
// substitute a scripted implementation.
type jsonCaller interface {
	GetJsonResponse(ctx context.Context, systemMessage, prompt string) (*batchResponse, error)
}

// Delegate resolves tier-2 personas in parallel batches against a
// generative decision service. It implements ports.BatchDecider.
//
// A batch that still fails after all retries is dropped, not fabricated:
// its personas keep their tier-1 decisions in the engine.
type Delegate struct {
	client     jsonCaller
	log        *internal.Logger
	batchSize  int
	maxRetries int
	sem        *semaphore.Weighted
}

// NewDelegate wires a delegate over a structured client.
func NewDelegate(cfg config.AIConfig, batchSize int, log *internal.Logger) *Delegate {
	if batchSize <= 0 {
		batchSize = 15
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Delegate{
		client:     NewStructuredClient[batchResponse](cfg, log),
		log:        log.Named("delegate"),
		batchSize:  batchSize,
		maxRetries: retries,
		sem:        semaphore.NewWeighted(int64(concurrency)),
	}
}

// DecideBatch splits the personas into request batches, runs them under
// the concurrency cap and merges every recoverable decision. The returned
// slice may cover fewer personas than requested.
func (d *Delegate) DecideBatch(ctx context.Context, bc ports.BatchContext, personas []persona.Persona) ([]vote.Decision, error) {
	if len(personas) == 0 {
		return nil, nil
	}

	byID := make(map[string]persona.Persona, len(personas))
	for _, p := range personas {
		byID[string(p.ID)] = p
	}

	var mu sync.Mutex
	var out []vote.Decision

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(personas); start += d.batchSize {
		end := start + d.batchSize
		if end > len(personas) {
			end = len(personas)
		}
		batch := personas[start:end]

		g.Go(func() error {
			if err := d.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer d.sem.Release(1)

			resp, err := d.callWithRetry(gctx, bc, batch)
			if err != nil {
				// Partial failure is survivable; cancellation is not.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.log.Warn("batch of %d personas in %s failed after %d attempts: %v",
					len(batch), bc.District.ID, d.maxRetries, err)
				return nil
			}

			decisions := d.validate(bc, batch, byID, resp)
			mu.Lock()
			out = append(out, decisions...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// callWithRetry retries transient service failures with exponential
// backoff.
func (d *Delegate) callWithRetry(ctx context.Context, bc ports.BatchContext, batch []persona.Persona) (*batchResponse, error) {
	prompt := buildBatchPrompt(bc, batch)

	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := d.client.GetJsonResponse(ctx, systemPrompt, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		d.log.Debug("attempt %d/%d failed for district %s: %v", attempt+1, d.maxRetries, bc.District.ID, err)
	}
	return nil, errors.ExternalServiceError("generative decision", lastErr)
}

// validate enforces the response schema entry by entry. Malformed entries
// are dropped so their personas fall back; valid entries become generative
// decisions.
func (d *Delegate) validate(bc ports.BatchContext, batch []persona.Persona, byID map[string]persona.Persona, resp *batchResponse) []vote.Decision {
	validCandidate := make(map[string]int, len(bc.District.Candidates))
	for i, cand := range bc.District.Candidates {
		validCandidate[string(cand.ID)] = i
	}

	inBatch := make(map[string]bool, len(batch))
	for _, p := range batch {
		inBatch[string(p.ID)] = true
	}

	seen := make(map[string]bool, len(resp.Decisions))
	out := make([]vote.Decision, 0, len(resp.Decisions))
	for _, entry := range resp.Decisions {
		if !inBatch[entry.PersonaID] || seen[entry.PersonaID] {
			d.log.Debug("dropping entry for unknown or duplicate persona %q", entry.PersonaID)
			continue
		}
		p := byID[entry.PersonaID]

		dec := vote.Decision{
			PersonaID:     p.ID,
			DistrictID:    bc.District.ID,
			WillVote:      entry.WillVote,
			Confidence:    clampConfidence(entry.Confidence),
			Source:        vote.SourceGenerative,
			NeedsDelegate: true,
			SwingLevel:    p.SwingTendency,
			StatedReason:  entry.Reason,
		}

		if entry.WillVote {
			idx, ok := validCandidate[entry.CandidateID]
			if !ok {
				d.log.Debug("dropping entry for %s: unknown candidate %q", entry.PersonaID, entry.CandidateID)
				continue
			}
			cand := bc.District.Candidates[idx]
			dec.CandidateID = cand.ID
			dec.CandidateName = cand.Name
			dec.Party = cand.PartyID

			dec.ProportionalParty = core.PartyID(entry.ProportionalParty)
			if _, ok := bc.Parties[entry.ProportionalParty]; !ok {
				// Unknown list party: inherit the constituency vote.
				dec.ProportionalParty = cand.PartyID
			}
		} else if entry.CandidateID != "" {
			d.log.Debug("dropping entry for %s: abstainer with candidate %q", entry.PersonaID, entry.CandidateID)
			continue
		} else {
			dec.AbstentionReason = entry.Reason
		}

		if lean, ok := bc.Leanings[entry.PersonaID]; ok {
			dec.ScoreBreakdown = lean.ScoreBreakdown
		}

		seen[entry.PersonaID] = true
		out = append(out, dec)
	}

	if len(out) < len(batch) {
		d.log.Debug("recovered %d/%d decisions for district %s", len(out), len(batch), bc.District.ID)
	}
	return out
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ ports.BatchDecider = (*Delegate)(nil)

// String implements fmt.Stringer for run parameter logging.
func (d *Delegate) String() string {
	return fmt.Sprintf("delegate(batch=%d, retries=%d)", d.batchSize, d.maxRetries)
}
