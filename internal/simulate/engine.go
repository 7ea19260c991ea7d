// Package simulate contains the run coordinator: it owns the experiment
// lifecycle and drives persona generation, two-tier decision making,
// calibration, aggregation and validation across a district worker pool.
package simulate

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"electsim/domain/core"
	"electsim/domain/election"
	"electsim/domain/experiment"
	"electsim/domain/persona"
	"electsim/domain/result"
	"electsim/domain/vote"
	"electsim/internal"
	"electsim/internal/aggregate"
	"electsim/internal/calibrate"
	"electsim/internal/errors"
	"electsim/internal/validate"
	votecalc "electsim/internal/vote"
	"electsim/ports"
)

// createAttempts bounds id-collision retries on experiment creation.
const createAttempts = 3

// Engine coordinates one simulation run end to end.
type Engine struct {
	catalog    *election.Catalog
	source     ports.PersonaSource
	calculator *votecalc.Calculator
	delegate   ports.BatchDecider // nil runs rule-only
	calibrator *calibrate.Calibrator
	store      ports.ExperimentStore
	log        *internal.Logger

	nationalContext   string
	configPaths       []string
	majorityThreshold int
	clock             func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithDelegate attaches the generative tier.
func WithDelegate(d ports.BatchDecider) Option {
	return func(e *Engine) { e.delegate = d }
}

// WithNationalContext sets the context paragraph embedded in delegate
// prompts.
func WithNationalContext(s string) Option {
	return func(e *Engine) { e.nationalContext = s }
}

// WithConfigPaths names the config files to freeze into each experiment
// namespace.
func WithConfigPaths(paths ...string) Option {
	return func(e *Engine) { e.configPaths = paths }
}

// WithMajorityThreshold overrides the default majority seat count.
func WithMajorityThreshold(n int) Option {
	return func(e *Engine) { e.majorityThreshold = n }
}

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New wires an engine over its collaborators.
func New(catalog *election.Catalog, source ports.PersonaSource, calculator *votecalc.Calculator,
	calibrator *calibrate.Calibrator, store ports.ExperimentStore, log *internal.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog:           catalog,
		source:            source,
		calculator:        calculator,
		calibrator:        calibrator,
		store:             store,
		log:               log.Named("engine"),
		majorityThreshold: 233,
		clock:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// districtOutcome is one worker's output, written exactly once.
type districtOutcome struct {
	district  election.District
	result    result.DistrictResult
	decisions []vote.Decision
	signals   []result.CalibrationSignal
}

// Run executes a full simulation and persists every artifact. The returned
// artifacts mirror what was stored. A run with failed districts still
// completes in a degraded state; configuration problems and storage
// failures finalize the record as failed.
func (e *Engine) Run(ctx context.Context, params experiment.Parameters, description string, tags []string) (*ports.RunArtifacts, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	districts, err := e.selectDistricts(params.DistrictIDs)
	if err != nil {
		return nil, err
	}
	if e.delegate == nil {
		params.Mode = "rule_only"
	} else if params.Mode == "" {
		params.Mode = "hybrid"
	}

	rec, err := e.createRecord(ctx, params, description, tags)
	if err != nil {
		return nil, err
	}
	artifacts := &ports.RunArtifacts{
		Record:    rec,
		Decisions: make(map[core.DistrictID][]vote.Decision),
	}

	if err := e.prepare(ctx, rec); err != nil {
		return artifacts, e.fail(ctx, artifacts, err)
	}

	e.log.Info("run %s: %d districts, %d personas each, %d workers, mode=%s",
		rec.ID, len(districts), params.PersonasPerDistrict, params.Workers, params.Mode)

	outcomes, failed, runErr := e.runDistricts(ctx, rec, districts, params)
	for _, o := range outcomes {
		artifacts.DistrictResults = append(artifacts.DistrictResults, o.result)
		artifacts.Decisions[o.district.ID] = o.decisions
		artifacts.CalibrationSignals = append(artifacts.CalibrationSignals, o.signals...)
	}
	sort.Slice(artifacts.DistrictResults, func(i, j int) bool {
		return artifacts.DistrictResults[i].DistrictID < artifacts.DistrictResults[j].DistrictID
	})

	if runErr != nil {
		// Aborted mid-run: completed districts stay as partial results.
		return artifacts, e.fail(ctx, artifacts, runErr)
	}

	artifacts.BlockResults = e.tallyBlocks(outcomes)
	summary := aggregate.Summarize(artifacts.DistrictResults, artifacts.BlockResults, failed, e.majorityThreshold)
	artifacts.Summary = &summary

	report := validate.Run(artifacts.DistrictResults, artifacts.BlockResults,
		validate.Options{ExpectedPersonas: params.PersonasPerDistrict})
	artifacts.ValidationReport = &report
	for _, w := range report.Warnings {
		e.log.Warn("validation: %s", w)
	}
	for _, errMsg := range report.Errors {
		e.log.Error("validation: %s", errMsg)
	}

	if err := e.store.SaveResults(ctx, rec.ID, *artifacts); err != nil {
		return artifacts, e.fail(ctx, artifacts, errors.StorageError("saving results", err))
	}
	if err := rec.Complete(toSummary(summary, report), e.clock()); err != nil {
		return artifacts, err
	}
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return artifacts, errors.StorageError("finalizing record", err)
	}

	e.log.Info("run %s completed: %d/%d districts, turnout %.1f%%",
		rec.ID, len(outcomes), len(districts), summary.NationalTurnoutRate*100)
	return artifacts, nil
}

func validateParams(p experiment.Parameters) error {
	if p.PersonasPerDistrict <= 0 {
		return errors.InvalidInput("personas per district must be positive")
	}
	if p.Seed < 0 {
		return errors.InvalidInput("seed must be non-negative")
	}
	if p.Workers < 1 {
		return errors.InvalidInput("worker count must be at least 1")
	}
	return nil
}

func (e *Engine) selectDistricts(ids []string) ([]election.District, error) {
	if len(ids) == 0 {
		return e.catalog.Districts, nil
	}
	out := make([]election.District, 0, len(ids))
	for _, id := range ids {
		d, ok := e.catalog.District(core.DistrictID(id))
		if !ok {
			return nil, errors.NotFound("district " + id)
		}
		out = append(out, d)
	}
	return out, nil
}

// createRecord allocates the experiment namespace, retrying with an id
// suffix when two runs start within the same second.
func (e *Engine) createRecord(ctx context.Context, params experiment.Parameters, description string, tags []string) (*experiment.Record, error) {
	id := experiment.GenerateID(params.Seed, e.clock())
	for attempt := 0; ; attempt++ {
		rec := experiment.New(id, params, e.clock())
		rec.Description = description
		rec.Tags = tags
		err := e.store.Create(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !stderrors.Is(err, core.ErrIDCollision) || attempt >= createAttempts-1 {
			return nil, errors.StorageError("creating experiment", err)
		}
		id = core.ExperimentID(string(id) + "_" + shortSuffix())
	}
}

// prepare freezes config snapshots, seals the fingerprint and moves the
// record to running.
func (e *Engine) prepare(ctx context.Context, rec *experiment.Record) error {
	rec.ConfigHashes = make(map[string]core.ConfigHash, len(e.configPaths))
	for _, path := range e.configPaths {
		h, err := e.store.SnapshotConfig(ctx, rec.ID, path)
		if err != nil {
			return errors.StorageError("snapshotting "+path, err)
		}
		rec.ConfigHashes[path] = h
	}
	rec.SealFingerprint()
	if err := rec.Start(); err != nil {
		return err
	}
	return e.store.UpdateRecord(ctx, rec)
}

// runDistricts fans districts out over the worker pool. District-level
// failures degrade the run; only cancellation aborts it.
func (e *Engine) runDistricts(ctx context.Context, rec *experiment.Record, districts []election.District, params experiment.Parameters) ([]districtOutcome, []string, error) {
	outcomes := make([]districtOutcome, len(districts))
	done := make([]bool, len(districts))
	failedCh := make(chan string, len(districts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Workers)
	for i := range districts {
		i := i
		g.Go(func() error {
			// Cooperative cancellation checkpoint at the district boundary.
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := e.runDistrict(gctx, districts[i], params)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.log.Error("district %s failed: %v", districts[i].ID, err)
				failedCh <- string(districts[i].ID)
				return nil
			}
			outcomes[i] = o
			done[i] = true
			return nil
		})
	}
	err := g.Wait()
	close(failedCh)
	failed := make([]string, 0, len(districts))
	for id := range failedCh {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	if len(failed) == 0 {
		failed = nil
	}

	kept := make([]districtOutcome, 0, len(districts))
	for i := range outcomes {
		if done[i] {
			kept = append(kept, outcomes[i])
		}
	}
	return kept, failed, err
}

// runDistrict executes the full pipeline for one district: generation,
// tier-1 scoring, tier-2 delegation with fallback, calibration and tally.
func (e *Engine) runDistrict(ctx context.Context, district election.District, params experiment.Parameters) (districtOutcome, error) {
	personas, err := e.source.Generate(district, params.PersonasPerDistrict, params.Seed)
	if err != nil {
		return districtOutcome{}, err
	}

	tier1, err := e.calculator.DecideDistrict(district, personas, params.Seed)
	if err != nil {
		return districtOutcome{}, errors.GenerationError(string(district.ID), err)
	}

	decisions := tier1
	if e.delegate != nil && params.Mode != "rule_only" {
		decisions, err = e.delegateSwing(ctx, district, personas, tier1)
		if err != nil {
			return districtOutcome{}, err
		}
	}

	decisions, signals := e.calibrator.Apply(district, decisions, params.Seed)
	res := aggregate.TallyDistrict(district, personas, decisions)
	return districtOutcome{district: district, result: res, decisions: decisions, signals: signals}, nil
}

// delegateSwing routes high-uncertainty voters through the generative tier
// and merges the responses. Every persona the delegate could not resolve
// keeps its tier-1 decision, marked as a fallback.
func (e *Engine) delegateSwing(ctx context.Context, district election.District, personas []persona.Persona, tier1 []vote.Decision) ([]vote.Decision, error) {
	byID := make(map[core.PersonaID]int, len(tier1))
	leanings := make(map[string]vote.Decision)
	var swing []persona.Persona
	swingIdx := make(map[core.PersonaID]bool)
	personaByID := make(map[core.PersonaID]persona.Persona, len(personas))
	for _, p := range personas {
		personaByID[p.ID] = p
	}
	for i, d := range tier1 {
		byID[d.PersonaID] = i
		if d.WillVote && d.NeedsDelegate {
			swing = append(swing, personaByID[d.PersonaID])
			swingIdx[d.PersonaID] = true
			leanings[string(d.PersonaID)] = d
		}
	}
	if len(swing) == 0 {
		return tier1, nil
	}

	parties := make(map[string]election.Party, len(e.catalog.Parties))
	for id, p := range e.catalog.Parties {
		parties[string(id)] = p
	}
	bc := ports.BatchContext{
		District:        district,
		Parties:         parties,
		NationalContext: e.nationalContext,
		Leanings:        leanings,
	}

	resolved, err := e.delegate.DecideBatch(ctx, bc, swing)
	if err != nil {
		return nil, err
	}

	out := make([]vote.Decision, len(tier1))
	copy(out, tier1)
	covered := make(map[core.PersonaID]bool, len(resolved))
	for _, d := range resolved {
		idx, ok := byID[d.PersonaID]
		if !ok || !swingIdx[d.PersonaID] {
			continue
		}
		out[idx] = d
		covered[d.PersonaID] = true
	}
	var fallbacks int
	for pid := range swingIdx {
		if !covered[pid] {
			idx := byID[pid]
			out[idx].Source = vote.SourceFallback
			fallbacks++
		}
	}
	if fallbacks > 0 {
		e.log.Warn("district %s: %d/%d swing personas fell back to tier-1", district.ID, fallbacks, len(swing))
	}
	return out, nil
}

// tallyBlocks pools proportional votes per block across completed
// districts and allocates seats.
func (e *Engine) tallyBlocks(outcomes []districtOutcome) []result.BlockResult {
	pooled := make(map[core.BlockID]map[core.PartyID]int)
	blockByID := make(map[core.BlockID]election.ProportionalBlock)
	for _, o := range outcomes {
		block, ok := e.catalog.BlockFor(o.district.Prefecture)
		if !ok {
			e.log.Warn("district %s: prefecture %s belongs to no proportional block", o.district.ID, o.district.Prefecture)
			continue
		}
		blockByID[block.ID] = block
		if pooled[block.ID] == nil {
			pooled[block.ID] = make(map[core.PartyID]int)
		}
		for p, v := range o.result.ProportionalVotes {
			pooled[block.ID][p] += v
		}
	}

	ids := make([]core.BlockID, 0, len(pooled))
	for id := range pooled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]result.BlockResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, aggregate.TallyBlock(blockByID[id], pooled[id]))
	}
	return out
}

// fail finalizes the record as failed, preserving whatever artifacts were
// produced. The original error is returned, not the bookkeeping one.
func (e *Engine) fail(ctx context.Context, artifacts *ports.RunArtifacts, cause error) error {
	rec := artifacts.Record
	if err := rec.Fail(cause, e.clock()); err != nil {
		e.log.Error("could not mark %s failed: %v", rec.ID, err)
		return cause
	}
	// Persist partial artifacts for forensic inspection. Use a detached
	// context so cancellation does not also wipe the record update.
	saveCtx := ctx
	if saveCtx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	if len(artifacts.DistrictResults) > 0 {
		if err := e.store.SaveResults(saveCtx, rec.ID, *artifacts); err != nil {
			e.log.Error("could not persist partial results for %s: %v", rec.ID, err)
		}
	}
	if err := e.store.UpdateRecord(saveCtx, rec); err != nil {
		e.log.Error("could not persist failed record %s: %v", rec.ID, err)
	}
	return cause
}

func toSummary(s result.NationalSummary, report result.ValidationReport) experiment.ResultsSummary {
	out := experiment.ResultsSummary{
		DistrictCount:       s.TotalDistricts,
		FailedDistricts:     s.FailedDistricts,
		TotalPersonas:       s.TotalPersonas,
		NationalTurnoutRate: s.NationalTurnoutRate,
		SMDSeats:            make(map[string]int, len(s.SMDSeats)),
		ProportionalSeats:   make(map[string]int, len(s.ProportionalSeats)),
		ValidationPassed:    report.Passed,
	}
	for p, n := range s.SMDSeats {
		out.SMDSeats[string(p)] = n
	}
	for p, n := range s.ProportionalSeats {
		out.ProportionalSeats[string(p)] = n
	}
	return out
}

func shortSuffix() string {
	id := core.NewID().String()
	return strings.ReplaceAll(id, "-", "")[:8]
}
