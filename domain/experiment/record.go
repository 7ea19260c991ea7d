// Package experiment defines the versioned record of one simulation run:
// identity, parameter snapshot, config hashes, determinism fingerprint and
// the created → running → {completed, failed} lifecycle.
package experiment

import (
	"crypto/sha256"
	"fmt"
	"time"

	"electsim/domain/core"
	"electsim/domain/vote"
)

// Status is the lifecycle state of a record. Terminal states admit no
// further transitions.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether s -> next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Parameters is the full parameter snapshot of a run. FactorWeights is the
// effective weight set actually used, overrides included.
type Parameters struct {
	Seed                int64        `json:"seed"`
	PersonasPerDistrict int          `json:"personas_per_district"`
	GeneratorType       string       `json:"generator_type"`
	Model               string       `json:"model"`
	BatchSize           int          `json:"batch_size"`
	Workers             int          `json:"workers"`
	CalibrationStrength float64      `json:"calibration_strength"`
	TurnoutBoost        float64      `json:"turnout_boost"`
	SwingNoiseOffset    float64      `json:"swing_noise_offset"`
	FactorWeights       vote.Weights `json:"factor_weights"`
	Mode                string       `json:"mode"`
	DistrictIDs         []string     `json:"district_ids,omitempty"`
}

// ResultsSummary is the condensed outcome stored on the record.
type ResultsSummary struct {
	DistrictCount       int            `json:"district_count"`
	FailedDistricts     []string       `json:"failed_districts,omitempty"`
	TotalPersonas       int            `json:"total_personas"`
	NationalTurnoutRate float64        `json:"national_turnout_rate"`
	SMDSeats            map[string]int `json:"smd_seats"`
	ProportionalSeats   map[string]int `json:"proportional_seats"`
	ValidationPassed    bool           `json:"validation_passed"`
}

// Fingerprint ensures deterministic replay: two records with equal
// fingerprints were produced by equivalent runs.
type Fingerprint struct {
	Seed         int64                      `json:"seed"`
	ParamsHash   core.Hash                  `json:"params_hash"`
	ConfigHashes map[string]core.ConfigHash `json:"config_hashes"`
	Value        core.Hash                  `json:"value"`
}

// Record is the persisted experiment. Never mutated after finalization
// except that a store may surface it read-only.
type Record struct {
	ID              core.ExperimentID          `json:"experiment_id"`
	Status          Status                     `json:"status"`
	Description     string                     `json:"description,omitempty"`
	Tags            []string                   `json:"tags,omitempty"`
	Parameters      Parameters                 `json:"parameters"`
	ConfigHashes    map[string]core.ConfigHash `json:"config_hashes"`
	Fingerprint     Fingerprint                `json:"fingerprint"`
	CreatedAt       time.Time                  `json:"created_at"`
	FinalizedAt     *time.Time                 `json:"finalized_at,omitempty"`
	DurationSeconds float64                    `json:"duration_seconds"`
	ResultsSummary  *ResultsSummary            `json:"results_summary,omitempty"`
	StoredError     string                     `json:"error,omitempty"`
}

// GenerateID builds the timestamp+seed composite identifier.
func GenerateID(seed int64, now time.Time) core.ExperimentID {
	return core.ExperimentID(fmt.Sprintf("sim_%s_seed%d", now.Format("20060102_150405"), seed))
}

// New creates a record in the created state.
func New(id core.ExperimentID, params Parameters, now time.Time) *Record {
	return &Record{
		ID:         id,
		Status:     StatusCreated,
		Parameters: params,
		CreatedAt:  now,
	}
}

// Start transitions the record to running.
func (r *Record) Start() error {
	return r.transition(StatusRunning)
}

// Complete finalizes the record with a results summary.
func (r *Record) Complete(summary ResultsSummary, now time.Time) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	r.ResultsSummary = &summary
	r.FinalizedAt = &now
	r.DurationSeconds = now.Sub(r.CreatedAt).Seconds()
	return nil
}

// Fail finalizes the record as failed, preserving partial parameters. The
// cause is stored for forensic inspection; artifacts already written stay.
func (r *Record) Fail(cause error, now time.Time) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	if cause != nil {
		r.StoredError = cause.Error()
	}
	r.FinalizedAt = &now
	r.DurationSeconds = now.Sub(r.CreatedAt).Seconds()
	return nil
}

func (r *Record) transition(next Status) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s", core.ErrRecordFinalized, r.ID)
	}
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// SealFingerprint computes and attaches the determinism fingerprint from
// the parameter snapshot and config hashes. Must be called after
// SnapshotConfigs and before any worker starts.
func (r *Record) SealFingerprint() {
	params := map[string]interface{}{
		"seed":                  r.Parameters.Seed,
		"personas_per_district": r.Parameters.PersonasPerDistrict,
		"generator_type":        r.Parameters.GeneratorType,
		"model":                 r.Parameters.Model,
		"batch_size":            r.Parameters.BatchSize,
		"calibration_strength":  r.Parameters.CalibrationStrength,
		"turnout_boost":         r.Parameters.TurnoutBoost,
		"swing_noise_offset":    r.Parameters.SwingNoiseOffset,
		"factor_weights":        r.Parameters.FactorWeights,
	}
	paramsHash := core.ComputeParamsHash(params)

	data := fmt.Sprintf("id:%s|params:%s", r.ID, paramsHash)
	// Config hashes participate in sorted order via ComputeParamsHash.
	cfg := make(map[string]interface{}, len(r.ConfigHashes))
	for path, h := range r.ConfigHashes {
		cfg[path] = h.String()
	}
	data += "|configs:" + core.ComputeParamsHash(cfg).String()

	sum := sha256.Sum256([]byte(data))
	r.Fingerprint = Fingerprint{
		Seed:         r.Parameters.Seed,
		ParamsHash:   paramsHash,
		ConfigHashes: r.ConfigHashes,
		Value:        core.Hash(fmt.Sprintf("%x", sum)),
	}
}
