package ports

import (
	"context"

	"electsim/domain/core"
	"electsim/domain/experiment"
	"electsim/domain/result"
	"electsim/domain/vote"
)

// RunArtifacts is the persisted artifact set of one run, keyed by the
// experiment namespace.
type RunArtifacts struct {
	Record             *experiment.Record
	DistrictResults    []result.DistrictResult
	BlockResults       []result.BlockResult
	Summary            *result.NationalSummary
	ValidationReport   *result.ValidationReport
	CalibrationSignals []result.CalibrationSignal
	Decisions          map[core.DistrictID][]vote.Decision
}

// ExperimentMeta is the listing row for one stored experiment.
type ExperimentMeta struct {
	Record       experiment.Record
	HasDecisions bool
}

// ExperimentStore persists experiment records and their artifacts. One
// experiment occupies one namespace keyed by its generated id; Create
// rejects an id that already exists in the backend.
type ExperimentStore interface {
	// Create opens the namespace and writes the initial record.
	// Returns core.ErrIDCollision if the id is taken.
	Create(ctx context.Context, rec *experiment.Record) error

	// UpdateRecord rewrites the metadata record (status transitions,
	// finalization). The record itself enforces transition legality.
	UpdateRecord(ctx context.Context, rec *experiment.Record) error

	// SnapshotConfig stores a frozen copy of a config file inside the
	// experiment namespace and returns its content hash.
	SnapshotConfig(ctx context.Context, id core.ExperimentID, path string) (core.ConfigHash, error)

	// SaveResults writes the result tables, summary, validation report,
	// calibration signals and decision log.
	SaveResults(ctx context.Context, id core.ExperimentID, artifacts RunArtifacts) error

	// List returns metadata for all stored experiments, oldest first.
	List(ctx context.Context) ([]ExperimentMeta, error)

	// Load returns the full artifact set for one experiment.
	// Returns core.ErrExperimentNotFound if absent.
	Load(ctx context.Context, id core.ExperimentID) (*RunArtifacts, error)

	// LoadActual returns the recorded real election results, if present.
	// Returns core.ErrActualNotFound otherwise.
	LoadActual(ctx context.Context) ([]result.DistrictResult, error)
}
