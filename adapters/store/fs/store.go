// Package fs persists experiments as one directory per run: versioned JSON
// artifacts plus frozen copies of every config file whose hash the record
// carries.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"electsim/domain/core"
	"electsim/domain/experiment"
	"electsim/domain/result"
	"electsim/internal/errors"
	"electsim/ports"
)

// Artifact file names inside an experiment namespace.
const (
	metadataFile     = "metadata.json"
	districtsFile    = "district_results.json"
	proportionalFile = "proportional_results.json"
	summaryFile      = "summary.json"
	validationFile   = "validation_report.json"
	calibrationFile  = "calibration_signals.json"
	decisionsFile    = "decisions.json"
	snapshotDir      = "config_snapshots"

	// actualFile at the store root holds recorded real results for
	// compare-to-actual.
	actualFile = "actual_results.json"
)

// Store is a filesystem-backed ExperimentStore rooted at a results
// directory.
type Store struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.StorageError("creating results directory", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) dir(id core.ExperimentID) string {
	return filepath.Join(s.root, string(id))
}

// Create opens the experiment namespace and writes the initial record.
func (s *Store) Create(ctx context.Context, rec *experiment.Record) error {
	dir := s.dir(rec.ID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", core.ErrIDCollision, rec.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.StorageError("creating experiment namespace", err)
	}
	return s.writeJSON(filepath.Join(dir, metadataFile), rec)
}

// UpdateRecord rewrites the metadata record.
func (s *Store) UpdateRecord(ctx context.Context, rec *experiment.Record) error {
	dir := s.dir(rec.ID)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", core.ErrExperimentNotFound, rec.ID)
	}
	return s.writeJSON(filepath.Join(dir, metadataFile), rec)
}

// SnapshotConfig copies the file into the namespace and returns its
// content hash. The frozen copy is what makes the hash auditable after the
// live file changes.
func (s *Store) SnapshotConfig(ctx context.Context, id core.ExperimentID, path string) (core.ConfigHash, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.StorageError("reading config "+path, err)
	}
	dst := filepath.Join(s.dir(id), snapshotDir, filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.StorageError("creating snapshot directory", err)
	}
	if err := os.WriteFile(dst, raw, 0o644); err != nil {
		return "", errors.StorageError("freezing config "+path, err)
	}
	return core.ConfigHash(core.NewHash(raw)), nil
}

// SaveResults writes every artifact in the set. Partial sets (failed runs)
// write only what exists.
func (s *Store) SaveResults(ctx context.Context, id core.ExperimentID, artifacts ports.RunArtifacts) error {
	dir := s.dir(id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)
	}

	if artifacts.DistrictResults != nil {
		if err := s.writeJSON(filepath.Join(dir, districtsFile), artifacts.DistrictResults); err != nil {
			return err
		}
	}
	if artifacts.BlockResults != nil {
		if err := s.writeJSON(filepath.Join(dir, proportionalFile), artifacts.BlockResults); err != nil {
			return err
		}
	}
	if artifacts.Summary != nil {
		if err := s.writeJSON(filepath.Join(dir, summaryFile), artifacts.Summary); err != nil {
			return err
		}
	}
	if artifacts.ValidationReport != nil {
		if err := s.writeJSON(filepath.Join(dir, validationFile), artifacts.ValidationReport); err != nil {
			return err
		}
	}
	if artifacts.CalibrationSignals != nil {
		if err := s.writeJSON(filepath.Join(dir, calibrationFile), artifacts.CalibrationSignals); err != nil {
			return err
		}
	}
	if artifacts.Decisions != nil {
		if err := s.writeJSON(filepath.Join(dir, decisionsFile), artifacts.Decisions); err != nil {
			return err
		}
	}
	return nil
}

// List returns metadata for all stored experiments, oldest first.
func (s *Store) List(ctx context.Context) ([]ports.ExperimentMeta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.StorageError("listing experiments", err)
	}
	var out []ports.ExperimentMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var rec experiment.Record
		if err := s.readJSON(filepath.Join(s.root, e.Name(), metadataFile), &rec); err != nil {
			continue // not an experiment namespace
		}
		_, statErr := os.Stat(filepath.Join(s.root, e.Name(), decisionsFile))
		out = append(out, ports.ExperimentMeta{
			Record:       rec,
			HasDecisions: statErr == nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.CreatedAt.Before(out[j].Record.CreatedAt) })
	return out, nil
}

// Load returns the full artifact set for one experiment.
func (s *Store) Load(ctx context.Context, id core.ExperimentID) (*ports.RunArtifacts, error) {
	dir := s.dir(id)
	var rec experiment.Record
	if err := s.readJSON(filepath.Join(dir, metadataFile), &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)
	}
	if err := s.verifyIntegrity(dir, &rec); err != nil {
		return nil, err
	}
	artifacts := &ports.RunArtifacts{Record: &rec}

	// Optional artifacts: absent on failed or partial runs.
	_ = s.readJSON(filepath.Join(dir, districtsFile), &artifacts.DistrictResults)
	_ = s.readJSON(filepath.Join(dir, proportionalFile), &artifacts.BlockResults)
	_ = s.readJSON(filepath.Join(dir, calibrationFile), &artifacts.CalibrationSignals)
	_ = s.readJSON(filepath.Join(dir, decisionsFile), &artifacts.Decisions)

	var summary result.NationalSummary
	if err := s.readJSON(filepath.Join(dir, summaryFile), &summary); err == nil {
		artifacts.Summary = &summary
	}
	var report result.ValidationReport
	if err := s.readJSON(filepath.Join(dir, validationFile), &report); err == nil {
		artifacts.ValidationReport = &report
	}
	return artifacts, nil
}

// verifyIntegrity re-checks the determinism evidence on load: every frozen
// config copy must still hash to what the record sealed, and the sealed
// fingerprint must agree with the parameter snapshot. Mismatches are
// surfaced, never repaired.
func (s *Store) verifyIntegrity(dir string, rec *experiment.Record) error {
	if !rec.Fingerprint.Value.IsEmpty() && rec.Fingerprint.Seed != rec.Parameters.Seed {
		return fmt.Errorf("%w: record %s sealed seed %d, parameters carry %d",
			core.ErrSeedMismatch, rec.ID, rec.Fingerprint.Seed, rec.Parameters.Seed)
	}
	for path, want := range rec.ConfigHashes {
		frozen := filepath.Join(dir, snapshotDir, filepath.Base(path))
		got, err := core.HashFile(frozen)
		if err != nil {
			return fmt.Errorf("%w: frozen copy of %s unreadable: %v",
				core.ErrHashMismatch, filepath.Base(path), err)
		}
		if !got.Equals(core.Hash(want)) {
			return fmt.Errorf("%w: %s in experiment %s", core.ErrHashMismatch, filepath.Base(path), rec.ID)
		}
	}
	return nil
}

// LoadActual reads the recorded real results from the store root.
func (s *Store) LoadActual(ctx context.Context) ([]result.DistrictResult, error) {
	var out []result.DistrictResult
	if err := s.readJSON(filepath.Join(s.root, actualFile), &out); err != nil {
		return nil, core.ErrActualNotFound
	}
	return out, nil
}

func (s *Store) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.StorageError("encoding "+filepath.Base(path), err)
	}
	// Write-then-rename so a crash never leaves a half-written artifact.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.StorageError("writing "+filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.StorageError("committing "+filepath.Base(path), err)
	}
	return nil
}

func (s *Store) readJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

var _ ports.ExperimentStore = (*Store)(nil)
