// Package postgres persists experiments in PostgreSQL. Records and
// artifact tables are stored as JSONB columns keyed by experiment id, one
// row per experiment plus one row per frozen config snapshot.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"electsim/domain/core"
	"electsim/domain/experiment"
	"electsim/domain/result"
	"electsim/domain/vote"
	"electsim/internal/errors"
	"electsim/ports"
)

// Store implements ports.ExperimentStore over PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// Open connects and ensures the schema exists.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.StorageError("connecting to postgres", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			record JSONB NOT NULL,
			district_results JSONB,
			block_results JSONB,
			summary JSONB,
			validation_report JSONB,
			calibration_signals JSONB,
			decisions JSONB
		);
		CREATE TABLE IF NOT EXISTS config_snapshots (
			experiment_id TEXT NOT NULL REFERENCES experiments(id),
			path TEXT NOT NULL,
			content BYTEA NOT NULL,
			content_hash TEXT NOT NULL,
			PRIMARY KEY (experiment_id, path)
		);
		CREATE TABLE IF NOT EXISTS actual_results (
			id INT PRIMARY KEY DEFAULT 1,
			districts JSONB NOT NULL
		);
	`)
	if err != nil {
		return errors.StorageError("creating schema", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts the initial record, rejecting duplicate ids.
func (s *Store) Create(ctx context.Context, rec *experiment.Record) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return errors.StorageError("encoding record", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, status, created_at, record)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, string(rec.ID), string(rec.Status), rec.CreatedAt, record)
	if err != nil {
		return errors.StorageError("creating experiment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError("creating experiment", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrIDCollision, rec.ID)
	}
	return nil
}

// UpdateRecord rewrites the metadata record and status column.
func (s *Store) UpdateRecord(ctx context.Context, rec *experiment.Record) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return errors.StorageError("encoding record", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE experiments SET status = $2, record = $3 WHERE id = $1
	`, string(rec.ID), string(rec.Status), record)
	if err != nil {
		return errors.StorageError("updating record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrExperimentNotFound, rec.ID)
	}
	return nil
}

// SnapshotConfig freezes the file content into the snapshot table and
// returns its hash.
func (s *Store) SnapshotConfig(ctx context.Context, id core.ExperimentID, path string) (core.ConfigHash, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.StorageError("reading config "+path, err)
	}
	hash := core.ConfigHash(core.NewHash(raw))
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_snapshots (experiment_id, path, content, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (experiment_id, path) DO UPDATE SET content = $3, content_hash = $4
	`, string(id), path, raw, hash.String())
	if err != nil {
		return "", errors.StorageError("freezing config "+path, err)
	}
	return hash, nil
}

// SaveResults writes the artifact columns that are present.
func (s *Store) SaveResults(ctx context.Context, id core.ExperimentID, artifacts ports.RunArtifacts) error {
	cols := map[string]interface{}{
		"district_results":    artifacts.DistrictResults,
		"block_results":       artifacts.BlockResults,
		"summary":             artifacts.Summary,
		"validation_report":   artifacts.ValidationReport,
		"calibration_signals": artifacts.CalibrationSignals,
		"decisions":           artifacts.Decisions,
	}
	for col, v := range cols {
		if isNil(v) {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return errors.StorageError("encoding "+col, err)
		}
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE experiments SET %s = $2 WHERE id = $1`, col),
			string(id), data)
		if err != nil {
			return errors.StorageError("writing "+col, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)
		}
	}
	return nil
}

// List returns metadata for all stored experiments, oldest first.
func (s *Store) List(ctx context.Context) ([]ports.ExperimentMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record, decisions IS NOT NULL
		FROM experiments
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errors.StorageError("listing experiments", err)
	}
	defer rows.Close()

	var out []ports.ExperimentMeta
	for rows.Next() {
		var record []byte
		var hasDecisions bool
		if err := rows.Scan(&record, &hasDecisions); err != nil {
			return nil, errors.StorageError("scanning experiment row", err)
		}
		var rec experiment.Record
		if err := json.Unmarshal(record, &rec); err != nil {
			return nil, errors.StorageError("decoding record", err)
		}
		out = append(out, ports.ExperimentMeta{Record: rec, HasDecisions: hasDecisions})
	}
	return out, rows.Err()
}

// Load returns the full artifact set for one experiment.
func (s *Store) Load(ctx context.Context, id core.ExperimentID) (*ports.RunArtifacts, error) {
	var row struct {
		Record             []byte `db:"record"`
		DistrictResults    []byte `db:"district_results"`
		BlockResults       []byte `db:"block_results"`
		Summary            []byte `db:"summary"`
		ValidationReport   []byte `db:"validation_report"`
		CalibrationSignals []byte `db:"calibration_signals"`
		Decisions          []byte `db:"decisions"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT record, district_results, block_results, summary,
		       validation_report, calibration_signals, decisions
		FROM experiments WHERE id = $1
	`, string(id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrExperimentNotFound, id)
	}
	if err != nil {
		return nil, errors.StorageError("loading experiment", err)
	}

	var rec experiment.Record
	if err := json.Unmarshal(row.Record, &rec); err != nil {
		return nil, errors.StorageError("decoding record", err)
	}
	if err := s.verifyIntegrity(ctx, &rec); err != nil {
		return nil, err
	}
	artifacts := &ports.RunArtifacts{Record: &rec}

	decode := func(raw []byte, v interface{}) {
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, v)
		}
	}
	decode(row.DistrictResults, &artifacts.DistrictResults)
	decode(row.BlockResults, &artifacts.BlockResults)
	decode(row.CalibrationSignals, &artifacts.CalibrationSignals)
	decode(row.Decisions, &artifacts.Decisions)
	if len(row.Summary) > 0 {
		var summary result.NationalSummary
		if err := json.Unmarshal(row.Summary, &summary); err == nil {
			artifacts.Summary = &summary
		}
	}
	if len(row.ValidationReport) > 0 {
		var report result.ValidationReport
		if err := json.Unmarshal(row.ValidationReport, &report); err == nil {
			artifacts.ValidationReport = &report
		}
	}
	return artifacts, nil
}

// verifyIntegrity re-hashes the frozen snapshot rows against the record's
// sealed hashes and checks the fingerprint seed against the parameter
// snapshot. Mismatches are surfaced, never repaired.
func (s *Store) verifyIntegrity(ctx context.Context, rec *experiment.Record) error {
	if !rec.Fingerprint.Value.IsEmpty() && rec.Fingerprint.Seed != rec.Parameters.Seed {
		return fmt.Errorf("%w: record %s sealed seed %d, parameters carry %d",
			core.ErrSeedMismatch, rec.ID, rec.Fingerprint.Seed, rec.Parameters.Seed)
	}
	if len(rec.ConfigHashes) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, content FROM config_snapshots WHERE experiment_id = $1
	`, string(rec.ID))
	if err != nil {
		return errors.StorageError("reading config snapshots", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		var content []byte
		if err := rows.Scan(&path, &content); err != nil {
			return errors.StorageError("scanning config snapshot", err)
		}
		want, ok := rec.ConfigHashes[path]
		if !ok {
			continue
		}
		if !core.NewHash(content).Equals(core.Hash(want)) {
			return fmt.Errorf("%w: %s in experiment %s", core.ErrHashMismatch, path, rec.ID)
		}
	}
	return rows.Err()
}

// LoadActual reads the recorded real election results.
func (s *Store) LoadActual(ctx context.Context) ([]result.DistrictResult, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT districts FROM actual_results WHERE id = 1`)
	if err == sql.ErrNoRows {
		return nil, core.ErrActualNotFound
	}
	if err != nil {
		return nil, errors.StorageError("loading actual results", err)
	}
	var out []result.DistrictResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.StorageError("decoding actual results", err)
	}
	return out, nil
}

func isNil(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *result.NationalSummary:
		return x == nil
	case *result.ValidationReport:
		return x == nil
	case []result.DistrictResult:
		return x == nil
	case []result.BlockResult:
		return x == nil
	case []result.CalibrationSignal:
		return x == nil
	case map[core.DistrictID][]vote.Decision:
		return x == nil
	default:
		return false
	}
}

var _ ports.ExperimentStore = (*Store)(nil)
