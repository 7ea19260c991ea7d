package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electsim/domain/core"
	"electsim/domain/experiment"
	"electsim/domain/result"
	"electsim/domain/vote"
	"electsim/ports"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "experiments"))
	require.NoError(t, err)
	return s
}

func sampleRecord(id string) *experiment.Record {
	rec := experiment.New(core.ExperimentID(id), experiment.Parameters{
		Seed:                42,
		PersonasPerDistrict: 100,
		GeneratorType:       "archetype",
		Workers:             8,
		FactorWeights:       vote.DefaultWeights(),
	}, time.Date(2026, 2, 8, 20, 15, 4, 0, time.UTC))
	return rec
}

func sampleArtifacts(rec *experiment.Record) ports.RunArtifacts {
	summary := result.NationalSummary{TotalDistricts: 1, TotalPersonas: 100, MajorityThreshold: 233}
	report := result.ValidationReport{Passed: true}
	return ports.RunArtifacts{
		Record: rec,
		DistrictResults: []result.DistrictResult{{
			DistrictID:     "13_1",
			TotalPersonas:  100,
			TurnoutCount:   60,
			TurnoutRate:    0.6,
			CandidateVotes: map[string]int{"c1": 40, "c2": 20},
		}},
		BlockResults: []result.BlockResult{{BlockID: "b_tokyo", Seats: 4}},
		Summary:      &summary,
		ValidationReport: &report,
		Decisions: map[core.DistrictID][]vote.Decision{
			"13_1": {{PersonaID: "p1", DistrictID: "13_1", WillVote: true, CandidateID: "c1"}},
		},
	}
}

func TestCreate_RejectsDuplicateID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord("sim_20260208_201504_seed42")
	require.NoError(t, s.Create(ctx, rec))

	err := s.Create(ctx, sampleRecord("sim_20260208_201504_seed42"))
	assert.ErrorIs(t, err, core.ErrIDCollision)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord("sim_20260208_201504_seed42")
	require.NoError(t, s.Create(ctx, rec))
	require.NoError(t, rec.Start())
	require.NoError(t, s.SaveResults(ctx, rec.ID, sampleArtifacts(rec)))
	require.NoError(t, rec.Complete(experiment.ResultsSummary{DistrictCount: 1}, time.Now()))
	require.NoError(t, s.UpdateRecord(ctx, rec))

	loaded, err := s.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusCompleted, loaded.Record.Status)
	require.Len(t, loaded.DistrictResults, 1)
	assert.Equal(t, 60, loaded.DistrictResults[0].TurnoutCount)
	require.NotNil(t, loaded.Summary)
	assert.Equal(t, 233, loaded.Summary.MajorityThreshold)
	require.NotNil(t, loaded.ValidationReport)
	assert.True(t, loaded.ValidationReport.Passed)
	require.Contains(t, loaded.Decisions, core.DistrictID("13_1"))
}

func TestLoad_MissingExperiment(t *testing.T) {
	s := newStore(t)
	_, err := s.Load(context.Background(), "sim_20990101_000000_seed1")
	assert.ErrorIs(t, err, core.ErrExperimentNotFound)
}

func TestSnapshotConfig_FreezesContentAndHash(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord("sim_20260208_201504_seed42")
	require.NoError(t, s.Create(ctx, rec))

	cfgPath := filepath.Join(t.TempDir(), "persona_config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("archetypes: []\n"), 0o644))

	hash, err := s.SnapshotConfig(ctx, rec.ID, cfgPath)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	// Mutating the live file must not touch the frozen copy.
	require.NoError(t, os.WriteFile(cfgPath, []byte("archetypes: [changed]\n"), 0o644))
	frozen, err := os.ReadFile(filepath.Join(s.dir(rec.ID), snapshotDir, "persona_config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "archetypes: []\n", string(frozen))

	hash2, err := s.SnapshotConfig(ctx, rec.ID, cfgPath)
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2, "hash must track content")
}

func TestLoad_DetectsTamperedSnapshot(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord("sim_20260208_201504_seed42")
	require.NoError(t, s.Create(ctx, rec))

	cfgPath := filepath.Join(t.TempDir(), "persona_config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("archetypes: []\n"), 0o644))
	hash, err := s.SnapshotConfig(ctx, rec.ID, cfgPath)
	require.NoError(t, err)
	rec.ConfigHashes = map[string]core.ConfigHash{cfgPath: hash}
	rec.SealFingerprint()
	require.NoError(t, s.UpdateRecord(ctx, rec))

	// Intact frozen copy loads cleanly.
	_, err = s.Load(ctx, rec.ID)
	require.NoError(t, err)

	frozen := filepath.Join(s.dir(rec.ID), snapshotDir, "persona_config.yaml")
	require.NoError(t, os.WriteFile(frozen, []byte("archetypes: [tampered]\n"), 0o644))

	_, err = s.Load(ctx, rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHashMismatch)
	assert.True(t, core.IsDeterminismError(err))
}

func TestLoad_DetectsSeedMismatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord("sim_20260208_201504_seed42")
	rec.SealFingerprint()
	require.NoError(t, s.Create(ctx, rec))

	// A record whose parameters disagree with the sealed fingerprint has
	// been edited after sealing.
	rec.Parameters.Seed = 43
	require.NoError(t, s.UpdateRecord(ctx, rec))

	_, err := s.Load(ctx, rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSeedMismatch)
	assert.True(t, core.IsDeterminismError(err))
}

func TestList_OldestFirstWithDecisionFlag(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	older := sampleRecord("sim_20260101_000000_seed1")
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, older))
	require.NoError(t, s.SaveResults(ctx, older.ID, sampleArtifacts(older)))

	newer := sampleRecord("sim_20260208_201504_seed42")
	require.NoError(t, s.Create(ctx, newer))

	metas, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, older.ID, metas[0].Record.ID)
	assert.True(t, metas[0].HasDecisions)
	assert.False(t, metas[1].HasDecisions)
}

func TestLoadActual(t *testing.T) {
	s := newStore(t)

	_, err := s.LoadActual(context.Background())
	assert.ErrorIs(t, err, core.ErrActualNotFound)

	actual := []result.DistrictResult{{DistrictID: "13_1", WinnerParty: "cons_union"}}
	require.NoError(t, s.writeJSON(filepath.Join(s.root, actualFile), actual))

	loaded, err := s.LoadActual(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, core.PartyID("cons_union"), loaded[0].WinnerParty)
}

func TestUpdateRecord_UnknownNamespace(t *testing.T) {
	s := newStore(t)
	err := s.UpdateRecord(context.Background(), sampleRecord("sim_20990101_000000_seed9"))
	assert.ErrorIs(t, err, core.ErrExperimentNotFound)
}
