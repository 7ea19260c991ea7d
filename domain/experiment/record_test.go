package experiment

import (
	"errors"
	"testing"
	"time"

	"electsim/domain/core"
	"electsim/domain/vote"
)

func testParams() Parameters {
	return Parameters{
		Seed:                42,
		PersonasPerDistrict: 100,
		GeneratorType:       "archetype",
		Model:               "gpt-4o-mini",
		BatchSize:           15,
		Workers:             8,
		CalibrationStrength: 0.3,
		FactorWeights:       vote.DefaultWeights(),
	}
}

func TestGenerateID_Composite(t *testing.T) {
	at := time.Date(2026, 2, 8, 20, 15, 4, 0, time.UTC)
	id := GenerateID(42, at)
	if id != "sim_20260208_201504_seed42" {
		t.Errorf("unexpected id: %s", id)
	}
}

func TestRecord_Lifecycle(t *testing.T) {
	rec := New(GenerateID(1, time.Now()), testParams(), time.Now())
	if rec.Status != StatusCreated {
		t.Fatalf("new record status = %s", rec.Status)
	}

	if err := rec.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("status after start = %s", rec.Status)
	}

	summary := ResultsSummary{DistrictCount: 10, ValidationPassed: true}
	if err := rec.Complete(summary, time.Now()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if rec.ResultsSummary == nil || rec.ResultsSummary.DistrictCount != 10 {
		t.Error("results summary not attached")
	}
	if rec.FinalizedAt == nil {
		t.Error("finalized timestamp not set")
	}

	// Terminal: no further transitions.
	if err := rec.Start(); !errors.Is(err, core.ErrRecordFinalized) {
		t.Errorf("expected ErrRecordFinalized, got %v", err)
	}
}

func TestRecord_FailPreservesParameters(t *testing.T) {
	p := testParams()
	p.Seed = 7
	rec := New(GenerateID(p.Seed, time.Now()), p, time.Now())
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Fail(errors.New("district 13_1 generation failed"), time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("status = %s", rec.Status)
	}
	if rec.StoredError == "" {
		t.Error("stored error empty")
	}
	if rec.Parameters.Seed != 7 {
		t.Error("parameters lost on failure")
	}
	if rec.ResultsSummary != nil {
		t.Error("failed record must not carry a results summary")
	}
}

func TestRecord_CreatedCannotComplete(t *testing.T) {
	rec := New(GenerateID(1, time.Now()), testParams(), time.Now())
	err := rec.Complete(ResultsSummary{}, time.Now())
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	at := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	hashes := map[string]core.ConfigHash{
		"persona_config.yaml": core.NewConfigHash([]byte("cfg")),
	}

	a := New(GenerateID(42, at), testParams(), at)
	a.ConfigHashes = hashes
	a.SealFingerprint()

	b := New(GenerateID(42, at), testParams(), at)
	b.ConfigHashes = hashes
	b.SealFingerprint()

	if a.Fingerprint.Value != b.Fingerprint.Value {
		t.Errorf("fingerprints differ: %s vs %s", a.Fingerprint.Value, b.Fingerprint.Value)
	}
	if a.Fingerprint.Value.IsEmpty() {
		t.Error("fingerprint empty")
	}
}

func TestFingerprint_SensitiveToParams(t *testing.T) {
	at := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	a := New(GenerateID(42, at), testParams(), at)
	a.SealFingerprint()

	p := testParams()
	p.CalibrationStrength = 0.7
	b := New(GenerateID(42, at), p, at)
	b.SealFingerprint()

	if a.Fingerprint.Value == b.Fingerprint.Value {
		t.Error("fingerprint should change when parameters change")
	}
}
