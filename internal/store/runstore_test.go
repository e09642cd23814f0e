package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRunStoreNilIsNoOp(t *testing.T) {
	var s *RunStore

	err := s.SaveRun(context.Background(), RunRecord{RunID: uuid.New()})
	if err != nil {
		t.Fatalf("expected nil RunStore.SaveRun to be a no-op, got %v", err)
	}

	if !s.Healthy(context.Background()) {
		t.Fatal("expected nil RunStore to report healthy")
	}
}

func TestNewRunStoreOverNilDBIsNoOp(t *testing.T) {
	s := NewRunStore(nil)

	rec := RunRecord{
		RunID:      uuid.New(),
		Scenario:   "bau",
		Trial:      0,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Outcome:    "ok",
		Rows: []ResultRow{
			{Year: 2025, Application: "refrigeration", Substance: "hfc-134a", DomesticKg: "100"},
		},
	}

	if err := s.SaveRun(context.Background(), rec); err != nil {
		t.Fatalf("expected SaveRun over nil *DB to be a no-op, got %v", err)
	}
	if !s.Healthy(context.Background()) {
		t.Fatal("expected store with nil *DB to report healthy")
	}
}

func TestConfigValidateRejectsEmptyDSN(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if err := cfg.validate(); err != ErrEmptyDSN {
		t.Fatalf("expected ErrEmptyDSN, got %v", err)
	}
}

func TestConfigValidateClampsIdleConns(t *testing.T) {
	cfg := Config{DSN: "postgres://localhost/db", MaxOpenConns: 5, MaxIdleConns: 50}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxIdleConns != 5 {
		t.Errorf("expected MaxIdleConns clamped to MaxOpenConns (5), got %d", cfg.MaxIdleConns)
	}
}
