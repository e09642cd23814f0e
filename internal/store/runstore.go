package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ResultRow is the flattened per-(year, application, substance) record
// persisted for a run, mirroring the CSV column contract of spec.md §6.2.
// It is a plain data shape so this package does not need to import the
// engine's result package; the caller (internal/engine) converts each
// result.Row via Row.ToResultRow before calling RunStore.SaveRun.
type ResultRow struct {
	Year                      int
	Application               string
	Substance                 string
	DomesticKg                string
	ImportKg                  string
	ExportKg                  string
	SalesKg                   string
	RecycleKg                 string
	PopulationUnits           string
	PopulationNewUnits        string
	ConsumptionTCO2e          string
	ConsumptionNoRecycleTCO2e string
	RecycleConsumptionTCO2e   string
	RechargeEmissionsTCO2e    string
	EOLEmissionsTCO2e         string
	EnergyConsumptionKWh      string
}

// RunRecord describes one ParallelSimulationExecutor task's outcome.
type RunRecord struct {
	RunID      uuid.UUID
	Scenario   string
	Trial      int
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string // "ok" or "error"
	ErrorMsg   string
	Rows       []ResultRow
}

// RunStore persists RunRecords. A nil *RunStore (or one built over a nil
// *DB) is a no-op on every method — the run-history audit trail is
// optional and its absence must never affect engine correctness.
type RunStore struct {
	db *DB
}

// NewRunStore wraps a *DB in a RunStore. db may be nil, producing a
// no-op store.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun writes a run record and its result rows in a single transaction.
// No-op (returns nil) if the store has no underlying connection.
func (s *RunStore) SaveRun(ctx context.Context, rec RunRecord) error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var finishedAt any
		if !rec.FinishedAt.IsZero() {
			finishedAt = rec.FinishedAt
		}

		var errMsg any
		if rec.ErrorMsg != "" {
			errMsg = rec.ErrorMsg
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, scenario, trial, started_at, finished_at, outcome, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.RunID, rec.Scenario, rec.Trial, rec.StartedAt, finishedAt, rec.Outcome, errMsg)
		if err != nil {
			return err
		}

		for _, row := range rec.Rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO run_results (
					run_id, year, application, substance,
					domestic_kg, import_kg, export_kg, sales_kg, recycle_kg,
					population_units, population_new_units,
					consumption_tco2e, consumption_no_recycle_tco2e, recycle_consumption_tco2e,
					recharge_emissions_tco2e, eol_emissions_tco2e, energy_consumption_kwh
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			`,
				rec.RunID, row.Year, row.Application, row.Substance,
				row.DomesticKg, row.ImportKg, row.ExportKg, row.SalesKg, row.RecycleKg,
				row.PopulationUnits, row.PopulationNewUnits,
				row.ConsumptionTCO2e, row.ConsumptionNoRecycleTCO2e, row.RecycleConsumptionTCO2e,
				row.RechargeEmissionsTCO2e, row.EOLEmissionsTCO2e, row.EnergyConsumptionKWh,
			)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// Healthy reports whether the underlying connection is reachable. A
// RunStore with no connection is considered healthy (there is nothing to
// be unhealthy about).
func (s *RunStore) Healthy(ctx context.Context) bool {
	if s == nil || s.db == nil {
		return true
	}
	return s.db.HealthCheck(ctx) == nil
}
