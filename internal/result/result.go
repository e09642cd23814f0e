// Package result defines Result, the flattened per-(year, application,
// substance) snapshot a ScenarioRunner emits at the end of each simulated
// year (spec §4.7). It mirrors internal/store.ResultRow's flattened,
// CSV-shaped record but keeps every value as an engnum.Number (with its
// unit) rather than a pre-formatted string, since Result is the engine's
// internal, in-process representation — formatting for storage or export
// happens at the boundary (internal/store, internal/report).
package result

import (
	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/store"
)

// TradeSupplement carries the per-channel initial-charge values used to
// convert trade (import/export) mass into equipment-count terms, spec
// §4.7's "tradeSupplement{importInitialChargeValue, ...}".
type TradeSupplement struct {
	ImportInitialChargeValue engnum.Number
	ExportInitialChargeValue engnum.Number
}

// Row is one (year, application, substance) snapshot.
type Row struct {
	Year        int
	Application string
	Substance   string

	Domestic engnum.Number
	Import   engnum.Number
	Export   engnum.Number
	Sales    engnum.Number
	Recycle  engnum.Number

	Population    engnum.Number
	PopulationNew engnum.Number

	// Consumption is the net GHG-equivalent figure after the recycling
	// credit (state.StreamConsumption). GHGConsumption is carried as a
	// distinct named field per spec §4.7's literal field list, but is
	// always equal to Consumption: this engine's Consumption figure is
	// already GHG-equivalent (kg x GWP -> tCO2e), so there is no second,
	// independently-computed quantity to report under that name.
	Consumption          engnum.Number
	ConsumptionNoRecycle engnum.Number
	RecycleConsumption   engnum.Number
	GHGConsumption       engnum.Number
	RechargeEmissions    engnum.Number
	EOLEmissions         engnum.Number
	EnergyConsumption    engnum.Number

	Trade TradeSupplement
}

// ToResultRow flattens a Row into the string-formatted shape
// internal/store.RunStore persists, decoupling the engine's internal
// Number-typed representation from the storage layer's plain-string one.
func (r Row) ToResultRow() store.ResultRow {
	return store.ResultRow{
		Year:                      r.Year,
		Application:               r.Application,
		Substance:                 r.Substance,
		DomesticKg:                r.Domestic.Value.String(),
		ImportKg:                  r.Import.Value.String(),
		ExportKg:                  r.Export.Value.String(),
		SalesKg:                   r.Sales.Value.String(),
		RecycleKg:                 r.Recycle.Value.String(),
		PopulationUnits:           r.Population.Value.String(),
		PopulationNewUnits:        r.PopulationNew.Value.String(),
		ConsumptionTCO2e:          r.Consumption.Value.String(),
		ConsumptionNoRecycleTCO2e: r.ConsumptionNoRecycle.Value.String(),
		RecycleConsumptionTCO2e:   r.RecycleConsumption.Value.String(),
		RechargeEmissionsTCO2e:    r.RechargeEmissions.Value.String(),
		EOLEmissionsTCO2e:         r.EOLEmissions.Value.String(),
		EnergyConsumptionKWh:      r.EnergyConsumption.Value.String(),
	}
}

// Set is the full output of one scenario/trial run: every Row produced
// across every simulated year, application, and substance, plus any
// non-fatal diagnostics accumulated along the way (spec §7: "Non-fatal
// diagnostics accumulate into a list attached to the Result set").
type Set struct {
	Scenario    string
	Trial       int
	Rows        []Row
	Diagnostics []string
}
