// Package report serializes a result.Set to the bit-exact CSV column layout
// the engine's external callers depend on (spec.md §6.2). It is kept
// deliberately thin: no aggregation or derivation happens here, only
// flattening and string formatting.
//
// Grounded on the teacher's internal/reporting/excel.Generator (a
// bytes.Buffer plus encoding/csv writer, WriteAll/Flush/Error convention) —
// the only CSV-writing component in the corpus. encoding/csv is stdlib, but
// no example repo or library in the pack offers a CSV writer beyond it; the
// teacher itself reaches for encoding/csv directly rather than a
// third-party CSV library, so this package follows suit.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/example/kigalisim/internal/result"
)

// Columns is the bit-exact CSV header, in order, per spec.md §6.2.
var Columns = []string{
	"scenario", "trial", "year", "application", "substance",
	"domestic_kg", "import_kg", "export_kg", "sales_kg", "recycle_kg",
	"population_units", "populationNew_units",
	"consumption_tCO2e", "consumptionNoRecycle_tCO2e", "recycleConsumption_tCO2e",
	"rechargeEmissions_tCO2e", "eolEmissions_tCO2e", "energyConsumption_kwh",
}

// WriteCSV serializes every Row in every given Set into one CSV document
// with the header written once, per spec.md §6.2's bit-exact column
// contract. Values are written with full decimal precision (engnum.Number's
// underlying decimal.Decimal.String(), which never uses locale separators);
// the comma written by encoding/csv is strictly the column delimiter.
func WriteCSV(sets []result.Set) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Columns); err != nil {
		return nil, fmt.Errorf("report: write header: %w", err)
	}

	for _, set := range sets {
		for _, row := range set.Rows {
			record := []string{
				set.Scenario,
				fmt.Sprintf("%d", set.Trial),
				fmt.Sprintf("%d", row.Year),
				row.Application,
				row.Substance,
				row.Domestic.Value.String(),
				row.Import.Value.String(),
				row.Export.Value.String(),
				row.Sales.Value.String(),
				row.Recycle.Value.String(),
				row.Population.Value.String(),
				row.PopulationNew.Value.String(),
				row.Consumption.Value.String(),
				row.ConsumptionNoRecycle.Value.String(),
				row.RecycleConsumption.Value.String(),
				row.RechargeEmissions.Value.String(),
				row.EOLEmissions.Value.String(),
				row.EnergyConsumption.Value.String(),
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("report: write row (scenario=%s trial=%d year=%d): %w",
					set.Scenario, set.Trial, row.Year, err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("report: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSVString is a convenience wrapper returning the CSV document as a
// string, for callers (internal/engine) that assemble the "OK\n\n" + csv
// response body of spec.md §6.3 directly.
func WriteCSVString(sets []result.Set) (string, error) {
	b, err := WriteCSV(sets)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
