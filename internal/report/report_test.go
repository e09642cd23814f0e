package report_test

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/report"
	"github.com/example/kigalisim/internal/result"
)

func num(v int64) engnum.Number {
	return engnum.New(decimal.NewFromInt(v), "kg")
}

func sampleSet() result.Set {
	return result.Set{
		Scenario: "BAU",
		Trial:    0,
		Rows: []result.Row{
			{
				Year: 2025, Application: "Domestic Refrigeration", Substance: "HFC-134a",
				Domestic: num(100), Import: num(0), Export: num(0), Sales: num(100), Recycle: num(0),
				Population: num(10), PopulationNew: num(10),
				Consumption: num(143), ConsumptionNoRecycle: num(143), RecycleConsumption: num(0),
				RechargeEmissions: num(0), EOLEmissions: num(0), EnergyConsumption: num(0),
			},
		},
	}
}

func TestWriteCSVHeaderMatchesColumnContract(t *testing.T) {
	out, err := report.WriteCSV([]result.Set{sampleSet()})
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(out)))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, report.Columns, records[0])
}

func TestWriteCSVRowValues(t *testing.T) {
	out, err := report.WriteCSVString([]result.Set{sampleSet()})
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(out))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	row := records[1]
	assert.Equal(t, "BAU", row[0])
	assert.Equal(t, "0", row[1])
	assert.Equal(t, "2025", row[2])
	assert.Equal(t, "Domestic Refrigeration", row[3])
	assert.Equal(t, "HFC-134a", row[4])
	assert.Equal(t, "100", row[5])
}

func TestWriteCSVMultipleSetsConcatenated(t *testing.T) {
	a := sampleSet()
	b := sampleSet()
	b.Scenario = "Policy"
	b.Trial = 1

	out, err := report.WriteCSV([]result.Set{a, b})
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(out)))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 rows
	assert.Equal(t, "Policy", records[2][0])
}

func TestWriteCSVEmptyInputProducesHeaderOnly(t *testing.T) {
	out, err := report.WriteCSV(nil)
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(out)))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, report.Columns, records[0])
}
