package runner

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRunner() Runner {
	return Runner{Logger: testLogger()}
}

func yearRange(start, end int) operation.YearMatcher {
	return operation.YearRange{Start: &start, End: &end}
}

func yearFrom(start int) operation.YearMatcher {
	return operation.YearRange{Start: &start}
}

// TestMidYearGrowthSurvivesFinalRetire regresses the ordering bug where the
// final retirement recalc recomputed equipment purely from priorEquipment,
// discarding population growth a same-year sales write had already added on
// top of it (spec §4.6 step 3b must be preserved through step 3c).
func TestMidYearGrowthSurvivesFinalRetire(t *testing.T) {
	stanza := Stanza{
		Name: "Baseline",
		Ops: map[string]map[string][]operation.Operation{
			"Domestic Refrigeration": {
				"HFC-134a": []operation.Operation{
					operation.InitialCharge{Channel: "domestic", Intensity: engnum.New(decimal.NewFromInt(2), "kg/unit")},
					operation.Set{Stream: state.StreamSales, Amount: engnum.New(decimal.NewFromInt(100), "kg"), Matcher: yearRange(2025, 2025)},
					operation.Set{Stream: state.StreamSales, Amount: engnum.New(decimal.NewFromInt(150), "kg"), Matcher: yearRange(2026, 2026)},
					operation.Retire{Rate: decimal.NewFromInt(10), Matcher: yearFrom(2026)},
				},
			},
		},
	}
	def := ScenarioDef{Name: "test", Baseline: stanza, StartYear: 2025, EndYear: 2026}

	set, err := testRunner().Run(context.Background(), def, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(set.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(set.Rows))
	}

	year2 := set.Rows[1]
	if year2.Year != 2026 {
		t.Fatalf("expected row[1] to be year 2026, got %d", year2.Year)
	}
	// 50 units from year1's sale, +75 new from year2's 150kg sale (no
	// recharge configured), minus 5 retired (10% of priorEquipment 50) =
	// 120. A buggy Retire() that recomputes from priorEquipment alone would
	// instead yield 45 (50 - 5), silently dropping the 75 new units.
	want := decimal.NewFromInt(120)
	if !year2.Population.Value.Equal(want) {
		t.Errorf("expected population %s after mid-year growth plus retirement, got %s", want, year2.Population.Value)
	}
}

// TestOrderSensitivity verifies spec §8 invariant 6: applying two
// overlapping-target policies in different orders produces different,
// deterministic results.
func TestOrderSensitivity(t *testing.T) {
	baseline := Stanza{
		Name: "Baseline",
		Ops: map[string]map[string][]operation.Operation{
			"Domestic Refrigeration": {
				"HFC-134a": []operation.Operation{
					operation.Set{Stream: state.StreamDomestic, Amount: engnum.New(decimal.NewFromInt(100), "kg"), Matcher: operation.AllYears{}},
				},
			},
		},
	}
	capPolicy := Stanza{
		Name: "Cap",
		Ops: map[string]map[string][]operation.Operation{
			"Domestic Refrigeration": {
				"HFC-134a": []operation.Operation{
					operation.Cap{Stream: state.StreamDomestic, Limit: engnum.New(decimal.NewFromInt(50), "kg"), Matcher: operation.AllYears{}},
				},
			},
		},
	}
	changePolicy := Stanza{
		Name: "Change",
		Ops: map[string]map[string][]operation.Operation{
			"Domestic Refrigeration": {
				"HFC-134a": []operation.Operation{
					operation.Change{Stream: state.StreamDomestic, Delta: engnum.New(decimal.NewFromInt(20), "kg"), Matcher: operation.AllYears{}},
				},
			},
		},
	}

	runOnce := func(policies []Stanza) decimal.Decimal {
		def := ScenarioDef{Name: "order", Baseline: baseline, Policies: policies, StartYear: 2025, EndYear: 2025}
		set, err := testRunner().Run(context.Background(), def, 0)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(set.Rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(set.Rows))
		}
		return set.Rows[0].Domestic.Value
	}

	capThenChange := runOnce([]Stanza{capPolicy, changePolicy})
	changeThenCap := runOnce([]Stanza{changePolicy, capPolicy})

	if capThenChange.Equal(changeThenCap) {
		t.Fatalf("expected order to matter, got same result %s both ways", capThenChange)
	}
	if !capThenChange.Equal(decimal.NewFromInt(70)) {
		t.Errorf("cap-then-change: expected 70, got %s", capThenChange)
	}
	if !changeThenCap.Equal(decimal.NewFromInt(50)) {
		t.Errorf("change-then-cap: expected 50, got %s", changeThenCap)
	}
}

// TestAdditiveRetirementSameYear regresses spec §8 invariant 7 and E5: two
// retire operations in the same year combine additively, clamped to
// [0,100].
func TestAdditiveRetirementSameYear(t *testing.T) {
	stanza := Stanza{
		Name: "Baseline",
		Ops: map[string]map[string][]operation.Operation{
			"Domestic Refrigeration": {
				"HFC-134a": []operation.Operation{
					operation.InitialCharge{Channel: "domestic", Intensity: engnum.New(decimal.NewFromInt(1), "kg/unit")},
					operation.Set{Stream: state.StreamEquipment, Amount: engnum.New(decimal.NewFromInt(100), "units"), Matcher: yearRange(2024, 2024)},
					operation.Retire{Rate: decimal.NewFromInt(10), Matcher: yearFrom(2025)},
					operation.Retire{Rate: decimal.NewFromInt(5), Matcher: yearFrom(2025)},
				},
			},
		},
	}
	def := ScenarioDef{Name: "retire", Baseline: stanza, StartYear: 2024, EndYear: 2025}

	set, err := testRunner().Run(context.Background(), def, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	year2 := set.Rows[1]
	// priorEquipment entering year 2 is 100 (set in year 1); two retire
	// operations contribute 10% + 5% = 15%, retiring 15 units, leaving 85
	// before any new sales (none configured here).
	want := decimal.NewFromInt(85)
	if !year2.Population.Value.Equal(want) {
		t.Errorf("expected population %s after additive retirement, got %s", want, year2.Population.Value)
	}
}
