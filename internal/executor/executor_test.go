package executor

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/recalc"
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
)

func newCtx(s *state.Store, sc scope.Scope) Context {
	return Context{Store: s, Scope: sc, Year: 2025, Mode: recalc.PropagationStandard}
}

// E1: cap by mass.
func TestCapByMass(t *testing.T) {
	s := state.New()
	sc := scope.Scope{Stanza: "bau", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	k := sc.UseKey()
	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(100), "kg"))

	ctx := newCtx(s, sc)
	op := operation.Cap{Stream: state.StreamDomestic, Limit: engnum.New(decimal.NewFromInt(50), "kg"), Matcher: operation.AllYears{}}
	if err := Cap(ctx, op); err != nil {
		t.Fatalf("cap: %v", err)
	}

	got := s.Stream(k, state.StreamDomestic).Value
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected domestic capped to 50, got %s", got)
	}
}

// E2: cap by units with recharge on top leaves baseline untouched.
func TestCapByUnitsWithRechargeNoOp(t *testing.T) {
	s := state.New()
	sc := scope.Scope{Stanza: "bau", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	k := sc.UseKey()

	s.SetStream(k, state.StreamPriorEquipment, engnum.New(decimal.NewFromInt(20), "units"))
	s.SetInitialCharge(k, "domestic", engnum.New(decimal.NewFromInt(2), "kg/unit"))
	s.SetInitialCharge(k, "import", engnum.New(decimal.NewFromInt(2), "kg/unit"))
	s.SetRechargeSpec(k, state.RechargeSpec{PopulationFraction: decimal.NewFromInt(10), MassPerUnit: decimal.NewFromInt(1)})
	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(100), "kg"))
	s.SetStream(k, state.StreamSales, engnum.New(decimal.NewFromInt(100), "kg"))

	ctx := newCtx(s, sc)
	op := operation.Cap{Stream: state.StreamSales, Limit: engnum.New(decimal.NewFromInt(50), "units"), Matcher: operation.AllYears{}}
	if err := Cap(ctx, op); err != nil {
		t.Fatalf("cap: %v", err)
	}

	got := s.Stream(k, state.StreamDomestic).Value
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected domestic unchanged at 100 (cap bound 102 >= baseline 100), got %s", got)
	}
}

// E3: cap with units displacement to another substance.
func TestCapWithUnitsDisplacement(t *testing.T) {
	s := state.New()
	app := "Domestic Refrigeration"
	source := scope.Scope{Stanza: "bau", Application: app, Substance: "HFC-134a"}
	target := scope.Scope{Stanza: "bau", Application: app, Substance: "HFO-1234yf"}
	sk := source.UseKey()
	tk := target.UseKey()

	s.SetStream(sk, state.StreamPriorEquipment, engnum.New(decimal.NewFromInt(20), "units"))
	s.SetInitialCharge(sk, "domestic", engnum.New(decimal.NewFromInt(10), "kg/unit"))
	s.SetInitialCharge(sk, "import", engnum.New(decimal.NewFromInt(10), "kg/unit"))
	s.SetRechargeSpec(sk, state.RechargeSpec{PopulationFraction: decimal.NewFromInt(10), MassPerUnit: decimal.NewFromInt(10)})
	s.SetStream(sk, state.StreamDomestic, engnum.New(decimal.NewFromInt(300), "kg"))
	s.SetStream(sk, state.StreamSales, engnum.New(decimal.NewFromInt(300), "kg"))

	s.SetInitialCharge(tk, "domestic", engnum.New(decimal.NewFromInt(20), "kg/unit"))
	s.SetInitialCharge(tk, "import", engnum.New(decimal.NewFromInt(20), "kg/unit"))
	s.SetStream(tk, state.StreamDomestic, engnum.New(decimal.NewFromInt(200), "kg"))
	s.SetStream(tk, state.StreamSales, engnum.New(decimal.NewFromInt(200), "kg"))

	ctx := newCtx(s, source)
	op := operation.Cap{
		Stream: state.StreamSales, Limit: engnum.New(decimal.NewFromInt(5), "units"), Matcher: operation.AllYears{},
		DisplaceTarget: "HFO-1234yf", DisplacementType: operation.DisplacementByUnits,
	}
	if err := Cap(ctx, op); err != nil {
		t.Fatalf("cap: %v", err)
	}

	sourceSales := s.Stream(sk, state.StreamSales).Value
	if !sourceSales.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected source sales 70 (50+20 recharge), got %s", sourceSales)
	}
	targetSales := s.Stream(tk, state.StreamSales).Value
	if !targetSales.Equal(decimal.NewFromInt(660)) {
		t.Errorf("expected target sales 660 (200+460), got %s", targetSales)
	}
}

// E4: additive mass change.
func TestAdditiveChange(t *testing.T) {
	s := state.New()
	sc := scope.Scope{Stanza: "bau", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	k := sc.UseKey()
	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(100), "kg"))

	ctx := newCtx(s, sc)
	if err := Change(ctx, operation.Change{Stream: state.StreamDomestic, Delta: engnum.New(decimal.NewFromInt(10), "kg"), Matcher: operation.AllYears{}}); err != nil {
		t.Fatalf("change +10: %v", err)
	}
	if err := Change(ctx, operation.Change{Stream: state.StreamDomestic, Delta: engnum.New(decimal.NewFromInt(-5), "kg"), Matcher: operation.AllYears{}}); err != nil {
		t.Fatalf("change -5: %v", err)
	}

	got := s.Stream(k, state.StreamDomestic).Value
	if !got.Equal(decimal.NewFromInt(105)) {
		t.Errorf("expected 105, got %s", got)
	}
}

// E6: 0% induction full displacement of virgin supply.
func TestZeroInductionDisplacement(t *testing.T) {
	s := state.New()
	sc := scope.Scope{Stanza: "bau", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	k := sc.UseKey()

	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(100), "kg"))
	s.SetStream(k, state.StreamImport, engnum.New(decimal.Zero, "kg"))
	s.SetStream(k, state.StreamPriorEquipment, engnum.New(decimal.NewFromInt(100), "units"))
	s.SetRechargeSpec(k, state.RechargeSpec{PopulationFraction: decimal.NewFromInt(20), MassPerUnit: decimal.NewFromInt(1)})
	s.SetRecoverySpec(k, state.StageRecharge, state.RecoverySpec{
		RecoveryFraction: decimal.NewFromInt(100),
		ReuseYield:       decimal.NewFromInt(90),
		InductionRate:    decimal.Zero,
	}, false)

	kit := recalc.Kit{Store: s, Scope: sc, Year: 2026, Stage: state.StageRecharge}
	if err := recalc.Recycling(kit); err != nil {
		t.Fatalf("recycling: %v", err)
	}

	recycle := s.Stream(k, state.StreamRecycle).Value
	if !recycle.Equal(decimal.NewFromInt(18)) {
		t.Errorf("expected recycled 18kg, got %s", recycle)
	}
	domestic := s.Stream(k, state.StreamDomestic).Value
	if !domestic.Equal(decimal.NewFromInt(82)) {
		t.Errorf("expected virgin 82kg, got %s", domestic)
	}
	total := domestic.Add(recycle)
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected total supply 100kg, got %s", total)
	}
}

func TestFloorIncreasesBelowMinimum(t *testing.T) {
	s := state.New()
	sc := scope.Scope{Stanza: "bau", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	k := sc.UseKey()
	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(30), "kg"))

	ctx := newCtx(s, sc)
	op := operation.Floor{Stream: state.StreamDomestic, Limit: engnum.New(decimal.NewFromInt(50), "kg"), Matcher: operation.AllYears{}}
	if err := Floor(ctx, op); err != nil {
		t.Fatalf("floor: %v", err)
	}
	got := s.Stream(k, state.StreamDomestic).Value
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected floor to raise domestic to 50, got %s", got)
	}
}

func TestDisplaceRejectsImportToImportSameSubstance(t *testing.T) {
	s := state.New()
	sc := scope.Scope{Stanza: "bau", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	ctx := newCtx(s, sc)

	err := Displace(ctx, state.StreamImport, decimal.NewFromInt(10), "HFC-134a", operation.DisplacementEquivalent)
	if err == nil {
		t.Fatal("expected InvalidDisplacement error for import-to-self displacement")
	}
}
