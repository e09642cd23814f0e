package recalc

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
)

func testScope() scope.Scope {
	return scope.Scope{Stanza: "business-as-usual", Application: "Domestic Refrigeration", Substance: "HFC-134a"}
}

func setupBasic(s *state.Store, sc scope.Scope) {
	k := sc.UseKey()
	s.SetInitialCharge(k, "domestic", engnum.New(decimal.NewFromInt(2), "kg/unit"))
	s.SetInitialCharge(k, "import", engnum.New(decimal.NewFromInt(2), "kg/unit"))
	s.SetGWP(k, decimal.NewFromInt(1430))
	s.SetRechargeSpec(k, state.RechargeSpec{
		PopulationFraction: decimal.NewFromInt(10),
		MassPerUnit:        decimal.NewFromInt(1),
	})
	s.SetStream(k, state.StreamPriorEquipment, engnum.New(decimal.NewFromInt(20), "units"))
	s.SetStream(k, state.StreamEquipment, engnum.New(decimal.NewFromInt(20), "units"))
}

func TestRechargeVolumeUsesPriorEquipment(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)

	kit := Kit{Store: s, Scope: sc, Year: 2025, Mode: PropagationStandard}
	got := RechargeVolume(kit)
	want := decimal.NewFromInt(2) // 20 * 10% * 1kg/unit
	if !got.Equal(want) {
		t.Errorf("expected recharge volume %s, got %s", want, got)
	}
}

func TestImplicitRechargeAddsOnTopInStandardMode(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)

	kit := Kit{Store: s, Scope: sc, Year: 2025, Mode: PropagationStandard}
	total, recharge := ImplicitRecharge(kit, decimal.NewFromInt(100))
	if !recharge.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected recharge 2, got %s", recharge)
	}
	if !total.Equal(decimal.NewFromInt(102)) {
		t.Errorf("expected total 102, got %s", total)
	}
}

func TestImplicitRechargeNoOpInExplicitMode(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)

	kit := Kit{Store: s, Scope: sc, Year: 2025, Mode: PropagationExplicitRecharge}
	total, recharge := ImplicitRecharge(kit, decimal.NewFromInt(100))
	if !recharge.IsZero() {
		t.Errorf("expected zero recharge in explicit mode, got %s", recharge)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected total unchanged at 100, got %s", total)
	}
}

func TestPopulationChangeAddsNewUnitsOnTopOfRetiredEquipment(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)
	k := sc.UseKey()

	if err := Retire(Kit{Store: s, Scope: sc}); err != nil {
		t.Fatalf("retire: %v", err)
	}
	equipmentAfterRetire := s.Stream(k, state.StreamEquipment).Value
	if !equipmentAfterRetire.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected no retirement without a configured rate, got %s", equipmentAfterRetire)
	}

	s.SetStream(k, state.StreamSales, engnum.New(decimal.NewFromInt(102), "kg"))
	if err := PopulationChange(Kit{Store: s, Scope: sc, Mode: PropagationStandard}); err != nil {
		t.Fatalf("population change: %v", err)
	}

	newUnits := s.Stream(k, state.StreamPopulationNew).Value
	if !newUnits.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected 50 new units ((102-2)/2), got %s", newUnits)
	}
	equipment := s.Stream(k, state.StreamEquipment).Value
	if !equipment.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected equipment 70 (20 prior + 50 new), got %s", equipment)
	}
}

func TestRetireAppliesRateToPriorEquipment(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)
	k := sc.UseKey()
	s.SetRetirementRate(k, decimal.NewFromInt(10), true)

	if err := Retire(Kit{Store: s, Scope: sc}); err != nil {
		t.Fatalf("retire: %v", err)
	}
	equipment := s.Stream(k, state.StreamEquipment).Value
	if !equipment.Equal(decimal.NewFromInt(18)) {
		t.Errorf("expected 18 (20 - 10%%), got %s", equipment)
	}
}

func TestConsumptionNetsOutRecycling(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)
	k := sc.UseKey()

	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(60), "kg"))
	s.SetStream(k, state.StreamImport, engnum.New(decimal.NewFromInt(40), "kg"))
	s.SetStream(k, state.StreamRecycle, engnum.New(decimal.NewFromInt(10), "kg"))

	if err := Consumption(Kit{Store: s, Scope: sc}); err != nil {
		t.Fatalf("consumption: %v", err)
	}

	gross := s.Stream(k, state.StreamConsumptionNoRecycle).Value
	if !gross.Equal(decimal.NewFromInt(100).Mul(decimal.NewFromInt(1430))) {
		t.Errorf("expected gross consumption 143000, got %s", gross)
	}
	net := s.Stream(k, state.StreamConsumption).Value
	wantNet := decimal.NewFromInt(90).Mul(decimal.NewFromInt(1430))
	if !net.Equal(wantNet) {
		t.Errorf("expected net consumption %s, got %s", wantNet, net)
	}
}

func TestRecyclingFullInductionLeavesVirginUnchanged(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)
	k := sc.UseKey()

	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(100), "kg"))
	s.SetStream(k, state.StreamImport, engnum.New(decimal.Zero, "kg"))
	s.SetRecoverySpec(k, state.StageRecharge, state.RecoverySpec{
		RecoveryFraction: decimal.NewFromInt(100),
		ReuseYield:       decimal.NewFromInt(100),
		InductionRate:    decimal.NewFromInt(1),
	}, false)

	if err := Recycling(Kit{Store: s, Scope: sc, Stage: state.StageRecharge}); err != nil {
		t.Fatalf("recycling: %v", err)
	}

	domestic := s.Stream(k, state.StreamDomestic).Value
	if !domestic.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected virgin domestic unchanged at full induction, got %s", domestic)
	}
	recycle := s.Stream(k, state.StreamRecycle).Value
	if !recycle.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected recycle 2 (recharge volume 2 fully recovered+reused), got %s", recycle)
	}
}

func TestRecyclingZeroInductionDisplacesVirgin(t *testing.T) {
	s := state.New()
	sc := testScope()
	setupBasic(s, sc)
	k := sc.UseKey()

	s.SetStream(k, state.StreamDomestic, engnum.New(decimal.NewFromInt(100), "kg"))
	s.SetStream(k, state.StreamImport, engnum.New(decimal.Zero, "kg"))
	s.SetRecoverySpec(k, state.StageRecharge, state.RecoverySpec{
		RecoveryFraction: decimal.NewFromInt(100),
		ReuseYield:       decimal.NewFromInt(100),
		InductionRate:    decimal.Zero,
	}, false)

	if err := Recycling(Kit{Store: s, Scope: sc, Stage: state.StageRecharge}); err != nil {
		t.Fatalf("recycling: %v", err)
	}

	domestic := s.Stream(k, state.StreamDomestic).Value
	if !domestic.Equal(decimal.NewFromInt(98)) {
		t.Errorf("expected virgin domestic displaced to 98 (100-2), got %s", domestic)
	}
}
