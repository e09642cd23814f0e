// Package recalc implements the dependency-propagation engine: the
// atomic recalc functions (population change, sales, retire, consumption,
// energy, recycling) and the ordered Chains executors trigger after a
// stream write (spec §4.4).
//
// Per spec §9's redesign note against an "engine-as-implicit-state"
// object, every recalc is a free function over a Kit value — a small
// read/write handle on the active state.Store, scope.Scope, year, and
// PropagationMode — rather than a method on a stateful engine that holds
// executor back-references. This mirrors internal/emissions/calculator.go's
// calculator-registry pattern, adapted from a method-dispatch registry
// into free functions composed by value.
package recalc

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
)

// PropagationMode replaces the source's propagateChanges/useExplicitRecharge
// boolean pair (spec §9) with an explicit three-way mode.
type PropagationMode int

const (
	// PropagationSkip performs the stream write only; no recalc chain runs.
	// Used by DisplaceExecutor, which triggers its own targeted recalc
	// afterward.
	PropagationSkip PropagationMode = iota
	// PropagationStandard runs the normal chain, adding implicit recharge
	// on top of a unit-specified sales value.
	PropagationStandard
	// PropagationExplicitRecharge runs the normal chain but treats the
	// written sales value as already inclusive of recharge.
	PropagationExplicitRecharge
)

// String names a PropagationMode for metrics labels and log output.
func (m PropagationMode) String() string {
	switch m {
	case PropagationSkip:
		return "skip"
	case PropagationStandard:
		return "standard"
	case PropagationExplicitRecharge:
		return "explicit_recharge"
	default:
		return "unknown"
	}
}

// Kit is the read/write handle passed by value to every recalc function.
type Kit struct {
	Store *state.Store
	Scope scope.Scope
	Year  int
	Mode  PropagationMode
	// Stage is read by Recycling; ignored by the other recalc functions.
	Stage state.RecoveryStage

	// Metrics, if set, records one RecordRecalc(mode) observation per
	// atomic recalc function invoked through this Kit (C16).
	Metrics *metrics.Metrics
	// Cache, if set, memoizes UnitConverter contexts built via Convert
	// (C15).
	Cache *cache.ConverterCache
	// Ctx bounds the Cache round trip; defaults to context.Background()
	// when unset, so a Kit built without one (e.g. in tests) still works.
	Ctx context.Context
}

func (k Kit) ctx() context.Context {
	if k.Ctx != nil {
		return k.Ctx
	}
	return context.Background()
}

// record observes one recalc invocation under k.Mode. Nil-safe.
func (k Kit) record() {
	if k.Metrics != nil {
		k.Metrics.RecordRecalc(k.Mode.String())
	}
}

// Convert builds an engnum.Converter for convCtx and converts value to
// target. When Kit carries a ConverterCache, the lookup is recorded as a
// hit or miss against a hash of convCtx's fields (spec.md's Redis-backed
// UnitConverter-context memoization, C15) — a hit never skips the local
// arithmetic itself, it only tells the operator that some worker in the
// fleet built an identical context recently (see cache.ConverterCache).
func (k Kit) Convert(convCtx engnum.Context, value engnum.Number, target string) (engnum.Number, error) {
	if k.Cache != nil {
		key := cache.ContextKey(convCtx)
		hit := k.Cache.Get(k.ctx(), key)
		k.Metrics.RecordConverterCache(hit)
		if !hit {
			k.Cache.Put(k.ctx(), key)
		}
	}
	return engnum.NewConverter(convCtx).Convert(value, target)
}

// Func is the signature every atomic recalc and every chain step conforms
// to.
type Func func(Kit) error

// Chain is an ordered, composable sequence of recalc functions — a value,
// not a mutable builder object (spec §9).
type Chain []Func

// Run executes every step in order, stopping at the first error.
func (c Chain) Run(kit Kit) error {
	for _, fn := range c {
		if err := fn(kit); err != nil {
			return err
		}
	}
	return nil
}

// Predefined propagation chains (spec §4.4).
var (
	AfterSalesWrite          = Chain{PopulationChange, Consumption}
	AfterConsumptionWrite    = Chain{Sales, PopulationChange}
	AfterEquipmentWrite      = Chain{Sales, Consumption}
	AfterPriorEquipmentWrite = Chain{Retire}
)

func key(kit Kit) scope.UseKey { return kit.Scope.UseKey() }

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// BlendedInitialCharge returns the distribution-weighted average per-unit
// mass across the domestic and import channels, used whenever new
// equipment must be amortized back into a unit count.
func BlendedInitialCharge(kit Kit) decimal.Decimal {
	k := key(kit)
	dist := kit.Store.Distribution(k)
	domestic := kit.Store.InitialCharge(k, "domestic").Value
	imp := kit.Store.InitialCharge(k, "import").Value
	return domestic.Mul(dist.Domestic).Add(imp.Mul(dist.Import))
}

// RechargeVolume computes the mass needed to service existing equipment
// this year: population (priorEquipment, the stock already in the field
// before this year's new sales) times the servicing fraction times the
// per-unit intensity (spec §4.4.1 step 2).
func RechargeVolume(kit Kit) decimal.Decimal {
	k := key(kit)
	spec := kit.Store.RechargeSpec(k)
	priorEquipment := kit.Store.Stream(k, state.StreamPriorEquipment).Value
	return priorEquipment.Mul(spec.PopulationFraction).Div(decimal.NewFromInt(100)).Mul(spec.MassPerUnit)
}

// ImplicitRecharge implements spec §4.4.1: given a user-specified sales
// value already expressed in kg (after any units->kg conversion via the
// channel's initial charge), it returns the total kg to actually write to
// the stream (user value plus the portioned recharge) and the raw recharge
// figure recorded in the implicitRecharge pseudo-stream for reporting.
//
// When mode is PropagationExplicitRecharge, userKg is already inclusive of
// recharge and no addition happens; the implicitRecharge pseudo-stream is
// cleared, per spec §4.4.1's closing note.
func ImplicitRecharge(kit Kit, userKg decimal.Decimal) (totalKg, rechargeKg decimal.Decimal) {
	if kit.Mode == PropagationExplicitRecharge {
		return userKg, decimal.Zero
	}
	recharge := RechargeVolume(kit)
	return userKg.Add(recharge), recharge
}

// PopulationChange implements spec's recalcPopulationChange: given the
// current sales value (virgin mass on the stream, already net of any
// recharge handling performed by the caller) and the blended initial
// charge, compute populationNew and roll it into equipment atop whatever
// Retire already subtracted this year.
func PopulationChange(kit Kit) error {
	kit.record()
	k := key(kit)
	salesKg := kit.Store.Stream(k, state.StreamSales).Value
	recharge := RechargeVolume(kit)

	charge := BlendedInitialCharge(kit)
	var newUnits decimal.Decimal
	if charge.IsZero() {
		newUnits = decimal.Zero
	} else {
		virginForNewUnits := maxZero(salesKg.Sub(recharge))
		newUnits = virginForNewUnits.Div(charge)
	}
	newUnits = maxZero(newUnits)

	equipment := kit.Store.Stream(k, state.StreamEquipment).Value.Add(newUnits)
	kit.Store.SetStream(k, state.StreamPopulationNew, engnum.New(newUnits, "units"))
	kit.Store.SetStream(k, state.StreamEquipment, engnum.New(equipment, "units"))
	return nil
}

// Sales implements spec's recalcSales: given the equipment goal already
// written to the stream (by EquipmentChangeUtil or a consumption-driven
// write), back out the populationNew implied by the gap versus the
// post-retire equipment level, convert that to virgin mass via the
// blended initial charge, add the recharge need, and split the total
// across domestic/import by the current distribution.
func Sales(kit Kit) error {
	kit.record()
	k := key(kit)
	equipment := kit.Store.Stream(k, state.StreamEquipment).Value
	postRetire := kit.Store.Stream(k, state.StreamPriorEquipment).Value.Sub(RetiredThisYear(kit))
	newUnits := maxZero(equipment.Sub(postRetire))

	charge := BlendedInitialCharge(kit)
	virgin := newUnits.Mul(charge)
	recharge := RechargeVolume(kit)
	totalKg := virgin.Add(recharge)

	dist := kit.Store.Distribution(k)
	domestic := totalKg.Mul(dist.Domestic)
	imp := totalKg.Mul(dist.Import)

	kit.Store.SetStream(k, state.StreamDomestic, engnum.New(domestic, "kg"))
	kit.Store.SetStream(k, state.StreamImport, engnum.New(imp, "kg"))
	kit.Store.SetStream(k, state.StreamSales, engnum.New(totalKg, "kg"))
	kit.Store.SetLastSpecifiedValue(k, state.StreamDomestic, engnum.New(domestic, "kg"))
	kit.Store.SetLastSpecifiedValue(k, state.StreamImport, engnum.New(imp, "kg"))
	return nil
}

// RetiredThisYear recomputes the mass retired this year from the
// retirement rate and priorEquipment, without requiring a dedicated
// "retired" stream in the closed stream set.
func RetiredThisYear(kit Kit) decimal.Decimal {
	k := key(kit)
	rate := kit.Store.RetirementRate(k)
	priorEquipment := kit.Store.Stream(k, state.StreamPriorEquipment).Value
	return priorEquipment.Mul(rate).Div(decimal.NewFromInt(100))
}

// Retire implements spec's recalcRetire: decrement equipment by the
// retirement rate applied to priorEquipment. The deduction is taken from
// the current equipment figure, not re-derived from priorEquipment
// directly, since ScenarioRunner applies Retire as a final per-year step
// (spec §4.6 step 3c) after any sales-triggered population growth earlier
// in the same year (step 3b) has already been added on top of
// priorEquipment.
func Retire(kit Kit) error {
	kit.record()
	k := key(kit)
	retired := RetiredThisYear(kit)
	current := kit.Store.Stream(k, state.StreamEquipment).Value
	equipment := maxZero(current.Sub(retired))
	kit.Store.SetStream(k, state.StreamEquipment, engnum.New(equipment, "units"))
	return nil
}

// Consumption implements spec's recalcConsumption: gross (no-recycle)
// consumption from virgin sales, a recycling credit, the net figure, and
// the recharge emission component (EOL emissions are written by Recycling).
func Consumption(kit Kit) error {
	kit.record()
	k := key(kit)
	gwp := kit.Store.GWP(k)

	domestic := kit.Store.Stream(k, state.StreamDomestic).Value
	imp := kit.Store.Stream(k, state.StreamImport).Value
	virgin := domestic.Add(imp)
	recycle := kit.Store.Stream(k, state.StreamRecycle).Value
	recharge := kit.Store.Stream(k, state.StreamImplicitRecharge).Value

	noRecycle := virgin.Mul(gwp)
	recycleConsumption := recycle.Mul(gwp)
	net := maxZero(noRecycle.Sub(recycleConsumption))

	kit.Store.SetStream(k, state.StreamConsumptionNoRecycle, engnum.New(noRecycle, "tCO2e"))
	kit.Store.SetStream(k, state.StreamRecycleConsumption, engnum.New(recycleConsumption, "tCO2e"))
	kit.Store.SetStream(k, state.StreamConsumption, engnum.New(net, "tCO2e"))
	kit.Store.SetStream(k, state.StreamRechargeEmissions, engnum.New(recharge.Mul(gwp), "tCO2e"))
	return nil
}

// Energy implements spec's recalcEnergy: multiply the configured energy
// intensity (per-unit or per-mass) by the appropriate base quantity.
func Energy(kit Kit) error {
	kit.record()
	k := key(kit)
	intensity := kit.Store.EnergyIntensity(k)
	if intensity.IsZero() {
		kit.Store.SetStream(k, state.StreamEnergyConsumption, engnum.New(decimal.Zero, "kwh"))
		return nil
	}

	equipment := kit.Store.Stream(k, state.StreamEquipment).Value
	domestic := kit.Store.Stream(k, state.StreamDomestic).Value
	imp := kit.Store.Stream(k, state.StreamImport).Value

	out, err := kit.Convert(engnum.Context{
		Population:  equipment,
		VolumeTotal: domestic.Add(imp),
	}, intensity, "kwh")
	if err != nil {
		return fmt.Errorf("recalc: energy: %w", err)
	}
	kit.Store.SetStream(k, state.StreamEnergyConsumption, out)
	return nil
}

// Recycling implements spec's recalcRecycling for kit.Stage: recovered
// material is computed from the stage's base quantity (retired mass for
// EOL, recharge volume for RECHARGE), then split by induction rate into a
// portion that displaces virgin supply and a portion that is purely
// additional (spec §3 invariant 5, §4.5's induction semantics).
func Recycling(kit Kit) error {
	kit.record()
	k := key(kit)
	recSpec := kit.Store.RecoverySpec(k, kit.Stage)
	if recSpec.RecoveryFraction.IsZero() {
		return nil
	}

	var base decimal.Decimal
	switch kit.Stage {
	case state.StageEOL:
		charge := BlendedInitialCharge(kit)
		base = RetiredThisYear(kit).Mul(charge)
	case state.StageRecharge:
		base = RechargeVolume(kit)
	default:
		return fmt.Errorf("recalc: recycling: unknown stage %q", kit.Stage)
	}

	hundred := decimal.NewFromInt(100)
	recovered := base.Mul(recSpec.RecoveryFraction).Div(hundred)
	reused := recovered.Mul(recSpec.ReuseYield).Div(hundred)
	virginDisplaced := reused.Mul(decimal.NewFromInt(1).Sub(recSpec.InductionRate))

	existingRecycle := kit.Store.Stream(k, state.StreamRecycle).Value
	kit.Store.SetStream(k, state.StreamRecycle, engnum.New(existingRecycle.Add(reused), "kg"))

	if kit.Stage == state.StageEOL {
		kit.Store.SetStream(k, state.StreamEOLEmissions, engnum.New(reused.Mul(kit.Store.GWP(k)), "tCO2e"))
	}

	if virginDisplaced.IsZero() {
		return nil
	}
	dist := kit.Store.Distribution(k)
	domestic := maxZero(kit.Store.Stream(k, state.StreamDomestic).Value.Sub(virginDisplaced.Mul(dist.Domestic)))
	imp := maxZero(kit.Store.Stream(k, state.StreamImport).Value.Sub(virginDisplaced.Mul(dist.Import)))
	kit.Store.SetStream(k, state.StreamDomestic, engnum.New(domestic, "kg"))
	kit.Store.SetStream(k, state.StreamImport, engnum.New(imp, "kg"))
	kit.Store.SetStream(k, state.StreamSales, engnum.New(domestic.Add(imp), "kg"))
	return nil
}
