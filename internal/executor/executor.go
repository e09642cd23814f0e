// Package executor implements the five operation executors spec §4.5
// describes: the central StreamUpdate mutator, LimitExecutor (cap/floor),
// EquipmentChangeUtil, DisplaceExecutor, and ChangeExecutor. Each is a free
// function over a Context (store/scope/year/mode), grounded on
// internal/allocation/service.go's rule-application engine and
// internal/scenarios/engine.go's scope-routing switch in calculateReduction,
// generalized from a fixed scope-1/2/3 switch to an arbitrary
// displacement-target substance within the same application.
package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/engineerr"
	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/recalc"
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
)

// Context is the per-call handle every executor function takes: the active
// Store, the Scope it applies to, the current simulated year, and the
// recharge PropagationMode in effect.
type Context struct {
	Store *state.Store
	Scope scope.Scope
	Year  int
	Mode  recalc.PropagationMode

	// Metrics, Cache and Ctx are forwarded into every recalc.Kit this
	// Context builds, so the recalc chain a StreamUpdate triggers stays
	// instrumented (C16) and cache-aware (C15) end to end.
	Metrics *metrics.Metrics
	Cache   *cache.ConverterCache
	Ctx     context.Context
}

func (c Context) kit() recalc.Kit {
	return recalc.Kit{
		Store: c.Store, Scope: c.Scope, Year: c.Year, Mode: c.Mode,
		Metrics: c.Metrics, Cache: c.Cache, Ctx: c.Ctx,
	}
}

func (c Context) key() scope.UseKey { return c.Scope.UseKey() }

func isSalesFamily(s state.Stream) bool {
	switch s {
	case state.StreamSales, state.StreamDomestic, state.StreamImport, state.StreamExport:
		return true
	default:
		return false
	}
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func chainFor(s state.Stream) recalc.Chain {
	switch s {
	case state.StreamSales, state.StreamDomestic, state.StreamImport, state.StreamExport:
		return recalc.AfterSalesWrite
	case state.StreamConsumption:
		return recalc.AfterConsumptionWrite
	case state.StreamEquipment:
		return recalc.AfterEquipmentWrite
	case state.StreamPriorEquipment:
		return recalc.AfterPriorEquipmentWrite
	default:
		return nil
	}
}

// StreamUpdateOptions controls how UpdateStream writes and propagates a
// value (spec §4.5.5's StreamUpdate record).
type StreamUpdateOptions struct {
	// PropagateChanges runs the recalc chain for Stream after writing.
	// DisplaceExecutor sets this false for its target-side write, since it
	// performs its own targeted recalc afterward (spec §4.5.3).
	PropagateChanges bool
	// ForceExplicitRecharge treats a unit-denominated value as already
	// inclusive of recharge, skipping implicit-recharge addition.
	ForceExplicitRecharge bool
	// ForceLastSpecified writes LastSpecifiedValue even when
	// PropagateChanges is false (needed by DisplaceExecutor, spec §4.5.3).
	ForceLastSpecified bool
}

// UpdateStream is the central mutator every other executor in this package
// calls through. It resolves the value's units against the stream's
// context (converting a percentage or equipment count to an absolute mass
// where applicable), applies implicit recharge for unit-specified
// sales-family writes unless ForceExplicitRecharge is set, writes the
// stream and its LastSpecifiedValue, and — unless PropagateChanges is
// false — runs the matching recalc chain.
func UpdateStream(ctx Context, s state.Stream, value engnum.Number, opts StreamUpdateOptions) error {
	if !s.IsValid() {
		return &engineerr.Error{Kind: engineerr.KindUnknownStream, Msg: fmt.Sprintf("unrecognized stream %q", s)}
	}
	k := ctx.key()

	resolved, err := resolveAbsolute(ctx, s, value, opts)
	if err != nil {
		return err
	}

	ctx.Store.SetStream(k, s, resolved)
	if opts.PropagateChanges || opts.ForceLastSpecified {
		ctx.Store.SetLastSpecifiedValue(k, s, resolved)
	}

	if s == state.StreamSales {
		dist := ctx.Store.Distribution(k)
		domestic := resolved.Value.Mul(dist.Domestic)
		imp := resolved.Value.Mul(dist.Import)
		ctx.Store.SetStream(k, state.StreamDomestic, engnum.New(domestic, "kg"))
		ctx.Store.SetStream(k, state.StreamImport, engnum.New(imp, "kg"))
		if opts.PropagateChanges || opts.ForceLastSpecified {
			ctx.Store.SetLastSpecifiedValue(k, state.StreamDomestic, engnum.New(domestic, "kg"))
			ctx.Store.SetLastSpecifiedValue(k, state.StreamImport, engnum.New(imp, "kg"))
		}
	}

	if !opts.PropagateChanges {
		return nil
	}
	return chainFor(s).Run(ctx.kit())
}

// resolveAbsolute converts value into the stream's canonical absolute unit
// (kg for mass/sales-family streams, units for equipment streams),
// handling the three forms spec §4.1/§4.4.1 call out: units-denominated
// sales writes gain implicit recharge, "% current" resolves against the
// stream's current value, and "% prior year" resolves against
// LastSpecifiedValue.
func resolveAbsolute(ctx Context, s state.Stream, value engnum.Number, opts StreamUpdateOptions) (engnum.Number, error) {
	k := ctx.key()

	if engnum.IsPercent(value.Units) {
		current := ctx.Store.Stream(k, s)
		last, _ := ctx.Store.LastSpecifiedValue(k, s)
		out, err := ctx.kit().Convert(engnum.Context{
			VolumeTotal:        current.Value,
			LastSpecifiedValue: last.Value,
		}, value, "kg")
		if err != nil {
			return engnum.Number{}, engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
		}
		return out, nil
	}

	if isSalesFamily(s) && engnum.IsUnits(value.Units) {
		channel := channelFor(s)
		charge := ctx.Store.InitialCharge(k, channel)
		kg, err := ctx.kit().Convert(engnum.Context{AmortizedUnitVolume: charge.Value}, value, "kg")
		if err != nil {
			return engnum.Number{}, engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
		}

		kit := ctx.kit()
		if opts.ForceExplicitRecharge {
			kit.Mode = recalc.PropagationExplicitRecharge
		}
		total, recharge := recalc.ImplicitRecharge(kit, kg.Value)
		ctx.Store.SetStream(k, state.StreamImplicitRecharge, engnum.New(recharge, "kg"))
		return engnum.New(total, "kg"), nil
	}

	if engnum.IsMass(value.Units) {
		conv := engnum.NewConverter(engnum.Context{})
		out, err := conv.Convert(value, "kg")
		if err != nil {
			return engnum.Number{}, engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
		}
		return out, nil
	}

	if engnum.IsUnits(value.Units) {
		return engnum.New(value.Value, "units"), nil
	}

	return engnum.Number{}, &engineerr.Error{
		Kind: engineerr.KindUnitMismatch, Year: ctx.Year, Scope: ctx.Scope,
		Msg: fmt.Sprintf("cannot resolve %q for stream %q", value.Units, s),
	}
}

func channelFor(s state.Stream) string {
	switch s {
	case state.StreamImport:
		return "import"
	default:
		return "domestic"
	}
}

// Cap applies a LimitExecutor ceiling to a stream (spec §4.5.1). Percentage
// limits scale lastSpecified (or, absent one, are treated as a literal kg
// mass); absolute limits compare directly. When the stream is reduced and
// DisplaceTarget is set, the reduction Δ is added to the target substance.
func Cap(ctx Context, op operation.Cap) error {
	if !op.Matcher.Matches(ctx.Year) {
		return nil
	}
	return limit(ctx, op.Stream, op.Limit, op.DisplaceTarget, op.DisplacementType, true)
}

// Floor applies a LimitExecutor minimum, the mirror of Cap.
func Floor(ctx Context, op operation.Floor) error {
	if !op.Matcher.Matches(ctx.Year) {
		return nil
	}
	return limit(ctx, op.Stream, op.Limit, op.DisplaceTarget, op.DisplacementType, false)
}

func limit(ctx Context, s state.Stream, bound engnum.Number, displaceTarget string, dt operation.DisplacementType, isCap bool) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, s)

	var boundKg decimal.Decimal
	switch {
	case engnum.IsPercent(bound.Units):
		last, ok := ctx.Store.LastSpecifiedValue(k, s)
		if !ok {
			boundKg = bound.Value
		} else {
			boundKg = last.Value.Mul(bound.Value).Div(decimal.NewFromInt(100))
		}
	case engnum.IsUnits(bound.Units) && isSalesFamily(s):
		// Spec E2: a units-denominated sales-family bound converts via the
		// blended initial charge, then gains the same implicit recharge a
		// unit-specified write would (§4.4.1), on top of the converted limit.
		charge := recalc.BlendedInitialCharge(ctx.kit())
		boundKg = bound.Value.Mul(charge).Add(recalc.RechargeVolume(ctx.kit()))
	default:
		conv := engnum.NewConverter(engnum.Context{})
		out, err := conv.Convert(bound, "kg")
		if err != nil {
			return engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
		}
		boundKg = out.Value
	}

	var breached bool
	var delta decimal.Decimal
	if isCap {
		breached = current.Value.GreaterThan(boundKg)
		delta = current.Value.Sub(boundKg)
	} else {
		breached = current.Value.LessThan(boundKg)
		delta = boundKg.Sub(current.Value)
	}
	if !breached {
		return nil
	}

	if err := UpdateStream(ctx, s, engnum.New(boundKg, "kg"), StreamUpdateOptions{
		PropagateChanges:      true,
		ForceExplicitRecharge: true,
	}); err != nil {
		return err
	}

	if displaceTarget == "" {
		return nil
	}
	targetDelta := delta
	if !isCap {
		targetDelta = delta.Neg()
	}
	return Displace(ctx, s, targetDelta, displaceTarget, dt)
}

// Displace implements DisplaceExecutor (spec §4.5.3): it switches to the
// target substance within the same application, applies the translated
// delta to the target's matching stream with propagation disabled, then
// performs a targeted recalc in the destination scope before returning to
// the caller's own Scope (which this function never mutates, per
// scope.Scope.WithSubstance's copy semantics).
func Displace(ctx Context, sourceStream state.Stream, delta decimal.Decimal, targetSubstance string, dt operation.DisplacementType) error {
	if sourceStream == state.StreamImport && targetSubstance == ctx.Scope.Substance {
		return &engineerr.Error{Kind: engineerr.KindInvalidDisplacement, Year: ctx.Year, Scope: ctx.Scope,
			Msg: "import-to-import displacement is rejected"}
	}

	targetScope := ctx.Scope.WithSubstance(targetSubstance)
	targetCtx := Context{
		Store: ctx.Store, Scope: targetScope, Year: ctx.Year, Mode: ctx.Mode,
		Metrics: ctx.Metrics, Cache: ctx.Cache, Ctx: ctx.Ctx,
	}

	targetDelta := delta
	if dt == operation.DisplacementByUnits {
		sourceCharge := recalc.BlendedInitialCharge(ctx.kit())
		targetCharge := recalc.BlendedInitialCharge(targetCtx.kit())
		if !sourceCharge.IsZero() && !targetCharge.IsZero() {
			units := delta.Div(sourceCharge)
			targetDelta = units.Mul(targetCharge)
		}
	}

	tk := targetScope.UseKey()
	current := ctx.Store.Stream(tk, sourceStream).Value
	next := maxZero(current.Add(targetDelta))

	if err := UpdateStream(targetCtx, sourceStream, engnum.New(next, "kg"), StreamUpdateOptions{
		PropagateChanges:      false,
		ForceExplicitRecharge: true,
		ForceLastSpecified:    true,
	}); err != nil {
		return err
	}
	return chainFor(sourceStream).Run(targetCtx.kit())
}

// SetEquipment implements the "set equipment to X" form of
// EquipmentChangeUtil (spec §4.5.2): equipment is never written directly.
// A positive delta is realized as additional sales (which in turn triggers
// implicit recharge via the sales recalc chain); a negative delta retires
// the excess directly from the current stock.
func SetEquipment(ctx Context, target decimal.Decimal, displaceTarget string, dt operation.DisplacementType) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, state.StreamEquipment).Value
	delta := target.Sub(current)

	if delta.IsZero() {
		return nil
	}
	if delta.IsNegative() {
		next := maxZero(current.Add(delta))
		ctx.Store.SetStream(k, state.StreamEquipment, engnum.New(next, "units"))
		if err := recalc.Consumption(ctx.kit()); err != nil {
			return err
		}
		if displaceTarget == "" {
			return nil
		}
		charge := recalc.BlendedInitialCharge(ctx.kit())
		return Displace(ctx, state.StreamSales, delta.Mul(charge), displaceTarget, dt)
	}

	charge := recalc.BlendedInitialCharge(ctx.kit())
	addedMass := delta.Mul(charge)
	currentSales := ctx.Store.Stream(k, state.StreamSales).Value
	if err := UpdateStream(ctx, state.StreamSales, engnum.New(currentSales.Add(addedMass), "kg"), StreamUpdateOptions{
		PropagateChanges:      true,
		ForceExplicitRecharge: true,
	}); err != nil {
		return err
	}
	if displaceTarget == "" {
		return nil
	}
	return Displace(ctx, state.StreamSales, addedMass.Neg(), displaceTarget, dt)
}

// ChangeEquipment implements "change equipment by Δ%" by resolving the
// absolute delta against the current equipment level and dispatching to
// SetEquipment.
func ChangeEquipment(ctx Context, deltaPercent decimal.Decimal, displaceTarget string, dt operation.DisplacementType) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, state.StreamEquipment).Value
	target := current.Add(current.Mul(deltaPercent).Div(decimal.NewFromInt(100)))
	return SetEquipment(ctx, target, displaceTarget, dt)
}

// CapEquipment and FloorEquipment implement the equipment-stream forms of
// cap/floor (spec §4.5.2): a cap retires the excess above X; a floor
// increases sales to cover a deficit below X. Both delegate to
// SetEquipment, which already implements exactly this dispatch.
func CapEquipment(ctx Context, limit decimal.Decimal, displaceTarget string, dt operation.DisplacementType) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, state.StreamEquipment).Value
	if current.LessThanOrEqual(limit) {
		return nil
	}
	return SetEquipment(ctx, limit, displaceTarget, dt)
}

func FloorEquipment(ctx Context, limit decimal.Decimal, displaceTarget string, dt operation.DisplacementType) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, state.StreamEquipment).Value
	if current.GreaterThanOrEqual(limit) {
		return nil
	}
	return SetEquipment(ctx, limit, displaceTarget, dt)
}

// Change implements ChangeExecutor (spec §4.5.4): routes a change command
// by stream type and the units of its delta.
func Change(ctx Context, op operation.Change) error {
	if !op.Matcher.Matches(ctx.Year) {
		return nil
	}
	k := ctx.key()

	switch op.Stream {
	case state.StreamDomestic, state.StreamImport, state.StreamExport:
		return changeComponent(ctx, op.Stream, op.Delta)
	case state.StreamSales:
		return changeSales(ctx, op.Delta)
	default:
		current := ctx.Store.Stream(k, op.Stream)
		conv := engnum.NewConverter(engnum.Context{VolumeTotal: current.Value})
		delta, err := conv.Convert(op.Delta, "kg")
		if err != nil {
			return engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
		}
		next := maxZero(current.Value.Add(delta.Value))
		return UpdateStream(ctx, op.Stream, engnum.New(next, "kg"), StreamUpdateOptions{PropagateChanges: true})
	}
}

func changeComponent(ctx Context, s state.Stream, delta engnum.Number) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, s)

	if engnum.IsPercent(delta.Units) {
		next := maxZero(current.Value.Add(current.Value.Mul(delta.Value).Div(decimal.NewFromInt(100))))
		return UpdateStream(ctx, s, engnum.New(next, "kg"), StreamUpdateOptions{PropagateChanges: true})
	}
	if engnum.IsUnits(delta.Units) {
		channel := channelFor(s)
		charge := ctx.Store.InitialCharge(k, channel)
		mass := delta.Value.Mul(charge.Value)
		next := maxZero(current.Value.Add(mass))
		return UpdateStream(ctx, s, engnum.New(next, "kg"), StreamUpdateOptions{PropagateChanges: true, ForceExplicitRecharge: true})
	}
	conv := engnum.NewConverter(engnum.Context{})
	deltaKg, err := conv.Convert(delta, "kg")
	if err != nil {
		return engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
	}
	next := maxZero(current.Value.Add(deltaKg.Value))
	return UpdateStream(ctx, s, engnum.New(next, "kg"), StreamUpdateOptions{PropagateChanges: true})
}

func changeSales(ctx Context, delta engnum.Number) error {
	k := ctx.key()
	current := ctx.Store.Stream(k, state.StreamSales)

	if engnum.IsPercent(delta.Units) {
		next := maxZero(current.Value.Add(current.Value.Mul(delta.Value).Div(decimal.NewFromInt(100))))
		return UpdateStream(ctx, state.StreamSales, engnum.New(next, "kg"), StreamUpdateOptions{PropagateChanges: true})
	}

	var deltaKg decimal.Decimal
	if engnum.IsUnits(delta.Units) {
		charge := recalc.BlendedInitialCharge(ctx.kit())
		deltaKg = delta.Value.Mul(charge)
	} else {
		conv := engnum.NewConverter(engnum.Context{})
		out, err := conv.Convert(delta, "kg")
		if err != nil {
			return engineerr.Wrap(engineerr.KindUnitMismatch, "", ctx.Year, ctx.Scope, 0, err)
		}
		deltaKg = out.Value
	}

	dist := ctx.Store.Distribution(k)
	domestic := ctx.Store.Stream(k, state.StreamDomestic).Value.Add(deltaKg.Mul(dist.Domestic))
	imp := ctx.Store.Stream(k, state.StreamImport).Value.Add(deltaKg.Mul(dist.Import))
	next := maxZero(domestic.Add(imp))
	return UpdateStream(ctx, state.StreamSales, engnum.New(next, "kg"), StreamUpdateOptions{
		PropagateChanges: true, ForceExplicitRecharge: true,
	})
}
