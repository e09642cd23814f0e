package runner

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/engineerr"
	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/executor"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/recalc"
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
)

// deps bundles the optional instrumentation collaborators dispatch and
// finalizeYear thread into every executor.Context/recalc.Kit they build
// (C15/C16): a run with none configured behaves exactly as before.
type deps struct {
	Metrics *metrics.Metrics
	Cache   *cache.ConverterCache
}

// dispatch routes one operation to the executor/state call(s) that realize
// it, addressed at sc/year. Unrecognized operation types cannot occur since
// operation.Operation is closed to the variants declared in that package,
// but dispatch still returns an engineerr.KindUnknownStream error instead of
// panicking, matching this engine's no-panic-on-fatal-input convention
// (spec §7).
func dispatch(ctxv context.Context, store *state.Store, sc scope.Scope, year int, op operation.Operation, d deps) error {
	d.Metrics.RecordOperation(operationKind(op))

	key := sc.UseKey()
	ctx := executor.Context{
		Store: store, Scope: sc, Year: year, Mode: recalc.PropagationStandard,
		Metrics: d.Metrics, Cache: d.Cache, Ctx: ctxv,
	}

	switch o := op.(type) {
	case operation.InitialCharge:
		store.SetInitialCharge(key, o.Channel, o.Intensity)
		return nil

	case operation.Equals:
		switch o.Of {
		case operation.EqualsGWP:
			store.SetGWP(key, o.Intensity.Value)
		case operation.EqualsEnergyIntensity:
			store.SetEnergyIntensity(key, o.Intensity)
		default:
			return engineerr.New(engineerr.KindUnknownStream, "", year, sc, 0,
				fmt.Sprintf("unrecognized Equals target %q", o.Of))
		}
		return nil

	case operation.Enable:
		store.SetEnabled(key, o.Stream)
		return nil

	case operation.Set:
		if !o.Matcher.Matches(year) {
			return nil
		}
		if o.Stream == state.StreamEquipment {
			return executor.SetEquipment(ctx, o.Amount.Value, "", operation.DisplacementEquivalent)
		}
		return executor.UpdateStream(ctx, o.Stream, o.Amount, executor.StreamUpdateOptions{PropagateChanges: true})

	case operation.Change:
		if o.Stream == state.StreamEquipment {
			if !o.Matcher.Matches(year) {
				return nil
			}
			return executor.ChangeEquipment(ctx, o.Delta.Value, "", operation.DisplacementEquivalent)
		}
		return executor.Change(ctx, o)

	case operation.Cap:
		if o.Stream == state.StreamEquipment {
			if !o.Matcher.Matches(year) {
				return nil
			}
			return executor.CapEquipment(ctx, o.Limit.Value, o.DisplaceTarget, o.DisplacementType)
		}
		return executor.Cap(ctx, o)

	case operation.Floor:
		if o.Stream == state.StreamEquipment {
			if !o.Matcher.Matches(year) {
				return nil
			}
			return executor.FloorEquipment(ctx, o.Limit.Value, o.DisplaceTarget, o.DisplacementType)
		}
		return executor.Floor(ctx, o)

	case operation.Retire:
		if !o.Matcher.Matches(year) {
			return nil
		}
		store.SetRetirementRate(key, o.Rate, true)
		return nil

	case operation.Recharge:
		if !o.Matcher.Matches(year) {
			return nil
		}
		store.SetRechargeSpec(key, state.RechargeSpec{
			PopulationFraction: o.Fraction,
			MassPerUnit:        o.Intensity.Value,
		})
		return nil

	case operation.Recover:
		if !o.Matcher.Matches(year) {
			return nil
		}
		store.SetRecoverySpec(key, o.Stage, state.RecoverySpec{
			RecoveryFraction: o.Fraction,
			ReuseYield:       o.Reuse,
			InductionRate:    o.Induction,
		}, true)
		return nil

	case operation.Replace:
		return dispatchReplace(ctxv, store, sc, year, o, d)

	default:
		return engineerr.New(engineerr.KindUnknownStream, "", year, sc, 0,
			fmt.Sprintf("unrecognized operation %T", op))
	}
}

// operationKind labels an Operation for the OperationsExecuted counter.
func operationKind(op operation.Operation) string {
	switch op.(type) {
	case operation.InitialCharge:
		return "initial_charge"
	case operation.Equals:
		return "equals"
	case operation.Enable:
		return "enable"
	case operation.Set:
		return "set"
	case operation.Change:
		return "change"
	case operation.Cap:
		return "cap"
	case operation.Floor:
		return "floor"
	case operation.Retire:
		return "retire"
	case operation.Recharge:
		return "recharge"
	case operation.Recover:
		return "recover"
	case operation.Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// dispatchReplace moves Amount unconditionally from the source substance's
// stream to the target substance's, within the same application. Unlike
// Cap/Floor's conditional DisplaceExecutor, Replace is unconditional: it
// always subtracts from the source and adds to the target, regardless of
// any bound.
func dispatchReplace(ctxv context.Context, store *state.Store, sc scope.Scope, year int, o operation.Replace, d deps) error {
	sourceScope := sc.WithSubstance(o.SourceSubstance)
	targetScope := sc.WithSubstance(o.TargetSubstance)

	sourceCtx := executor.Context{
		Store: store, Scope: sourceScope, Year: year, Mode: recalc.PropagationStandard,
		Metrics: d.Metrics, Cache: d.Cache, Ctx: ctxv,
	}
	targetCtx := executor.Context{
		Store: store, Scope: targetScope, Year: year, Mode: recalc.PropagationStandard,
		Metrics: d.Metrics, Cache: d.Cache, Ctx: ctxv,
	}

	sourceKey := sourceScope.UseKey()
	targetKey := targetScope.UseKey()

	sourceNext := maxZero(store.Stream(sourceKey, o.Stream).Value.Sub(o.Amount.Value))
	targetNext := store.Stream(targetKey, o.Stream).Value.Add(o.Amount.Value)

	if err := executor.UpdateStream(sourceCtx, o.Stream, engnum.New(sourceNext, "kg"), executor.StreamUpdateOptions{
		PropagateChanges: true,
	}); err != nil {
		return err
	}
	return executor.UpdateStream(targetCtx, o.Stream, engnum.New(targetNext, "kg"), executor.StreamUpdateOptions{
		PropagateChanges: true,
	})
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
