// Package runner implements ScenarioRunner (spec §4.6): the per-year loop
// that walks a scenario definition's stanzas in order, dispatches each
// operation applicable to the current year, performs the final retirement
// and recycling recalcs, and snapshots the year's reportable streams into a
// result.Set. It generalizes the teacher's Engine.RunSimulation year loop
// (internal/scenarios/engine.go) from a fixed scope1/2/3 reduction walk into
// a dispatch over the closed operation.Operation sum type.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/engineerr"
	"github.com/example/kigalisim/internal/logging"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/recalc"
	"github.com/example/kigalisim/internal/result"
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
	"github.com/example/kigalisim/internal/tracing"
)

// Stanza is one named block of per-substance operation lists within an
// application. Application and Substance names are walked in sorted order so
// that a run is reproducible across process restarts (spec §8 invariant 6
// cares about operation order within a substance, not iteration order
// across substances, but a stable run still wants determinism end to end).
type Stanza struct {
	Name string
	// Ops maps application -> substance -> ordered operations.
	Ops map[string]map[string][]operation.Operation
}

// ScenarioDef is everything ScenarioRunner needs to run one scenario: the
// baseline stanza, zero or more policy stanzas layered on top of it in
// order, and the simulated year range.
type ScenarioDef struct {
	Name      string
	Baseline  Stanza
	Policies  []Stanza
	StartYear int
	EndYear   int
}

func (d ScenarioDef) stanzas() []Stanza {
	all := make([]Stanza, 0, 1+len(d.Policies))
	all = append(all, d.Baseline)
	all = append(all, d.Policies...)
	return all
}

// Runner bundles the optional collaborators a scenario run is instrumented
// with. A zero-value Runner runs correctly with no logging, metrics,
// tracing, or converter-cache wiring, matching every other collaborator in
// this engine's nil-safe-by-default convention.
type Runner struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Cache   *cache.ConverterCache

	// EnableTracing opens one OpenTelemetry span per simulated year on top
	// of the scenario-level span the caller (internal/parallel) already
	// opens around the whole Run call (spec.md §5, C17).
	EnableTracing bool
}

// Run executes one scenario/trial end to end: for every year in
// [StartYear, EndYear], it rolls the store forward, walks every stanza's
// operations applicable to that year, resolves the final retirement and
// recycling recalcs, and snapshots every touched UseKey into a result.Row.
//
// ctx carries correlation (run ID, scenario, trial) attached by the caller
// via internal/logging's With* helpers; Run layers its own scenario/trial
// attachment on top so a direct caller (e.g. a test) need not pre-populate
// ctx itself.
func (r Runner) Run(ctx context.Context, def ScenarioDef, trial int) (result.Set, error) {
	baseLogger := r.Logger
	if baseLogger == nil {
		baseLogger = logging.FromContext(ctx)
	}
	ctx = logging.NewContext(ctx, baseLogger)
	ctx = logging.WithScenario(ctx, def.Name)
	ctx = logging.WithTrial(ctx, trial)
	logger := logging.FromContext(ctx)

	store := state.New()
	set := result.Set{Scenario: def.Name, Trial: trial}
	d := deps{Metrics: r.Metrics, Cache: r.Cache}

	logger.Info("scenario run starting", "startYear", def.StartYear, "endYear", def.EndYear)

	for year := def.StartYear; year <= def.EndYear; year++ {
		yearCtx := ctx
		var span trace.Span
		if r.EnableTracing {
			yearCtx, span = tracing.StartYearSpan(ctx, year)
		}

		err := r.runYear(yearCtx, store, def, year, &set, d)

		if span != nil {
			if err != nil {
				tracing.RecordError(span, err, "year batch failed")
			}
			span.End()
		}
		if err != nil {
			logging.Error(logger, "scenario run aborted", err, slog.Int("year", year))
			return set, err
		}
	}

	for _, diag := range store.Diagnostics() {
		set.Diagnostics = append(set.Diagnostics, fmt.Sprintf("%s: %s", diag.Kind, diag.Message))
	}
	logger.Info("scenario run finished",
		"runID", logging.RunIDFromContext(ctx),
		"rows", len(set.Rows), "diagnostics", len(set.Diagnostics))
	return set, nil
}

// runYear walks every stanza's operations applicable to year, then resolves
// the final retirement/recycling/consumption/energy recalcs, appending the
// year's rows onto set.
func (r Runner) runYear(ctx context.Context, store *state.Store, def ScenarioDef, year int, set *result.Set, d deps) error {
	store.RollYear()

	for _, stanza := range def.stanzas() {
		if err := runStanza(ctx, store, stanza, year, d); err != nil {
			return err
		}
	}

	if err := finalizeYear(ctx, store, year, d); err != nil {
		return err
	}

	for _, key := range sortedKeys(store) {
		set.Rows = append(set.Rows, result.Snapshot(store, key, year))
	}
	return nil
}

func runStanza(ctx context.Context, store *state.Store, stanza Stanza, year int, d deps) error {
	apps := make([]string, 0, len(stanza.Ops))
	for app := range stanza.Ops {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	for _, app := range apps {
		substances := make([]string, 0, len(stanza.Ops[app]))
		for sub := range stanza.Ops[app] {
			substances = append(substances, sub)
		}
		sort.Strings(substances)

		for _, sub := range substances {
			sc := scope.Scope{Stanza: stanza.Name, Application: app, Substance: sub}
			for i, op := range stanza.Ops[app][sub] {
				if err := dispatch(ctx, store, sc, year, op, d); err != nil {
					if ee, ok := err.(*engineerr.Error); ok {
						ee.Scenario = stanza.Name
						ee.OperationIndex = i
					}
					return err
				}
			}
		}
	}
	return nil
}

// finalizeYear implements spec §4.6 step 3c: for every UseKey, run the
// final retirement recalc, then a targeted recycling recalc for each stage
// whose recovery fraction is nonzero, then the consumption and energy
// recalcs. Retire runs once per UseKey regardless of how many stages have a
// recovery spec, since it is keyed only by retirement rate and
// priorEquipment, not by stage.
func finalizeYear(ctx context.Context, store *state.Store, year int, d deps) error {
	for _, key := range sortedKeys(store) {
		sc := scope.Scope{Application: key.Application, Substance: key.Substance}
		kit := recalc.Kit{
			Store: store, Scope: sc, Year: year, Mode: recalc.PropagationStandard,
			Metrics: d.Metrics, Cache: d.Cache, Ctx: ctx,
		}

		if err := recalc.Retire(kit); err != nil {
			return err
		}

		for _, stage := range []state.RecoveryStage{state.StageEOL, state.StageRecharge} {
			spec := store.RecoverySpec(key, stage)
			if spec.RecoveryFraction.IsZero() {
				continue
			}
			stageKit := kit
			stageKit.Stage = stage
			if err := recalc.Recycling(stageKit); err != nil {
				return err
			}
		}

		if err := recalc.Consumption(kit); err != nil {
			return err
		}
		if err := recalc.Energy(kit); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(store *state.Store) []scope.UseKey {
	keys := store.UseKeys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Application != keys[j].Application {
			return keys[i].Application < keys[j].Application
		}
		return keys[i].Substance < keys[j].Substance
	})
	return keys
}
