// Package engine implements Facade (spec.md §6.3, C19): the orchestration
// layer that wires input.ParsedProgram -> internal/validate ->
// internal/parallel (a single scenario, via ExecuteScenario, runs through
// the same pool) -> internal/report, plus optional internal/store,
// internal/events, internal/metrics, and internal/tracing collaborators.
//
// Grounded on the teacher's own top-level wiring convention (buildRuntime
// in cmd/cli/main.go assembling config/logger/db/event-bus once and
// passing the assembled struct to each command), generalized here into a
// reusable Facade value instead of a one-shot CLI-local struct, since
// spec.md §6.3 names three entry points (execute, executeScenario,
// version) that must share one assembled set of collaborators.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/engineerr"
	"github.com/example/kigalisim/internal/events"
	"github.com/example/kigalisim/internal/input"
	"github.com/example/kigalisim/internal/logging"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/parallel"
	"github.com/example/kigalisim/internal/report"
	"github.com/example/kigalisim/internal/result"
	"github.com/example/kigalisim/internal/runner"
	"github.com/example/kigalisim/internal/store"
	"github.com/example/kigalisim/internal/validate"
)

// Version and BuildID are overridable at link time (-ldflags
// "-X github.com/example/kigalisim/internal/engine.Version=...") mirroring
// the teacher's single-source-of-truth build-info convention. BuildID
// defaults to "dev" for a plain `go build`.
var (
	Version = "0.1.0"
	BuildID = "dev"
)

// Options configures a Facade. Every field is optional; a zero-value
// Options produces a Facade with in-process defaults and no optional
// collaborators wired in.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Events         events.Bus
	RunStore       *store.RunStore
	Lock           *cache.RunLock
	ConverterCache *cache.ConverterCache
	WorkerCount    int
	RunTimeout     time.Duration
	EnableTracing  bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Events == nil {
		o.Events = events.NewNoopBus()
	}
	return o
}

// Facade is the engine's single external entry point (spec.md §6.3).
type Facade struct {
	opts Options
}

// New assembles a Facade from Options.
func New(opts Options) *Facade {
	return &Facade{opts: opts.withDefaults()}
}

// Execute runs every scenario in a ParsedProgram-shaped JSON fixture (see
// internal/input) and returns the combined CSV output, per spec.md §6.3:
// "OK\n\n" + csv on success, or "Error: " + message + "\n\n" on failure.
// The returned error is non-nil exactly when the string result begins with
// "Error: ", and is an *engineerr.Error (simulation failure) or a plain
// wrapped error (parse/validation failure) so callers like
// cmd/kigalisim-cli can pick the right exit code (spec.md §6.4).
func (f *Facade) Execute(ctx context.Context, fixtureJSON []byte, progress func(float64)) (string, error) {
	prog, err := input.LoadFixture(fixtureJSON)
	if err != nil {
		return formatError(err), fmt.Errorf("parse: %w", err)
	}
	return f.run(ctx, prog, prog.ScenarioNames(), progress)
}

// ExecuteScenario is Execute restricted to a single named scenario, per
// spec.md §6.3.
func (f *Facade) ExecuteScenario(ctx context.Context, fixtureJSON []byte, name string, progress func(float64)) (string, error) {
	prog, err := input.LoadFixture(fixtureJSON)
	if err != nil {
		return formatError(err), fmt.Errorf("parse: %w", err)
	}
	return f.run(ctx, prog, []string{name}, progress)
}

// Version returns the engine's semantic version plus build identifier
// (SPEC_FULL.md §6).
func (f *Facade) Version() string {
	return fmt.Sprintf("%s+%s", Version, BuildID)
}

func (f *Facade) run(ctx context.Context, prog input.ParsedProgram, names []string, progress func(float64)) (string, error) {
	defs := make([]runner.ScenarioDef, 0, len(names))
	unique := make([]runner.ScenarioDef, 0, len(names))
	trialsByScenario := make(map[string]int, len(names))
	for _, name := range names {
		spec, err := prog.Scenario(name)
		if err != nil {
			return formatError(err), fmt.Errorf("parse: %w", err)
		}
		trials := spec.Trials
		if trials <= 0 {
			trials = 1
		}
		trialsByScenario[name] = trials
		unique = append(unique, spec.ScenarioDef(name))
		for trial := 0; trial < trials; trial++ {
			defs = append(defs, spec.ScenarioDef(name))
		}
	}

	if err := validate.Scenarios(unique); err != nil {
		return formatError(err), fmt.Errorf("validate: %w", err)
	}

	tasks := make([]parallel.Task, 0, len(defs))
	trialCursor := make(map[string]int, len(trialsByScenario))
	for _, def := range defs {
		trial := trialCursor[def.Name]
		trialCursor[def.Name] = trial + 1
		tasks = append(tasks, parallel.Task{Def: def, Trial: trial})
	}

	sets, err := parallel.Run(ctx, tasks, parallel.Options{
		WorkerCount:    f.opts.WorkerCount,
		Timeout:        f.opts.RunTimeout,
		Logger:         f.opts.Logger,
		Metrics:        f.opts.Metrics,
		Events:         f.opts.Events,
		Lock:           f.opts.Lock,
		ConverterCache: f.opts.ConverterCache,
		EnableTracing:  f.opts.EnableTracing,
		Progress:       progress,
	})
	if err != nil {
		return formatError(err), err
	}

	f.persist(ctx, sets)

	csv, err := report.WriteCSVString(sets)
	if err != nil {
		return formatError(err), fmt.Errorf("report: %w", err)
	}
	return "OK\n\n" + csv, nil
}

// persist records every run via the optional run-history store. Failures
// are logged, never propagated — the audit trail is a convenience, not
// part of the engine's correctness contract (SPEC_FULL.md §4.9).
func (f *Facade) persist(ctx context.Context, sets []result.Set) {
	if f.opts.RunStore == nil {
		return
	}
	for _, set := range sets {
		rec := store.RunRecord{
			RunID:      uuid.New(),
			Scenario:   set.Scenario,
			Trial:      set.Trial,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
			Outcome:    "ok",
		}
		for _, row := range set.Rows {
			rec.Rows = append(rec.Rows, row.ToResultRow())
		}
		if err := f.opts.RunStore.SaveRun(ctx, rec); err != nil {
			logging.Error(f.opts.Logger, "run store: failed to persist run", err,
				slog.String("scenario", set.Scenario), slog.Int("trial", set.Trial))
		}
	}
}

func formatError(err error) string {
	msg := err.Error()
	if ee, ok := err.(*engineerr.Error); ok {
		msg = ee.Error()
	}
	return "Error: " + msg + "\n\n"
}
