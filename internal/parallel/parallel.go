// Package parallel implements the ParallelSimulationExecutor (spec.md §5,
// C9): a producer/consumer worker pool that runs multiple scenario/trial
// tasks concurrently and merges their results.
//
// Grounded on the teacher's internal/worker/runner.go (goroutine-per-slot
// scheduling, sync.WaitGroup fan-in, context-cancellation shutdown),
// adapted from a periodic retry-loop scheduler into a fixed-size worker
// pool that drains a bounded task queue once. Per spec.md §5: worker count
// defaults to the number of logical CPUs, each worker runs one scenario
// task to completion with no suspension across year boundaries, and any
// single worker failure forcibly stops the pool — partial results are
// discarded, the error propagates to the caller.
package parallel

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/events"
	"github.com/example/kigalisim/internal/logging"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/result"
	"github.com/example/kigalisim/internal/runner"
	"github.com/example/kigalisim/internal/tracing"

	"go.opentelemetry.io/otel/trace"
)

const defaultRunTimeout = time.Hour

// Task is one scenario/trial unit of work submitted to the pool.
type Task struct {
	Def   runner.ScenarioDef
	Trial int
}

// Options configures a pool Run. All fields are optional; a zero-value
// Options runs with worker count defaulting to runtime.NumCPU() and a
// one-hour timeout, no instrumentation.
type Options struct {
	// WorkerCount is the number of concurrent scenario workers. Defaults
	// to runtime.NumCPU() when <= 0.
	WorkerCount int

	// Timeout bounds the whole pool run; exceeding it aborts every
	// in-flight worker and returns a timeout error. Defaults to one hour
	// (spec.md §5's "hard wait bound").
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Events  events.Bus

	// Lock, if non-nil, is consulted before each task starts; a task
	// whose (scenario, trial) lock cannot be acquired is skipped (not
	// retried) and recorded as a diagnostic, per spec.md §5.
	Lock *cache.RunLock

	// ConverterCache, if non-nil, is threaded into every scenario task's
	// recalc/executor calls so UnitConverter contexts are memoized across
	// the pool (C15).
	ConverterCache *cache.ConverterCache

	// EnableTracing opens one OpenTelemetry span per scenario run when
	// true (spec.md §5).
	EnableTracing bool

	// Progress is invoked after each task resolves (success, skip, or
	// failure) with the fraction of tasks resolved so far, in [0,1]. May
	// be nil: a no-op progress callback is always legal (spec.md §6.3).
	Progress func(float64)
}

func (o Options) withDefaults() Options {
	if o.WorkerCount <= 0 {
		o.WorkerCount = runtime.NumCPU()
		if o.WorkerCount < 1 {
			o.WorkerCount = 1
		}
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultRunTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Events == nil {
		o.Events = events.NewNoopBus()
	}
	return o
}

// taskOutcome is one worker's resolution of a single Task: a completed
// result.Set, a skip (run lock already held elsewhere), or a fatal error
// that forces the whole pool to stop.
type taskOutcome struct {
	set     result.Set
	skipped bool
	err     error
}

// Run executes every Task concurrently across Options.WorkerCount workers
// and returns one result.Set per non-skipped task. On any worker failure,
// the pool is forcibly stopped — in-flight tasks are abandoned once their
// current runner.Run call returns, queued tasks never start — and the
// triggering error is returned; partial results are discarded, per
// spec.md §5.
func Run(ctx context.Context, tasks []Task, opts Options) ([]result.Set, error) {
	opts = opts.withDefaults()
	if len(tasks) == 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	taskCh := make(chan int, len(tasks))
	for i := range tasks {
		taskCh <- i
	}
	close(taskCh)
	opts.Metrics.SetQueueDepth(len(taskCh))

	outcomes := make([]taskOutcome, len(tasks))
	var wg sync.WaitGroup
	var firstErr atomic.Value // error
	var completedN int64
	var activeN int64

	worker := func() {
		defer wg.Done()
		for idx := range taskCh {
			select {
			case <-runCtx.Done():
				return
			default:
			}

			opts.Metrics.SetQueueDepth(len(taskCh))

			n := atomic.AddInt64(&activeN, 1)
			opts.Metrics.SetWorkersActive(int(n))

			outcomes[idx] = runOne(runCtx, tasks[idx], opts)

			n = atomic.AddInt64(&activeN, -1)
			opts.Metrics.SetWorkersActive(int(n))

			done := atomic.AddInt64(&completedN, 1)
			if opts.Progress != nil {
				opts.Progress(float64(done) / float64(len(tasks)))
			}

			if outcomes[idx].err != nil {
				firstErr.CompareAndSwap(nil, outcomeErrBox{outcomes[idx].err})
				cancel()
				return
			}
		}
	}

	wg.Add(opts.WorkerCount)
	for i := 0; i < opts.WorkerCount; i++ {
		go worker()
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return nil, v.(outcomeErrBox).err
	}
	if err := runCtx.Err(); err != nil {
		return nil, fmt.Errorf("parallel: pool aborted after %s: %w", opts.Timeout, err)
	}

	sets := make([]result.Set, 0, len(tasks))
	for _, out := range outcomes {
		if !out.skipped {
			sets = append(sets, out.set)
		}
	}
	return sets, nil
}

// outcomeErrBox lets atomic.Value hold a typed nil-free error, since
// atomic.Value requires every stored value share one concrete type.
type outcomeErrBox struct{ err error }

func runOne(ctx context.Context, task Task, opts Options) taskOutcome {
	ctx = logging.NewContext(ctx, opts.Logger)
	ctx = logging.WithRunID(ctx, uuid.New().String())
	ctx = logging.WithScenario(ctx, task.Def.Name)
	ctx = logging.WithTrial(ctx, task.Trial)
	logger := logging.FromContext(ctx)

	eventMeta := func() events.Metadata {
		return events.Metadata{
			RunID:    logging.RunIDFromContext(ctx),
			Scenario: logging.ScenarioFromContext(ctx),
			Trial:    task.Trial,
		}
	}

	if opts.Lock != nil {
		acquired, err := opts.Lock.Acquire(ctx, task.Def.Name, task.Trial)
		if err == nil && !acquired {
			opts.Metrics.RecordRunLockSkip()
			logger.Info("scenario task skipped: run lock already held")
			opts.Events.Publish(ctx, events.NewEventWithMetadata(events.EventScenarioSkipped, task.Def.Name, eventMeta()).
				WithSource("parallel"))
			return taskOutcome{skipped: true}
		}
		defer opts.Lock.Release(ctx, task.Def.Name, task.Trial)
	}

	runCtx := ctx
	var span trace.Span
	if opts.EnableTracing {
		runCtx, span = tracing.StartScenarioSpan(ctx, task.Def.Name, task.Trial)
		defer span.End()
	}

	opts.Events.Publish(runCtx, events.NewEventWithMetadata(events.EventScenarioStarted, task.Def.Name, eventMeta()).
		WithSource("parallel"))

	r := runner.Runner{
		Logger:        logger,
		Metrics:       opts.Metrics,
		Cache:         opts.ConverterCache,
		EnableTracing: opts.EnableTracing,
	}
	start := time.Now()
	set, err := r.Run(runCtx, task.Def, task.Trial)
	duration := time.Since(start)

	if err != nil {
		opts.Metrics.RecordScenarioRun(task.Def.Name, "error", duration)
		if opts.EnableTracing {
			tracing.RecordError(span, err, "scenario run failed")
		}
		_ = events.PublishError(runCtx, opts.Events, "parallel", err, eventMeta())
		opts.Events.Publish(runCtx, events.NewEventWithMetadata(events.EventScenarioFailed, task.Def.Name, eventMeta()).
			WithSource("parallel"))
		return taskOutcome{err: err}
	}

	opts.Metrics.RecordScenarioRun(task.Def.Name, "ok", duration)
	opts.Events.Publish(runCtx, events.NewEventWithMetadata(events.EventScenarioCompleted, task.Def.Name, eventMeta()).
		WithSource("parallel"))

	for _, diag := range set.Diagnostics {
		opts.Events.Publish(runCtx, events.NewEventWithMetadata(events.EventProgressTick, diag, eventMeta()).WithSource("parallel"))
	}

	return taskOutcome{set: set}
}
