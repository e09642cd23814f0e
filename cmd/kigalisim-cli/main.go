package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/config"
	"github.com/example/kigalisim/internal/engine"
	"github.com/example/kigalisim/internal/engineerr"
	"github.com/example/kigalisim/internal/events"
	"github.com/example/kigalisim/internal/logging"
	"github.com/example/kigalisim/internal/metrics"
	"github.com/example/kigalisim/internal/store"
	"github.com/example/kigalisim/internal/tracing"
)

// Exit codes per spec.md §6.4.
const (
	exitSuccess    = 0
	exitParseError = 1
	exitSimError   = 2
	exitIOError    = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("kigalisim-cli", flag.ContinueOnError)
	fixturePath := fs.String("fixture", "", "path to a JSON file shaped like a ParsedProgram (required)")
	scenario := fs.String("scenario", "", "run only this scenario name (default: run every scenario in the fixture)")
	showVersion := fs.Bool("version", false, "print the engine version and exit")
	if err := fs.Parse(args); err != nil {
		return exitIOError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitIOError
	}

	logger := logging.NewFromEnv()

	f, cleanup := buildFacade(cfg, logger)
	defer cleanup()

	if *showVersion {
		fmt.Println(f.Version())
		return exitSuccess
	}

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: kigalisim-cli -fixture <path.json> [-scenario <name>]")
		return exitIOError
	}

	raw, err := os.ReadFile(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read fixture: %v\n", err)
		return exitIOError
	}

	ctx := logging.NewContext(context.Background(), logger)

	var out string
	var runErr error
	if *scenario != "" {
		out, runErr = f.ExecuteScenario(ctx, raw, *scenario, nil)
	} else {
		out, runErr = f.Execute(ctx, raw, nil)
	}

	fmt.Print(out)

	if runErr == nil {
		return exitSuccess
	}
	if _, ok := runErr.(*engineerr.Error); ok {
		return exitSimError
	}
	return exitParseError
}

// buildFacade wires every optional collaborator named by cfg: the
// diagnostics/lifecycle event bus (C13), the run-history store (C14), the
// distributed run lock (C15), metrics (C16), and tracing (C17). Each
// collaborator is nil-safe when cfg leaves it unconfigured, mirroring the
// teacher's buildRuntime convention of assembling every collaborator once
// up front and threading the assembled value through every command. The
// returned cleanup function releases everything buildFacade opened.
func buildFacade(cfg config.Config, logger *slog.Logger) (*engine.Facade, func()) {
	ctx := context.Background()
	var closers []func()

	var bus events.Bus
	switch cfg.Events.Backend {
	case "memory", "":
		bus = events.NewInMemoryBus()
	default:
		logger.Warn("unsupported event bus backend for this build, falling back to no-op",
			"backend", cfg.Events.Backend)
		bus = events.NewNoopBus()
	}
	closers = append(closers, func() { _ = bus.Close() })

	var metricsInst *metrics.Metrics
	if cfg.Observability.EnableMetrics {
		metricsInst = metrics.New()
	}

	if cfg.Observability.EnableTracing {
		provider, err := tracing.Setup(tracing.Config{
			ServiceName: cfg.Observability.ServiceName,
			Enabled:     true,
			Logger:      logger,
		})
		if err != nil {
			logger.Warn("tracing setup failed, continuing without it", "error", err)
		} else {
			closers = append(closers, func() { _ = provider.Shutdown(ctx) })
		}
	}

	var runStore *store.RunStore
	if cfg.Store.DSN != "" {
		db, err := store.Connect(ctx, store.Config{DSN: cfg.Store.DSN})
		if err != nil {
			logger.Warn("run store connect failed, continuing without persistence", "error", err)
		} else {
			if err := db.RunMigrations(ctx); err != nil {
				logger.Warn("run store migrations failed, continuing without persistence", "error", err)
			}
			runStore = store.NewRunStore(db)
			closers = append(closers, func() { _ = db.Close() })
		}
	}

	var lock *cache.RunLock
	var converterCache *cache.ConverterCache
	if cfg.Cache.Addr != "" {
		cacheCfg := cache.Config{Addr: cfg.Cache.Addr, KeyPrefix: cfg.Cache.KeyPrefix}
		lock = cache.NewRunLock(cacheCfg)
		converterCache = cache.NewConverterCache(cacheCfg)
		closers = append(closers, func() { _ = lock.Close() }, func() { _ = converterCache.Close() })
	}

	f := engine.New(engine.Options{
		Logger:         logger,
		Metrics:        metricsInst,
		Events:         bus,
		RunStore:       runStore,
		Lock:           lock,
		ConverterCache: converterCache,
		WorkerCount:    cfg.Parallel.WorkerCount,
		RunTimeout:     cfg.Parallel.RunTimeout,
		EnableTracing:  cfg.Observability.EnableTracing,
	})

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return f, cleanup
}
