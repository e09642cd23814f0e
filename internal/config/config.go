// Package config provides centralized configuration loading for the
// KigaliSim engine. It reads configuration from environment variables with
// sensible defaults and validation to fail fast on misconfiguration.
//
// Environment variable naming convention:
//   - KIGALISIM_* prefix for application-specific settings
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatalf("configuration error: %v", err)
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Environment Constants
// =============================================================================

const (
	// EnvDevelopment is the development environment.
	EnvDevelopment = "development"

	// EnvStaging is the staging/preview environment.
	EnvStaging = "staging"

	// EnvProduction is the production environment.
	EnvProduction = "production"

	// EnvTest is the test environment.
	EnvTest = "test"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	defaultEnv            = EnvDevelopment
	defaultRunTimeout     = time.Hour // §5: pool has a hard wait bound, default 1 hour
	defaultQueueCapacity  = 256
	defaultCacheKeyPrefix = "kigalisim"
)

// =============================================================================
// Environment Variable Keys
// =============================================================================

const (
	envAppEnv       = "KIGALISIM_APP_ENV"
	envAppEnvLegacy = "APP_ENV"

	// Parallel driver (C9)
	envWorkerCount    = "KIGALISIM_WORKER_COUNT"
	envRunTimeout     = "KIGALISIM_RUN_TIMEOUT"
	envQueueCapacity  = "KIGALISIM_RESULT_QUEUE_CAPACITY"

	// Run store (C14)
	envStoreDSN = "KIGALISIM_STORE_DSN"

	// Cache (C15)
	envCacheAddr   = "KIGALISIM_CACHE_ADDR"
	envCachePrefix = "KIGALISIM_CACHE_KEY_PREFIX"

	// Diagnostics/event bus (C13)
	envEventBusBackend = "KIGALISIM_EVENT_BUS" // "memory" (default) or "nats"
	envNATSURL         = "KIGALISIM_NATS_URL"

	// Observability (C16/C17)
	envEnableMetrics = "KIGALISIM_ENABLE_METRICS"
	envEnableTracing = "KIGALISIM_ENABLE_TRACING"
	envServiceName   = "KIGALISIM_SERVICE_NAME"

	// Logging (C12)
	envLogLevel  = "KIGALISIM_LOG_LEVEL"
	envLogFormat = "KIGALISIM_LOG_FORMAT"
	envLogSource = "KIGALISIM_LOG_SOURCE"
)

// =============================================================================
// Configuration Structs
// =============================================================================

// Config holds all application configuration, grouped by domain.
type Config struct {
	// Env is the application environment (development, staging, production, test).
	Env string `json:"env"`

	// Parallel holds ParallelSimulationExecutor (C9) settings.
	Parallel ParallelConfig `json:"parallel"`

	// Store holds run-history persistence settings (C14).
	Store StoreConfig `json:"store"`

	// Cache holds distributed cache settings (C15).
	Cache CacheConfig `json:"cache"`

	// Events holds the diagnostics/lifecycle event bus settings (C13).
	Events EventsConfig `json:"events"`

	// Observability holds metrics/tracing toggles (C16/C17).
	Observability ObservabilityConfig `json:"observability"`
}

// ParallelConfig configures the scenario worker pool.
type ParallelConfig struct {
	// WorkerCount is the number of concurrent scenario workers.
	// Defaults to the number of logical CPUs per spec.md §5.
	WorkerCount int `json:"worker_count"`

	// RunTimeout is the hard wait bound for a pool run (§5: default 1 hour).
	RunTimeout time.Duration `json:"run_timeout"`

	// QueueCapacity is loaded and validated as positive; no other package
	// reads it, so it does not bound any pool queue.
	QueueCapacity int `json:"queue_capacity"`
}

// StoreConfig configures the optional Postgres run-history store.
type StoreConfig struct {
	// DSN is the PostgreSQL connection string. Empty disables the store
	// entirely; the engine runs correctly with no store configured.
	DSN string `json:"-"`
}

// CacheConfig configures the optional Redis-backed cache.
type CacheConfig struct {
	// Addr is the redis server address (host:port). Empty disables caching.
	Addr string `json:"addr,omitempty"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `json:"key_prefix"`
}

// EventsConfig configures the diagnostics/lifecycle event bus.
type EventsConfig struct {
	// Backend selects the bus implementation: "memory" or "nats".
	Backend string `json:"backend"`

	// NATSURL is the NATS server URL, used when Backend == "nats".
	NATSURL string `json:"nats_url,omitempty"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	EnableMetrics bool   `json:"enable_metrics"`
	EnableTracing bool   `json:"enable_tracing"`
	ServiceName   string `json:"service_name"`
}

// =============================================================================
// Configuration Loading
// =============================================================================

// Load reads configuration from environment variables and returns a
// validated Config. Returns an error if a value is present but malformed.
func Load() (Config, error) {
	env := getEnvWithFallback(envAppEnv, envAppEnvLegacy)
	if env == "" {
		env = defaultEnv
	}

	cfg := Config{
		Env:      normalizeEnv(env),
		Parallel: loadParallelConfig(),
		Store:    StoreConfig{DSN: strings.TrimSpace(os.Getenv(envStoreDSN))},
		Cache: CacheConfig{
			Addr:      strings.TrimSpace(os.Getenv(envCacheAddr)),
			KeyPrefix: getStringEnv(envCachePrefix, defaultCacheKeyPrefix),
		},
		Events: EventsConfig{
			Backend: getStringEnv(envEventBusBackend, "memory"),
			NATSURL: strings.TrimSpace(os.Getenv(envNATSURL)),
		},
		Observability: ObservabilityConfig{
			EnableMetrics: getBoolEnv(envEnableMetrics, true),
			EnableTracing: getBoolEnv(envEnableTracing, false),
			ServiceName:   getStringEnv(envServiceName, "kigalisim"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics on error.
// Use only in main() or initialization code where panicking is appropriate.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

func loadParallelConfig() ParallelConfig {
	workers := getIntEnv(envWorkerCount, runtime.NumCPU())
	return ParallelConfig{
		WorkerCount:   workers,
		RunTimeout:    getDurationEnv(envRunTimeout, defaultRunTimeout),
		QueueCapacity: getIntEnv(envQueueCapacity, defaultQueueCapacity),
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.Parallel.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("worker count must be positive, got %d", c.Parallel.WorkerCount))
	}
	if c.Parallel.RunTimeout <= 0 {
		errs = append(errs, errors.New("run timeout must be positive"))
	}
	if c.Parallel.QueueCapacity <= 0 {
		errs = append(errs, errors.New("result queue capacity must be positive"))
	}
	switch c.Events.Backend {
	case "memory", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown event bus backend %q", c.Events.Backend))
	}
	if c.Events.Backend == "nats" && c.Events.NATSURL == "" {
		errs = append(errs, errors.New("nats event bus selected but KIGALISIM_NATS_URL is empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// =============================================================================
// Helper Methods
// =============================================================================

// IsProduction returns true if running in the production environment.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// IsTest returns true if running in the test environment.
func (c Config) IsTest() bool {
	return c.Env == EnvTest
}

// =============================================================================
// Environment Variable Helpers
// =============================================================================

func getEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func getStringEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			return val
		}
	}
	return defaultVal
}

// getBoolEnv returns a boolean from an environment variable, or the default.
// Accepts: true, false, 1, 0, yes, no, on, off (case-insensitive).
func getBoolEnv(key string, defaultVal bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// getDurationEnv returns a duration from an environment variable, or the
// default. Accepts Go duration strings (e.g., "30s", "5m", "1h").
func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if val, err := time.ParseDuration(raw); err == nil {
			return val
		}
	}
	return defaultVal
}

// normalizeEnv ensures the environment string is a known value.
func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return EnvProduction
	case "staging", "stage", "preview":
		return EnvStaging
	case "test", "testing":
		return EnvTest
	default:
		return EnvDevelopment
	}
}
