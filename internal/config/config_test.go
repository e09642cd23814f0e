package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, envAppEnv, envAppEnvLegacy, envWorkerCount, envRunTimeout,
		envQueueCapacity, envEventBusBackend, envNATSURL)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Env != EnvDevelopment {
		t.Errorf("expected default env %q, got %q", EnvDevelopment, cfg.Env)
	}
	if cfg.Parallel.WorkerCount <= 0 {
		t.Errorf("expected positive default worker count, got %d", cfg.Parallel.WorkerCount)
	}
	if cfg.Parallel.RunTimeout != defaultRunTimeout {
		t.Errorf("expected default run timeout %v, got %v", defaultRunTimeout, cfg.Parallel.RunTimeout)
	}
	if cfg.Events.Backend != "memory" {
		t.Errorf("expected default event bus backend memory, got %q", cfg.Events.Backend)
	}
}

func TestLoadInvalidEventBusBackend(t *testing.T) {
	clearEnv(t, envEventBusBackend, envNATSURL)
	os.Setenv(envEventBusBackend, "kafka")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown event bus backend")
	}
}

func TestLoadNATSRequiresURL(t *testing.T) {
	clearEnv(t, envEventBusBackend, envNATSURL)
	os.Setenv(envEventBusBackend, "nats")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when nats backend has no URL")
	}
}

func TestNormalizeEnv(t *testing.T) {
	cases := map[string]string{
		"production": EnvProduction,
		"prod":       EnvProduction,
		"staging":    EnvStaging,
		"test":       EnvTest,
		"garbage":    EnvDevelopment,
		"":           EnvDevelopment,
	}
	for in, want := range cases {
		if got := normalizeEnv(in); got != want {
			t.Errorf("normalizeEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfigIsProduction(t *testing.T) {
	cfg := Config{Env: EnvProduction}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction to be true")
	}
	if cfg.IsTest() {
		t.Error("expected IsTest to be false")
	}
}
