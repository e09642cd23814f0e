// Package tracing provides OpenTelemetry span instrumentation for the
// KigaliSim engine (spec.md §5, C17). It opens one span per scenario run
// and nested spans per year-batch, so operators can see latency breakdown
// across a ParallelSimulationExecutor pool.
//
// Unlike the wider ambient stack this package is adapted from, there is no
// network collector in this engine's scope (§1's non-goals exclude an
// observability backend), so Setup attaches no span processor by default:
// spans are always valid to start/end, but go nowhere unless the caller
// supplies one via Config.SpanProcessor. This keeps the tracing API exercised end to end
// without requiring an OTLP collector to be reachable.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration for tracing setup.
type Config struct {
	// ServiceName identifies the engine instance in traces.
	ServiceName string

	// ServiceVersion is the engine build version (see version(), §6.3).
	ServiceVersion string

	// Environment (development, staging, production, test).
	Environment string

	// SamplingRate controls trace sampling (0.0 to 1.0).
	// 1.0 = sample all traces. Defaults to 1.0.
	SamplingRate float64

	// Enabled controls whether tracing is active.
	Enabled bool

	// SpanProcessor, if set, receives spans as they complete (e.g. an
	// exporter-backed batch processor). Nil means spans are produced but
	// not exported anywhere — tracing is "on" with no sink, which is a
	// valid configuration for an engine with no collector deployed.
	SpanProcessor sdktrace.SpanProcessor

	Logger *slog.Logger
}

// Provider wraps the OpenTelemetry trace provider with shutdown capability.
type Provider struct {
	provider *sdktrace.TracerProvider
	logger   *slog.Logger
}

// Shutdown gracefully shuts down the trace provider, flushing any pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}

	p.logger.Info("shutting down trace provider")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.provider.Shutdown(shutdownCtx); err != nil {
		p.logger.Error("failed to shutdown trace provider", "error", err)
		return fmt.Errorf("tracing: shutdown failed: %w", err)
	}

	p.logger.Info("trace provider shutdown complete")
	return nil
}

// Setup initializes OpenTelemetry tracing with the provided configuration.
//
// Returns a Provider that must be shut down when the application exits.
func Setup(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{logger: cfg.Logger}, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "kigalisim"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.SamplingRate <= 0 || cfg.SamplingRate > 1.0 {
		cfg.SamplingRate = 1.0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("initializing tracing",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"environment", cfg.Environment,
		"sampling_rate", cfg.SamplingRate,
	)

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if cfg.SpanProcessor != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(cfg.SpanProcessor))
	}

	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized successfully")

	return &Provider{
		provider: provider,
		logger:   logger,
	}, nil
}

// StartScenarioSpan starts a span for one scenario/trial run.
//
// Example:
//
//	ctx, span := tracing.StartScenarioSpan(ctx, "bau", 0)
//	defer span.End()
func StartScenarioSpan(ctx context.Context, scenario string, trial int) (context.Context, trace.Span) {
	tracer := otel.Tracer("kigalisim/runner")
	ctx, span := tracer.Start(ctx, "scenario.run")
	span.SetAttributes(
		attribute.String("scenario", scenario),
		attribute.Int("trial", trial),
	)
	return ctx, span
}

// StartYearSpan starts a sub-span for one simulated year's operation batch.
func StartYearSpan(ctx context.Context, year int) (context.Context, trace.Span) {
	tracer := otel.Tracer("kigalisim/runner")
	ctx, span := tracer.Start(ctx, "scenario.year")
	span.SetAttributes(attribute.Int("year", year))
	return ctx, span
}

// RecordError records an error on the span and sets its status.
func RecordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}

// SetAttributes is a convenience function to set multiple attributes on a span.
func SetAttributes(span trace.Span, attrs map[string]any) {
	if span == nil {
		return
	}

	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	span.SetAttributes(kvs...)
}

// AddEvent adds an event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs map[string]any) {
	if span == nil {
		return
	}

	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}

	span.AddEvent(name, trace.WithAttributes(kvs...))
}

func toAttribute(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case float64:
		return attribute.Float64(k, val)
	case bool:
		return attribute.Bool(k, val)
	default:
		return attribute.String(k, fmt.Sprintf("%v", val))
	}
}
