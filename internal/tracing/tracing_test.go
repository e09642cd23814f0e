package tracing

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupDisabledIsNoOp(t *testing.T) {
	provider, err := Setup(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected disabled provider shutdown to be a no-op, got %v", err)
	}
}

func TestSetupRecordsSpansWithProcessor(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	processor := sdktrace.NewSimpleSpanProcessor(exporter)

	provider, err := Setup(Config{
		Enabled:       true,
		ServiceName:   "kigalisim-test",
		SpanProcessor: processor,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer provider.Shutdown(context.Background())

	ctx, span := StartScenarioSpan(context.Background(), "bau", 0)
	_, yearSpan := StartYearSpan(ctx, 2025)
	yearSpan.End()
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 recorded spans, got %d", len(spans))
	}
}

func TestRecordErrorNilSafe(t *testing.T) {
	RecordError(nil, errors.New("boom"), "should not panic")
}

func TestRecordErrorSetsStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	processor := sdktrace.NewSimpleSpanProcessor(exporter)
	provider, err := Setup(Config{Enabled: true, SpanProcessor: processor})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer provider.Shutdown(context.Background())

	_, span := StartScenarioSpan(context.Background(), "bau", 0)
	RecordError(span, errors.New("recalc failed"), "recalc failed")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code.String() != "Error" {
		t.Errorf("expected span status Error, got %v", spans[0].Status.Code)
	}
}
