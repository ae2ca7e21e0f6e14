package tracing_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/SakodaShintaro/gpudrive/internal/config"
	"github.com/SakodaShintaro/gpudrive/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.Enabled() {
		t.Error("Enabled() = true, want false when no endpoint is configured")
	}

	_, span := p.Tracer().Start(context.Background(), "test")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer produced a valid span context")
	}
}

func TestInitEndpointSources(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		env      string
		want     bool
	}{
		{"blank endpoint", "   ", "", false},
		{"environment fallback", "", "localhost:4317", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.env)
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:   tt.endpoint,
				Protocol:   "grpc",
				Insecure:   true,
				SampleRate: 1.0,
			})
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
			if p.Enabled() != tt.want {
				t.Errorf("Enabled() = %v, want %v", p.Enabled(), tt.want)
			}
		})
	}
}

func TestInitWithEndpointEnablesTracing(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		ServiceName: "test-service",
		SampleRate:  1.0,
		Insecure:    true,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if !p.Enabled() {
		t.Error("Enabled() = false, want true when endpoint is set")
	}
}

func TestInitHTTPProtocol(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:   "localhost:4318",
		Protocol:   "http",
		Insecure:   true,
		SampleRate: 0.25,
	})
	if err != nil {
		t.Fatalf("Init() with http protocol error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if !p.Enabled() {
		t.Error("Enabled() = false, want true")
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
		Insecure: true,
	})
	if err == nil {
		t.Fatal("Init() with unsupported protocol should return error")
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"negative", -0.5},
		{"above one", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:   "localhost:4317",
				Protocol:   "grpc",
				Insecure:   true,
				SampleRate: tt.rate,
			})
			if err == nil {
				t.Fatalf("Init() with sample_rate=%g should return error", tt.rate)
			}
		})
	}
}

func TestStartAndEndSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracing.StartSpan(context.Background(), tracer, "loader.next", attribute.Int("loader.batch_size", 4))
	tracing.EndSpan(span, nil, attribute.Int("loader.epoch", 2))

	_, failed := tracing.StartSpan(context.Background(), tracer, "loader.build_catalog")
	tracing.EndSpan(failed, errors.New("root missing"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(spans))
	}

	ok := spans[0]
	if ok.Name != "loader.next" {
		t.Errorf("Name = %q, want loader.next", ok.Name)
	}
	if ok.Status.Code != codes.Ok {
		t.Errorf("Status = %v, want Ok", ok.Status.Code)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ok.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs["loader.batch_size"].AsInt64() != 4 || attrs["loader.epoch"].AsInt64() != 2 {
		t.Errorf("Attributes = %v, want batch_size=4 epoch=2", ok.Attributes)
	}

	bad := spans[1]
	if bad.Status.Code != codes.Error || bad.Status.Description != "root missing" {
		t.Errorf("Status = %+v, want Error/root missing", bad.Status)
	}
	if len(bad.Events) == 0 {
		t.Errorf("expected recorded error event")
	}
}

func TestStartSpanNilTracer(t *testing.T) {
	_, span := tracing.StartSpan(context.Background(), nil, "noop")
	tracing.EndSpan(span, nil)
	if span.SpanContext().IsValid() {
		t.Error("nil tracer produced a valid span context")
	}
}
