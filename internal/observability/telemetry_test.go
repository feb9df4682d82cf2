package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_DisabledKeepsPropagation(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Fatal("tracing must be disabled")
	}
	fields := otel.GetTextMapPropagator().Fields()
	found := false
	for _, f := range fields {
		if f == "traceparent" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected traceparent propagation, fields = %v", fields)
	}
	if Tracer() == nil {
		t.Fatal("disabled provider must still return a tracer")
	}
}

func TestInit_WorkerRole(t *testing.T) {
	cfg := Config{Enabled: true, Exporter: "noop", SampleRate: 1, Role: RoleWorker}
	if err := Init(context.Background(), cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		Shutdown(context.Background())
		Init(context.Background(), Config{})
	}()

	if !Enabled() {
		t.Fatal("tracing must be enabled")
	}
	_, span := StartSpan(context.Background(), "worker.test")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a recording span")
	}
	span.End()
}

func TestInit_UnknownExporter(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	Init(context.Background(), Config{})
}

func TestSpanProcessorFor(t *testing.T) {
	exp := &noopExporter{}
	for _, role := range []Role{RoleWorker, RoleDispatcher, ""} {
		tp := sdktrace.NewTracerProvider(spanProcessorFor(role, exp))
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Fatalf("role %q: shutdown: %v", role, err)
		}
	}
}
