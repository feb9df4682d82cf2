package observability

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTripThroughEnv(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: "noop", SampleRate: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Shutdown(context.Background())

	ctx, span := StartClientSpan(context.Background(), "dispatch")
	defer span.End()

	env := ExtractTraceContext(ctx).Env()
	if len(env) == 0 || !strings.HasPrefix(env[0], EnvTraceParent+"=") {
		t.Fatalf("expected TRACEPARENT entry, got %v", env)
	}

	lookup := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		lookup[k] = v
	}
	child := ContextFromEnv(context.Background(), func(k string) string { return lookup[k] })

	got := trace.SpanContextFromContext(child)
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("trace id = %s, want %s", got.TraceID(), span.SpanContext().TraceID())
	}
	if GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Fatal("GetTraceID mismatch")
	}
}

func TestEmptyTraceContext(t *testing.T) {
	if env := (TraceContext{}).Env(); env != nil {
		t.Fatalf("expected no env, got %v", env)
	}
	ctx := ContextFromEnv(context.Background(), func(string) string { return "" })
	if GetTraceID(ctx) != "" {
		t.Fatal("expected no trace id")
	}
}

func TestDisabledTracerIsUsable(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := StartSpan(context.Background(), "noop")
	span.End()
	if Enabled() {
		t.Fatal("expected tracing disabled")
	}
}
