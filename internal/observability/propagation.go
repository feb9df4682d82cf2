package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Environment variables carrying W3C trace context into a worker process.
const (
	EnvTraceParent = "TRACEPARENT"
	EnvTraceState  = "TRACESTATE"
)

// TraceContext holds W3C trace context fields for propagation to a worker
type TraceContext struct {
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// ExtractTraceContext extracts trace context from a context for propagation
func ExtractTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return TraceContext{
		TraceParent: carrier.Get("traceparent"),
		TraceState:  carrier.Get("tracestate"),
	}
}

// InjectTraceContext injects trace context from TraceContext into a context
func InjectTraceContext(ctx context.Context, tc TraceContext) context.Context {
	if tc.TraceParent == "" {
		return ctx
	}

	carrier := propagation.MapCarrier{
		"traceparent": tc.TraceParent,
		"tracestate":  tc.TraceState,
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Env renders the trace context as environment entries. It returns nil when
// there is nothing to propagate.
func (tc TraceContext) Env() []string {
	if tc.TraceParent == "" {
		return nil
	}
	env := []string{EnvTraceParent + "=" + tc.TraceParent}
	if tc.TraceState != "" {
		env = append(env, EnvTraceState+"="+tc.TraceState)
	}
	return env
}

// ContextFromEnv continues the trace handed down through the environment.
func ContextFromEnv(ctx context.Context, getenv func(string) string) context.Context {
	return InjectTraceContext(ctx, TraceContext{
		TraceParent: getenv(EnvTraceParent),
		TraceState:  getenv(EnvTraceState),
	})
}

// GetTraceID returns the trace ID from context as a string
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the span ID from context as a string
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasSpanID() {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
