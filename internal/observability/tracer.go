package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span with the given name and attributes
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan creates a span for an outgoing call to a worker process
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartServerSpan creates a span for a request received by a worker
func StartServerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Common attribute keys for invocation spans
var (
	AttrFunctionName  = attribute.Key("pulsar.function.name")
	AttrHandler       = attribute.Key("pulsar.handler")
	AttrRuntime       = attribute.Key("pulsar.runtime")
	AttrFlavor        = attribute.Key("pulsar.flavor")
	AttrRequestID     = attribute.Key("pulsar.request_id")
	AttrDurationMs    = attribute.Key("pulsar.duration_ms")
	AttrWorkerPID     = attribute.Key("pulsar.worker.pid")
	AttrWorkerExit    = attribute.Key("pulsar.worker.exit_code")
	AttrErrorCategory = attribute.Key("pulsar.error.category")
)
