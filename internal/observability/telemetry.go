// Package observability carries trace context across the dispatcher and
// worker processes.
//
// Both processes install the W3C propagator unconditionally. The dispatcher
// hands its span to the worker through TRACEPARENT and TRACESTATE in the
// child environment, and the worker resumes it from there, so a single trace
// covers the dispatch, the worker and the invoke-local tool. Each process
// tags its resource with its role and pid. Worker processes live for one
// invocation and export spans synchronously, so nothing is lost when they
// exit right after responding.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds telemetry configuration
type Config struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter" toml:"exporter"`             // otlp-http, noop
	Endpoint    string  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`             // localhost:4318
	ServiceName string  `json:"service_name" yaml:"service_name" toml:"service_name"` // pulsar
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`    // 0.0 to 1.0
	// Role is set by the process, not by config files.
	Role Role `json:"-" yaml:"-" toml:"-"`
}

// Role names the process that owns a tracer provider.
type Role string

const (
	RoleDispatcher Role = "dispatcher"
	RoleWorker     Role = "worker"
)

// AttrProcessRole tags the resource with the process role.
const AttrProcessRole = attribute.Key("pulsar.process.role")

// Provider wraps the OpenTelemetry TracerProvider
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var globalProvider = disabledProvider()

func disabledProvider() *Provider {
	return &Provider{enabled: false, tracer: noop.NewTracerProvider().Tracer("")}
}

// Init initializes the global telemetry provider. The W3C propagator is
// installed even when tracing is disabled so trace context still flows
// from the dispatcher to the worker.
func Init(ctx context.Context, cfg Config) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		globalProvider = disabledProvider()
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pulsar"
	}
	if cfg.Role == "" {
		cfg.Role = RoleDispatcher
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
			AttrProcessRole.String(string(cfg.Role)),
		),
		resource.WithProcessPID(),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp-http", "otlp", "":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("create OTLP exporter: %w", err)
		}
		exporter = exp
	case "noop":
		exporter = &noopExporter{}
	default:
		return fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		spanProcessorFor(cfg.Role, exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)

	globalProvider = &Provider{
		tp:      tp,
		tracer:  tp.Tracer(cfg.ServiceName),
		enabled: true,
	}

	return nil
}

// spanProcessorFor batches in the dispatcher and exports synchronously in a
// worker, which exits as soon as it has responded.
func spanProcessorFor(role Role, exporter sdktrace.SpanExporter) sdktrace.TracerProviderOption {
	if role == RoleWorker {
		return sdktrace.WithSyncer(exporter)
	}
	return sdktrace.WithBatcher(exporter)
}

// Shutdown flushes pending spans and stops the provider
func Shutdown(ctx context.Context) error {
	if globalProvider.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return globalProvider.tp.Shutdown(ctx)
}

// Tracer returns the global tracer
func Tracer() trace.Tracer {
	return globalProvider.tracer
}

// Enabled returns whether tracing is enabled
func Enabled() bool {
	return globalProvider.enabled
}

type noopExporter struct{}

func (e *noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (e *noopExporter) Shutdown(ctx context.Context) error {
	return nil
}
