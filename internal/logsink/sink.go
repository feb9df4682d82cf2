// Package logsink persists a record of every dispatched invocation.
//
// The dispatcher writes one Record per call through the Sink interface.
// Records can be routed to Redis streams, PostgreSQL, per-request JSON
// files, or several of them at once through MultiSink.
package logsink

import (
	"context"
	"encoding/json"
	"time"
)

// Record describes one dispatched invocation.
type Record struct {
	ID           string          `json:"id"`
	Function     string          `json:"function"`
	Runtime      string          `json:"runtime"`
	Handler      string          `json:"handler"`
	TraceID      string          `json:"trace_id,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ExitCode     int             `json:"exit_code"`
	InputSize    int             `json:"input_size"`
	OutputSize   int             `json:"output_size"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Stderr       string          `json:"stderr,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Sink abstracts the destination for invocation records.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Save persists a single record.
	Save(ctx context.Context, rec *Record) error

	// SaveBatch persists several records at once.
	SaveBatch(ctx context.Context, recs []*Record) error

	// Close releases any resources held by the sink.
	Close() error
}

// MultiSink fans out writes to multiple sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a Sink that writes to all provided sinks.
// The first error encountered from any sink is returned.
func NewMultiSink(primary Sink, secondary ...Sink) *MultiSink {
	sinks := make([]Sink, 0, 1+len(secondary))
	sinks = append(sinks, primary)
	sinks = append(sinks, secondary...)
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Save(ctx context.Context, rec *Record) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Save(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) SaveBatch(ctx context.Context, recs []*Record) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.SaveBatch(ctx, recs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoopSink discards all records.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (n *NoopSink) Save(_ context.Context, _ *Record) error        { return nil }
func (n *NoopSink) SaveBatch(_ context.Context, _ []*Record) error { return nil }
func (n *NoopSink) Close() error                                   { return nil }

func prepare(rec *Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
}
