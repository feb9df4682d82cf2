package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics keeps in-process invocation counters for the lifetime of a
// dispatcher.
type Metrics struct {
	TotalInvocations   atomic.Int64
	SuccessInvocations atomic.Int64
	FailedInvocations  atomic.Int64
	TransportFaults    atomic.Int64
	WorkersSpawned     atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	funcMetrics sync.Map // function name -> *FunctionMetrics

	startTime time.Time
}

// FunctionMetrics tracks metrics for a single function
type FunctionMetrics struct {
	Invocations atomic.Int64
	Successes   atomic.Int64
	Failures    atomic.Int64
	TotalMs     atomic.Int64
	MinMs       atomic.Int64
	MaxMs       atomic.Int64
}

var global = New()

// New creates an empty metrics set.
func New() *Metrics {
	m := &Metrics{startTime: time.Now()}
	m.MinLatencyMs.Store(int64(^uint64(0) >> 1))
	return m
}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// RecordInvocation records the result of one dispatched invocation and
// mirrors it into the Prometheus collectors.
func (m *Metrics) RecordInvocation(function, runtime string, durationMs int64, outcome string) {
	success := outcome == OutcomeSuccess
	m.TotalInvocations.Add(1)
	if success {
		m.SuccessInvocations.Add(1)
	} else {
		m.FailedInvocations.Add(1)
	}
	if outcome == OutcomeTransportFault {
		m.TransportFaults.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	fm := m.functionMetrics(function)
	fm.Invocations.Add(1)
	if success {
		fm.Successes.Add(1)
	} else {
		fm.Failures.Add(1)
	}
	fm.TotalMs.Add(durationMs)
	updateMin(&fm.MinMs, durationMs)
	updateMax(&fm.MaxMs, durationMs)

	RecordPrometheusInvocation(function, runtime, durationMs, outcome)
}

// RecordWorkerSpawn counts a started worker process.
func (m *Metrics) RecordWorkerSpawn(runtime string) {
	m.WorkersSpawned.Add(1)
	RecordPrometheusWorkerSpawn(runtime)
}

func (m *Metrics) functionMetrics(function string) *FunctionMetrics {
	if v, ok := m.funcMetrics.Load(function); ok {
		return v.(*FunctionMetrics)
	}
	fm := &FunctionMetrics{}
	fm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.funcMetrics.LoadOrStore(function, fm)
	return actual.(*FunctionMetrics)
}

// FunctionSnapshot is a point-in-time view of one function's counters.
type FunctionSnapshot struct {
	Function    string  `json:"function"`
	Invocations int64   `json:"invocations"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
	AvgMs       float64 `json:"avg_ms"`
	MinMs       int64   `json:"min_ms"`
	MaxMs       int64   `json:"max_ms"`
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	UptimeSeconds   int64              `json:"uptime_seconds"`
	Invocations     int64              `json:"invocations"`
	Successes       int64              `json:"successes"`
	Failures        int64              `json:"failures"`
	TransportFaults int64              `json:"transport_faults"`
	WorkersSpawned  int64              `json:"workers_spawned"`
	AvgLatencyMs    float64            `json:"avg_latency_ms"`
	MinLatencyMs    int64              `json:"min_latency_ms"`
	MaxLatencyMs    int64              `json:"max_latency_ms"`
	Functions       []FunctionSnapshot `json:"functions,omitempty"`
}

// Snapshot returns the current counters with functions sorted by name.
func (m *Metrics) Snapshot() Snapshot {
	total := m.TotalInvocations.Load()
	s := Snapshot{
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		Invocations:     total,
		Successes:       m.SuccessInvocations.Load(),
		Failures:        m.FailedInvocations.Load(),
		TransportFaults: m.TransportFaults.Load(),
		WorkersSpawned:  m.WorkersSpawned.Load(),
		MaxLatencyMs:    m.MaxLatencyMs.Load(),
	}
	if total > 0 {
		s.AvgLatencyMs = float64(m.TotalLatencyMs.Load()) / float64(total)
		s.MinLatencyMs = m.MinLatencyMs.Load()
	}

	m.funcMetrics.Range(func(key, value any) bool {
		fm := value.(*FunctionMetrics)
		fs := FunctionSnapshot{
			Function:    key.(string),
			Invocations: fm.Invocations.Load(),
			Successes:   fm.Successes.Load(),
			Failures:    fm.Failures.Load(),
			MaxMs:       fm.MaxMs.Load(),
		}
		if fs.Invocations > 0 {
			fs.AvgMs = float64(fm.TotalMs.Load()) / float64(fs.Invocations)
			fs.MinMs = fm.MinMs.Load()
		}
		s.Functions = append(s.Functions, fs)
		return true
	})
	sort.Slice(s.Functions, func(i, j int) bool { return s.Functions[i].Function < s.Functions[j].Function })
	return s
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		current := target.Load()
		if value >= current || target.CompareAndSwap(current, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		current := target.Load()
		if value <= current || target.CompareAndSwap(current, value) {
			return
		}
	}
}
