package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Invocation outcome labels.
const (
	OutcomeSuccess        = "success"
	OutcomeError          = "error"
	OutcomeTransportFault = "transport_fault"
	OutcomeConfigError    = "config_error"
)

// PrometheusMetrics wraps prometheus collectors for dispatcher metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	workersSpawned     *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
}

// Default histogram buckets for invocation duration (in milliseconds)
var defaultBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var (
	promMu      sync.RWMutex
	promMetrics *PrometheusMetrics
)

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of dispatched invocations",
			},
			[]string{"function", "runtime", "outcome"},
		),

		workersSpawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workers_spawned_total",
				Help:      "Total worker processes started",
			},
			[]string{"runtime"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of dispatched invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"function", "runtime"},
		),
	}

	registry.MustRegister(pm.invocationsTotal, pm.workersSpawned, pm.invocationDuration)

	promMu.Lock()
	promMetrics = pm
	promMu.Unlock()
}

func current() *PrometheusMetrics {
	promMu.RLock()
	defer promMu.RUnlock()
	return promMetrics
}

// RecordPrometheusInvocation records one invocation if Prometheus is
// initialized.
func RecordPrometheusInvocation(function, runtime string, durationMs int64, outcome string) {
	pm := current()
	if pm == nil {
		return
	}
	pm.invocationsTotal.WithLabelValues(function, runtime, outcome).Inc()
	pm.invocationDuration.WithLabelValues(function, runtime).Observe(float64(durationMs))
}

// RecordPrometheusWorkerSpawn counts a started worker process.
func RecordPrometheusWorkerSpawn(runtime string) {
	pm := current()
	if pm == nil {
		return
	}
	pm.workersSpawned.WithLabelValues(runtime).Inc()
}

// PrometheusRegistry returns the registry, or nil before InitPrometheus.
func PrometheusRegistry() *prometheus.Registry {
	pm := current()
	if pm == nil {
		return nil
	}
	return pm.registry
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func WriteTextfile(path string) error {
	reg := PrometheusRegistry()
	if reg == nil {
		return fmt.Errorf("prometheus metrics not initialized")
	}
	return prometheus.WriteToTextfile(path, reg)
}
