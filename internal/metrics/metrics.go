// Package metrics tracks worker throughput and checkpoint traffic.
//
// Map tasks are short-lived and expose no HTTP endpoint, so metrics live in a
// private registry that is written to a node-exporter textfile when the
// process exits. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the worker's collectors.
type Metrics struct {
	registry *prometheus.Registry

	recordsTotal       *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	engineSteps        *prometheus.CounterVec
	checkpointsWritten prometheus.Counter
	checkpointBytes    prometheus.Counter
	checkpointFailures prometheus.Counter
}

// New creates collectors registered on a fresh registry. constLabels are
// attached to every series, typically the run ID and operation.
func New(constLabels prometheus.Labels) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "xcat_records_total",
			Help:        "Input records processed by outcome",
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),

		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "xcat_operation_duration_seconds",
			Help:        "Wall time spent executing one record",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4min
		}, []string{"operation"}),

		engineSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "xcat_engine_steps_total",
			Help:        "Transition sweeps requested from the inference engine",
			ConstLabels: constLabels,
		}, []string{"operation"}),

		checkpointsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name:        "xcat_checkpoints_written_total",
			Help:        "Checkpoints persisted to the blob store",
			ConstLabels: constLabels,
		}),

		checkpointBytes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "xcat_checkpoint_bytes_total",
			Help:        "Encoded checkpoint bytes persisted to the blob store",
			ConstLabels: constLabels,
		}),

		checkpointFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "xcat_checkpoint_failures_total",
			Help:        "Checkpoint writes that failed",
			ConstLabels: constLabels,
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRecord records one executed record.
func (m *Metrics) ObserveRecord(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.recordsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddEngineSteps counts sweeps requested from the engine.
func (m *Metrics) AddEngineSteps(operation string, steps int) {
	if m == nil || steps <= 0 {
		return
	}
	m.engineSteps.WithLabelValues(operation).Add(float64(steps))
}

// CheckpointWritten records a persisted checkpoint of size bytes.
func (m *Metrics) CheckpointWritten(size int) {
	if m == nil {
		return
	}
	m.checkpointsWritten.Inc()
	m.checkpointBytes.Add(float64(size))
}

// CheckpointFailed records a failed checkpoint write.
func (m *Metrics) CheckpointFailed() {
	if m == nil {
		return
	}
	m.checkpointFailures.Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
