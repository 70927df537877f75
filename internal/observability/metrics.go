// Package observability wires the ambient instrumentation of pooldb:
// Prometheus metrics, OpenTelemetry tracing and the slog logger.
//
// # Metrics
//
// All metrics live under the "pooldb" namespace and are registered on the
// registry passed to NewMetrics, so tests can use an isolated
// prometheus.NewRegistry() and servers expose the same registry on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// A nil *Metrics is valid and records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pooldb"

// Command results used as the "result" label
const (
	ResultOK      = "ok"
	ResultUnknown = "unknown_key"
	ResultTimeout = "lock_timeout"
	ResultError   = "error"
)

// Metrics holds the Prometheus collectors of the pool service.
type Metrics struct {
	// CommandsTotal counts commands by command (update, query) and result.
	CommandsTotal *prometheus.CounterVec

	// CommandDuration measures end-to-end command latency, lock wait included.
	CommandDuration *prometheus.HistogramVec

	// ShardSaves counts shard writes by the command that caused them.
	ShardSaves *prometheus.CounterVec

	// SortSkips counts queries served from an already sorted pool.
	SortSkips prometheus.Counter

	// LockWait measures time spent acquiring a shard lock.
	LockWait prometheus.Histogram

	// LockTimeouts counts lock acquisitions that hit the wait cap.
	LockTimeouts prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg. Registering twice
// on the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "Total number of commands by command and result",
			},
			[]string{"command", "result"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "command_duration_seconds",
				Help:      "Command duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"command"},
		),
		ShardSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "shard_saves_total",
				Help:      "Total number of shard writes by command",
			},
			[]string{"command"},
		),
		SortSkips: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sort_skips_total",
				Help:      "Queries answered without sorting or saving",
			},
		),
		LockWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for a shard lock in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
			},
		),
		LockTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "lock_timeouts_total",
				Help:      "Shard lock acquisitions that exceeded the wait cap",
			},
		),
	}
}

// ObserveCommand records one finished command.
func (m *Metrics) ObserveCommand(command, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveSave records a shard write.
func (m *Metrics) ObserveSave(command string) {
	if m == nil {
		return
	}
	m.ShardSaves.WithLabelValues(command).Inc()
}

// ObserveSortSkip records a query that found its pool already sorted.
func (m *Metrics) ObserveSortSkip() {
	if m == nil {
		return
	}
	m.SortSkips.Inc()
}

// ObserveLock records a lock acquisition attempt.
func (m *Metrics) ObserveLock(wait time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.LockWait.Observe(wait.Seconds())
	if timedOut {
		m.LockTimeouts.Inc()
	}
}
