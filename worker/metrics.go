package worker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rony4d/go-adex-validator/sentry"
)

const metricsNamespace = "validator"

// Metrics are the worker's prometheus collectors.
type Metrics struct {
	Rounds              prometheus.Counter
	Channels            prometheus.Gauge
	Ticks               *prometheus.CounterVec
	TickDuration        *prometheus.HistogramVec
	PropagationFailures prometheus.Counter
	Heartbeats          prometheus.Counter
	InvariantViolations prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg, if any.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rounds_total",
			Help:      "Completed worker rounds.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "channels",
			Help:      "Channels processed in the last round.",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Channel ticks by role and outcome.",
		}, []string{"role", "outcome"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of channel ticks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
		PropagationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "propagation_failures_total",
			Help:      "Message deliveries that were not acknowledged.",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats sent.",
		}),
		InvariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invariant_violations_total",
			Help:      "Ticks aborted by a broken accounting invariant.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Rounds, m.Channels, m.Ticks, m.TickDuration, m.PropagationFailures, m.Heartbeats, m.InvariantViolations)
	}
	return m
}

func (m *Metrics) observePropagation(res sentry.PropagationResult) {
	m.PropagationFailures.Add(float64(len(res.Failed())))
}
