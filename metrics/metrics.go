// Package metrics exposes the fixed set of prometheus metrics registered
// once at daemon startup. Entirely passive observation; no component's
// control flow depends on it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every counter/histogram this node publishes.
type Metrics struct {
	ForwardedWritesOK     prometheus.Counter
	ForwardedWritesFailed prometheus.Counter
	RecoveryCompleted     prometheus.Counter
	RecoveryLost          prometheus.Counter
	GatewayReadLatency    prometheus.Histogram
	GatewayWriteLatency   prometheus.Histogram
}

// New constructs and registers Metrics against reg. Passing a fresh
// prometheus.NewRegistry() (rather than the global default) keeps test
// suites from colliding on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ForwardedWritesOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheep_forwarded_writes_succeeded_total",
			Help: "Forwarded write requests that returned SUCCESS from every replica.",
		}),
		ForwardedWritesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheep_forwarded_writes_failed_total",
			Help: "Forwarded write requests that returned a non-SUCCESS aggregate result.",
		}),
		RecoveryCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheep_recovery_objects_completed_total",
			Help: "Objects successfully recovered.",
		}),
		RecoveryLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheep_recovery_objects_lost_total",
			Help: "Objects recovery gave up on after exhausting retries.",
		}),
		GatewayReadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sheep_gateway_read_latency_seconds",
			Help:    "Latency of gateway read dispatch, local or forwarded.",
			Buckets: prometheus.DefBuckets,
		}),
		GatewayWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sheep_gateway_write_latency_seconds",
			Help:    "Latency of gateway write dispatch, local or forwarded.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.ForwardedWritesOK,
		m.ForwardedWritesFailed,
		m.RecoveryCompleted,
		m.RecoveryLost,
		m.GatewayReadLatency,
		m.GatewayWriteLatency,
	)
	return m
}
