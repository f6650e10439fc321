// Package kmetrics exposes Prometheus counters/histograms for the
// dispatcher and lifecycle, in the teacher's infra/monitoring idiom.
package kmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the kernel's dispatch-path instrumentation.
type Metrics struct {
	Sends           *prometheus.CounterVec
	SendErrors      *prometheus.CounterVec
	BusyWaitSeconds prometheus.Histogram
	QueueDepth      prometheus.Gauge
	ObjectsLive     prometheus.Gauge
}

// New registers a fresh set of metrics against a private registry so
// multiple kernels (e.g. in tests) never collide on metric names.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kernelguard_dispatch_sends_total",
			Help: "Total number of kernel send() calls by message type.",
		}, []string{"message_type"}),
		SendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kernelguard_dispatch_errors_total",
			Help: "Total number of kernel send() calls returning a non-ok status.",
		}, []string{"message_type", "status"}),
		BusyWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kernelguard_busy_wait_seconds",
			Help:    "Time spent waiting for a busy target object.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernelguard_message_queue_depth",
			Help: "Current depth of the self-message FIFO.",
		}),
		ObjectsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernelguard_objects_live",
			Help: "Number of live objects in the object table.",
		}),
	}
	reg.MustRegister(m.Sends, m.SendErrors, m.BusyWaitSeconds, m.QueueDepth, m.ObjectsLive)
	return m
}
