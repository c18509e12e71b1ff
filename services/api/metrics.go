package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lvfs/services/hosting"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	outcomes     *prometheus.CounterVec
	checkFailure *prometheus.CounterVec
	faults       *prometheus.CounterVec
	uploadBytes  prometheus.Histogram
}

// NewMetrics registers the collectors, including the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lvfs",
			Name:      "outcomes_total",
			Help:      "Completed upload and admin operations by result.",
		}, []string{"op", "result"}),
		checkFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lvfs",
			Name:      "check_failures_total",
			Help:      "Failed validation checks by operation and check.",
		}, []string{"op", "check"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lvfs",
			Name:      "faults_total",
			Help:      "Operations aborted by an infrastructure error.",
		}, []string{"op", "code"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lvfs",
			Name:      "upload_size_bytes",
			Help:      "Size of accepted firmware uploads.",
			Buckets:   prometheus.LinearBuckets(hosting.MinFirmwareSize, 10*1024, 10),
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.outcomes,
		m.checkFailure,
		m.faults,
		m.uploadBytes,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observe(out *hosting.Outcome) {
	result := "rejected"
	if out.OK() {
		result = "accepted"
	}
	m.outcomes.WithLabelValues(string(out.Op), result).Inc()
	for _, res := range out.Results() {
		if !res.Passed {
			m.checkFailure.WithLabelValues(string(out.Op), string(res.Check)).Inc()
		}
	}
}

func (m *Metrics) fault(op hosting.Op, code string) {
	m.faults.WithLabelValues(string(op), code).Inc()
}
