package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/basichttpd/internal/fileio"
)

const metricsNamespace = "basichttpd"

// Metrics holds the Prometheus collectors for the file server. It uses its
// own registry so tests and multiple servers in one process do not clash.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// NewMetrics creates the collectors. The in-flight gauge samples pool on
// every scrape.
func NewMetrics(pool *fileio.Pool) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by status code.",
			},
			[]string{"code"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Time from receiving a request to finishing its response.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	inflight := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "fileio_inflight",
			Help:      "File-system operations currently executing on the I/O pool.",
		},
		func() float64 { return float64(pool.InFlight()) },
	)
	registry.MustRegister(m.requestsTotal, m.requestDuration, inflight)
	return m
}

// Observe records one finished request.
func (m *Metrics) Observe(status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
