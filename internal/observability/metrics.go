package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskibarqy/match-digest/internal/domain/digest"
)

const metricsNamespace = "match_digest"

// Metrics holds the prometheus collectors for the digest workflow and the
// HTTP surface. It satisfies usecase.DigestMetrics.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	outcomes         *prometheus.CounterVec
	identityLookups  *prometheus.CounterVec
	completions      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpRequestTimes *prometheus.HistogramVec
}

// NewMetrics registers every collector on a private registry along with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(registry)

	return &Metrics{
		registry: registry,
		stageDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "workflow",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each digest workflow stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		outcomes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "workflow",
			Name:      "requests_total",
			Help:      "Digest requests by terminal outcome.",
		}, []string{"outcome"}),
		identityLookups: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "identity",
			Name:      "lookups_total",
			Help:      "Player and club name lookups by result.",
		}, []string{"kind", "result"}),
		completions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "completion",
			Name:      "requests_total",
			Help:      "Completion and image requests by result.",
		}, []string{"kind", "result"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status_code"}),
		httpRequestTimes: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 180},
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) ObserveStage(stage digest.Stage, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordIdentityLookup(kind, result string) {
	m.identityLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordCompletion(kind, result string) {
	m.completions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestTimes.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
