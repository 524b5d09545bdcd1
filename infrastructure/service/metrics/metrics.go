package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auditflow/auditflow/internal/domain"
)

// Metrics holds all Prometheus metrics of the service
type Metrics struct {
	RequestCounter    *prometheus.CounterVec
	LatencyHistogram  *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec
	IssueTransitions  *prometheus.CounterVec
	NotificationFails prometheus.Counter
	registry          *prometheus.Registry
}

// NewMetrics creates the metrics in a private registry
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rejected rate limited requests",
			},
			[]string{"route"},
		),
		IssueTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issue_transitions_total",
				Help:      "Audit issue status transitions",
			},
			[]string{"from", "to"},
		),
		NotificationFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Emails that could not be delivered",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.RequestCounter)
	registry.MustRegister(m.LatencyHistogram)
	registry.MustRegister(m.RateLimitHits)
	registry.MustRegister(m.IssueTransitions)
	registry.MustRegister(m.NotificationFails)
	registry.MustRegister(prometheus.NewGoCollector())

	return m
}

// ObserveRequest records one served request
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.LatencyHistogram.WithLabelValues(method, route).Observe(seconds)
}

// IncrementRateLimitHit increments rate limit hit counter
func (m *Metrics) IncrementRateLimitHit(route string) {
	m.RateLimitHits.WithLabelValues(route).Inc()
}

// IssueTransition counts an issue status change. A newly created issue has an empty from.
func (m *Metrics) IssueTransition(from, to domain.IssueStatus) {
	label := string(from)
	if label == "" {
		label = "none"
	}
	m.IssueTransitions.WithLabelValues(label, string(to)).Inc()
}

// NotificationFailed counts an undelivered email
func (m *Metrics) NotificationFailed() {
	m.NotificationFails.Inc()
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
