package http

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/socketgate/socketgate/internal/domain/connection"
)

const namespace = "socketgate"

// Metrics holds all Prometheus metrics for socketgate. It implements
// connection.Observer so connection managers report into it directly.
type Metrics struct {
	ConnectionsTotal    *prometheus.CounterVec
	ConnectionsActive   prometheus.Gauge
	ConnectionDuration  prometheus.Histogram
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	DroppedResponses    prometheus.Counter
	RejectedRequests    *prometheus.CounterVec
	CookieParseFailures *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of socket connections booted",
			},
			[]string{"protocol"},
		),
		ConnectionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections_active",
				Help:      "Number of open socket connections",
			},
		),
		ConnectionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Socket connection lifetime in seconds",
				Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400},
			},
		),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of socket requests answered",
			},
			[]string{"method", "status"}, // status is the HTTP status code
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Socket request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		DroppedResponses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_responses_total",
				Help:      "Total responses discarded because the connection had closed",
			},
		),
		RejectedRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_requests_total",
				Help:      "Total requests and connections refused before injection",
			},
			[]string{"reason"},
		),
		CookieParseFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cookie_parse_failures_total",
				Help:      "Total cookie headers that could not be parsed",
			},
			[]string{"field"},
		),
		HTTPRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests served by the gateway surface",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		HTTPRequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// ConnectionOpened implements connection.Observer.
func (m *Metrics) ConnectionOpened(version string) {
	m.ConnectionsTotal.WithLabelValues(version).Inc()
	m.ConnectionsActive.Inc()
}

// ConnectionClosed implements connection.Observer.
func (m *Metrics) ConnectionClosed(lifetime time.Duration) {
	m.ConnectionsActive.Dec()
	m.ConnectionDuration.Observe(lifetime.Seconds())
}

// RequestCompleted implements connection.Observer.
func (m *Metrics) RequestCompleted(method string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ResponseDropped implements connection.Observer.
func (m *Metrics) ResponseDropped() {
	m.DroppedResponses.Inc()
}

// RequestRejected implements connection.Observer.
func (m *Metrics) RequestRejected(reason string) {
	m.RejectedRequests.WithLabelValues(reason).Inc()
}

// CookieParseFailed implements connection.Observer.
func (m *Metrics) CookieParseFailed(field string) {
	m.CookieParseFailures.WithLabelValues(field).Inc()
}

var _ connection.Observer = (*Metrics)(nil)
