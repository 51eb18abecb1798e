package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus instruments.
type Metrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	connections       prometheus.Gauge
	eventsPublished   *prometheus.CounterVec
	deliveriesDropped *prometheus.CounterVec
	notifyFailures    *prometheus.CounterVec
}

// NewMetrics registers instruments on reg. Pass prometheus.DefaultRegisterer in production
// and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "helpdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Name:      "http_errors_total",
			Help:      "HTTP error responses by route and error code.",
		}, []string{"route", "method", "code"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "helpdesk",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Live websocket connections on this instance.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "realtime",
			Name:      "events_published_total",
			Help:      "Events published to the room hub by event name.",
		}, []string{"event"}),
		deliveriesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "realtime",
			Name:      "deliveries_dropped_total",
			Help:      "Per-connection deliveries dropped by reason.",
		}, []string{"reason"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Name:      "notify_failures_total",
			Help:      "Swallowed failures in the best-effort notify path by stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.requestDuration, m.errors, m.connections,
			m.eventsPublished, m.deliveriesDropped, m.notifyFailures)
	}
	return m
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// ConnectionOpened increments the live connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the live connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// EventPublished counts one hub publish.
func (m *Metrics) EventPublished(event string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(event).Inc()
}

// DeliveryDropped counts one skipped per-connection delivery.
func (m *Metrics) DeliveryDropped(reason string) {
	if m == nil {
		return
	}
	m.deliveriesDropped.WithLabelValues(reason).Inc()
}

// NotifyFailed counts a swallowed notify-path failure.
func (m *Metrics) NotifyFailed(stage string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(stage).Inc()
}
