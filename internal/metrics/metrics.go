package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a dedicated registry
type Metrics struct {
	registry          *prometheus.Registry
	telemetryIngested prometheus.Counter
	storeFailures     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	notifyFailures    prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		telemetryIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantbox_telemetry_ingested_total",
			Help: "Total telemetry readings accepted by the pipeline.",
		}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantbox_store_failures_total",
			Help: "Document store calls that failed or timed out, by operation.",
		}, []string{"op"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantbox_notifications_total",
			Help: "Notifications raised, by level.",
		}, []string{"level"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantbox_notify_failures_total",
			Help: "Notification deliveries that failed or timed out.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plantbox_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.telemetryIngested,
		m.storeFailures,
		m.notifications,
		m.notifyFailures,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the registry for tests and custom exporters
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TelemetryIngested() {
	m.telemetryIngested.Inc()
}

func (m *Metrics) StoreFailure(op string) {
	m.storeFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) Notification(level string) {
	m.notifications.WithLabelValues(level).Inc()
}

func (m *Metrics) NotifyFailure() {
	m.notifyFailures.Inc()
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
