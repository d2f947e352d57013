package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
	violationsTotal      *prometheus.CounterVec
	timerStreamsActive   prometheus.Gauge
	countdownsActive     prometheus.Gauge
	completionsTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors shared by handlers and services.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assess_http_requests_total",
			Help: "API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assess_http_latency_seconds",
			Help:    "Latency distribution of API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assess_http_errors_total",
			Help: "Error responses returned by the API.",
		}, []string{"method", "route", "status"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assess_events_published_total",
			Help: "Domain events published, by topic.",
		}, []string{"topic"})

		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assess_proctoring_violations_total",
			Help: "Proctoring violations recorded, by type.",
		}, []string{"type"})

		timerStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assess_timer_streams_active",
			Help: "Open websocket timer streams.",
		})

		countdownsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assess_countdowns_active",
			Help: "Assessment countdowns currently running.",
		})

		completionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assess_completions_total",
			Help: "Assessments finalized, by trigger.",
		}, []string{"trigger"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			eventsPublishedTotal, violationsTotal, timerStreamsActive, countdownsActive, completionsTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// EventsPublished counts published domain events.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// ProctoringViolations counts recorded violations.
func ProctoringViolations() *prometheus.CounterVec {
	RegisterMetrics()
	return violationsTotal
}

// TimerStreamsActive tracks open timer websocket connections.
func TimerStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return timerStreamsActive
}

// CountdownsActive tracks running assessment countdowns.
func CountdownsActive() prometheus.Gauge {
	RegisterMetrics()
	return countdownsActive
}

// Completions counts finalized assessments.
func Completions() *prometheus.CounterVec {
	RegisterMetrics()
	return completionsTotal
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
