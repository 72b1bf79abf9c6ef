package tangguh

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// the traffic-control layers. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal        *prometheus.CounterVec
	circuitBreakerState prometheus.Gauge
	circuitRejections   prometheus.Counter

	debounceCoalesced  *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	offlineQueueDepth  prometheus.Gauge
	offlineReplayed    prometheus.Counter
	tokenRefreshTotal  *prometheus.CounterVec
	cancellationsTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a collector on its own registry.
func NewMetricsCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()
	mc := newMetricsCollector(registry)
	mc.registry = registry
	return mc
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for callers that aggregate metrics across components.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return newMetricsCollector(registry)
}

func newMetricsCollector(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_requests_total",
				Help: "Total number of requests dispatched",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tangguh_request_duration_seconds",
				Help:    "Duration of requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint"},
		),
		circuitBreakerState: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "tangguh_circuit_breaker_open",
				Help: "Circuit breaker state (0=closed, 1=open)",
			},
		),
		circuitRejections: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tangguh_circuit_breaker_rejections_total",
				Help: "Requests rejected while the circuit breaker was open",
			},
		),
		debounceCoalesced: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_debounce_coalesced_total",
				Help: "Debounced calls that joined an existing pending entry",
			},
			[]string{"endpoint"},
		),
		queueDepth: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "tangguh_rate_limit_queue_depth",
				Help: "Entries waiting in the rate-limit queue",
			},
		),
		offlineQueueDepth: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "tangguh_offline_queue_depth",
				Help: "Requests buffered while connectivity is down",
			},
		),
		offlineReplayed: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tangguh_offline_replayed_total",
				Help: "Requests replayed after connectivity was restored",
			},
		),
		tokenRefreshTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_token_refresh_total",
				Help: "Credential refresh operations by outcome",
			},
			[]string{"outcome"},
		),
		cancellationsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tangguh_cancellations_total",
				Help: "Requests aborted via a cancellation handle",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_errors_total",
				Help: "Errors surfaced to callers by type",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
}

// Handler exposes the collector's registry over HTTP. It returns nil when
// the collector was built on an external registerer.
func (m *MetricsCollector) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) RecordRequestStart(method, endpoint string) {
	m.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

func (m *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	m.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

func (m *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordRetry(method, endpoint string) {
	m.retriesTotal.WithLabelValues(method, endpoint).Inc()
}

func (m *MetricsCollector) RecordCircuitState(open bool) {
	if open {
		m.circuitBreakerState.Set(1)
	} else {
		m.circuitBreakerState.Set(0)
	}
}

func (m *MetricsCollector) RecordCircuitRejection() {
	m.circuitRejections.Inc()
}

func (m *MetricsCollector) RecordDebounceCoalesced(endpoint string) {
	m.debounceCoalesced.WithLabelValues(endpoint).Inc()
}

func (m *MetricsCollector) RecordQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *MetricsCollector) RecordOfflineDepth(depth int) {
	m.offlineQueueDepth.Set(float64(depth))
}

func (m *MetricsCollector) RecordOfflineReplay(count int) {
	m.offlineReplayed.Add(float64(count))
	m.offlineQueueDepth.Set(0)
}

func (m *MetricsCollector) RecordTokenRefresh(outcome string) {
	m.tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) RecordCancellations(count int) {
	m.cancellationsTotal.Add(float64(count))
}

func (m *MetricsCollector) RecordError(errType, method, endpoint string) {
	m.errorsTotal.WithLabelValues(errType, method, endpoint).Inc()
}
