package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Report metrics
	ReportsTotal   *prometheus.CounterVec
	ReportDuration *prometheus.HistogramVec

	// Engine metrics
	CallsAnalyzed *prometheus.CounterVec

	// Data source metrics
	DBQueryDuration *prometheus.HistogramVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec

	// Alert metrics
	AlertsPublished      *prometheus.CounterVec
	DigestRuns           *prometheus.CounterVec
	AMQPConnectionStatus prometheus.Gauge
	AlertSubscribers     prometheus.Gauge

	// Operational metrics
	RateLimitedRequests *prometheus.CounterVec
	ConfigReloads       *prometheus.CounterVec
	CircuitState        *prometheus.GaugeVec
)

// Init initializes all metrics and registers them with a private registry
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		ReportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_reports_total",
				Help: "Total number of communication metric reports generated",
			},
			[]string{"type", "status"},
		)

		ReportDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commetrics_report_duration_seconds",
				Help:    "Time taken to generate a communication metric report",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"type"},
		)

		CallsAnalyzed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_calls_analyzed_total",
				Help: "Calls seen by an analyzer, by outcome",
			},
			[]string{"analyzer", "outcome"},
		)

		DBQueryDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commetrics_db_query_duration_seconds",
				Help:    "Duration of call data source queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		)

		CacheRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_cache_requests_total",
				Help: "Report cache lookups by result",
			},
			[]string{"result"},
		)

		AlertsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_alerts_published_total",
				Help: "Severity alerts delivered to a sink",
			},
			[]string{"sink", "status"},
		)

		DigestRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_digest_runs_total",
				Help: "Scheduled digest runs by status",
			},
			[]string{"status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "commetrics_amqp_connection_status",
				Help: "AMQP connection status (1 = connected, 0 = disconnected)",
			},
		)

		AlertSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "commetrics_alert_subscribers",
				Help: "Number of connected WebSocket alert subscribers",
			},
		)

		RateLimitedRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_rate_limited_requests_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
			[]string{"path"},
		)

		ConfigReloads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commetrics_config_reloads_total",
				Help: "Configuration file reloads by status",
			},
			[]string{"status"},
		)

		CircuitState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commetrics_circuit_breaker_state",
				Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
			},
			[]string{"name"},
		)

		registry.MustRegister(
			ReportsTotal,
			ReportDuration,
			CallsAnalyzed,
			DBQueryDuration,
			CacheRequests,
			AlertsPublished,
			DigestRuns,
			AMQPConnectionStatus,
			AlertSubscribers,
			RateLimitedRequests,
			ConfigReloads,
			CircuitState,
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// Handler returns the HTTP handler serving the private registry
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled {
		mux.Handle(defaultMetricsPath, Handler())
	}
}

// active reports whether collectors exist and collection is on
func active() bool {
	return metricsEnabled && registry != nil
}

// RecordReport records the outcome of one report request
func RecordReport(reportType, status string) {
	if active() {
		ReportsTotal.WithLabelValues(reportType, status).Inc()
	}
}

// ObserveReportDuration starts a timer; call the returned function when done
func ObserveReportDuration(reportType string) func() {
	if !active() {
		return func() {}
	}

	start := time.Now()
	return func() {
		ReportDuration.WithLabelValues(reportType).Observe(time.Since(start).Seconds())
	}
}

// ObserveDBQuery starts a timer for a named data source query
func ObserveDBQuery(query string) func() {
	if !active() {
		return func() {}
	}

	start := time.Now()
	return func() {
		DBQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
}

// RecordCacheRequest records a cache lookup result (hit, miss, error)
func RecordCacheRequest(result string) {
	if active() {
		CacheRequests.WithLabelValues(result).Inc()
	}
}

// RecordAlertPublish records an alert delivery attempt to a sink
func RecordAlertPublish(sink, status string) {
	if active() {
		AlertsPublished.WithLabelValues(sink, status).Inc()
	}
}

// RecordDigestRun records a digest run
func RecordDigestRun(status string) {
	if active() {
		DigestRuns.WithLabelValues(status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if active() {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}

// SetAlertSubscribers sets the number of WebSocket alert subscribers
func SetAlertSubscribers(count int) {
	if active() {
		AlertSubscribers.Set(float64(count))
	}
}

// RecordRateLimited records a request rejected by the rate limiter
func RecordRateLimited(path string) {
	if active() {
		RateLimitedRequests.WithLabelValues(path).Inc()
	}
}

// RecordConfigReload records a configuration reload attempt
func RecordConfigReload(status string) {
	if active() {
		ConfigReloads.WithLabelValues(status).Inc()
	}
}

// SetCircuitState records the state of a named circuit breaker
func SetCircuitState(name string, state int) {
	if active() {
		CircuitState.WithLabelValues(name).Set(float64(state))
	}
}
