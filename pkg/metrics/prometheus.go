// Package metrics provides Prometheus metrics for the accessibility registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Manager manages all Prometheus metrics for the registry service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Registry operations
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	// Domain events
	certificationTransitions *prometheus.CounterVec
	improvementUpdates       *prometheus.CounterVec
	feedbackRatings          prometheus.Histogram
	records                  *prometheus.GaugeVec

	// Store
	storeCommits       prometheus.Counter
	storeCommitErrors  prometheus.Counter
	storeCommitLatency prometheus.Histogram
	storeCommitWrites  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "accessreg",
		subsystem:        "registry",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.operations = auto.NewCounterVec(
		m.counterOpts("operations_total", "Registry operations by component, operation and outcome"),
		[]string{"component", "operation", "outcome"},
	)
	m.operationLatency = auto.NewHistogramVec(
		m.histogramOpts("operation_latency_milliseconds", "Registry operation latency in milliseconds", m.histogramBuckets),
		[]string{"component", "operation"},
	)

	m.certificationTransitions = auto.NewCounterVec(
		m.counterOpts("certification_transitions_total", "Certification lifecycle transitions (issued, revoked, expired, superseded)"),
		[]string{"transition"},
	)
	m.improvementUpdates = auto.NewCounterVec(
		m.counterOpts("improvement_updates_total", "Improvement plan status updates by resulting status"),
		[]string{"status"},
	)
	m.feedbackRatings = auto.NewHistogram(
		m.histogramOpts("feedback_rating", "Distribution of submitted feedback ratings", prometheus.LinearBuckets(1, 1, 10)),
	)
	m.records = auto.NewGaugeVec(
		m.gaugeOpts("records", "Number of stored records by kind"),
		[]string{"kind"},
	)

	m.storeCommits = auto.NewCounter(m.counterOpts("store_commits_total", "Units of work committed to the record store"))
	m.storeCommitErrors = auto.NewCounter(m.counterOpts("store_commit_errors_total", "Units of work whose commit failed"))
	m.storeCommitLatency = auto.NewHistogram(
		m.histogramOpts("store_commit_latency_milliseconds", "Record store commit latency in milliseconds", m.histogramBuckets),
	)
	m.storeCommitWrites = auto.NewHistogram(
		m.histogramOpts("store_commit_writes", "Records written per committed unit", prometheus.ExponentialBuckets(1, 2, 8)),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Allocated heap memory in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause time in milliseconds", m.histogramBuckets),
	)
}

// Registry operation functions.

// RecordOperation counts one registry operation and observes its latency.
func RecordOperation(component, operation, outcome string, latencyMs float64) {
	globalManager.operations.WithLabelValues(component, operation, outcome).Inc()
	globalManager.operationLatency.WithLabelValues(component, operation).Observe(latencyMs)
}

// RecordCertificationTransition counts a certification lifecycle transition.
func RecordCertificationTransition(transition string) {
	globalManager.certificationTransitions.WithLabelValues(transition).Inc()
}

// RecordImprovementUpdate counts a plan status update.
func RecordImprovementUpdate(status string) {
	globalManager.improvementUpdates.WithLabelValues(status).Inc()
}

// RecordFeedbackRating observes a submitted rating.
func RecordFeedbackRating(rating uint32) {
	globalManager.feedbackRatings.Observe(float64(rating))
}

// UpdateRecordCount sets the number of stored records of a kind.
func UpdateRecordCount(kind string, count int) {
	globalManager.records.WithLabelValues(kind).Set(float64(count))
}

// Store functions.

// RecordStoreCommit records a successful commit of writes records.
func RecordStoreCommit(latencyMs float64, writes int) {
	globalManager.storeCommits.Inc()
	globalManager.storeCommitLatency.Observe(latencyMs)
	globalManager.storeCommitWrites.Observe(float64(writes))
}

// RecordStoreCommitError increments the failed commit counter.
func RecordStoreCommitError() {
	globalManager.storeCommitErrors.Inc()
}

// HTTP functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
