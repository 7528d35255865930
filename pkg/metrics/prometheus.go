// Package metrics provides Prometheus metrics for the gubs economy service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the gubs service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Economy
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	gubsEarned        prometheus.Counter
	gubsSpent         prometheus.Counter
	offlineEarned     prometheus.Counter
	itemsPurchased    *prometheus.CounterVec
	upgradesPurchased *prometheus.CounterVec

	// Per-user lock
	lockAttempts      prometheus.Counter
	lockAcquired      prometheus.Counter
	lockBusy          prometheus.Counter
	lockReleaseErrors prometheus.Counter
	lockWait          prometheus.Histogram

	// Saga and compensation
	sagaSteps      *prometheus.CounterVec
	refunds        prometheus.Counter
	refundFailures prometheus.Counter

	// Store
	storeConflicts     *prometheus.CounterVec
	storeQueryDuration *prometheus.HistogramVec

	// Audit log pipeline
	auditEnqueued    prometheus.Counter
	auditDropped     prometheus.Counter
	auditWritten     prometheus.Counter
	auditWriteErrors prometheus.Counter
	auditQueueSize   prometheus.Gauge
	auditQueueCap    prometheus.Gauge
	workerActive     prometheus.Gauge
	workerIdle       prometheus.Gauge
	workerLatency    prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager with opts on a fresh registry, which
// GetRegistry then returns. Call it at startup before metrics are served.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gubs",
		subsystem:        "economy",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// collect into a registry nobody scrapes
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	b := m.histogramBuckets

	m.operations = m.counterVec("operations_total", "Economy operations by name and outcome", "op", "outcome")
	m.operationDuration = m.histogramVec("operation_duration_seconds", "Economy operation latency", b, "op")
	m.gubsEarned = m.counter("gubs_earned_total", "Gubs credited by sync (delta plus offline)")
	m.gubsSpent = m.counter("gubs_spent_total", "Gubs debited by purchases")
	m.offlineEarned = m.counter("offline_earned_total", "Gubs credited by offline accrual")
	m.itemsPurchased = m.counterVec("items_purchased_total", "Generator units bought", "item")
	m.upgradesPurchased = m.counterVec("upgrades_purchased_total", "Upgrades bought", "upgrade")

	m.lockAttempts = m.counter("lock_attempts_total", "Per-user lock acquisition attempts")
	m.lockAcquired = m.counter("lock_acquired_total", "Per-user locks acquired")
	m.lockBusy = m.counter("lock_busy_total", "Lock acquisitions that exhausted their attempt budget")
	m.lockReleaseErrors = m.counter("lock_release_errors_total", "Lock releases that failed")
	m.lockWait = m.histogram("lock_wait_seconds", "Time spent acquiring a per-user lock", b)

	m.sagaSteps = m.counterVec("saga_steps_total", "Saga steps by name, phase and outcome", "step", "phase", "outcome")
	m.refunds = m.counter("refunds_total", "Compensating refunds applied")
	m.refundFailures = m.counter("refund_failures_total", "Compensating refunds that could not be applied")

	m.storeConflicts = m.counterVec("store_conflicts_total", "Optimistic transaction conflicts by driver", "driver")
	m.storeQueryDuration = m.histogramVec("store_query_duration_seconds", "Ordered range read latency", b, "driver")

	m.auditEnqueued = m.counter("audit_enqueued_total", "Audit entries accepted by the queue")
	m.auditDropped = m.counter("audit_dropped_total", "Audit entries dropped under backpressure")
	m.auditWritten = m.counter("audit_written_total", "Audit entries written to the store")
	m.auditWriteErrors = m.counter("audit_write_errors_total", "Audit entries that failed to write")
	m.auditQueueSize = m.gauge("audit_queue_size", "Current audit queue length")
	m.auditQueueCap = m.gauge("audit_queue_capacity", "Audit queue capacity")
	m.workerActive = m.gauge("worker_active_count", "Audit writers currently writing")
	m.workerIdle = m.gauge("worker_idle_count", "Audit writers currently idle")
	m.workerLatency = m.histogram("worker_processing_latency_seconds", "Audit write latency", b)

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}, "endpoint", "method", "status_code")
	m.rateLimited = m.counter("rate_limited_total", "Requests rejected by the per-user rate limiter")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
}

// RecordOperation counts one economy operation outcome ("ok" or an error code).
func RecordOperation(op, outcome string) {
	globalManager.operations.WithLabelValues(op, outcome).Inc()
}

// RecordOperationDuration observes an economy operation latency in seconds.
func RecordOperationDuration(op string, seconds float64) {
	globalManager.operationDuration.WithLabelValues(op).Observe(seconds)
}

// AddGubsEarned adds credited gubs.
func AddGubsEarned(n int64) {
	if n > 0 {
		globalManager.gubsEarned.Add(float64(n))
	}
}

// AddGubsSpent adds debited gubs.
func AddGubsSpent(n int64) {
	if n > 0 {
		globalManager.gubsSpent.Add(float64(n))
	}
}

// AddOfflineEarned adds gubs credited by offline accrual.
func AddOfflineEarned(n int64) {
	if n > 0 {
		globalManager.offlineEarned.Add(float64(n))
	}
}

// RecordItemsPurchased counts generator units bought.
func RecordItemsPurchased(item string, quantity int64) {
	if quantity > 0 {
		globalManager.itemsPurchased.WithLabelValues(item).Add(float64(quantity))
	}
}

// RecordUpgradePurchased counts one upgrade purchase.
func RecordUpgradePurchased(upgrade string) {
	globalManager.upgradesPurchased.WithLabelValues(upgrade).Inc()
}

// RecordLockAttempt counts one acquisition attempt.
func RecordLockAttempt() {
	globalManager.lockAttempts.Inc()
}

// RecordLockAcquired counts a successful acquisition and its wait time.
func RecordLockAcquired(wait time.Duration) {
	globalManager.lockAcquired.Inc()
	globalManager.lockWait.Observe(wait.Seconds())
}

// RecordLockBusy counts an exhausted acquisition.
func RecordLockBusy() {
	globalManager.lockBusy.Inc()
}

// RecordLockReleaseError counts a failed release.
func RecordLockReleaseError() {
	globalManager.lockReleaseErrors.Inc()
}

// RecordSagaStep counts one saga step outcome.
func RecordSagaStep(step, phase string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	globalManager.sagaSteps.WithLabelValues(step, phase, outcome).Inc()
}

// RecordRefund counts an applied refund.
func RecordRefund() {
	globalManager.refunds.Inc()
}

// RecordRefundFailure counts a refund that could not be applied.
func RecordRefundFailure() {
	globalManager.refundFailures.Inc()
}

// RecordStoreConflict counts one optimistic conflict.
func RecordStoreConflict(driver string) {
	globalManager.storeConflicts.WithLabelValues(driver).Inc()
}

// RecordStoreQueryDuration observes a range read latency in seconds.
func RecordStoreQueryDuration(driver string, seconds float64) {
	globalManager.storeQueryDuration.WithLabelValues(driver).Observe(seconds)
}

// RecordAuditEnqueued counts an accepted audit entry.
func RecordAuditEnqueued() {
	globalManager.auditEnqueued.Inc()
}

// RecordAuditDropped counts a dropped audit entry.
func RecordAuditDropped() {
	globalManager.auditDropped.Inc()
}

// RecordAuditWritten counts a persisted audit entry.
func RecordAuditWritten() {
	globalManager.auditWritten.Inc()
}

// RecordAuditWriteError counts a failed audit write.
func RecordAuditWriteError() {
	globalManager.auditWriteErrors.Inc()
}

// UpdateAuditQueueSize sets the audit queue length.
func UpdateAuditQueueSize(size int) {
	globalManager.auditQueueSize.Set(float64(size))
}

// UpdateAuditQueueCapacity sets the audit queue capacity.
func UpdateAuditQueueCapacity(capacity int) {
	globalManager.auditQueueCap.Set(float64(capacity))
}

// UpdateWorkerActiveCount sets the number of busy audit writers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle audit writers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdle.Set(float64(count))
}

// RecordWorkerProcessingLatency observes an audit write latency.
func RecordWorkerProcessingLatency(d time.Duration) {
	globalManager.workerLatency.Observe(d.Seconds())
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a throttled request.
func RecordRateLimited() {
	globalManager.rateLimited.Inc()
}

// RecordErrorByComponent records errors by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records errors by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records errors by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval is how often gauge updaters should sample.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
