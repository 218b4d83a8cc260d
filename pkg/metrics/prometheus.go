// Package metrics provides Prometheus metrics for the observation ingestion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exposed by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline
	batchesTotal     *prometheus.CounterVec
	batchesInFlight  prometheus.Gauge
	batchDuration    prometheus.Histogram
	recordsTotal     *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	archivalAccepted prometheus.Counter

	// External ephemeris service
	verifierRequests *prometheus.CounterVec
	verifierLatency  *prometheus.HistogramVec
	nameCacheHits    prometheus.Counter
	nameCacheMisses  prometheus.Counter

	// Entity store
	resolverLatency prometheus.Histogram
	satellitesTotal prometheus.Counter
	locationsTotal  prometheus.Counter

	// Job queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerActiveCount  prometheus.Gauge
	workerLatency      prometheus.Histogram

	// Side channels
	notificationsTotal *prometheus.CounterVec
	progressPublish    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "satobs",
		subsystem:        "ingest",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.batchesTotal = m.counterVec("batches_total", "Batches finished by terminal status", "status")
	m.batchesInFlight = m.gauge("batches_in_flight", "Batches currently being processed")
	m.batchDuration = m.histogram("batch_duration_milliseconds", "Wall time to process one batch")
	m.recordsTotal = m.counterVec("records_total", "Records processed by outcome", "outcome")
	m.rejectionsTotal = m.counterVec("rejections_total", "Rejected records by taxonomy kind", "kind")
	m.archivalAccepted = m.counter("archival_records_total", "Records accepted with stale reference data")

	m.verifierRequests = m.counterVec("ephemeris_requests_total", "Ephemeris service requests", "endpoint", "result")
	m.verifierLatency = m.histogramVec("ephemeris_latency_milliseconds", "Ephemeris service latency", "endpoint")
	m.nameCacheHits = m.counter("name_cache_hits_total", "Satellite name lookups served from cache")
	m.nameCacheMisses = m.counter("name_cache_misses_total", "Satellite name lookups sent upstream")

	m.resolverLatency = m.histogram("resolver_latency_milliseconds", "Entity resolution transaction latency")
	m.satellitesTotal = m.counter("satellites_created_total", "Satellite rows created")
	m.locationsTotal = m.counter("locations_created_total", "Location rows created")

	m.queueSize = m.gauge("queue_size", "Batches waiting in the job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum job queue capacity")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Batches accepted into the job queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Batches refused by the job queue", "reason")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a batch")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one job")

	m.notificationsTotal = m.counterVec("notifications_total", "Confirmation dispatch attempts", "result")
	m.progressPublish = m.counterVec("progress_publish_total", "Progress events pushed to external transports", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordBatchFinished counts a batch by its terminal status.
func RecordBatchFinished(status string, durationMs float64) {
	globalManager.batchesTotal.WithLabelValues(status).Inc()
	globalManager.batchDuration.Observe(durationMs)
}

// BatchStarted and BatchDone maintain the in-flight gauge.
func BatchStarted() { globalManager.batchesInFlight.Inc() }
func BatchDone()    { globalManager.batchesInFlight.Dec() }

// RecordRecordOutcome counts one record as created, duplicate or rejected.
func RecordRecordOutcome(outcome string) {
	globalManager.recordsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection counts a rejection by taxonomy kind.
func RecordRejection(kind string) {
	globalManager.rejectionsTotal.WithLabelValues(kind).Inc()
}

// RecordArchival counts a record accepted with withheld geometry.
func RecordArchival() { globalManager.archivalAccepted.Inc() }

// RecordEphemerisRequest records one upstream call.
func RecordEphemerisRequest(endpoint, result string, latencyMs float64) {
	globalManager.verifierRequests.WithLabelValues(endpoint, result).Inc()
	globalManager.verifierLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordNameCacheHit and RecordNameCacheMiss track the name-resolution cache.
func RecordNameCacheHit()  { globalManager.nameCacheHits.Inc() }
func RecordNameCacheMiss() { globalManager.nameCacheMisses.Inc() }

// RecordResolverLatency observes one entity-resolution transaction.
func RecordResolverLatency(latencyMs float64) {
	globalManager.resolverLatency.Observe(latencyMs)
}

// RecordSatelliteCreated and RecordLocationCreated count lazily created rows.
func RecordSatelliteCreated() { globalManager.satellitesTotal.Inc() }
func RecordLocationCreated()  { globalManager.locationsTotal.Inc() }

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() { globalManager.queueEnqueueTotal.Inc() }

// RecordQueueEnqueueError counts a refused job.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// WorkerBusy and WorkerIdle maintain the active worker gauge.
func WorkerBusy() { globalManager.workerActiveCount.Inc() }
func WorkerIdle() { globalManager.workerActiveCount.Dec() }

// RecordWorkerProcessingLatency observes the time spent on one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordNotification counts a confirmation dispatch attempt.
func RecordNotification(result string) {
	globalManager.notificationsTotal.WithLabelValues(result).Inc()
}

// RecordProgressPublish counts a progress event pushed to an external transport.
func RecordProgressPublish(result string) {
	globalManager.progressPublish.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
