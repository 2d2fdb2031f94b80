package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ingestion
	eventsProcessed prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsStale     prometheus.Counter
	eventsDropped   prometheus.Counter

	// Scoring & valuation
	scoringLatency      prometheus.Histogram
	entitiesScored      prometheus.Counter
	opportunitiesValued prometheus.Counter
	approvalsFlagged    prometheus.Counter
	invalidArguments    *prometheus.CounterVec
	leaderboardUpdates  prometheus.Counter

	// Records
	totalEntities         prometheus.Gauge
	totalOpportunities    prometheus.Gauge
	weightedPipelineValue prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors & system
	errorsByComponent    *prometheus.CounterVec
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// LatencyBucketsMs are the default histogram buckets of the process-wide
// metrics, in milliseconds.
var LatencyBucketsMs = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // bucket table

//nolint:gochecknoglobals // process-wide metrics
var (
	globalOnce     sync.Once
	globalManager  *Manager
	customRegistry = prometheus.NewRegistry()
)

// Init builds the process-wide metrics on the registry returned by
// GetRegistry, applying opts over LatencyBucketsMs. The registry cannot be
// overridden. Init reports false, ignoring opts, when the metrics already
// exist because of an earlier Init or a recorder that ran first.
func Init(opts ...Option) bool {
	built := false
	globalOnce.Do(func() {
		all := make([]Option, 0, len(opts)+2)
		all = append(all, WithHistogramBuckets(LatencyBucketsMs))
		all = append(all, opts...)
		all = append(all, WithPrometheusRegistry(customRegistry))
		globalManager = NewManager(all...)
		built = true
	})
	return built
}

func manager() *Manager {
	Init()
	return globalManager
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crmscore",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(auto promauto.Factory, name, help string) prometheus.Counter {
	return auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.CounterVec {
	return auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(auto promauto.Factory, name, help string) prometheus.Gauge {
	return auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(auto promauto.Factory, name, help string) prometheus.Histogram {
	return auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsProcessed = m.counter(auto, "events_processed_total", "Total number of events applied by workers")
	m.eventsDuplicate = m.counter(auto, "events_duplicate_total", "Total number of duplicate events rejected at ingestion")
	m.eventsStale = m.counter(auto, "events_stale_total", "Total number of events skipped because a newer event already applied")
	m.eventsDropped = m.counter(auto, "events_dropped_total", "Total number of queued events discarded when shutdown timed out")

	m.scoringLatency = m.histogram(auto, "scoring_latency_milliseconds", "Entity scoring latency in milliseconds")
	m.entitiesScored = m.counter(auto, "entities_scored_total", "Total number of entities scored")
	m.opportunitiesValued = m.counter(auto, "opportunities_valued_total", "Total number of opportunities valued")
	m.approvalsFlagged = m.counter(auto, "approvals_flagged_total", "Total number of opportunities flagged for approval")
	m.invalidArguments = m.counterVec(auto, "invalid_argument_total", "Inputs rejected as invalid by operation", "operation")
	m.leaderboardUpdates = m.counter(auto, "leaderboard_updates_total", "Total number of ranking updates")

	m.totalEntities = m.gauge(auto, "entities", "Entities currently stored")
	m.totalOpportunities = m.gauge(auto, "opportunities", "Opportunities currently stored")
	m.weightedPipelineValue = m.gauge(auto, "weighted_pipeline_value", "Sum of weighted opportunity values")

	m.queueSize = m.gauge(auto, "queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge(auto, "queue_capacity", "Maximum queue capacity")
	m.queueEnqueued = m.counter(auto, "queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeued = m.counter(auto, "queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counterVec(auto, "queue_enqueue_errors_total", "Enqueue failures by reason", "reason")

	m.workerCount = m.gauge(auto, "worker_count", "Number of running workers")
	m.workerProcessingLatency = m.histogram(auto, "worker_processing_latency_milliseconds", "Per-event worker latency in milliseconds")
	m.workerErrors = m.counter(auto, "worker_errors_total", "Total number of events a worker failed to apply")

	m.httpRequests = m.counterVec(auto, "http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec(auto, "errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.systemMemoryUsage = m.gauge(auto, "system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge(auto, "system_goroutine_count", "Number of goroutines")
}

// RecordEventProcessed increments the events processed counter.
func RecordEventProcessed() { manager().eventsProcessed.Inc() }

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() { manager().eventsDuplicate.Inc() }

// RecordEventStale increments the stale events counter.
func RecordEventStale() { manager().eventsStale.Inc() }

// RecordEventDropped increments the dropped events counter.
func RecordEventDropped() { manager().eventsDropped.Inc() }

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) { manager().scoringLatency.Observe(latencyMs) }

// RecordEntityScored increments the entities scored counter.
func RecordEntityScored() { manager().entitiesScored.Inc() }

// RecordOpportunityValued increments the valued counter and, when the
// opportunity crosses the approval threshold, the approvals counter.
func RecordOpportunityValued(requiresApproval bool) {
	manager().opportunitiesValued.Inc()
	if requiresApproval {
		manager().approvalsFlagged.Inc()
	}
}

// RecordInvalidArgument counts an input rejected by the given operation.
func RecordInvalidArgument(operation string) {
	manager().invalidArguments.WithLabelValues(operation).Inc()
}

// RecordLeaderboardUpdate increments the ranking updates counter.
func RecordLeaderboardUpdate() { manager().leaderboardUpdates.Inc() }

// UpdateRecordCounts sets the stored entity and opportunity gauges.
func UpdateRecordCounts(entities, opportunities int) {
	manager().totalEntities.Set(float64(entities))
	manager().totalOpportunities.Set(float64(opportunities))
}

// UpdateWeightedPipelineValue sets the weighted pipeline gauge.
func UpdateWeightedPipelineValue(v int64) { manager().weightedPipelineValue.Set(float64(v)) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { manager().queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { manager().queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { manager().queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { manager().queueDequeued.Inc() }

// RecordQueueEnqueueError counts an enqueue failure ("full", "closed").
func RecordQueueEnqueueError(reason string) {
	manager().queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the running worker count.
func UpdateWorkerCount(count int) { manager().workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	manager().workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { manager().workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	manager().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	manager().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	manager().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { manager().systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { manager().systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry the global metrics live on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
