package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all application metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestBytes    *prometheus.CounterVec
	engineRunsTotal     *prometheus.CounterVec
	engineRunDuration   *prometheus.HistogramVec
	engineErrors        *prometheus.CounterVec
	redactedItemsTotal  *prometheus.CounterVec
	storeOpsTotal       *prometheus.CounterVec
	storeOpDuration     *prometheus.HistogramVec
	storeOpErrors       *prometheus.CounterVec
	sealOperations      *prometheus.CounterVec
	sealDuration        *prometheus.HistogramVec
	sealErrors          *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	goroutines          prometheus.Gauge
	memoryAllocBytes    prometheus.Gauge
	memorySysBytes      prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry
// (for testing).
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in HTTP requests",
			},
			[]string{"method", "path"},
		),
		engineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redaction_engine_runs_total",
				Help: "Total number of redaction engine runs",
			},
			[]string{"engine"},
		),
		engineRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redaction_engine_run_duration_seconds",
				Help:    "Redaction engine run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		engineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redaction_engine_errors_total",
				Help: "Total number of redaction engine failures",
			},
			[]string{"engine"},
		),
		redactedItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redacted_items_total",
				Help: "Total number of items extracted and sealed",
			},
			[]string{"engine"},
		),
		storeOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of metadata store operations",
			},
			[]string{"operation"},
		),
		storeOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Metadata store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operation_errors_total",
				Help: "Total number of metadata store errors",
			},
			[]string{"operation"},
		),
		sealOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seal_operations_total",
				Help: "Total number of seal/open operations",
			},
			[]string{"operation"}, // "seal" or "open"
		),
		sealDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seal_duration_seconds",
				Help:    "Seal/open operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		sealErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seal_errors_total",
				Help: "Total number of seal/open errors",
			},
			[]string{"operation", "error_type"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, bytes int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, http.StatusText(status)).Observe(duration.Seconds())
	m.httpRequestBytes.WithLabelValues(method, path).Add(float64(bytes))
}

// RecordEngineRun records one redaction engine run and its item yield.
func (m *Metrics) RecordEngineRun(engine string, duration time.Duration, items int) {
	m.engineRunsTotal.WithLabelValues(engine).Inc()
	m.engineRunDuration.WithLabelValues(engine).Observe(duration.Seconds())
	m.redactedItemsTotal.WithLabelValues(engine).Add(float64(items))
}

// RecordEngineError records a redaction engine failure.
func (m *Metrics) RecordEngineError(engine string) {
	m.engineErrors.WithLabelValues(engine).Inc()
}

// RecordStoreOperation records a metadata store operation metric.
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration) {
	m.storeOpsTotal.WithLabelValues(operation).Inc()
	m.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStoreError records a metadata store error.
func (m *Metrics) RecordStoreError(operation string) {
	m.storeOpErrors.WithLabelValues(operation).Inc()
}

// RecordSealOperation records a seal/open operation metric.
func (m *Metrics) RecordSealOperation(operation string, duration time.Duration) {
	m.sealOperations.WithLabelValues(operation).Inc()
	m.sealDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSealError records a seal/open operation error.
func (m *Metrics) RecordSealError(operation, errorType string) {
	m.sealErrors.WithLabelValues(operation, errorType).Inc()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
