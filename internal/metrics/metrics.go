package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP requests
	RequestsTotal *prometheus.CounterVec

	// Export outcomes
	ExportsTotal *prometheus.CounterVec // by status: completed, partial, failed

	// File-level metrics
	FilesRequestedHist prometheus.Histogram    // Attachments considered per export
	FilesSuccessHist   prometheus.Histogram    // Attachments packed per export
	FilesFetchTotal    *prometheus.CounterVec  // by result: success, error, skipped
	OrphanFilesTotal   prometheus.Counter      // Attachments whose topic was not found

	// Performance metrics
	DurationHist      prometheus.Histogram
	ArchiveBytesHist  prometheus.Histogram
	IncomingBytesHist prometheus.Histogram

	// Backend performance
	DatabaseQueryDuration *prometheus.HistogramVec // by db_type, query
	StorageFetchDuration  *prometheus.HistogramVec // by storage_type, result

	// Authentication/Security
	SignatureFailuresTotal prometheus.Counter
	ExpiredRequestsTotal   prometheus.Counter

	// Delivery
	DeliveryFailuresTotal prometheus.Counter

	// Callback metrics
	CallbacksTotal  *prometheus.CounterVec // by status: success, failure
	CallbackRetries prometheus.Counter

	// Concurrency
	ActiveExports     prometheus.Gauge
	ActiveFileFetches prometheus.Gauge
	RejectedExports   prometheus.Counter

	// ZIP statistics
	CompressionRatio prometheus.Histogram

	// Client behavior
	ClientDisconnectsTotal prometheus.Counter

	// Circuit breaker
	CircuitBreakerState *prometheus.GaugeVec // by backend

	// Health checks
	HealthStatus       *prometheus.GaugeVec   // by component (1=healthy, 0=unhealthy)
	HealthChecksFailed *prometheus.CounterVec // by component

	// System metrics
	MemoryGauge     prometheus.Gauge
	GoroutinesGauge prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "folderzip_requests_total",
				Help: "Total number of HTTP requests by status code",
			}, []string{"status"}),

			ExportsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "folderzip_exports_total",
				Help: "Total number of folder exports by outcome (completed, partial, failed)",
			}, []string{"status"}),

			FilesRequestedHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "folderzip_files_requested",
				Help:    "Number of attachments considered per export",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			}),
			FilesSuccessHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "folderzip_files_success",
				Help:    "Number of attachments packed per export",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			}),
			FilesFetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "folderzip_files_fetch_total",
				Help: "Total attachment fetches by result (success, error, skipped)",
			}, []string{"result"}),
			OrphanFilesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_orphan_files_total",
				Help: "Attachments skipped because their topic was not found",
			}),

			DurationHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "folderzip_export_duration_seconds",
				Help:    "Export duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			}),
			ArchiveBytesHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "folderzip_archive_bytes",
				Help:    "Size of the serialized archive per export",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 25),
			}),
			IncomingBytesHist: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "folderzip_incoming_bytes",
				Help:    "Bytes downloaded from the blob store per export (uncompressed)",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 25),
			}),

			DatabaseQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "folderzip_database_query_duration_seconds",
				Help:    "Record store query duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, []string{"db_type", "query"}),
			StorageFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "folderzip_storage_fetch_duration_seconds",
				Help:    "Blob fetch duration per attachment in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			}, []string{"storage_type", "result"}),

			SignatureFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_signature_failures_total",
				Help: "Total number of failed signature verifications",
			}),
			ExpiredRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_expired_requests_total",
				Help: "Total number of requests with expired timestamps",
			}),

			DeliveryFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_delivery_failures_total",
				Help: "Archives that could not be handed to the delivery sink",
			}),

			CallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "folderzip_callbacks_total",
				Help: "Total number of callback attempts by status",
			}, []string{"status"}),
			CallbackRetries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_callback_retries_total",
				Help: "Total number of callback retry attempts",
			}),

			ActiveExports: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "folderzip_active_exports",
				Help: "Number of exports currently running",
			}),
			ActiveFileFetches: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "folderzip_active_file_fetches",
				Help: "Number of attachment fetches currently running",
			}),
			RejectedExports: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_rejected_exports_total",
				Help: "Exports rejected because MAX_ACTIVE_EXPORTS was reached",
			}),

			CompressionRatio: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "folderzip_compression_ratio",
				Help:    "Compression ratio (compressed/uncompressed)",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			}),

			ClientDisconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folderzip_client_disconnects_total",
				Help: "Total number of client disconnects during export",
			}),

			CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "folderzip_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			}, []string{"backend"}),

			HealthStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "folderzip_health_status",
				Help: "Health status by component (1=healthy, 0=unhealthy)",
			}, []string{"component"}),
			HealthChecksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "folderzip_health_checks_failed_total",
				Help: "Total number of failed health checks by component",
			}, []string{"component"}),

			MemoryGauge: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "folderzip_memory_heap_alloc_bytes",
				Help: "Current heap allocation in bytes",
			}),
			GoroutinesGauge: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "folderzip_goroutines",
				Help: "Number of goroutines",
			}),
		}
	})

	return defaultMetrics
}

// StartRuntimeMetricsCollector starts a goroutine that updates runtime metrics
func (m *Metrics) StartRuntimeMetricsCollector() {
	go func() {
		for {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			m.MemoryGauge.Set(float64(mem.HeapAlloc))
			m.GoroutinesGauge.Set(float64(runtime.NumGoroutine()))
			time.Sleep(10 * time.Second)
		}
	}()
}
