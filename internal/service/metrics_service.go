package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the placement engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	runsTotal          *prometheus.CounterVec
	generationDuration prometheus.Histogram
	placementAttempts  *prometheus.HistogramVec
	sessionsPlaced     *prometheus.CounterVec
	sessionsFailed     *prometheus.CounterVec
	exportsTotal       *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_runs_total",
			Help: "Timetable generation runs by outcome",
		}, []string{"status"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_generation_duration_seconds",
			Help:    "Wall time spent placing every term of a run",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		placementAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetable_placement_attempts",
			Help:    "Candidates examined before a session was placed or given up",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}, []string{"kind"}),
		sessionsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_sessions_placed_total",
			Help: "Sessions placed by kind",
		}, []string{"kind"}),
		sessionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_sessions_unschedulable_total",
			Help: "Sessions that exhausted the attempt budget by kind",
		}, []string{"kind"}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_exports_total",
			Help: "Export jobs by format and outcome",
		}, []string{"format", "status"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration,
		m.runsTotal, m.generationDuration, m.placementAttempts, m.sessionsPlaced, m.sessionsFailed,
		m.exportsTotal,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveRun records one generation run.
func (m *MetricsService) ObserveRun(status models.RunStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.generationDuration.Observe(duration.Seconds())
}

// ObservePlacement implements scheduler.Observer.
func (m *MetricsService) ObservePlacement(kind models.SessionKind, attempts int, placed bool) {
	if m == nil {
		return
	}
	m.placementAttempts.WithLabelValues(string(kind)).Observe(float64(attempts))
	if placed {
		m.sessionsPlaced.WithLabelValues(string(kind)).Inc()
	} else {
		m.sessionsFailed.WithLabelValues(string(kind)).Inc()
	}
}

// ObserveExport records the outcome of one export job.
func (m *MetricsService) ObserveExport(format models.ExportFormat, status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(string(format), string(status)).Inc()
}
