// Package metrics exposes Prometheus instrumentation for the API, the
// analysis pipeline and the retrieval cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry. All methods are safe
// on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	roomsTotal        prometheus.Counter
	failedRoomsTotal  prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomload_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomload_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomload_analysis_runs_total",
			Help: "Analysis runs by outcome (success, degraded, failed).",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomload_analysis_duration_seconds",
			Help:    "Histogram of end-to-end analysis durations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		roomsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomload_rooms_total",
			Help: "Rooms reported across all analysis runs.",
		}),
		failedRoomsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomload_failed_rooms_total",
			Help: "Rooms reported without a classification.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomload_retrieval_cache_hits_total",
			Help: "Total retrieval cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomload_retrieval_cache_misses_total",
			Help: "Total retrieval cache misses observed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.runsTotal,
		m.runDuration,
		m.roomsTotal,
		m.failedRoomsTotal,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and observes latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records one finished analysis.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration, rooms, failedRooms int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.roomsTotal.Add(float64(rooms))
	m.failedRoomsTotal.Add(float64(failedRooms))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
