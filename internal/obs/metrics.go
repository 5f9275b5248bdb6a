package obs

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics centralizes Prometheus instrumentation. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	limiterWait     *prometheus.HistogramVec

	cacheHits      *prometheus.CounterVec
	detailedCalls  *prometheus.CounterVec
	lensConflicts  *prometheus.CounterVec
	orphanRooms    *prometheus.CounterVec
	aggregationRun *prometheus.HistogramVec
}

// NewMetrics builds a metrics container backed by reg. If reg is nil a new registry is created.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{registry: reg}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutavail_http_requests_total",
		Help: "HTTP requests grouped by route and status",
	}, []string{"route", "status"})
	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hutavail_http_request_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	m.upstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutavail_upstream_calls_total",
		Help: "Calls to upstream booking systems grouped by provider, endpoint and result",
	}, []string{"provider", "endpoint", "result"})
	m.upstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hutavail_upstream_latency_seconds",
		Help:    "Upstream call latency excluding rate limiter waits",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "endpoint"})
	m.limiterWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hutavail_rate_limiter_wait_seconds",
		Help:    "Time spent blocked in per-endpoint rate limiters",
		Buckets: []float64{0, .1, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider", "endpoint"})

	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutavail_cache_hits_total",
		Help: "Dates served from the result cache without detailed queries",
	}, []string{"hut"})
	m.detailedCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutavail_detailed_queries_total",
		Help: "Detailed availability queries issued, by hut and guest count",
	}, []string{"hut", "guests"})
	m.lensConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutavail_lens_conflicts_total",
		Help: "Rooms reported with different counts by two guest-count lenses on the same date",
	}, []string{"hut"})
	m.orphanRooms = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutavail_orphan_rooms_total",
		Help: "Rooms returned by detailed queries but missing from the room catalog",
	}, []string{"hut"})
	m.aggregationRun = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hutavail_aggregation_seconds",
		Help:    "Duration of one availability aggregation",
		Buckets: []float64{.1, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"hut", "status"})

	reg.MustRegister(
		m.requests, m.requestDuration,
		m.upstreamCalls, m.upstreamLatency, m.limiterWait,
		m.cacheHits, m.detailedCalls, m.lensConflicts, m.orphanRooms, m.aggregationRun,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordUpstream counts one upstream call. err == nil counts as success.
func (m *Metrics) RecordUpstream(provider, endpoint string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.upstreamCalls.WithLabelValues(provider, endpoint, result).Inc()
	m.upstreamLatency.WithLabelValues(provider, endpoint).Observe(latency.Seconds())
}

func (m *Metrics) ObserveLimiterWait(provider, endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

func (m *Metrics) IncCacheHits(hut string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(hut).Inc()
}

func (m *Metrics) IncDetailedQueries(hut string, guests int) {
	if m == nil {
		return
	}
	m.detailedCalls.WithLabelValues(hut, strconv.Itoa(guests)).Inc()
}

func (m *Metrics) AddLensConflicts(hut string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.lensConflicts.WithLabelValues(hut).Add(float64(n))
}

func (m *Metrics) AddOrphanRooms(hut string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.orphanRooms.WithLabelValues(hut).Add(float64(n))
}

func (m *Metrics) ObserveAggregation(hut string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.aggregationRun.WithLabelValues(hut, status).Observe(d.Seconds())
}

// MetricsHandler returns a handler for /metrics requests.
func (m *Metrics) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}
