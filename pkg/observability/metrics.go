package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission resolution metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration *prometheus.HistogramVec
	GrantWritesTotal        *prometheus.CounterVec

	// Departure saga metrics
	DepartureStepsTotal      *prometheus.CounterVec
	DeparturesTotal          *prometheus.CounterVec
	ResourcesReassignedTotal *prometheus.CounterVec

	// Display cache metrics
	DisplayCacheHitsTotal   *prometheus.CounterVec
	DisplayCacheMissesTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "teamcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_permission_checks_total",
				Help: "Total number of permission resolutions",
			},
			[]string{"resource_type", "outcome"},
		),
		PermissionCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "teamcore_permission_check_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_type"},
		),
		GrantWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_grant_writes_total",
				Help: "Total number of grant upserts and revocations",
			},
			[]string{"operation", "principal_kind"},
		),
		DepartureStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_departure_steps_total",
				Help: "Total number of departure saga steps executed",
			},
			[]string{"step", "outcome"},
		),
		DeparturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_departures_total",
				Help: "Total number of member departures",
			},
			[]string{"reason", "outcome"},
		),
		ResourcesReassignedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_resources_reassigned_total",
				Help: "Total number of resources reassigned to the team owner",
			},
			[]string{"collection"},
		),
		DisplayCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamcore_display_cache_hits_total",
				Help: "Display-name cache hits by tier",
			},
			[]string{"tier"},
		),
		DisplayCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "teamcore_display_cache_misses_total",
				Help: "Display-name cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.GrantWritesTotal,
		m.DepartureStepsTotal,
		m.DeparturesTotal,
		m.ResourcesReassignedTotal,
		m.DisplayCacheHitsTotal,
		m.DisplayCacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RouteMiddleware records request counts and latency, labeled by the
// matched route template so path ids do not explode cardinality.
func (m *Metrics) RouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
