package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. It satisfies the
// metrics interfaces of the guard, tokens and profile packages.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	guardDecisions   *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec
	tokenCleanups    prometheus.Counter
	profileFetches   *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Route guard evaluations by route and resulting state.",
		}, []string{"route", "state"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Bearer token validations by token kind and outcome.",
		}, []string{"kind", "outcome"}),
		tokenCleanups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_cleanups_total",
			Help: "Sessions whose tokens were cleared after failed validation.",
		}),
		profileFetches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profile_fetch_duration_seconds",
			Help:    "Profile lookups by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.guardDecisions, m.tokenValidations, m.tokenCleanups, m.profileFetches,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordGuardDecision implements guard.Metrics
func (m *Metrics) RecordGuardDecision(route, state string) {
	m.guardDecisions.WithLabelValues(route, state).Inc()
}

// RecordTokenValidation implements tokens.Metrics
func (m *Metrics) RecordTokenValidation(kind, outcome string) {
	m.tokenValidations.WithLabelValues(kind, outcome).Inc()
}

// RecordTokenCleanup implements tokens.Metrics
func (m *Metrics) RecordTokenCleanup() {
	m.tokenCleanups.Inc()
}

// RecordProfileFetch implements profile.Metrics
func (m *Metrics) RecordProfileFetch(outcome string, duration time.Duration) {
	m.profileFetches.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Instrument measures request count, latency and in-flight requests. Paths
// are labelled with the matched chi route pattern to keep cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, routePattern(r), strconv.Itoa(status)}
		m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(labels...).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
