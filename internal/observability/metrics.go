package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/studentdesk/studentdesk/internal/jobs"
)

// Metrics owns a private registry with the HTTP, authorization and job
// collectors. All methods are no-ops on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	decisions    *prometheus.CounterVec
	degraded     *prometheus.CounterVec
	jobs         *jobmetrics.Metrics
}

// NewMetrics builds the registry, including Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studentdesk_http_requests_total",
			Help: "HTTP requests partitioned by route and status code.",
		}, []string{"route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studentdesk_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studentdesk_authz_decisions_total",
			Help: "Authorization decisions partitioned by deciding tier and outcome.",
		}, []string{"tier", "allowed"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studentdesk_authz_degraded_total",
			Help: "Authorization lookups that could not reach their backing store.",
		}, []string{"tier"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency, m.decisions, m.degraded,
	)
	m.jobs = jobmetrics.NewMetrics(reg)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts one resolver decision.
func (m *Metrics) ObserveDecision(tier string, allowed bool) {
	if m != nil {
		m.decisions.WithLabelValues(tier, strconv.FormatBool(allowed)).Inc()
	}
}

// ObserveDegraded counts a lookup that fell back because its store was unavailable.
func (m *Metrics) ObserveDegraded(tier string) {
	if m != nil {
		m.degraded.WithLabelValues(tier).Inc()
	}
}

// Jobs returns the job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}
