// Package metrics provides Prometheus instrumentation for the tax engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReportsTotal counts completed report runs, partitioned by outcome.
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxengine_reports_total",
		Help: "Total number of report runs",
	}, []string{"outcome"})

	// ReportDuration tracks end-to-end report run duration.
	ReportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxengine_report_duration_seconds",
		Help:    "Report run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ActionsProcessed counts processed history actions by kind.
	ActionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxengine_actions_processed_total",
		Help: "Total history actions processed",
	}, []string{"kind"})

	// RateLookups counts historical price lookups hitting the source.
	RateLookups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxengine_rate_lookups_total",
		Help: "Historical price lookups against the price source",
	})

	// RateLookupFailures counts failed historical price lookups.
	RateLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxengine_rate_lookup_failures_total",
		Help: "Failed historical price lookups",
	})

	// UndocumentedDisposals counts disposals that hit the
	// no-documented-acquisition fallback.
	UndocumentedDisposals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxengine_undocumented_disposals_total",
		Help: "Disposals with no documented acquisition",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
