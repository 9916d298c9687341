// Package metrics provides Prometheus metrics for livetext.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetext_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livetext_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	artifactsExposedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetext_artifacts_exposed_total",
			Help: "Total artifacts exposed, by authoritative source",
		},
		[]string{"source"},
	)

	artifactsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetext_artifacts_live",
			Help: "Number of artifacts currently held by the workspace",
		},
	)

	pollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livetext_polls_total",
			Help: "Total workspace poll passes",
		},
	)

	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livetext_poll_duration_seconds",
			Help:    "Duration of a workspace poll pass, settle windows included",
			Buckets: prometheus.DefBuckets,
		},
	)

	changesAdoptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livetext_changes_adopted_total",
			Help: "Total external edits adopted from mirror files",
		},
	)

	pollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livetext_poll_errors_total",
			Help: "Total per-artifact poll failures",
		},
	)

	sseClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetext_sse_clients_active",
			Help: "Number of connected SSE clients",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetext_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordExpose records an exposed artifact and whether its generated text
// or an existing mirror edit won.
func RecordExpose(source string) {
	artifactsExposedTotal.WithLabelValues(source).Inc()
}

// SetArtifactsLive sets the number of live artifacts.
func SetArtifactsLive(n int) {
	artifactsLive.Set(float64(n))
}

// RecordPoll records one poll pass.
func RecordPoll(duration time.Duration, changed, failed int) {
	pollsTotal.Inc()
	pollDuration.Observe(duration.Seconds())
	changesAdoptedTotal.Add(float64(changed))
	pollErrorsTotal.Add(float64(failed))
}

// SetSSEClientsActive sets the number of connected SSE clients.
func SetSSEClientsActive(n int) {
	sseClientsActive.Set(float64(n))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request metrics. Requests are labelled with the chi
// route pattern so wildcard paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
	})
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
