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
	// EventsReceived counts decoded events read from the global stream
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_events_received_total",
			Help: "Total number of events received from the global event stream",
		},
		[]string{"type"},
	)

	// EventsCoalesced counts events that replaced a pending event in place
	EventsCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_events_coalesced_total",
			Help: "Total number of events merged into an already queued event",
		},
		[]string{"type"},
	)

	// EventsDispatched counts events delivered to the router
	EventsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_events_dispatched_total",
			Help: "Total number of events dispatched to subscribers",
		},
	)

	// FlushBatchSize tracks how many events each flush delivers
	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventsync_flush_batch_size",
			Help:    "Number of events dispatched per flush",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	// AttemptsStarted counts stream connection attempts
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_attempts_started_total",
			Help: "Total number of event stream connection attempts",
		},
	)

	// StreamErrors counts transport failures of the event stream
	StreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_stream_errors_total",
			Help: "Total number of event stream transport errors",
		},
	)

	// LivenessTimeouts counts attempts cancelled by the heartbeat watchdog
	LivenessTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_liveness_timeouts_total",
			Help: "Total number of attempts cancelled after a silent period",
		},
	)

	// VisibilityReconnects counts reconnects forced by a foreground signal
	VisibilityReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_visibility_reconnects_total",
			Help: "Total number of reconnects forced when the host returned to the foreground",
		},
	)

	// Subscribers tracks registered directory subscribers
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsync_subscribers",
			Help: "Number of registered directory subscribers",
		},
	)

	// ServerHealthy is 1 while the last health probe of a server succeeded
	ServerHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventsync_server_healthy",
			Help: "Whether the last health check of the server succeeded",
		},
		[]string{"server"},
	)

	// RequestsTotal counts requests made by directory clients
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_requests_total",
			Help: "Total number of requests made to the server",
		},
		[]string{"method", "status"},
	)

	// RequestDuration tracks request latency for directory clients
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// HTTPRequestsTotal counts requests served by the local HTTP endpoint
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		HTTPRequestsTotal.WithLabelValues(r.Method, normalizePath(r.URL.Path), strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/metrics":
		return path
	default:
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEventReceived records an event read from the stream
func RecordEventReceived(eventType string) {
	EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordEventCoalesced records an event merged into a pending slot
func RecordEventCoalesced(eventType string) {
	EventsCoalesced.WithLabelValues(eventType).Inc()
}

// RecordFlush records one flush of n events
func RecordFlush(n int) {
	EventsDispatched.Add(float64(n))
	FlushBatchSize.Observe(float64(n))
}

// RecordRequest records a directory client request
func RecordRequest(method string, status int, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetServerHealthy records the outcome of a health probe
func SetServerHealthy(server string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	ServerHealthy.WithLabelValues(server).Set(v)
}
