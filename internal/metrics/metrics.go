// Package metrics provides Prometheus instrumentation for the trading engine.
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
	// ActionsTotal counts applied actions, partitioned by action type.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rails_actions_total",
		Help: "Total number of actions applied",
	}, []string{"type"})

	// ActionRejections counts rejected actions, partitioned by action type.
	ActionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rails_action_rejections_total",
		Help: "Actions rejected by validation",
	}, []string{"type"})

	// ActionLatency tracks action processing latency.
	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rails_action_latency_seconds",
		Help:    "Action processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// ActiveGames tracks the number of loaded games.
	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rails_active_games",
		Help: "Number of currently loaded games",
	})

	// RoundsStarted counts started rounds, partitioned by kind.
	RoundsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rails_rounds_started_total",
		Help: "Trading rounds started",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rails_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rails_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rails_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// Bankruptcies counts players declared bankrupt in forced-sale rounds.
	Bankruptcies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rails_bankruptcies_total",
		Help: "Players declared bankrupt",
	})
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

		// Use the route pattern for path label to avoid high cardinality.
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
