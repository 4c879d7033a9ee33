// Package metrics exposes Prometheus collectors for the fetcher and the viewer.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytetl_api_requests_total",
			Help: "Total number of video platform API calls, labeled by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	rowsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytetl_rows_upserted_total",
			Help: "Total number of rows written by upsert, labeled by table.",
		},
		[]string{"table"},
	)

	channelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytetl_channels_total",
			Help: "Total number of channels processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	lastRunDurationSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytetl_last_run_duration_seconds",
			Help: "Wall time of the most recent fetcher run.",
		},
	)

	lastRunTimestampSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytetl_last_run_timestamp_seconds",
			Help: "Unix time at which the most recent fetcher run finished.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytetl_rate_limit_delays_seconds",
			Help:    "Histogram of client-side request pacing waits.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveAPICall records one API call.
func ObserveAPICall(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	apiRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveUpsert records rows written to table.
func ObserveUpsert(table string, rows int) {
	if rows <= 0 {
		return
	}
	rowsUpsertedTotal.WithLabelValues(table).Add(float64(rows))
}

// ObserveChannel records a per-channel outcome.
func ObserveChannel(outcome string) {
	channelsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records the duration and completion time of a run.
func ObserveRun(duration time.Duration, finished time.Time) {
	lastRunDurationSeconds.Set(duration.Seconds())
	lastRunTimestampSeconds.Set(float64(finished.Unix()))
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(operation string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
