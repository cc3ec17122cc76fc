package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "waiterbot"

	// labelHandler partitions metrics by logical handler or route pattern
	// rather than the raw URL path, which carries document ids.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the server.
// One instance is created per Server so tests can inject a fresh registry.
type serverMetrics struct {
	// invocationsTotal counts event invocations by handler and outcome.
	invocationsTotal *prometheus.CounterVec

	// invocationDurationSeconds records the duration of each admitted
	// invocation.
	invocationDurationSeconds *prometheus.HistogramVec

	// inFlight is the number of invocations currently running.
	inFlight prometheus.Gauge

	// indexResyncsTotal counts full index rebuilds.
	indexResyncsTotal prometheus.Counter

	// indexedItems is the item count after the last rebuild.
	indexedItems prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests by method, route pattern
	// and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		invocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "handler",
			Name:      "invocations_total",
			Help:      "Total number of event invocations, partitioned by handler and outcome.",
		}, []string{labelHandler, "outcome"}),

		invocationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "handler",
			Name:      "duration_seconds",
			Help:      "Duration of admitted event invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{labelHandler}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "handler",
			Name:      "in_flight",
			Help:      "Number of event invocations currently running.",
		}),

		indexResyncsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "resyncs_total",
			Help:      "Total number of vector index rebuilds from the embedding store.",
		}),

		indexedItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "items",
			Help:      "Number of menu items in the vector index after the last rebuild.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records HTTP request metrics. It must wrap the mux so the
// matched route pattern is available after dispatch.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
