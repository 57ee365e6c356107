// Package metrics provides Prometheus metrics collection, fed from the
// event bus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dalsh/lighthouse/internal/eventbus"
	"github.com/dalsh/lighthouse/internal/events"
)

// Collector holds all Prometheus metrics for the engine.
type Collector struct {
	// Execution metrics
	ExecutionsTotal   prometheus.Counter
	ExecutionDuration prometheus.Histogram
	ExecutionErrors   prometheus.Counter

	// Schema metrics
	SchemaBuilds *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates a collector with all metrics registered on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ExecutionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lighthouse",
			Name:      "executions_total",
			Help:      "Total number of GraphQL executions",
		}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lighthouse",
			Name:      "execution_duration_seconds",
			Help:      "GraphQL execution duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		ExecutionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lighthouse",
			Name:      "execution_errors_total",
			Help:      "Total number of errors collected during execution",
		}),
		SchemaBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lighthouse",
			Name:      "schema_builds_total",
			Help:      "Total number of schema assemblies",
		}, []string{"source"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lighthouse",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lighthouse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),
	}
}

// Subscribe wires the collector to the lifecycle events on bus. It returns
// an unsubscribe function detaching all listeners.
func (c *Collector) Subscribe(bus *eventbus.Bus) (unsubscribe func()) {
	unsubFinished := eventbus.Subscribe(bus, func(ctx context.Context, e events.ExecutionFinished) {
		c.ExecutionsTotal.Inc()
		c.ExecutionDuration.Observe(e.Duration.Seconds())
		c.ExecutionErrors.Add(float64(e.ErrorCount))
	})
	unsubSchema := eventbus.Subscribe(bus, func(ctx context.Context, e events.SchemaBuilt) {
		source := "build"
		if e.Cached {
			source = "cache"
		}
		c.SchemaBuilds.WithLabelValues(source).Inc()
	})
	unsubHTTP := eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPFinish) {
		status := statusClass(e.Status)
		c.HTTPRequestsTotal.WithLabelValues(e.Request.Method, status).Inc()
		c.HTTPDuration.WithLabelValues(e.Request.Method, status).Observe(e.Duration.Seconds())
	})
	return func() {
		unsubFinished()
		unsubSchema()
		unsubHTTP()
	}
}

// statusClass buckets status codes to keep label cardinality bounded.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
