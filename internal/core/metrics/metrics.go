// Package metrics exposes scorekeeper's Prometheus instrumentation on a
// private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/scorekeeper/internal/types"
)

const namespace = "scorekeeper"

// Collector records parse, evaluation and transport metrics. It satisfies
// rules.Recorder.
type Collector struct {
	registry *prometheus.Registry

	evaluations     *prometheus.CounterVec
	evalDuration    *prometheus.HistogramVec
	parses          *prometheus.CounterVec
	formulaFailures prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector registers all metrics on registry. A nil registry gets a fresh
// one with the Go and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Rule document evaluations by document kind and outcome.",
		}, []string{"kind", "outcome"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Rule document evaluation latency.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_total",
			Help:      "Rule text parses by source (dsl or ai) and outcome.",
		}, []string{"source", "outcome"}),
		formulaFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "formula_failures_total",
			Help:      "Derived formulas that failed and were recorded as 0.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	registry.MustRegister(
		c.evaluations,
		c.evalDuration,
		c.parses,
		c.formulaFailures,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// ObserveParse counts one parse attempt.
func (c *Collector) ObserveParse(source, outcome string) {
	c.parses.WithLabelValues(source, outcome).Inc()
}

// ObserveEvaluation counts one evaluation and records its latency.
func (c *Collector) ObserveEvaluation(kind types.Kind, outcome string, elapsed time.Duration) {
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	c.evaluations.WithLabelValues(k, outcome).Inc()
	c.evalDuration.WithLabelValues(k).Observe(elapsed.Seconds())
}

// FormulaFailures adds n failed derived formulas.
func (c *Collector) FormulaFailures(n int) {
	if n > 0 {
		c.formulaFailures.Add(float64(n))
	}
}

// ObserveHTTP records one served HTTP request. route is the registered path
// pattern, never the raw URL, to bound cardinality.
func (c *Collector) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
