package services

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ExplainMetrics holds the Prometheus collectors for the console. A nil
// *ExplainMetrics is valid and records nothing.
type ExplainMetrics struct {
	explanations     *prometheus.CounterVec
	explainLatency   prometheus.Histogram
	itemsPerRequest  prometheus.Histogram
	anchorResolution *prometheus.CounterVec
	traceLookups     *prometheus.CounterVec
	lookupAttempts   prometheus.Histogram
	tracesIngested   *prometheus.CounterVec
	backendRequests  *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	circuitState     *prometheus.GaugeVec
}

func NewExplainMetrics(logger *logrus.Logger) *ExplainMetrics {
	m := &ExplainMetrics{}

	m.explanations = register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "explain_items_total",
		Help: "Item attributions served, by source (memo, cache, derived)",
	}, []string{"source"}))

	m.explainLatency = register(logger, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "explain_request_duration_seconds",
		Help:    "Explain request latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}))

	m.itemsPerRequest = register(logger, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "explain_items_per_request",
		Help:    "Number of items in an explain request",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200},
	}))

	m.anchorResolution = register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_resolution_total",
		Help: "Anchor resolutions by result",
	}, []string{"result"}))

	m.traceLookups = register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_trace_lookups_total",
		Help: "Decision trace lookups by outcome (found, fallback, not_available)",
	}, []string{"outcome"}))

	m.lookupAttempts = register(logger, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "decision_trace_lookup_attempts",
		Help:    "Attempts needed per decision trace lookup",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	}))

	m.tracesIngested = register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_traces_ingested_total",
		Help: "Decision traces consumed from Kafka by result",
	}, []string{"result"}))

	m.backendRequests = register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_requests_total",
		Help: "Requests to the ranking backend by method, path and status",
	}, []string{"method", "path", "status"}))

	m.backendLatency = register(logger, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Ranking backend request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"}))

	m.circuitState = register(logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backend_circuit_state",
		Help: "Ranking backend circuit breaker state (1 for the current state)",
	}, []string{"state"}))

	return m
}

// register registers c with the default registry, reusing an existing
// collector with the same descriptor.
func register[C prometheus.Collector](logger *logrus.Logger, c C) C {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

func (m *ExplainMetrics) RecordExplain(items int, duration time.Duration) {
	if m == nil {
		return
	}
	m.itemsPerRequest.Observe(float64(items))
	m.explainLatency.Observe(duration.Seconds())
}

func (m *ExplainMetrics) RecordAttribution(source string) {
	if m == nil {
		return
	}
	m.explanations.WithLabelValues(source).Inc()
}

func (m *ExplainMetrics) RecordAnchorResolution(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.anchorResolution.WithLabelValues(result).Add(float64(n))
}

func (m *ExplainMetrics) RecordTraceLookup(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.traceLookups.WithLabelValues(outcome).Inc()
	m.lookupAttempts.Observe(float64(attempts))
}

func (m *ExplainMetrics) RecordTraceIngested(result string) {
	if m == nil {
		return
	}
	m.tracesIngested.WithLabelValues(result).Inc()
}

// ObserveRequest implements backend.Observer.
func (m *ExplainMetrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.backendRequests.WithLabelValues(method, path, label).Inc()
	m.backendLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveCircuitState implements backend.Observer.
func (m *ExplainMetrics) ObserveCircuitState(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{"closed", "open", "half_open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.circuitState.WithLabelValues(s).Set(v)
	}
}
