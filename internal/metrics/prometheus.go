package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics using Prometheus
type PrometheusMetrics struct {
	// Decision metrics
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter

	// Registry metrics
	ruleMutations     *prometheus.CounterVec
	rulesTotal        prometheus.Gauge
	rulesActive       prometheus.Gauge
	persistenceErrors *prometheus.CounterVec

	// Audit metrics
	auditEntries   *prometheus.CounterVec
	auditEvictions prometheus.Counter

	// Template metrics
	templateUses *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	evaluationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of permission evaluations by outcome",
		},
		[]string{"outcome"},
	)

	// Evaluation latency: 1µs to 10ms
	evaluationDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_microseconds",
			Help:      "Permission evaluation latency in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	cacheHitsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of decision cache hits",
		},
	)

	cacheMissesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of decision cache misses",
		},
	)

	ruleMutations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "mutations_total",
			Help:      "Total number of rule mutations by action",
		},
		[]string{"action"},
	)

	rulesTotal := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "total",
			Help:      "Number of rules in the registry",
		},
	)

	rulesActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "active",
			Help:      "Number of active rules in the registry",
		},
	)

	persistenceErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "errors_total",
			Help:      "Total number of persistence hook failures by operation",
		},
		[]string{"operation"},
	)

	auditEntries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total number of audit entries by action",
		},
		[]string{"action"},
	)

	auditEvictions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "evictions_total",
			Help:      "Total number of audit entries evicted from memory",
		},
	)

	templateUses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "templates",
			Name:      "uses_total",
			Help:      "Total number of rules created from each template",
		},
		[]string{"template"},
	)

	// Register all metrics
	registry.MustRegister(
		evaluationsTotal,
		evaluationDuration,
		cacheHitsTotal,
		cacheMissesTotal,
		ruleMutations,
		rulesTotal,
		rulesActive,
		persistenceErrors,
		auditEntries,
		auditEvictions,
		templateUses,
	)

	return &PrometheusMetrics{
		evaluationsTotal:   evaluationsTotal,
		evaluationDuration: evaluationDuration,
		cacheHitsTotal:     cacheHitsTotal,
		cacheMissesTotal:   cacheMissesTotal,
		ruleMutations:      ruleMutations,
		rulesTotal:         rulesTotal,
		rulesActive:        rulesActive,
		persistenceErrors:  persistenceErrors,
		auditEntries:       auditEntries,
		auditEvictions:     auditEvictions,
		templateUses:       templateUses,
		registry:           registry,
	}
}

// RecordEvaluation records a permission evaluation
func (p *PrometheusMetrics) RecordEvaluation(outcome string, duration time.Duration) {
	p.evaluationsTotal.WithLabelValues(outcome).Inc()
	p.evaluationDuration.Observe(float64(duration.Microseconds()))
}

// RecordCacheHit records a decision cache hit
func (p *PrometheusMetrics) RecordCacheHit() {
	p.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a decision cache miss
func (p *PrometheusMetrics) RecordCacheMiss() {
	p.cacheMissesTotal.Inc()
}

// RecordRuleMutation records a registry mutation
func (p *PrometheusMetrics) RecordRuleMutation(action string) {
	p.ruleMutations.WithLabelValues(action).Inc()
}

// UpdateRuleCounts updates the rule gauges
func (p *PrometheusMetrics) UpdateRuleCounts(total, active int) {
	p.rulesTotal.Set(float64(total))
	p.rulesActive.Set(float64(active))
}

// RecordPersistenceError records a failed persistence hook
func (p *PrometheusMetrics) RecordPersistenceError(operation string) {
	p.persistenceErrors.WithLabelValues(operation).Inc()
}

// RecordAuditEntry records an appended audit entry
func (p *PrometheusMetrics) RecordAuditEntry(action string) {
	p.auditEntries.WithLabelValues(action).Inc()
}

// RecordAuditEviction records an audit entry evicted by the capacity cap
func (p *PrometheusMetrics) RecordAuditEviction() {
	p.auditEvictions.Inc()
}

// RecordTemplateUse records a rule created from a template
func (p *PrometheusMetrics) RecordTemplateUse(templateID string) {
	p.templateUses.WithLabelValues(templateID).Inc()
}

// HTTPHandler returns the Prometheus HTTP handler for /metrics endpoint
func (p *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
