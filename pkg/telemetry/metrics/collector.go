package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers and records all Prometheus metrics for the engine.
// A nil registry falls back to a fresh private registry, which keeps
// tests isolated from each other.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	triggersTotal      prometheus.Counter
	actionsTotal       *prometheus.CounterVec
	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter
	recomputesTotal    *prometheus.CounterVec
	ingestTotal        *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "engine",
				Name:      "rule_evaluations_total",
				Help:      "Total rule evaluations by outcome",
			},
			[]string{"outcome"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vceljak",
				Subsystem: "engine",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of a full trigger evaluation pass",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),

		triggersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "engine",
				Name:      "rules_triggered_total",
				Help:      "Total rules whose conditions were satisfied",
			},
		),

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "engine",
				Name:      "action_executions_total",
				Help:      "Total action executions by kind and status",
			},
			[]string{"kind", "status"},
		),

		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "rulecache",
				Name:      "hits_total",
				Help:      "Total rule cache hits",
			},
		),

		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "rulecache",
				Name:      "misses_total",
				Help:      "Total rule cache misses",
			},
		),

		recomputesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "schedule",
				Name:      "recomputes_total",
				Help:      "Total schedule progress recomputations by status",
			},
			[]string{"status"},
		),

		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vceljak",
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Total ingested readings by status",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.triggersTotal,
		c.actionsTotal,
		c.cacheHitsTotal,
		c.cacheMissesTotal,
		c.recomputesTotal,
		c.ingestTotal,
	)

	return c
}

// RecordEvaluation records one rule evaluation outcome: "triggered",
// "not_triggered" or "error".
func (c *Collector) RecordEvaluation(outcome string) {
	c.evaluationsTotal.WithLabelValues(outcome).Inc()
	if outcome == "triggered" {
		c.triggersTotal.Inc()
	}
}

// RecordEvaluationPass records the duration of a full trigger pass.
func (c *Collector) RecordEvaluationPass(d time.Duration) {
	c.evaluationDuration.Observe(d.Seconds())
}

// RecordAction records one action execution.
func (c *Collector) RecordAction(kind, status string) {
	c.actionsTotal.WithLabelValues(kind, status).Inc()
}

// CacheHit implements rulecache.Recorder.
func (c *Collector) CacheHit() { c.cacheHitsTotal.Inc() }

// CacheMiss implements rulecache.Recorder.
func (c *Collector) CacheMiss() { c.cacheMissesTotal.Inc() }

// RecordRecompute records one schedule recomputation: "ok" or "error".
func (c *Collector) RecordRecompute(status string) {
	c.recomputesTotal.WithLabelValues(status).Inc()
}

// RecordIngest records one reading intake: "accepted" or "rejected".
func (c *Collector) RecordIngest(status string) {
	c.ingestTotal.WithLabelValues(status).Inc()
}
