// Package metrics provides Prometheus instrumentation for the access-control
// plane: decision counters, audit write latency, and field-masking counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stratum-hq/bastion/pkg/config"
)

// Collector manages metric registration and provides a unified interface for
// recording metrics across components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Access decisions by layer (record, cell, ntk), outcome and reason.
	decisionsTotal *prometheus.CounterVec

	// Audit writes by status, plus write latency.
	auditWritesTotal   *prometheus.CounterVec
	auditWriteDuration prometheus.Histogram

	// Sensitive fields masked at search time, by mask state.
	maskedFieldsTotal *prometheus.CounterVec

	// Searches by filter mode.
	searchesTotal *prometheus.CounterVec
}

// NewCollector creates a metrics collector registered against the given
// registry. If registry is nil, a new one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "bastion"
	}
	if len(cfg.AuditWriteDurationBuckets) == 0 {
		cfg.AuditWriteDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "access_decisions_total",
				Help:      "Total access decisions by layer, outcome and denial reason",
			},
			[]string{"layer", "outcome", "reason"},
		),

		auditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_writes_total",
				Help:      "Total audit event writes by status",
			},
			[]string{"status"},
		),

		auditWriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_write_duration_seconds",
				Help:      "Duration of synchronous audit writes in seconds",
				Buckets:   cfg.AuditWriteDurationBuckets,
			},
		),

		maskedFieldsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "masked_fields_total",
				Help:      "Total sensitive fields masked at search time, by mask state",
			},
			[]string{"state"},
		),

		searchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "searches_total",
				Help:      "Total search requests by filter mode",
			},
			[]string{"mode"},
		),
	}

	registry.MustRegister(
		c.decisionsTotal,
		c.auditWritesTotal,
		c.auditWriteDuration,
		c.maskedFieldsTotal,
		c.searchesTotal,
	)

	return c
}

// RecordDecision records one access decision.
// layer is "record", "cell" or "ntk"; reason is empty on an allow.
func (c *Collector) RecordDecision(layer string, allowed bool, reason string) {
	if !c.config.Enabled {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	c.decisionsTotal.WithLabelValues(layer, outcome, reason).Inc()
}

// RecordAuditWrite records the outcome and latency of one audit write.
func (c *Collector) RecordAuditWrite(err error, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.auditWritesTotal.WithLabelValues(status).Inc()
	c.auditWriteDuration.Observe(duration.Seconds())
}

// RecordMaskedFields records n sensitive fields masked with the given state.
func (c *Collector) RecordMaskedFields(state string, n int) {
	if !c.config.Enabled || n <= 0 {
		return
	}
	c.maskedFieldsTotal.WithLabelValues(state).Add(float64(n))
}

// RecordSearch records one search request in the given filter mode.
func (c *Collector) RecordSearch(mode string) {
	if !c.config.Enabled {
		return
	}
	c.searchesTotal.WithLabelValues(mode).Inc()
}
