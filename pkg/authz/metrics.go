package authz

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds prometheus instrumentation for the engine
type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	CheckDuration   prometheus.Histogram
	ResolveDuration prometheus.Histogram
	HierarchyCycles prometheus.Counter
}

// NewMetrics creates and registers the engine's metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_authz_checks_total",
				Help: "Total number of permission checks by result",
			},
			[]string{"result"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "atrium_authz_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "atrium_authz_resolve_duration_seconds",
				Help:    "Effective permission set resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		HierarchyCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "atrium_authz_role_cycles_total",
				Help: "Total number of cycles detected in the role hierarchy",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.ChecksTotal,
			m.CheckDuration,
			m.ResolveDuration,
			m.HierarchyCycles,
		)
	}
	return m
}
