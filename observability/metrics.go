package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons recorded on RulesSkippedTotal.
const (
	SkipOrphaned  = "orphaned"
	SkipExhausted = "exhausted"
	SkipBudget    = "budget"
	SkipCaughtUp  = "caught_up"
	SkipDeleted   = "deleted"
)

// Metrics holds metric instruments for recur.
type Metrics struct {
	MaterializeRunsTotal     *prometheus.CounterVec
	MaterializeDuration      prometheus.Histogram
	RulesAdvancedTotal       prometheus.Counter
	RulesSkippedTotal        *prometheus.CounterVec
	RulesFailedTotal         prometheus.Counter
	InstancesCreatedTotal    prometheus.Counter
	CheckpointConflictsTotal prometheus.Counter
}

// NewMetrics creates recur metric instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer for process-wide metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MaterializeRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recur_materialize_runs_total",
			Help: "Materialize calls by outcome.",
		}, []string{"status"}),
		MaterializeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recur_materialize_duration_seconds",
			Help:    "Wall time of Materialize calls.",
			Buckets: prometheus.DefBuckets,
		}),
		RulesAdvancedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recur_rules_advanced_total",
			Help: "Rules whose checkpoint was advanced.",
		}),
		RulesSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recur_rules_skipped_total",
			Help: "Rules left untouched by a Materialize call, by reason.",
		}, []string{"reason"}),
		RulesFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recur_rules_failed_total",
			Help: "Rules abandoned because of a store error.",
		}),
		InstancesCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recur_instances_created_total",
			Help: "Event instances materialized.",
		}),
		CheckpointConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recur_checkpoint_conflicts_total",
			Help: "Checkpoint compare-and-swap races lost.",
		}),
	}

	reg.MustRegister(
		m.MaterializeRunsTotal,
		m.MaterializeDuration,
		m.RulesAdvancedTotal,
		m.RulesSkippedTotal,
		m.RulesFailedTotal,
		m.InstancesCreatedTotal,
		m.CheckpointConflictsTotal,
	)
	return m
}

// RecordRun records a finished Materialize call.
func (m *Metrics) RecordRun(status string, elapsed time.Duration) {
	m.MaterializeRunsTotal.WithLabelValues(status).Inc()
	m.MaterializeDuration.Observe(elapsed.Seconds())
}

// RecordAdvance records a committed checkpoint advance.
func (m *Metrics) RecordAdvance(created int) {
	m.RulesAdvancedTotal.Inc()
	m.InstancesCreatedTotal.Add(float64(created))
}

// RecordSkip records a rule skipped for reason.
func (m *Metrics) RecordSkip(reason string) {
	m.RulesSkippedTotal.WithLabelValues(reason).Inc()
}
