package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Allocation outcomes used as the "outcome" label.
const (
	outcomeOK           = "ok"
	outcomeRejected     = "rejected"
	outcomeInconsistent = "inconsistent"
	outcomeLockTimeout  = "lock_timeout"
	outcomeError        = "error"
)

// Metrics are the reconciler's Prometheus collectors.
type Metrics struct {
	Allocations        *prometheus.CounterVec
	AllocatedAmount    *prometheus.CounterVec
	AllocationDuration prometheus.Histogram
	Folds              prometheus.Counter
	AuditFindings      *prometheus.CounterVec
	AuditRuns          prometheus.Counter
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_allocations_total",
			Help: "Payment allocations by outcome.",
		}, []string{"outcome"}),
		AllocatedAmount: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_allocated_amount_total",
			Help: "Amount allocated by payment purpose, in major currency units.",
		}, []string{"purpose"}),
		AllocationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_allocation_duration_seconds",
			Help:    "Time spent in RecordPayment including lock wait.",
			Buckets: prometheus.DefBuckets,
		}),
		Folds: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_folds_total",
			Help: "Ledger folds computed.",
		}),
		AuditFindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_audit_findings_total",
			Help: "Consistency audit findings by kind.",
		}, []string{"kind"}),
		AuditRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_runs_total",
			Help: "Party audits performed.",
		}),
	}
}
