// Package metrics bootstraps the process-wide Prometheus registry and the
// cross-cutting collector bundles (approval workflow, reconciliation,
// fraud) that don't belong to one ledger-scoped package, following the
// same one-struct-of-collectors pattern internal/ledger.Metrics uses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a Prometheus registerer along with the handler that
// serves it, so callers wire one object into both collector constructors
// and the HTTP mux.
type Registry struct {
	prometheus.Registerer
	gatherer prometheus.Gatherer
}

// New builds a fresh registry seeded with the default Go/process
// collectors, mirroring what prometheus.DefaultRegisterer carries without
// mutating package-level global state.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Registry{Registerer: reg, gatherer: reg}
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// ApprovalMetrics bundles the Approval Workflow Engine's (C9) collectors.
type ApprovalMetrics struct {
	RequestsOpened   *prometheus.CounterVec
	RequestsDecided  *prometheus.CounterVec
	ExpirySweepRuns  prometheus.Counter
}

// NewApprovalMetrics registers the approval engine's collectors against reg.
func NewApprovalMetrics(reg prometheus.Registerer) *ApprovalMetrics {
	m := &ApprovalMetrics{
		RequestsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "approval", Name: "requests_opened_total",
			Help: "Count of approval requests opened, by approval_type.",
		}, []string{"approval_type"}),
		RequestsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "approval", Name: "requests_decided_total",
			Help: "Count of approval requests reaching a terminal state, by approval_type and outcome.",
		}, []string{"approval_type", "outcome"}),
		ExpirySweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "approval", Name: "expiry_sweeps_total",
			Help: "Count of expiry sweep runs.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsOpened, m.RequestsDecided, m.ExpirySweepRuns)
	}
	return m
}

// ReconciliationMetrics bundles the Reconciliation Engine's (C12)
// collectors.
type ReconciliationMetrics struct {
	RunsTotal     prometheus.Counter
	FindingsTotal *prometheus.CounterVec
}

// NewReconciliationMetrics registers the reconciliation engine's
// collectors against reg.
func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	m := &ReconciliationMetrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "reconciliation", Name: "runs_total",
			Help: "Count of reconciliation runs executed.",
		}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "reconciliation", Name: "findings_total",
			Help: "Count of findings raised, by kind and severity.",
		}, []string{"kind", "severity"}),
	}
	if reg != nil {
		reg.MustRegister(m.RunsTotal, m.FindingsTotal)
	}
	return m
}

// FraudMetrics bundles the Fraud Rule Evaluator's (C13) collectors.
type FraudMetrics struct {
	DecisionsTotal *prometheus.CounterVec
	CasesOpened    prometheus.Counter
}

// NewFraudMetrics registers the fraud evaluator's collectors against reg.
func NewFraudMetrics(reg prometheus.Registerer) *FraudMetrics {
	m := &FraudMetrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "fraud", Name: "decisions_total",
			Help: "Count of fraud evaluations, by decision.",
		}, []string{"decision"}),
		CasesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caricash", Subsystem: "fraud", Name: "cases_opened_total",
			Help: "Count of fraud cases opened by create_case rules.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.DecisionsTotal, m.CasesOpened)
	}
	return m
}
