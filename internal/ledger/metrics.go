package ledger

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the posting engine's Prometheus collectors, adapted from
// the teacher's per-module metrics-registry pattern (one struct of
// collectors, registered once, nil-safe methods).
type Metrics struct {
	postsTotal   *prometheus.CounterVec
	postFailures *prometheus.CounterVec
}

// NewMetrics builds and registers the ledger's collectors against reg. A
// nil registry yields an unregistered (but still usable) Metrics, handy
// for tests that do not want to pollute the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		postsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caricash",
			Subsystem: "ledger",
			Name:      "posts_total",
			Help:      "Count of successfully posted journals, by txn_type.",
		}, []string{"txn_type"}),
		postFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caricash",
			Subsystem: "ledger",
			Name:      "post_failures_total",
			Help:      "Count of rejected or failed posting attempts, by txn_type.",
		}, []string{"txn_type"}),
	}
	if reg != nil {
		reg.MustRegister(m.postsTotal, m.postFailures)
	}
	return m
}
