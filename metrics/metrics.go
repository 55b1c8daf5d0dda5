package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's instrumentation. NewNop returns a set bound to
// a throwaway registry so tests and tools can skip exposition.
type Metrics struct {
	Breaches       *prometheus.CounterVec
	Enforcements   *prometheus.CounterVec
	ActiveLockouts prometheus.Gauge
	EvalSeconds    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Breaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_breaches_total",
			Help: "Rule breaches detected, by rule kind.",
		}, []string{"rule"}),
		Enforcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_enforcements_total",
			Help: "Enforcement actions dispatched, by action and result.",
		}, []string{"action", "result"}),
		ActiveLockouts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskgate_active_lockouts",
			Help: "Currently active lockouts for the account.",
		}),
		EvalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgate_evaluation_seconds",
			Help:    "Rule evaluation latency per event.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Breaches, m.Enforcements, m.ActiveLockouts, m.EvalSeconds)
	return m
}

// NewNop returns metrics registered nowhere visible.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveEval records one evaluation pass.
func (m *Metrics) ObserveEval(d time.Duration) {
	m.EvalSeconds.Observe(d.Seconds())
}
