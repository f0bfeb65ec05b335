package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics records outcomes of purchase engine executions.
type PurchaseMetrics struct {
	executed *prometheus.CounterVec
	spent    prometheus.Histogram
}

// NewPurchaseMetrics registers the purchase metrics on the provided registerer.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	executed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_total",
		Help: "Purchase engine executions by outcome.",
	}, []string{"outcome"})
	spent := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "purchase_points_spent",
		Help:    "Points debited per successful purchase.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})
	reg.MustRegister(executed, spent)
	return &PurchaseMetrics{
		executed: executed,
		spent:    spent,
	}
}

// IncOutcome increments the execution counter for the named outcome.
func (p *PurchaseMetrics) IncOutcome(outcome string) {
	if p == nil || p.executed == nil {
		return
	}
	p.executed.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSpent records the points debited by a successful purchase.
func (p *PurchaseMetrics) ObserveSpent(points int) {
	if p == nil || p.spent == nil {
		return
	}
	p.spent.Observe(float64(points))
}

func normalizeLabel(outcome string) string {
	if outcome == "" {
		return "unknown"
	}
	return outcome
}
