package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"retailpos/internal/domain"
)

// Sales counts sale commits by outcome and times the successful ones.
type Sales struct {
	commits  *prometheus.CounterVec
	duration prometheus.Histogram
	revenue  prometheus.Counter
}

func NewSales(reg prometheus.Registerer) *Sales {
	m := &Sales{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retailpos",
			Name:      "sale_commits_total",
			Help:      "Sale commits by outcome code.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "retailpos",
			Name:      "sale_commit_duration_seconds",
			Help:      "Time spent committing a sale.",
			Buckets:   prometheus.DefBuckets,
		}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "retailpos",
			Name:      "sale_revenue_total",
			Help:      "Grand total of committed sales.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.commits, m.duration, m.revenue)
	}
	return m
}

// Observe records one commit attempt. Duplicate replays count as "duplicate"
// and add no revenue.
func (m *Sales) Observe(result domain.SaleResult, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := domain.ErrorCode(err)
	if err == nil && result.Duplicate {
		outcome = "duplicate"
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
	if err == nil && !result.Duplicate {
		m.revenue.Add(result.Sale.GrandTotal.InexactFloat64())
	}
}
