package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for the executions counter.
const (
	OutcomeUnique    = "unique"
	OutcomeAmbiguous = "ambiguous"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
)

// Metrics collects query execution metrics.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	candidates prometheus.Histogram
}

// NewMetrics registers the executor metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsecomp",
			Name:      "query_executions_total",
			Help:      "Constraint-set executions by template and outcome",
		}, []string{"template", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "browsecomp",
			Name:      "query_duration_seconds",
			Help:      "Duration of one constraint-set execution",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"template"}),

		candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "browsecomp",
			Name:      "query_candidates",
			Help:      "Size of the terminal candidate set",
			Buckets:   []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
		}),
	}
}

func (m *Metrics) observe(templateID, outcome string, seconds float64, candidates int) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(templateID, outcome).Inc()
	m.duration.WithLabelValues(templateID).Observe(seconds)
	if outcome != OutcomeError {
		m.candidates.Observe(float64(candidates))
	}
}

func outcomeOf(candidates int) string {
	switch candidates {
	case 0:
		return OutcomeEmpty
	case 1:
		return OutcomeUnique
	}
	return OutcomeAmbiguous
}
