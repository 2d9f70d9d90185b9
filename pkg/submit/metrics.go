package submit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dlovans/surveyor/pkg/survey"
)

// Metrics records validation outcomes. A nil *Metrics records nothing.
type Metrics struct {
	// decisions counts validated submissions.
	// Labels: outcome (accepted, rejected, error), kind (rejection kind, empty otherwise)
	decisions *prometheus.CounterVec

	// duration measures Validate latency, including the snapshot read.
	// Labels: outcome
	duration *prometheus.HistogramVec

	// audited counts answers re-checked by the auditor.
	// Labels: outcome (valid, invalid)
	audited *prometheus.CounterVec
}

// NewMetrics registers the submission metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyor",
			Name:      "decisions_total",
			Help:      "Validated submissions by outcome and rejection kind",
		}, []string{"outcome", "kind"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "surveyor",
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating one submission",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"outcome"}),
		audited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveyor",
			Name:      "audited_answers_total",
			Help:      "Recorded answers re-checked against the current catalog",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome, kind := "accepted", ""
	if err != nil {
		outcome = "error"
		if r, ok := survey.AsRejection(err); ok {
			outcome, kind = "rejected", string(r.Kind)
		}
	}
	m.decisions.WithLabelValues(outcome, kind).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) audit(valid bool) {
	if m == nil {
		return
	}
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	m.audited.WithLabelValues(outcome).Inc()
}
