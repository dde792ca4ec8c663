package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks submission attempts.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	SubmitDuration prometheus.Histogram
}

// New registers submission metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Submission attempts by result (accepted, rejected, failed)",
		}, []string{"result"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_submit_duration_seconds",
			Help:    "Time from submit to outcome, including validation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncSubmission(result string) {
	m.Submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSubmit(d time.Duration) {
	m.SubmitDuration.Observe(d.Seconds())
}
