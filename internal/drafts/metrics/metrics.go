package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks draft saves and loads.
type Metrics struct {
	Saves        *prometheus.CounterVec
	SaveDuration prometheus.Histogram
	Loads        *prometheus.CounterVec
	StoreOps     *prometheus.CounterVec
}

// New registers draft metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_draft_saves_total",
			Help: "Draft save attempts by trigger and result",
		}, []string{"trigger", "result"}),
		SaveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_draft_save_duration_seconds",
			Help:    "Duration of draft saves against the store",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_draft_loads_total",
			Help: "Draft loads at session start by outcome",
		}, []string{"outcome"}),
		StoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_draft_store_operations_total",
			Help: "Draft store operations served by the HTTP draft store",
		}, []string{"operation", "result"}),
	}
}

// IncSave records one save attempt.
func (m *Metrics) IncSave(trigger, result string) {
	m.Saves.WithLabelValues(trigger, result).Inc()
}

// ObserveSave records save latency. Call with time.Now() taken before the store call.
func (m *Metrics) ObserveSave(start time.Time) {
	m.SaveDuration.Observe(time.Since(start).Seconds())
}

// IncLoad records the outcome of a mount.
func (m *Metrics) IncLoad(outcome string) {
	m.Loads.WithLabelValues(outcome).Inc()
}

// IncStoreOp records a request handled by the draft store server.
func (m *Metrics) IncStoreOp(operation, result string) {
	m.StoreOps.WithLabelValues(operation, result).Inc()
}
