package attendance

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "clubhouse_attendance"

// Metrics is a prometheus.Collector for register activity.
// A nil *Metrics records nothing.
type Metrics struct {
	signIns       *prometheus.CounterVec
	signOuts      *prometheus.CounterVec
	bulkItems     *prometheus.CounterVec
	visitDuration prometheus.Histogram
}

// NewMetrics returns a new, unregistered Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		signIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sign_ins_total",
				Help:      "Sign-in attempts by result.",
			}, []string{"result"},
		),
		signOuts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sign_outs_total",
				Help:      "Sign-out attempts by result.",
			}, []string{"result"},
		),
		bulkItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "bulk_sign_out_items_total",
				Help:      "Per-user outcomes of bulk sign-out requests.",
			}, []string{"result"},
		),
		visitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "visit_duration_minutes",
				Help:      "Length of closed visits in minutes.",
				Buckets:   []float64{5, 15, 30, 60, 120, 180, 240, 360, 480, 720},
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.signIns.Describe(ch)
	m.signOuts.Describe(ch)
	m.bulkItems.Describe(ch)
	m.visitDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.signIns.Collect(ch)
	m.signOuts.Collect(ch)
	m.bulkItems.Collect(ch)
	m.visitDuration.Collect(ch)
}

func (m *Metrics) observeSignIn(err error) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeSignOut(err error, minutes int) {
	if m == nil {
		return
	}
	m.signOuts.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.visitDuration.Observe(float64(minutes))
	}
}

func (m *Metrics) observeBulkItem(err error) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadySignedIn):
		return "already_signed_in"
	case errors.Is(err, ErrNotSignedIn):
		return "not_signed_in"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
