package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/lockstep/pkg/metrics"
)

// admissionMetrics is the Prometheus implementation of metrics.AdmissionMetrics.
type admissionMetrics struct {
	admissions *prometheus.CounterVec
	handshakes *prometheus.CounterVec
}

// NewAdmissionMetrics creates a Prometheus-backed AdmissionMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewAdmissionMetrics() metrics.AdmissionMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newAdmissionMetrics(metrics.GetRegistry())
}

func newAdmissionMetrics(reg prometheus.Registerer) *admissionMetrics {
	factory := promauto.With(reg)

	return &admissionMetrics{
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstep_admissions_total",
				Help: "Accepted connections by admission result",
			},
			[]string{"result"}, // "queued", "rejected"
		),
		handshakes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstep_reject_handshakes_total",
				Help: "Completed overload handshakes by whether the client acknowledged the notice",
			},
			[]string{"acknowledged"},
		),
	}
}

func (m *admissionMetrics) RecordAdmission(result string) {
	m.admissions.WithLabelValues(result).Inc()
}

func (m *admissionMetrics) RecordRejectHandshake(acknowledged bool) {
	label := "false"
	if acknowledged {
		label = "true"
	}
	m.handshakes.WithLabelValues(label).Inc()
}

// Lengther is implemented by the admission queue.
type Lengther interface {
	Len() int
}

// RegisterQueueDepth exports q's occupancy as a gauge sampled at scrape time.
// It is a no-op when metrics are disabled.
func RegisterQueueDepth(q Lengther) {
	if !metrics.IsEnabled() {
		return
	}
	registerQueueDepth(metrics.GetRegistry(), q)
}

func registerQueueDepth(reg prometheus.Registerer, q Lengther) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lockstep_admission_queue_depth",
			Help: "Connections waiting in the admission queue",
		},
		func() float64 { return float64(q.Len()) },
	)
}
