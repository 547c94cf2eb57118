package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/lockstep/pkg/metrics"
)

// coordinatorMetrics is the Prometheus implementation of metrics.CoordinatorMetrics.
type coordinatorMetrics struct {
	cycles      *prometheus.CounterVec
	expected    prometheus.Gauge
	arrivalWait prometheus.Histogram
	sendDelay   prometheus.Histogram
	messages    prometheus.Counter
	ackLatency  prometheus.Histogram
	departures  *prometheus.CounterVec
	sessions    prometheus.Gauge
}

// NewCoordinatorMetrics creates a Prometheus-backed CoordinatorMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCoordinatorMetrics() metrics.CoordinatorMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newCoordinatorMetrics(metrics.GetRegistry())
}

func newCoordinatorMetrics(reg prometheus.Registerer) *coordinatorMetrics {
	factory := promauto.With(reg)

	return &coordinatorMetrics{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstep_cycles_total",
				Help: "Completed broadcast cycles by admission outcome",
			},
			[]string{"outcome"}, // "connected", "duplicate", "idle", "rejected"
		),
		expected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lockstep_barrier_expected_arrivals",
			Help: "Number of arrivals the last readiness barrier waited for",
		}),
		arrivalWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "lockstep_barrier_wait_milliseconds",
			Help: "Time the coordinator spent waiting on the readiness barrier",
			Buckets: []float64{
				0.1,   // already arrived
				1,     // 1ms
				10,    // 10ms
				100,   // 100ms
				500,   // 500ms
				1000,  // 1s - a slow client acking the previous message
				5000,  // 5s
				30000, // 30s - default arrival timeout
			},
		}),
		sendDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lockstep_send_delay_milliseconds",
			Help:    "Randomized delay drawn before releasing the send gates",
			Buckets: prometheus.LinearBuckets(0, 100, 11),
		}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Name: "lockstep_messages_acknowledged_total",
			Help: "Messages sent and acknowledged across all sessions",
		}),
		ackLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lockstep_ack_latency_milliseconds",
			Help:    "Time between sending a message and receiving its acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 9), // 100us .. ~6.5s
		}),
		departures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstep_session_departures_total",
				Help: "Sessions removed from the registry by reason",
			},
			[]string{"reason"},
		),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lockstep_sessions",
			Help: "Number of registered sessions",
		}),
	}
}

func (m *coordinatorMetrics) RecordCycle(outcome string, expected int, arrivalWait, delay time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	m.expected.Set(float64(expected))
	m.arrivalWait.Observe(milliseconds(arrivalWait))
	m.sendDelay.Observe(milliseconds(delay))
}

func (m *coordinatorMetrics) RecordMessage(ackLatency time.Duration) {
	m.messages.Inc()
	m.ackLatency.Observe(milliseconds(ackLatency))
}

func (m *coordinatorMetrics) RecordDeparture(reason string) {
	m.departures.WithLabelValues(reason).Inc()
}

func (m *coordinatorMetrics) SetSessions(count int) {
	m.sessions.Set(float64(count))
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
