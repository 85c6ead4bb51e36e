// Package metrics exposes prometheus instruments for the circle
// coordinator.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures coordinator health signals.
type Metrics struct {
	circlesCreated    prometheus.Counter
	phaseTransitions  *prometheus.CounterVec
	memberTransitions *prometheus.CounterVec
	joinRejections    *prometheus.CounterVec
	heartbeatTimeouts prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	lockWait          prometheus.Histogram
	sweepDuration     prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// New returns the singleton metrics registry.
func New() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		circlesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focuscircle_circles_created_total",
			Help: "Circles created.",
		}),
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focuscircle_phase_transitions_total",
			Help: "Circle phase transitions by edge.",
		}, []string{"from", "to"}),
		memberTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focuscircle_member_transitions_total",
			Help: "Member status transitions by edge.",
		}, []string{"from", "to"}),
		joinRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focuscircle_join_rejections_total",
			Help: "Rejected join attempts by low-cardinality reason.",
		}, []string{"reason"}),
		heartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focuscircle_heartbeat_timeouts_total",
			Help: "Members transitioned to left after missed heartbeats.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focuscircle_events_published_total",
			Help: "Events fanned out to circle streams by type.",
		}, []string{"type"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "focuscircle_circle_lock_wait_seconds",
			Help:    "Time spent waiting on per-circle locks.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "focuscircle_timer_sweep_duration_seconds",
			Help:    "Timer authority sweep latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.circlesCreated,
		m.phaseTransitions,
		m.memberTransitions,
		m.joinRejections,
		m.heartbeatTimeouts,
		m.eventsPublished,
		m.lockWait,
		m.sweepDuration,
	} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return m
}

func (m *Metrics) IncCirclesCreated() {
	if m == nil {
		return
	}
	m.circlesCreated.Inc()
}

func (m *Metrics) IncPhaseTransition(from, to string) {
	if m == nil {
		return
	}
	m.phaseTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncMemberTransition(from, to string) {
	if m == nil {
		return
	}
	m.memberTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncJoinRejection(reason string) {
	if m == nil {
		return
	}
	m.joinRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncHeartbeatTimeout() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}

func (m *Metrics) IncEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.Observe(seconds)
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
