// Package metrics instruments the capture pipeline with Prometheus.
//
// All methods are safe on a nil *Metrics, so components can be built
// without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airrec"

// Metrics holds the pipeline collectors.
type Metrics struct {
	polls             *prometheus.CounterVec
	framesAccepted    prometheus.Counter
	framesSuppressed  prometheus.Counter
	framesDropped     *prometheus.CounterVec
	framesDelivered   prometheus.Counter
	deliveryErrors    prometheus.Counter
	queueDepth        prometheus.Gauge
	sessionsActive    prometheus.Gauge
	iterationDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_polls_total",
				Help:      "Total number of display polls",
			},
			[]string{"result"}, // result: frame, transient, fatal
		),
		framesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_accepted_total",
			Help:      "Frames that differed enough from the previous one to be delivered",
		}),
		framesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_suppressed_total",
			Help:      "Frames suppressed as near-duplicates",
		}),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Accepted frames that never reached the transport",
			},
			[]string{"reason"}, // reason: evicted, rejected, detached
		),
		framesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Frames handed to the transport successfully",
		}),
		deliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Failed frame sends",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Frames waiting between capture and delivery",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Recording sessions currently running",
		}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_iteration_seconds",
			Help:      "Time spent polling and diffing per capture iteration, before pacing",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.polls, m.framesAccepted, m.framesSuppressed, m.framesDropped,
		m.framesDelivered, m.deliveryErrors, m.queueDepth, m.sessionsActive,
		m.iterationDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Poll records the outcome of one display poll.
func (m *Metrics) Poll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

// Diffed records a differ decision.
func (m *Metrics) Diffed(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.framesAccepted.Inc()
	} else {
		m.framesSuppressed.Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	m.DroppedN(reason, 1)
}

// DroppedN records n frames dropped for reason.
func (m *Metrics) DroppedN(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDropped.WithLabelValues(reason).Add(float64(n))
}

// Sent records a transport send.
func (m *Metrics) Sent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.deliveryErrors.Inc()
		return
	}
	m.framesDelivered.Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) Iteration(d time.Duration) {
	if m == nil {
		return
	}
	m.iterationDuration.Observe(d.Seconds())
}
