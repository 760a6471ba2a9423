package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	frames     *prometheus.CounterVec
	events     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	connState  *prometheus.GaugeVec
	latency    *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder. A nil registerer uses the
// process-wide default one.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_frames_total",
				Help: "Total number of raw frames received per channel",
			},
			[]string{"channel"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_events_total",
				Help: "Total number of normalized events per channel and kind",
			},
			[]string{"channel", "kind"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_reconnects_total",
				Help: "Total number of scheduled reconnect attempts",
			},
			[]string{"channel"},
		),
		connState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalboard_connection_state",
				Help: "Connection state per channel (0 idle, 1 connecting, 2 open, 3 closing, 4 closed)",
			},
			[]string{"channel"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalboard_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFrame counts a raw frame read from a channel.
func (r *Recorder) RecordFrame(channel string) {
	r.frames.WithLabelValues(channel).Inc()
}

// RecordEvent counts a normalized event.
func (r *Recorder) RecordEvent(channel, kind string) {
	r.events.WithLabelValues(channel, kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordReconnect records a scheduled reconnect attempt.
func (r *Recorder) RecordReconnect(channel string) {
	r.reconnects.WithLabelValues(channel).Inc()
}

// RecordConnState records the current connection state.
func (r *Recorder) RecordConnState(channel string, state int) {
	r.connState.WithLabelValues(channel).Set(float64(state))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
