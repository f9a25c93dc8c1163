// Package metrics exposes Prometheus instrumentation for the voice
// capture pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline metrics. Every component that takes a
// *Metrics accepts nil to run uninstrumented.
type Metrics struct {
	// Poll loop
	FramesDrained   prometheus.Counter
	BufferedSamples prometheus.Gauge

	// VAD
	SpeechSegments    prometheus.Counter
	UtterancesEmitted prometheus.Counter
	UtterancesDropped prometheus.Counter
	UtteranceDuration prometheus.Histogram

	// Faults
	ResampleErrors prometheus.Counter
	DeviceFaults   prometheus.Counter
	EventsDropped  prometheus.Counter
}

// New creates and registers all metrics with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesDrained: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_drained_total",
			Help: "Total sample frames drained from the capture buffer",
		}),
		BufferedSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_utterance_buffered_samples",
			Help: "Samples held in the live utterance buffer",
		}),
		SpeechSegments: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_speech_segments_total",
			Help: "Total detected speech onsets",
		}),
		UtterancesEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_utterances_emitted_total",
			Help: "Total utterances resampled and emitted downstream",
		}),
		UtterancesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_utterances_dropped_total",
			Help: "Total utterances discarded for being shorter than the minimum speech duration",
		}),
		UtteranceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_utterance_duration_seconds",
			Help:    "Duration of emitted utterances",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		ResampleErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_resample_errors_total",
			Help: "Total utterances dropped because resampling failed",
		}),
		DeviceFaults: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_device_faults_total",
			Help: "Total unexpected capture device stops",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_events_dropped_total",
			Help: "Total events dropped because the event sink was full",
		}),
	}
}
