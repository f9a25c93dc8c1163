// Package listen runs the continuous listening session: a capture source
// feeding a sample buffer, a fixed-cadence poll loop advancing the voice
// activity detector, and an event channel toward the application layer.
package listen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syf20020816/Gamate/audio"
	"github.com/syf20020816/Gamate/audio/resample"
	"github.com/syf20020816/Gamate/audio/vad"
	"github.com/syf20020816/Gamate/metrics"
)

// DefaultPollInterval is the cadence at which buffered capture audio is
// drained and fed to the detector.
const DefaultPollInterval = 100 * time.Millisecond

// FrameSource is the capture side of the pipeline. audio.Recorder is the
// production implementation; anything that can hand out drained float32
// frames works, which is how the offline feeder and tests plug in.
type FrameSource interface {
	Start() error
	Stop() error
	// TakeAudio drains and returns everything captured since the last call.
	TakeAudio() []float32
	// SampleRate is the nominal capture rate; the listener still measures
	// the delivered rate per utterance to correct for clock drift.
	SampleRate() uint32
	// Stopped is closed if the device stops on its own (backend fault).
	Stopped() <-chan struct{}
}

var _ FrameSource = (*audio.Recorder)(nil)

// Config for a listening session.
type Config struct {
	VAD          vad.Config
	Recorder     audio.RecorderConfig
	PollInterval time.Duration
}

// State is a point-in-time snapshot, safe to read in any lifecycle phase.
type State struct {
	VADState          vad.State
	IsListening       bool
	RecordingDuration time.Duration
	BufferedSamples   int
	LastTranscription string
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) { ln.log = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ln *Listener) { ln.met = m }
}

// WithSource replaces the default microphone recorder with a custom
// capture source. The listener will not close it on stop.
func WithSource(s FrameSource) Option {
	return func(ln *Listener) { ln.sourceOverride = s }
}

// WithGate replaces the detector's RMS energy gate, e.g. with a SileroGate.
func WithGate(g vad.Gate) Option {
	return func(ln *Listener) { ln.gate = g }
}

// Listener owns one optional capture session and one detector, and emits
// lifecycle events into a caller-supplied channel. All detector and buffer
// mutation is serialized behind one lock, which is what makes the take-once
// utterance handoff hold regardless of whether the poll loop or a manual
// stop reaches it first.
type Listener struct {
	cfg Config
	log *slog.Logger
	met *metrics.Metrics

	sourceOverride FrameSource
	gate           vad.Gate

	mu          sync.Mutex
	det         *vad.Detector
	source      FrameSource
	ownedSource bool
	sink        chan<- Event
	running     bool
	lastText    string

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Listener. Zero-value VAD and recorder configs fall back to
// their package defaults; an invalid VAD config is rejected here.
func New(cfg Config, opts ...Option) (*Listener, error) {
	if cfg.VAD == (vad.Config{}) {
		cfg.VAD = vad.DefaultConfig()
	}
	if cfg.Recorder == (audio.RecorderConfig{}) {
		cfg.Recorder = audio.DefaultRecorderConfig()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	l := &Listener{cfg: cfg}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}

	vadOpts := []vad.Option{vad.WithLogger(l.log)}
	if l.gate != nil {
		vadOpts = append(vadOpts, vad.WithGate(l.gate))
	}
	det, err := vad.New(cfg.VAD, vadOpts...)
	if err != nil {
		return nil, err
	}
	l.det = det
	return l, nil
}

// StartListening opens the capture session and starts the poll loop.
// Calling it while already running logs a warning and succeeds as a no-op.
// Events are pushed into sink with non-blocking sends; size it generously.
func (l *Listener) StartListening(sink chan<- Event) error {
	l.mu.Lock()
	if l.running {
		l.log.Warn("listener already running")
		l.mu.Unlock()
		return nil
	}

	source := l.sourceOverride
	owned := false
	if source == nil {
		rec, err := audio.NewRecorder(l.cfg.Recorder, l.log)
		if err != nil {
			l.mu.Unlock()
			return err
		}
		source = rec
		owned = true
	}
	if err := source.Start(); err != nil {
		if owned {
			if rec, ok := source.(*audio.Recorder); ok {
				rec.Close()
			}
		}
		l.mu.Unlock()
		return fmt.Errorf("listen: start capture: %w", err)
	}

	l.det.Reset()
	l.source = source
	l.ownedSource = owned
	l.sink = sink
	l.running = true

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.pollLoop(ctx, source, l.done)
	l.mu.Unlock()

	l.log.Info("listening started", "poll_interval", l.cfg.PollInterval)
	return nil
}

// StopListening flushes any in-flight speech, then tears the session down.
// The flush runs before the poll loop is cancelled, so speech captured up
// to the moment of a manual stop is never silently lost. Calling it while
// not running logs a warning and succeeds as a no-op.
func (l *Listener) StopListening() error {
	l.mu.Lock()
	if !l.running {
		l.log.Warn("listener not running")
		l.mu.Unlock()
		return nil
	}

	// Forced flush. Whichever of this and the poll loop takes the buffer
	// first wins; the loser sees it empty and does nothing.
	if l.det.BufferLen() > 0 && l.det.RecordingDuration() >= l.cfg.VAD.MinSpeechDuration {
		l.emitLocked(SpeechEnded{Duration: l.det.RecordingDuration()})
		l.flushLocked()
	}

	l.running = false
	cancel := l.cancel
	done := l.done
	source := l.source
	owned := l.ownedSource
	l.cancel = nil
	l.done = nil
	l.source = nil
	l.ownedSource = false
	l.sink = nil
	l.det.Reset()
	l.mu.Unlock()

	// Flush-then-abort: the cancellation happens only after the flush above.
	cancel()
	<-done

	if owned {
		if rec, ok := source.(*audio.Recorder); ok {
			rec.Close()
		} else {
			_ = source.Stop()
		}
	} else {
		_ = source.Stop()
	}

	l.log.Info("listening stopped")
	return nil
}

// GetState returns a snapshot. It only takes the shared lock briefly and is
// safe before start, mid-session, and after stop.
func (l *Listener) GetState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		VADState:          l.det.State(),
		IsListening:       l.running,
		RecordingDuration: l.det.RecordingDuration(),
		BufferedSamples:   l.det.BufferLen(),
		LastTranscription: l.lastText,
	}
}

// SetTranscription records the most recent recognized text so it shows up
// in state snapshots. The application layer calls this when the external
// transcription service answers.
func (l *Listener) SetTranscription(text string) {
	l.mu.Lock()
	l.lastText = text
	l.mu.Unlock()
}

func (l *Listener) pollLoop(ctx context.Context, source FrameSource, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	stopped := source.Stopped()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			// Mid-session device fault: surface it once and keep the
			// session alive. Frames simply stop arriving; the operator
			// decides whether to stop and restart.
			stopped = nil
			l.onDeviceFault()
		case <-ticker.C:
			l.tick(source)
		}
	}
}

func (l *Listener) tick(source FrameSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}

	frames := source.TakeAudio()
	if l.met != nil {
		l.met.BufferedSamples.Set(float64(l.det.BufferLen()))
	}
	if len(frames) == 0 {
		return
	}
	if l.met != nil {
		l.met.FramesDrained.Add(float64(len(frames)))
	}

	old := l.det.State()
	finalize := l.det.ProcessFrame(frames)
	cur := l.det.State()

	if old == vad.StateIdle && cur == vad.StateSpeaking {
		l.emitLocked(SpeechStarted{})
		if l.met != nil {
			l.met.SpeechSegments.Inc()
		}
	}
	if old == vad.StateSpeaking && cur == vad.StateProcessing {
		if finalize {
			l.emitLocked(SpeechEnded{Duration: l.det.RecordingDuration()})
			l.flushLocked()
		} else if l.met != nil {
			// Too short: counted but deliberately silent on the event channel.
			l.met.UtterancesDropped.Inc()
		}
	}
}

// flushLocked transfers the utterance buffer out of the detector, resamples
// it, and emits UtteranceReady. Caller holds l.mu; the TakeBuffer swap is
// what guarantees exactly-once emission per utterance.
func (l *Listener) flushLocked() {
	dur := l.det.RecordingDuration()
	samples := l.det.TakeBuffer()
	if len(samples) == 0 {
		return
	}

	// Empirical rate from what the device actually delivered, not its
	// nominal rate: corrects for capture clock drift.
	rate := int(l.cfg.Recorder.SampleRate)
	if dur > 0 {
		rate = int(float64(len(samples)) / dur.Seconds())
	}

	pcm, err := resample.ToPCM16(samples, rate)
	if err != nil {
		l.log.Error("resample failed, dropping utterance",
			"error", err, "samples", len(samples), "rate", rate)
		if l.met != nil {
			l.met.ResampleErrors.Inc()
		}
		l.emitLocked(RecognitionError{Message: err.Error()})
		return
	}

	l.log.Info("utterance ready",
		"duration", dur, "samples", len(samples), "measured_rate", rate)
	if l.met != nil {
		l.met.UtterancesEmitted.Inc()
		l.met.UtteranceDuration.Observe(dur.Seconds())
	}
	l.emitLocked(UtteranceReady{
		PCM:        pcm,
		SampleRate: resample.TargetRate,
		Duration:   dur,
	})
}

func (l *Listener) onDeviceFault() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.log.Error("capture device stopped unexpectedly")
	if l.met != nil {
		l.met.DeviceFaults.Inc()
	}
	l.emitLocked(RecognitionError{Message: "capture device stopped unexpectedly"})
}

// emitLocked pushes ev into the sink without ever blocking. Caller holds l.mu.
func (l *Listener) emitLocked(ev Event) {
	if l.sink == nil {
		return
	}
	select {
	case l.sink <- ev:
	default:
		l.log.Warn("event sink full, dropping event", "event", fmt.Sprintf("%T", ev))
		if l.met != nil {
			l.met.EventsDropped.Inc()
		}
	}
}
