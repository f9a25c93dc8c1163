// Package vad segments a live sample stream into utterances using RMS
// energy with hysteresis: one timer tracks how long speech has been
// running, another how long it has been quiet.
package vad

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// How long the detector lingers in StateProcessing waiting for follow-up
// speech before falling back to StateIdle.
const processingIdleTimeout = 2 * time.Second

// Config holds the detection thresholds.
type Config struct {
	// VolumeThreshold is the RMS level above which a frame counts as speech.
	VolumeThreshold float32
	// SilenceDuration is how long the signal must stay below the threshold
	// before an utterance is finalized.
	SilenceDuration time.Duration
	// MinSpeechDuration filters out short noise bursts: utterances below it
	// are discarded at finalize time.
	MinSpeechDuration time.Duration
	// MaxSpeechDuration caps a single utterance even under continuous speech.
	MaxSpeechDuration time.Duration
	// RMSWindowSize is the nominal analysis window in samples. The detector
	// itself classifies whatever chunk the capture layer delivers; offline
	// feeders use this to size their chunks.
	RMSWindowSize int
}

// DefaultConfig mirrors the tuning the desktop app ships with.
func DefaultConfig() Config {
	return Config{
		VolumeThreshold:   0.02,
		SilenceDuration:   1500 * time.Millisecond,
		MinSpeechDuration: 300 * time.Millisecond,
		MaxSpeechDuration: 30 * time.Second,
		RMSWindowSize:     1024,
	}
}

// Validate checks Config and returns an error on invalid values.
func (c Config) Validate() error {
	if c.VolumeThreshold <= 0 {
		return errors.New("vad: VolumeThreshold must be > 0")
	}
	if c.SilenceDuration <= 0 {
		return errors.New("vad: SilenceDuration must be > 0")
	}
	if c.MinSpeechDuration <= 0 {
		return errors.New("vad: MinSpeechDuration must be > 0")
	}
	if c.MaxSpeechDuration <= c.MinSpeechDuration {
		return errors.New("vad: MaxSpeechDuration must be greater than MinSpeechDuration")
	}
	if c.RMSWindowSize < 0 {
		return errors.New("vad: RMSWindowSize must be >= 0")
	}
	return nil
}

// State is the detector's position in the utterance lifecycle.
type State int

const (
	// StateIdle means no speech has been detected; the buffer is empty.
	StateIdle State = iota
	// StateSpeaking means an utterance is being accumulated.
	StateSpeaking
	// StateProcessing means an utterance was finalized and the detector is
	// waiting for either follow-up speech or the idle timeout.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Gate classifies one frame as speech or not. The default gate compares RMS
// energy against the configured threshold; SileroGate swaps in a model.
type Gate interface {
	Active(frame []float32) (bool, error)
}

type energyGate struct {
	threshold float32
}

func (g energyGate) Active(frame []float32) (bool, error) {
	return RMS(frame) > g.threshold, nil
}

// RMS returns the root-mean-square amplitude of samples, 0 for an empty slice.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Option configures a Detector.
type Option func(*Detector)

// WithGate replaces the default RMS energy gate.
func WithGate(g Gate) Option {
	return func(d *Detector) { d.gate = g }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// WithClock replaces the wall clock. Offline feeders use this to drive the
// silence and duration timers with media time instead of real time.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector runs the Idle/Speaking/Processing state machine and owns the
// live utterance buffer. It is not goroutine-safe; callers serialize access
// (the listener holds one lock around every detector call).
type Detector struct {
	cfg  Config
	gate Gate
	log  *slog.Logger
	now  func() time.Time

	state       State
	speechStart time.Time // zero when no utterance is live
	speechEnd   time.Time // set on finalize; freezes the utterance duration
	lastVoice   time.Time
	buf         []float32
}

// New creates a Detector. The config is validated up front; a detector
// never exists with an inconsistent threshold ordering.
func New(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:   cfg,
		state: StateIdle,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.gate == nil {
		d.gate = energyGate{threshold: cfg.VolumeThreshold}
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d, nil
}

// ProcessFrame advances the state machine with one frame of samples and
// reports whether a finalized utterance is ready to flush. A true return
// already includes the minimum-duration check: short bursts come back false
// and their audio is simply dropped.
func (d *Detector) ProcessFrame(frame []float32) bool {
	now := d.now()

	active, err := d.gate.Active(frame)
	if err != nil {
		// A failing gate means we cannot tell; treat the frame as silence
		// so a broken model never wedges the machine in Speaking.
		d.log.Error("speech gate failed", "error", err)
		active = false
	}

	switch d.state {
	case StateIdle:
		if active {
			d.beginUtterance(now, frame)
		}
		return false

	case StateSpeaking:
		d.buf = append(d.buf, frame...)
		if active {
			d.lastVoice = now
		}

		speechDur := now.Sub(d.speechStart)
		silenceDur := now.Sub(d.lastVoice)

		if speechDur > d.cfg.MaxSpeechDuration {
			d.log.Warn("utterance hit max duration", "duration", speechDur)
			d.state = StateProcessing
			d.speechEnd = now
			return d.checkMinDuration(now)
		}
		if silenceDur > d.cfg.SilenceDuration {
			d.log.Debug("silence ended utterance", "silence", silenceDur, "duration", speechDur)
			d.state = StateProcessing
			d.speechEnd = now
			return d.checkMinDuration(now)
		}
		return false

	case StateProcessing:
		if active {
			// Follow-up speech starts a fresh utterance; whatever is still
			// in the buffer was either flushed already or too short to keep.
			d.log.Debug("new utterance while processing, dropping stale buffer")
			d.beginUtterance(now, frame)
			return false
		}
		if !d.speechEnd.IsZero() && now.Sub(d.speechEnd) > processingIdleTimeout {
			d.log.Debug("processing idle timeout, back to idle")
			d.Reset()
		}
		return false
	}
	return false
}

func (d *Detector) beginUtterance(now time.Time, frame []float32) {
	d.state = StateSpeaking
	d.speechStart = now
	d.speechEnd = time.Time{}
	d.lastVoice = now
	d.buf = d.buf[:0]
	d.buf = append(d.buf, frame...)
	d.log.Debug("speech onset", "rms", RMS(frame))
}

// checkMinDuration gates the finalize signal: too-short utterances are noise.
func (d *Detector) checkMinDuration(now time.Time) bool {
	if d.speechStart.IsZero() {
		return false
	}
	dur := now.Sub(d.speechStart)
	if dur < d.cfg.MinSpeechDuration {
		d.log.Debug("utterance too short, dropping", "duration", dur)
		return false
	}
	return true
}

// TakeBuffer removes and returns the accumulated utterance samples, leaving
// the buffer empty. Exactly one caller gets the audio; everyone after sees nil.
func (d *Detector) TakeBuffer() []float32 {
	out := d.buf
	d.buf = nil
	if len(out) == 0 {
		return nil
	}
	return out
}

// Reset forces StateIdle and clears the buffer and timers unconditionally.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.speechStart = time.Time{}
	d.speechEnd = time.Time{}
	d.lastVoice = time.Time{}
	d.buf = nil
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	return d.state
}

// RecordingDuration returns how long the live utterance has been running.
// Once the utterance is finalized the duration is frozen at the finalize
// instant; zero when no utterance is live.
func (d *Detector) RecordingDuration() time.Duration {
	if d.speechStart.IsZero() {
		return 0
	}
	if !d.speechEnd.IsZero() {
		return d.speechEnd.Sub(d.speechStart)
	}
	return d.now().Sub(d.speechStart)
}

// BufferLen returns the number of buffered utterance samples.
func (d *Detector) BufferLen() int {
	return len(d.buf)
}
