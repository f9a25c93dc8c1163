// Package audio wraps the platform capture device behind a realtime-safe
// sample buffer: the device callback appends normalized mono float32
// frames, a polling consumer drains them.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

var (
	// ErrAlreadyStarted is returned by Start when the device is running.
	ErrAlreadyStarted = errors.New("audio: capture already started")
	// ErrNotStarted is returned by Stop when the device is not running.
	ErrNotStarted = errors.New("audio: capture not started")
)

// RecorderConfig selects the capture device parameters. The backend may
// negotiate a different native rate than the one requested; the pipeline
// corrects for that downstream by measuring the delivered rate, so
// SampleRate here is a request, not a guarantee.
type RecorderConfig struct {
	SampleRate uint32
	Channels   uint32
	Format     malgo.FormatType
}

// DefaultRecorderConfig requests mono float32 at 16 kHz, the layout the
// speech pipeline wants when the device can provide it.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SampleRate: 16000,
		Channels:   1,
		Format:     malgo.FormatF32,
	}
}

// Recorder wraps a malgo capture device. The device data callback decodes
// incoming frames to normalized float32, downmixes to mono, and appends to
// the shared SampleBuffer; nothing else happens on the realtime thread.
type Recorder struct {
	cfg    RecorderConfig
	log    *slog.Logger
	buffer *SampleBuffer

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	stopped  chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewRecorder initializes the audio backend context. The device itself is
// opened by Start.
func NewRecorder(cfg RecorderConfig, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.Format == malgo.FormatUnknown {
		cfg.Format = malgo.FormatF32
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}

	return &Recorder{
		cfg:     cfg,
		log:     logger,
		buffer:  NewSampleBuffer(int(cfg.SampleRate)), // one second
		ctx:     ctx,
		stopped: make(chan struct{}),
	}, nil
}

// Start opens the capture device and begins delivering frames into the
// sample buffer.
func (r *Recorder) Start() error {
	if r.started {
		r.log.Warn("capture already started")
		return ErrAlreadyStarted
	}
	r.stopped = make(chan struct{})
	r.stopOnce = sync.Once{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = r.cfg.Format
	deviceConfig.Capture.Channels = r.cfg.Channels
	deviceConfig.SampleRate = r.cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	format := r.cfg.Format
	channels := int(r.cfg.Channels)
	buffer := r.buffer

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if frameCount == 0 {
				return
			}
			buffer.Push(DecodeFrames(format, channels, input, int(frameCount)))
		},
		Stop: func() {
			// Fires on any device stop, including backend faults. Stop()
			// below closes the channel first for the clean-shutdown case.
			r.stopOnce.Do(func() { close(r.stopped) })
		},
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("audio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: start capture device: %w", err)
	}

	r.device = device
	r.started = true
	r.buffer.Reset()
	r.log.Info("capture started",
		"sample_rate", r.cfg.SampleRate,
		"channels", r.cfg.Channels,
		"format", formatName(r.cfg.Format))
	return nil
}

// Stop halts capture and releases the device. The context stays valid so
// the recorder can be started again.
func (r *Recorder) Stop() error {
	if !r.started {
		return ErrNotStarted
	}
	r.stopOnce.Do(func() { close(r.stopped) })
	_ = r.device.Stop()
	r.device.Uninit()
	r.device = nil
	r.started = false
	r.log.Info("capture stopped")
	return nil
}

// Close releases the backend context. The recorder is unusable afterwards.
func (r *Recorder) Close() {
	if r.started {
		_ = r.Stop()
	}
	_ = r.ctx.Uninit()
	r.ctx.Free()
}

// TakeAudio drains and returns everything captured since the last call.
func (r *Recorder) TakeAudio() []float32 {
	return r.buffer.Drain()
}

// BufferLen returns the number of samples waiting to be drained.
func (r *Recorder) BufferLen() int {
	return r.buffer.Len()
}

// SampleRate returns the requested device rate. The true delivered rate can
// drift; consumers needing precision should measure it from sample counts.
func (r *Recorder) SampleRate() uint32 {
	return r.cfg.SampleRate
}

// Stopped is closed when the device stops for any reason, including
// mid-session backend faults. It never fires twice.
func (r *Recorder) Stopped() <-chan struct{} {
	return r.stopped
}

// DecodeFrames converts raw device bytes into normalized mono float32
// samples in [-1, 1]. Multi-channel input is averaged down to mono.
func DecodeFrames(format malgo.FormatType, channels int, data []byte, frameCount int) []float32 {
	if channels < 1 {
		channels = 1
	}
	bps := bytesPerSample(format)
	if bps == 0 {
		return nil
	}
	need := frameCount * channels * bps
	if len(data) < need {
		frameCount = len(data) / (channels * bps)
	}

	out := make([]float32, 0, frameCount)
	for f := 0; f < frameCount; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := (f*channels + c) * bps
			sum += decodeSample(format, data[off:])
		}
		out = append(out, sum/float32(channels))
	}
	return out
}

func decodeSample(format malgo.FormatType, b []byte) float32 {
	switch format {
	case malgo.FormatF32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case malgo.FormatS16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768.0
	case malgo.FormatS32:
		return float32(int32(binary.LittleEndian.Uint32(b))) / 2147483648.0
	case malgo.FormatU8:
		return (float32(b[0]) - 128.0) / 128.0
	default:
		return 0
	}
}

func bytesPerSample(format malgo.FormatType) int {
	switch format {
	case malgo.FormatF32, malgo.FormatS32:
		return 4
	case malgo.FormatS16:
		return 2
	case malgo.FormatU8:
		return 1
	default:
		return 0
	}
}

func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatF32:
		return "f32"
	case malgo.FormatS16:
		return "s16"
	case malgo.FormatS32:
		return "s32"
	case malgo.FormatU8:
		return "u8"
	default:
		return "unknown"
	}
}
