package vad_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syf20020816/Gamate/audio/vad"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func testConfig() vad.Config {
	return vad.Config{
		VolumeThreshold:   0.1,
		SilenceDuration:   500 * time.Millisecond,
		MinSpeechDuration: 300 * time.Millisecond,
		MaxSpeechDuration: 5 * time.Second,
		RMSWindowSize:     512,
	}
}

func newTestDetector(t *testing.T, cfg vad.Config) (*vad.Detector, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1000, 0)}
	det, err := vad.New(cfg, vad.WithClock(clk.now))
	require.NoError(t, err)
	return det, clk
}

func frame(amplitude float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestRMS(t *testing.T) {
	assert.Equal(t, float32(0), vad.RMS(nil))
	assert.Equal(t, float32(0), vad.RMS(frame(0, 512)))
	assert.InDelta(t, 1.0, vad.RMS(frame(1.0, 512)), 1e-6)
	assert.InDelta(t, 0.5, vad.RMS(frame(0.5, 512)), 1e-6)
	assert.InDelta(t, 0.5, vad.RMS(frame(-0.5, 512)), 1e-6)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, vad.DefaultConfig().Validate())

	cfg := testConfig()
	cfg.VolumeThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.MinSpeechDuration = 2 * time.Second
	cfg.MaxSpeechDuration = time.Second
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.SilenceDuration = 0
	assert.Error(t, cfg.Validate())

	_, err := vad.New(vad.Config{})
	assert.Error(t, err)
}

func TestIdleIgnoresQuietFrames(t *testing.T) {
	det, clk := newTestDetector(t, testConfig())

	for i := 0; i < 10; i++ {
		assert.False(t, det.ProcessFrame(frame(0.05, 512)))
		clk.advance(32 * time.Millisecond)
	}
	assert.Equal(t, vad.StateIdle, det.State())
	assert.Equal(t, 0, det.BufferLen())
	assert.Equal(t, time.Duration(0), det.RecordingDuration())
}

func TestOnsetFrameIsBuffered(t *testing.T) {
	det, _ := newTestDetector(t, testConfig())

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	assert.Equal(t, vad.StateSpeaking, det.State())
	// The frame that triggers the transition is itself kept.
	assert.Equal(t, 512, det.BufferLen())
}

func TestSilenceFinalizes(t *testing.T) {
	det, clk := newTestDetector(t, testConfig())

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(400 * time.Millisecond)
	require.False(t, det.ProcessFrame(frame(0.5, 512)))

	// Quiet frames accumulate until silence exceeds the configured window.
	clk.advance(300 * time.Millisecond)
	require.False(t, det.ProcessFrame(frame(0, 512)))
	assert.Equal(t, vad.StateSpeaking, det.State())

	clk.advance(201 * time.Millisecond)
	assert.True(t, det.ProcessFrame(frame(0, 512)))
	assert.Equal(t, vad.StateProcessing, det.State())
	// All four frames were appended, trailing silence included.
	assert.Equal(t, 4*512, det.BufferLen())
	// Duration froze at the finalize instant.
	assert.Equal(t, 901*time.Millisecond, det.RecordingDuration())
}

func TestMaxDurationForcesFinalize(t *testing.T) {
	det, clk := newTestDetector(t, testConfig())

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	for i := 0; i < 9; i++ {
		clk.advance(500 * time.Millisecond)
		require.False(t, det.ProcessFrame(frame(0.5, 512)))
	}
	// Continuous loud input, but the cap still ends the utterance.
	clk.advance(600 * time.Millisecond)
	assert.True(t, det.ProcessFrame(frame(0.5, 512)))
	assert.Equal(t, vad.StateProcessing, det.State())
}

func TestShortBurstIsDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.SilenceDuration = 100 * time.Millisecond
	det, clk := newTestDetector(t, cfg)

	// 0.15s of speech, then silence: finalize fires but the utterance is
	// below MinSpeechDuration, so the signal is void.
	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(150 * time.Millisecond)
	assert.False(t, det.ProcessFrame(frame(0, 512)))
	assert.Equal(t, vad.StateProcessing, det.State())
}

func TestProcessingRestartDropsStaleBuffer(t *testing.T) {
	cfg := testConfig()
	det, clk := newTestDetector(t, cfg)

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(400 * time.Millisecond)
	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(501 * time.Millisecond)
	require.True(t, det.ProcessFrame(frame(0, 512)))
	require.Equal(t, vad.StateProcessing, det.State())
	staleLen := det.BufferLen()
	require.Greater(t, staleLen, 0)

	// New speech while processing: unconsumed audio is dropped, a fresh
	// utterance begins with only the new frame.
	clk.advance(100 * time.Millisecond)
	assert.False(t, det.ProcessFrame(frame(0.5, 512)))
	assert.Equal(t, vad.StateSpeaking, det.State())
	assert.Equal(t, 512, det.BufferLen())
	assert.Equal(t, time.Duration(0), det.RecordingDuration())
}

func TestProcessingTimesOutToIdle(t *testing.T) {
	det, clk := newTestDetector(t, testConfig())

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(400 * time.Millisecond)
	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(501 * time.Millisecond)
	require.True(t, det.ProcessFrame(frame(0, 512)))
	require.Equal(t, vad.StateProcessing, det.State())

	clk.advance(2100 * time.Millisecond)
	assert.False(t, det.ProcessFrame(frame(0, 512)))
	assert.Equal(t, vad.StateIdle, det.State())
	assert.Equal(t, 0, det.BufferLen())
}

func TestTakeBufferTransfersOwnership(t *testing.T) {
	det, clk := newTestDetector(t, testConfig())

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(100 * time.Millisecond)
	require.False(t, det.ProcessFrame(frame(0.5, 512)))

	buf := det.TakeBuffer()
	assert.Len(t, buf, 2*512)
	assert.Equal(t, 0, det.BufferLen())
	// Second take observes the empty buffer.
	assert.Nil(t, det.TakeBuffer())
}

func TestReset(t *testing.T) {
	det, clk := newTestDetector(t, testConfig())

	require.False(t, det.ProcessFrame(frame(0.5, 512)))
	clk.advance(time.Second)
	det.Reset()
	assert.Equal(t, vad.StateIdle, det.State())
	assert.Equal(t, 0, det.BufferLen())
	assert.Equal(t, time.Duration(0), det.RecordingDuration())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", vad.StateIdle.String())
	assert.Equal(t, "speaking", vad.StateSpeaking.String())
	assert.Equal(t, "processing", vad.StateProcessing.String())
}
