// Package resample converts captured audio to the fixed 16 kHz 16-bit
// little-endian PCM the transcription service expects.
package resample

import (
	"encoding/binary"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// TargetRate is the output rate in Hz. The downstream speech-to-text
// contract is fixed at 16 kHz regardless of the capture device's rate.
const TargetRate = 16000

// ToPCM16 converts mono normalized samples captured at fromRate into
// 16-bit little-endian PCM at TargetRate.
//
// When fromRate already matches the target the samples are quantized
// directly with no filtering. Otherwise the whole batch runs through a
// band-limited sinc resampler; construction or processing failures are
// returned as errors, never as a silently empty result.
func ToPCM16(samples []float32, fromRate int) ([]byte, error) {
	if fromRate <= 0 {
		return nil, fmt.Errorf("resample: invalid source rate %d Hz", fromRate)
	}
	if fromRate == TargetRate {
		return quantize32(samples), nil
	}

	cfg := &resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(TargetRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	r, err := resampling.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("resample: create %d -> %d Hz resampler: %w", fromRate, TargetRate, err)
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %d -> %d Hz: %w", fromRate, TargetRate, err)
	}
	return quantize64(out), nil
}

// quantize32 clamps samples to [-1, 1] and emits 16-bit little-endian PCM.
func quantize32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(float64(s))))
	}
	return out
}

func quantize64(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(s)))
	}
	return out
}

func clamp16(s float64) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}
