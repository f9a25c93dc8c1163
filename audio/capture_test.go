package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syf20020816/Gamate/audio"
)

func TestDecodeFramesF32(t *testing.T) {
	in := []float32{0.25, -0.75, 1.0}
	data := make([]byte, len(in)*4)
	for i, v := range in {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}

	out := audio.DecodeFrames(malgo.FormatF32, 1, data, len(in))
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-6)
	}
}

func TestDecodeFramesS16(t *testing.T) {
	vals := []int16{32767, -32768, 0, 16384}
	data := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}

	out := audio.DecodeFrames(malgo.FormatS16, 1, data, len(vals))
	require.Len(t, out, len(vals))
	assert.InDelta(t, 0.99997, out[0], 1e-4)
	assert.InDelta(t, -1.0, out[1], 1e-6)
	assert.InDelta(t, 0.0, out[2], 1e-6)
	assert.InDelta(t, 0.5, out[3], 1e-6)
}

func TestDecodeFramesU8(t *testing.T) {
	data := []byte{128, 255, 0}

	out := audio.DecodeFrames(malgo.FormatU8, 1, data, len(data))
	require.Len(t, out, 3)
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 0.992, out[1], 1e-3)
	assert.InDelta(t, -1.0, out[2], 1e-6)
}

func TestDecodeFramesStereoDownmix(t *testing.T) {
	// Two frames of L/R int16 pairs; output is the per-frame average.
	vals := []int16{16384, -16384, 16384, 16384}
	data := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}

	out := audio.DecodeFrames(malgo.FormatS16, 2, data, 2)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[1], 1e-6)
}

func TestDecodeFramesTruncatedInput(t *testing.T) {
	// Device claims 4 frames but only delivers bytes for 2.
	data := make([]byte, 4)
	out := audio.DecodeFrames(malgo.FormatS16, 1, data, 4)
	assert.Len(t, out, 2)
}
