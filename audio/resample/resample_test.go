package resample_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syf20020816/Gamate/audio/resample"
)

func sine(freq float64, rate, n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func decodePCM16(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32767.0
	}
	return out
}

func TestSameRateIsPureQuantization(t *testing.T) {
	in := sine(440, resample.TargetRate, 320, 0.5)

	pcm, err := resample.ToPCM16(in, resample.TargetRate)
	require.NoError(t, err)
	// Two bytes per input sample, nothing added or dropped.
	require.Len(t, pcm, 2*len(in))

	got := decodePCM16(pcm)
	for i := range in {
		assert.InDelta(t, in[i], got[i], 2.0/32767.0)
	}
}

func TestSameRateClampsOutOfRange(t *testing.T) {
	pcm, err := resample.ToPCM16([]float32{1.5, -1.5}, resample.TargetRate)
	require.NoError(t, err)
	require.Len(t, pcm, 4)
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(pcm[0:])))
	assert.Equal(t, int16(-32767), int16(binary.LittleEndian.Uint16(pcm[2:])))
}

func TestSameRateEmptyInput(t *testing.T) {
	pcm, err := resample.ToPCM16(nil, resample.TargetRate)
	require.NoError(t, err)
	assert.Empty(t, pcm)
}

func TestUpsample8kTo16k(t *testing.T) {
	// One second at 8 kHz should come out near two seconds' worth of
	// samples at 16 kHz; filter edges may shave a little off.
	in := sine(200, 8000, 8000, 0.5)

	pcm, err := resample.ToPCM16(in, 8000)
	require.NoError(t, err)

	outSamples := len(pcm) / 2
	assert.InEpsilon(t, 2*len(in), outSamples, 0.05)
}

func TestDownsample48kTo16k(t *testing.T) {
	in := sine(200, 48000, 48000, 0.5)

	pcm, err := resample.ToPCM16(in, 48000)
	require.NoError(t, err)

	outSamples := len(pcm) / 2
	assert.InEpsilon(t, len(in)/3, outSamples, 0.05)
}

func TestInvalidRate(t *testing.T) {
	_, err := resample.ToPCM16([]float32{0.1}, 0)
	assert.Error(t, err)
	_, err = resample.ToPCM16([]float32{0.1}, -8000)
	assert.Error(t, err)
}
