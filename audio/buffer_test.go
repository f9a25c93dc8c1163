package audio_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syf20020816/Gamate/audio"
)

func TestSampleBufferPushDrain(t *testing.T) {
	b := audio.NewSampleBuffer(64)
	assert.Nil(t, b.Drain())
	assert.Equal(t, 0, b.Len())

	b.Push([]float32{0.1, 0.2})
	b.Push([]float32{0.3})
	assert.Equal(t, 3, b.Len())

	got := b.Drain()
	require.Equal(t, []float32{0.1, 0.2, 0.3}, got)
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Drain())
}

func TestSampleBufferReset(t *testing.T) {
	b := audio.NewSampleBuffer(0)
	b.Push([]float32{1, 2, 3})
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Drain())
}

func TestSampleBufferConcurrentPush(t *testing.T) {
	b := audio.NewSampleBuffer(0)

	const (
		writers       = 8
		pushPerWriter = 200
	)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < pushPerWriter; i++ {
				b.Push([]float32{0.5, -0.5})
			}
		}()
	}

	// Drain concurrently with the writers; everything pushed must come out
	// exactly once across all drains.
	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		total += len(b.Drain())
		select {
		case <-done:
			total += len(b.Drain())
			assert.Equal(t, writers*pushPerWriter*2, total)
			return
		default:
		}
	}
}
