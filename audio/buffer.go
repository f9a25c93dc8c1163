package audio

import "sync"

// SampleBuffer accumulates normalized mono samples between the capture
// callback and the polling consumer. Push runs on the realtime device
// thread and must stay cheap: it only appends under a short-held lock.
// The buffer is unbounded; a slow consumer grows it until the next Drain.
type SampleBuffer struct {
	mu      sync.Mutex
	samples []float32
}

// NewSampleBuffer creates a buffer with room for capacity samples before
// the first reallocation.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &SampleBuffer{samples: make([]float32, 0, capacity)}
}

// Push appends one frame of samples. Safe to call concurrently with Drain.
func (b *SampleBuffer) Push(frame []float32) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, frame...)
	b.mu.Unlock()
}

// Drain swaps out and returns everything accumulated so far, leaving the
// buffer empty. Returns nil when nothing is buffered.
func (b *SampleBuffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return nil
	}
	out := b.samples
	b.samples = make([]float32, 0, cap(out))
	return out
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Reset discards any buffered samples.
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	b.samples = b.samples[:0]
	b.mu.Unlock()
}
