package listen

import "time"

// Event is a one-way notification pushed to the application layer. Emission
// never blocks the capture or polling threads: when the sink channel is
// full the event is dropped and counted. Ordering is FIFO within a session.
type Event interface {
	isEvent()
}

// SpeechStarted signals a detected speech onset.
type SpeechStarted struct{}

// SpeechEnded signals the end of a speech segment. Duration covers onset to
// finalize, trailing silence included.
type SpeechEnded struct {
	Duration time.Duration
}

// UtteranceReady carries one finalized utterance, resampled and quantized
// for the downstream transcription service. The caller forwards PCM as-is;
// this core never talks to the service itself.
type UtteranceReady struct {
	PCM        []byte // 16-bit little-endian mono
	SampleRate int    // always resample.TargetRate
	Duration   time.Duration
}

// RecognitionError reports a per-utterance fault (resample failure, device
// fault). The session stays alive; the user-visible effect is a missing
// transcription.
type RecognitionError struct {
	Message string
}

func (SpeechStarted) isEvent()    {}
func (SpeechEnded) isEvent()      {}
func (UtteranceReady) isEvent()   {}
func (RecognitionError) isEvent() {}
