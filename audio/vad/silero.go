package vad

import (
	"errors"
	"fmt"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroChunkSamples   = 512
	sileroContextSamples = 64
	sileroInputSamples   = sileroContextSamples + sileroChunkSamples
	sileroStateSize      = 2 * 1 * 128
	sileroSampleRate     = 16000
	sileroResetInterval  = 5 * time.Second
)

// SileroGate classifies frames with the Silero VAD ONNX model instead of
// raw energy. It accepts frames of any length and windows them into the
// 512-sample chunks the model wants; input must be mono 16 kHz. The gate is
// optional equipment: the detector defaults to the energy gate and only
// carries a model when the caller configured one.
//
// Not safe for concurrent use; the detector's caller serializes access.
type SileroGate struct {
	threshold float32

	session  *ort.AdvancedSession
	input    *ort.Tensor[float32] // (1, 576)
	state    *ort.Tensor[float32] // (2, 1, 128)
	sr       *ort.Tensor[int64]   // (1,) = 16000
	output   *ort.Tensor[float32] // (1, 1) speech prob
	stateOut *ort.Tensor[float32] // (2, 1, 128) new state

	context   [sileroContextSamples]float32
	pending   []float32
	lastProb  float32
	lastReset time.Time
}

// NewSileroGate loads the Silero VAD model. A bundled onnxruntime shared
// library next to the binary is picked up automatically; otherwise call
// ort.SetSharedLibraryPath first.
func NewSileroGate(modelPath string, threshold float32) (*SileroGate, error) {
	if modelPath == "" {
		return nil, errors.New("vad: silero model path is required")
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, errors.New("vad: silero threshold must be in (0, 1)")
	}
	if !ort.IsInitialized() {
		if lib := resolveRuntimeLib(candidateBaseDirs()); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("vad: init onnxruntime: %w", err)
		}
	}

	input, err := ort.NewTensor(ort.NewShape(1, sileroInputSamples), make([]float32, sileroInputSamples))
	if err != nil {
		return nil, err
	}
	state, err := ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, sileroStateSize))
	if err != nil {
		_ = input.Destroy()
		return nil, err
	}
	sr, err := ort.NewTensor(ort.NewShape(1), []int64{sileroSampleRate})
	if err != nil {
		_ = input.Destroy()
		_ = state.Destroy()
		return nil, err
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		_ = input.Destroy()
		_ = state.Destroy()
		_ = sr.Destroy()
		return nil, err
	}
	stateOut, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		_ = input.Destroy()
		_ = state.Destroy()
		_ = sr.Destroy()
		_ = output.Destroy()
		return nil, err
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{input, state, sr},
		[]ort.Value{output, stateOut},
		nil)
	if err != nil {
		_ = input.Destroy()
		_ = state.Destroy()
		_ = sr.Destroy()
		_ = output.Destroy()
		_ = stateOut.Destroy()
		return nil, fmt.Errorf("vad: load silero model: %w", err)
	}

	return &SileroGate{
		threshold: threshold,
		session:   sess,
		input:     input,
		state:     state,
		sr:        sr,
		output:    output,
		stateOut:  stateOut,
		lastReset: time.Now(),
	}, nil
}

// Active reports whether the frame contains speech. Frames shorter than one
// model chunk are carried over; until a full chunk accumulates the previous
// verdict is reused.
func (g *SileroGate) Active(frame []float32) (bool, error) {
	g.pending = append(g.pending, frame...)

	// Keep the loudest verdict of the frame so a frame that is part speech,
	// part silence still refreshes the voice timer.
	ran := false
	var maxProb float32
	for len(g.pending) >= sileroChunkSamples {
		prob, err := g.runChunk(g.pending[:sileroChunkSamples])
		if err != nil {
			return false, err
		}
		if !ran || prob > maxProb {
			maxProb = prob
		}
		ran = true
		g.pending = g.pending[sileroChunkSamples:]
	}
	if ran {
		g.lastProb = maxProb
	}

	return g.lastProb > g.threshold, nil
}

func (g *SileroGate) runChunk(chunk []float32) (float32, error) {
	if time.Since(g.lastReset) >= sileroResetInterval {
		g.resetModelState()
	}

	in := g.input.GetData()
	copy(in[:sileroContextSamples], g.context[:])
	copy(in[sileroContextSamples:], chunk)
	copy(g.context[:], in[sileroInputSamples-sileroContextSamples:])

	if err := g.session.Run(); err != nil {
		return 0, fmt.Errorf("vad: silero inference: %w", err)
	}
	copy(g.state.GetData(), g.stateOut.GetData())
	return g.output.GetData()[0], nil
}

func (g *SileroGate) resetModelState() {
	for i := range g.context {
		g.context[i] = 0
	}
	g.state.ZeroContents()
	g.lastReset = time.Now()
}

// Reset clears model state and any carried-over samples.
func (g *SileroGate) Reset() {
	g.resetModelState()
	g.pending = nil
	g.lastProb = 0
}

// Close releases the ONNX session. The gate must not be used afterwards.
func (g *SileroGate) Close() error {
	return g.session.Destroy()
}
