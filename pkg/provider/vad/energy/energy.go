// Package energy implements a stateless RMS-energy voice activity detector.
// It maps the root-mean-square amplitude of each frame onto [0, 1] against a
// configurable full-scale reference, which is adequate for close-mic audio
// and needs no model files.
package energy

import (
	"fmt"
	"math"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/vad"
)

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// defaultReference is the RMS amplitude treated as score 1.0. Normal speech
// on a close mic peaks well below int16 full scale.
const defaultReference = 8000.0

// Engine creates RMS-based scoring sessions.
type Engine struct {
	reference float64
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithReference sets the RMS amplitude mapped to score 1.0.
func WithReference(ref float64) Option {
	return func(e *Engine) { e.reference = ref }
}

// New creates an RMS energy Engine.
func New(opts ...Option) *Engine {
	e := &Engine{reference: defaultReference}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSamples <= 0 {
		return nil, fmt.Errorf("energy: invalid config %+v", cfg)
	}
	return &session{frameBytes: cfg.FrameBytes(), reference: e.reference}, nil
}

type session struct {
	frameBytes int
	reference  float64
}

// Score implements vad.SessionHandle.
func (s *session) Score(frame []byte) (float64, error) {
	if len(frame) != s.frameBytes {
		return 0, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	samples := audio.BytesToInt16s(frame)
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	score := rms / s.reference
	if score > 1 {
		score = 1
	}
	return score, nil
}

// Reset implements vad.SessionHandle. The detector is stateless.
func (s *session) Reset() {}

// Close implements vad.SessionHandle.
func (s *session) Close() error { return nil }
