// Package mock provides a scripted tts.Synthesizer for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/tts"
)

// Compile-time assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer returns a fixed payload for every input and records the texts
// it was asked to speak.
type Synthesizer struct {
	// Payload is returned from every Synthesize call. When nil, a short
	// silent PCM payload is returned instead.
	Payload []byte

	// Format of the payload. Defaults to raw PCM.
	Format audio.PayloadFormat

	// Err, when non-nil, is returned by every Synthesize call.
	Err error

	mu    sync.Mutex
	texts []string
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return tts.Synthesis{}, err
	}
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.Err != nil {
		return tts.Synthesis{}, s.Err
	}

	payload := s.Payload
	if payload == nil {
		payload = make([]byte, 320) // 10ms of silence at 16 kHz
	}
	format := s.Format
	if format == "" {
		format = audio.FormatPCM
	}
	return tts.Synthesis{Audio: payload, Format: format, SampleRate: 16000}, nil
}

// Texts returns a copy of every synthesized text so far.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}
