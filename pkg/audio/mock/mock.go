// Package mock provides scripted in-memory implementations of audio.Source
// and audio.Sink for tests.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/voicefuture/duplex/pkg/audio"
)

// Compile-time assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)

// Source replays a fixed list of frames, then returns io.EOF.
type Source struct {
	mu      sync.Mutex
	frames  []audio.Frame
	next    int
	stopped bool
}

// NewSource creates a Source that will deliver the given frames in order.
func NewSource(frames []audio.Frame) *Source {
	return &Source{frames: frames}
}

// NextFrame implements audio.Source.
func (s *Source) NextFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.next >= len(s.frames) {
		return audio.Frame{}, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

// Stop implements audio.Source.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// Played records one Play call made against a Sink.
type Played struct {
	Payload []byte
	Format  audio.PayloadFormat
}

// Sink records playback calls and exposes them for assertions.
type Sink struct {
	mu      sync.Mutex
	playing bool
	played  []Played
	stops   int

	// PlayErr, when non-nil, is returned by Play.
	PlayErr error
}

// NewSink creates an idle Sink.
func NewSink() *Sink { return &Sink{} }

// Play implements audio.Sink.
func (s *Sink) Play(_ context.Context, payload []byte, format audio.PayloadFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlayErr != nil {
		return s.PlayErr
	}
	s.playing = true
	s.played = append(s.played, Played{Payload: payload, Format: format})
	return nil
}

// StopPlayback implements audio.Sink.
func (s *Sink) StopPlayback(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.stops++
	}
	s.playing = false
	return nil
}

// IsPlaying implements audio.Sink.
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Finish marks the current playback as naturally complete.
func (s *Sink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

// PlayedPayloads returns a copy of everything played so far.
func (s *Sink) PlayedPayloads() []Played {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Played, len(s.played))
	copy(out, s.played)
	return out
}

// StopCount returns how many times an active playback was aborted.
func (s *Sink) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
