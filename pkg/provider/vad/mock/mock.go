// Package mock provides a scripted vad.Engine for tests.
package mock

import (
	"sync"

	"github.com/voicefuture/duplex/pkg/provider/vad"
)

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine hands out sessions that replay a scripted score sequence.
type Engine struct {
	// Scores is the sequence returned by successive Score calls. Once
	// exhausted, Score keeps returning the last value (or 0 if empty).
	Scores []float64

	// Err, when non-nil, is returned by every Score call.
	Err error
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(vad.Config) (vad.SessionHandle, error) {
	return &Session{scores: e.Scores, err: e.Err}, nil
}

// Session replays scripted scores and records lifecycle calls.
type Session struct {
	mu     sync.Mutex
	scores []float64
	next   int
	err    error

	resets int
	closed bool
}

// Score implements vad.SessionHandle.
func (s *Session) Score(_ []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if len(s.scores) == 0 {
		return 0, nil
	}
	if s.next >= len(s.scores) {
		return s.scores[len(s.scores)-1], nil
	}
	v := s.scores[s.next]
	s.next++
	return v, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Resets returns how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
