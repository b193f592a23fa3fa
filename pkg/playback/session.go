// Package playback plays synthesized audio through a sink while watching for
// the user to barge in. Sustained speech during playback aborts it; brief
// noise does not.
package playback

import (
	"sync"
	"time"
)

// SessionState describes how a playback session concluded (or that it has
// not yet).
type SessionState int

const (
	// StatePlaying means audio is still being played.
	StatePlaying SessionState = iota

	// StateFinished means playback ran to natural completion.
	StateFinished

	// StateInterrupted means playback was aborted, either by barge-in or by
	// an explicit Stop.
	StateInterrupted
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Session tracks one playback from start to completion or interruption.
type Session struct {
	duration time.Duration

	mu    sync.Mutex
	state SessionState
	done  chan struct{}
}

func newSession(duration time.Duration) *Session {
	return &Session{duration: duration, done: make(chan struct{})}
}

// Done returns a channel closed once playback has finished or been
// interrupted.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Duration returns the estimated playback duration of the payload.
func (s *Session) Duration() time.Duration { return s.duration }

// finish moves the session to a terminal state. Only the first call wins.
func (s *Session) finish(state SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return false
	}
	s.state = state
	close(s.done)
	return true
}
