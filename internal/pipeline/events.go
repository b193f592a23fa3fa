// Package pipeline orchestrates one full-duplex voice session: capture,
// segmentation, recognition, response generation, synthesis, and
// interruption-aware playback.
package pipeline

import (
	"sync"
	"time"
)

// EventType identifies a pipeline event.
type EventType int

const (
	// EventSpeechStarted fires when the segmenter detects speech onset.
	EventSpeechStarted EventType = iota

	// EventSpeechEnded fires when an utterance completes.
	EventSpeechEnded

	// EventTranscript carries a final transcript in Text.
	EventTranscript

	// EventResponse carries the assistant's reply text. It fires even when
	// synthesis fails, so transports can fall back to showing text.
	EventResponse

	// EventPlaybackInterrupted fires when barge-in aborts playback.
	EventPlaybackInterrupted

	// EventSessionEnded fires once, when the conversation terminates.
	// Payload carries the model's end-of-conversation JSON, if any.
	EventSessionEnded
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechEnded:
		return "speech_ended"
	case EventTranscript:
		return "transcript"
	case EventResponse:
		return "response"
	case EventPlaybackInterrupted:
		return "playback_interrupted"
	case EventSessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}

// Event is one observable pipeline occurrence.
type Event struct {
	Type    EventType
	Text    string
	Payload string
	At      time.Time
}

// Notifier fans events out to subscribers. Publishing never blocks; a
// subscriber that falls behind loses events rather than stalling the
// pipeline.
type Notifier struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// Subscribe registers a new subscriber with the given channel buffer. The
// channel is closed when the notifier closes.
func (n *Notifier) Subscribe(buf int) <-chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Event, buf)
	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber that has buffer space.
func (n *Notifier) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}
