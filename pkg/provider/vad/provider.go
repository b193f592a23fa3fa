// Package vad defines the voice-activity-detection provider interface.
//
// A VAD engine scores individual PCM frames with a speech probability in
// [0, 1]. The segmenter compares scores against a configurable threshold; the
// engine itself never makes the speech/silence decision.
package vad

import "time"

// Config describes the audio a session will be asked to score.
type Config struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// FrameSamples is the exact number of samples per frame. Sessions may
	// reject frames of any other size.
	FrameSamples int
}

// FrameBytes returns the expected byte length of one frame.
func (c Config) FrameBytes() int { return c.FrameSamples * 2 }

// FrameDuration returns the wall-clock duration of one frame.
func (c Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSamples) * time.Second / time.Duration(c.SampleRate)
}

// Engine creates scoring sessions. Engines are safe for concurrent use;
// individual sessions are not.
type Engine interface {
	// NewSession prepares a scoring session for streams matching cfg.
	NewSession(cfg Config) (SessionHandle, error)
}

// SessionHandle scores one audio stream frame by frame. Stateful engines
// (model-based detectors) carry context between calls, so frames must be
// delivered in capture order.
type SessionHandle interface {
	// Score returns the speech probability of one frame in [0, 1]. The frame
	// must be 16-bit little-endian mono PCM of exactly Config.FrameBytes()
	// bytes.
	Score(frame []byte) (float64, error)

	// Reset clears any cross-frame state, e.g. between utterances.
	Reset()

	// Close releases session resources.
	Close() error
}
