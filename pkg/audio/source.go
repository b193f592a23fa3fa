package audio

import "context"

// Source delivers captured audio frames, one fixed-size frame at a time.
// Implementations include the WebSocket transport and the test mock.
type Source interface {
	// NextFrame blocks until the next frame is available or ctx is done.
	// It returns io.EOF when the stream has ended normally.
	NextFrame(ctx context.Context) (Frame, error)

	// Stop terminates capture. After Stop, NextFrame returns io.EOF once any
	// already-buffered frames are drained.
	Stop() error
}

// Sink plays synthesized audio back to the remote party.
type Sink interface {
	// Play starts playback of the payload. It returns once playback has been
	// handed off to the transport; it does not wait for playback to finish.
	Play(ctx context.Context, payload []byte, format PayloadFormat) error

	// StopPlayback aborts any in-flight playback. It is a no-op when nothing
	// is playing.
	StopPlayback(ctx context.Context) error

	// IsPlaying reports whether the sink believes playback is in progress.
	IsPlaying() bool
}
