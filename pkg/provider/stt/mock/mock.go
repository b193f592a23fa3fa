// Package mock provides a scripted stt.Recognizer for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/stt"
)

// Compile-time assertion.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer replays scripted transcripts in order. Once exhausted it keeps
// returning the last one.
type Recognizer struct {
	// Transcripts is the sequence returned by successive Transcribe calls.
	Transcripts []string

	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	mu    sync.Mutex
	calls int
	clips []audio.Clip
}

// Transcribe implements stt.Recognizer.
func (r *Recognizer) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.clips = append(r.clips, clip)
	if r.Err != nil {
		return "", r.Err
	}
	if len(r.Transcripts) == 0 {
		return "", nil
	}
	idx := r.calls - 1
	if idx >= len(r.Transcripts) {
		idx = len(r.Transcripts) - 1
	}
	return r.Transcripts[idx], nil
}

// Calls returns how many times Transcribe was invoked.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Clips returns a copy of every clip passed to Transcribe.
func (r *Recognizer) Clips() []audio.Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audio.Clip, len(r.clips))
	copy(out, r.clips)
	return out
}
