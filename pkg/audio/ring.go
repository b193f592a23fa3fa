package audio

import (
	"sync"
	"time"
)

// Ring is a fixed-capacity circular buffer of frames. Once full, each append
// overwrites the oldest frame. It is safe for one writer and any number of
// readers.
//
// Capacity should be sized so the buffer spans at least the maximum utterance
// duration plus pre-roll; RingCapacity computes that from the stream
// parameters.
type Ring struct {
	mu     sync.Mutex
	frames []Frame
	head   int // index of the next write slot
	size   int // number of valid frames, <= len(frames)
}

// RingCapacity returns the frame count needed to hold maxUtterance plus one
// extra second of audio at the given stream parameters.
func RingCapacity(sampleRate, frameSamples int, maxUtterance time.Duration) int {
	if sampleRate <= 0 || frameSamples <= 0 {
		return 0
	}
	framesPerSecond := float64(sampleRate) / float64(frameSamples)
	seconds := maxUtterance.Seconds() + 1
	return int(framesPerSecond*seconds) + 1
}

// NewRing creates a Ring holding at most capacity frames.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{frames: make([]Frame, capacity)}
}

// Append stores a frame, overwriting the oldest one when full.
func (r *Ring) Append(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)
	if r.size < len(r.frames) {
		r.size++
	}
}

// Latest returns the most recently appended frame. ok is false when the
// buffer is empty.
func (r *Ring) Latest() (f Frame, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return Frame{}, false
	}
	idx := (r.head - 1 + len(r.frames)) % len(r.frames)
	return r.frames[idx], true
}

// SnapshotRange copies out, in capture order, every buffered frame whose
// timestamp lies in [from, to]. Frames that have already been overwritten are
// silently absent; a negative from clamps to zero coverage naturally since
// timestamps are non-negative.
func (r *Ring) SnapshotRange(from, to time.Duration) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Frame, 0, r.size)
	start := (r.head - r.size + len(r.frames)) % len(r.frames)
	for i := 0; i < r.size; i++ {
		f := r.frames[(start+i)%len(r.frames)]
		if f.Timestamp < from {
			continue
		}
		if f.Timestamp > to {
			break
		}
		out = append(out, f)
	}
	return out
}

// Len returns the number of frames currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity of the buffer.
func (r *Ring) Cap() int { return len(r.frames) }
