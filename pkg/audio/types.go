// Package audio defines the core audio data types shared by every stage of
// the duplex pipeline: fixed-size PCM frames, utterance clips assembled from
// them, and the payload formats synthesized audio may arrive in.
//
// All PCM in this package is 16-bit little-endian signed mono unless a
// function documents otherwise.
package audio

import "time"

// BytesPerSample is the size of one PCM sample (16-bit signed).
const BytesPerSample = 2

// Frame is one fixed-size chunk of captured PCM audio.
//
// Timestamp is the capture time relative to the start of the session, derived
// from the frame's position in the stream (frame index * frame duration), so
// it is monotonic and immune to scheduling jitter.
type Frame struct {
	// Data is raw 16-bit little-endian signed mono PCM.
	Data []byte

	// SampleRate is the sample rate of Data in Hz.
	SampleRate int

	// Timestamp is the capture offset from session start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(f.Data) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Clip is a contiguous run of frames forming one speech segment, ordered by
// capture time. A zero-frame Clip means the segment was discarded (too short
// to be usable speech).
type Clip struct {
	Frames     []Frame
	SampleRate int
}

// Empty reports whether the clip holds no audio.
func (c Clip) Empty() bool { return len(c.Frames) == 0 }

// PCM concatenates the frames into a single PCM buffer.
func (c Clip) PCM() []byte {
	n := 0
	for _, f := range c.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range c.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// Duration returns the total playback duration of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	n := 0
	for _, f := range c.Frames {
		n += len(f.Data)
	}
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Start returns the timestamp of the first frame, or 0 for an empty clip.
func (c Clip) Start() time.Duration {
	if len(c.Frames) == 0 {
		return 0
	}
	return c.Frames[0].Timestamp
}

// PayloadFormat identifies the container/codec of a synthesized audio payload.
type PayloadFormat string

const (
	// FormatWAV is a RIFF/WAVE container with 16-bit PCM data.
	FormatWAV PayloadFormat = "wav"

	// FormatMP3 is an MPEG-1 layer III stream.
	FormatMP3 PayloadFormat = "mp3"

	// FormatPCM is headerless 16-bit little-endian signed mono PCM.
	FormatPCM PayloadFormat = "pcm"
)

// MIME returns the MIME type for the format.
func (f PayloadFormat) MIME() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatPCM:
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
