// Package tts defines the text-to-speech provider interface.
//
// Synthesis is utterance-based: the pipeline hands over one complete reply
// and receives the full audio payload back, tagged with its format so the
// playback layer can estimate duration.
package tts

import (
	"context"

	"github.com/voicefuture/duplex/pkg/audio"
)

// Synthesis is one synthesized reply.
type Synthesis struct {
	// Audio is the encoded payload.
	Audio []byte

	// Format identifies the payload encoding.
	Format audio.PayloadFormat

	// SampleRate of the payload for headerless formats, 0 when the format
	// carries its own header.
	SampleRate int
}

// Synthesizer converts reply text to audio. Implementations must be safe for
// concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Synthesis, error)
}
