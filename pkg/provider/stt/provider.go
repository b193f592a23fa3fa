// Package stt defines the speech-to-text provider interface.
//
// Recognition is clip-based: the segmenter hands over one complete utterance
// at a time and the recognizer returns its transcript in a single call.
package stt

import (
	"context"
	"errors"

	"github.com/voicefuture/duplex/pkg/audio"
)

// ErrNoSpeech is returned when the recognizer processed the clip successfully
// but found no usable speech in it. Callers typically treat it like an empty
// transcript rather than a failure.
var ErrNoSpeech = errors.New("stt: no usable speech in clip")

// Recognizer transcribes one utterance clip. Implementations must be safe
// for concurrent use.
type Recognizer interface {
	// Transcribe returns the transcript of the clip. An empty string with a
	// nil error, or ErrNoSpeech, both mean the clip held no usable speech.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
