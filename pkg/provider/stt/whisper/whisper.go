// Package whisper provides an stt.Recognizer backed by the whisper.cpp CGO
// bindings, running inference locally with no network round trip. The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/stt"
)

// Compile-time assertion.
var _ stt.Recognizer = (*Recognizer)(nil)

const defaultLanguage = "en"

// Recognizer implements stt.Recognizer with a locally loaded whisper.cpp
// model. The model is loaded once and shared; each Transcribe call creates
// its own inference context, so concurrent calls are safe.
type Recognizer struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the recognizer is no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Transcribe implements stt.Recognizer.
func (r *Recognizer) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if clip.Empty() {
		return "", nil
	}

	samples := pcmToFloat32(clip.PCM())

	// Contexts are not thread-safe, but the shared model is; use a fresh
	// context per call.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", r.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// pcmToFloat32 converts 16-bit little-endian mono PCM to normalized float32
// samples as whisper.cpp expects.
func pcmToFloat32(pcm []byte) []float32 {
	samples := audio.BytesToInt16s(pcm)
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 32768.0
	}
	return out
}
