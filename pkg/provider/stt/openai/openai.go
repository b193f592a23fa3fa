// Package openai provides an stt.Recognizer backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/stt"
)

// Compile-time assertion.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements stt.Recognizer using the OpenAI transcription
// endpoint. Clips are encoded as WAV and uploaded per utterance.
type Recognizer struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the recognizer.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to point at a
// local Whisper-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the ISO-639-1 language hint for transcription.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Recognizer. model defaults to whisper-1 when empty.
func New(apiKey string, model string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Recognizer{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Recognizer.
func (r *Recognizer) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", nil
	}

	wav := audio.EncodeWAV(clip.PCM(), clip.SampleRate, 1)
	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(r.model),
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
	}
	if r.language != "" {
		params.Language = oai.String(r.language)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	return text, nil
}
