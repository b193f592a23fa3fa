// Package openai provides a tts.Synthesizer backed by the OpenAI speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/tts"
)

// Compile-time assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const defaultVoice = "alloy"

// Synthesizer implements tts.Synthesizer using the OpenAI speech endpoint.
// Output is requested as WAV so the playback layer can read the true
// duration from the header.
type Synthesizer struct {
	client oai.Client
	model  string
	voice  string
}

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithVoice sets the voice name (alloy, echo, fable, onyx, nova, shimmer).
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Synthesizer. model defaults to tts-1 when empty.
func New(apiKey string, model string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.SpeechModelTTS1)
	}

	cfg := &config{voice: defaultVoice}
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

	return &Synthesizer{
		client: oai.NewClient(reqOpts...),
		model:  model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Synthesis, error) {
	if text == "" {
		return tts.Synthesis{}, fmt.Errorf("openai: text must not be empty")
	}

	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(s.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("openai: read speech body: %w", err)
	}

	return tts.Synthesis{Audio: payload, Format: audio.FormatWAV}, nil
}
