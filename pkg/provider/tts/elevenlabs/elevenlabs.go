// Package elevenlabs provides a tts.Synthesizer backed by the ElevenLabs
// text-to-speech HTTP API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/tts"
)

// Compile-time assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	ttsEndpointFmt   = "https://api.elevenlabs.io/v1/text-to-speech/%s?output_format=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = model }
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000",
// "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// WithHTTPClient overrides the HTTP client, e.g. to set a timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Synthesizer) { s.httpClient = client }
}

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs API.
type Synthesizer struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// New creates a Synthesizer speaking with the given voice. apiKey and
// voiceID must be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ttsRequest is the JSON payload sent to ElevenLabs.
type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Synthesis, error) {
	if text == "" {
		return tts.Synthesis{}, errors.New("elevenlabs: text must not be empty")
	}

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: s.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := fmt.Sprintf(ttsEndpointFmt, s.voiceID, s.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return tts.Synthesis{}, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, msg)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Synthesis{}, fmt.Errorf("elevenlabs: read body: %w", err)
	}

	format, rate := outputFormatInfo(s.outputFormat)
	return tts.Synthesis{Audio: payload, Format: format, SampleRate: rate}, nil
}

// outputFormatInfo maps an ElevenLabs output_format string to the payload
// format and, for headerless PCM, its sample rate.
func outputFormatInfo(outputFormat string) (audio.PayloadFormat, int) {
	switch {
	case strings.HasPrefix(outputFormat, "pcm_"):
		rate := 16000
		fmt.Sscanf(outputFormat, "pcm_%d", &rate)
		return audio.FormatPCM, rate
	case strings.HasPrefix(outputFormat, "mp3_"):
		return audio.FormatMP3, 0
	default:
		return audio.FormatPCM, 16000
	}
}
