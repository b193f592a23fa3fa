// Package config provides the configuration schema and loader for the duplex
// voice pipeline server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists origin patterns permitted to open WebSocket
	// sessions (e.g., "localhost:5173"). Empty allows same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AudioConfig describes the capture stream every session must deliver.
type AudioConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSamples is the exact sample count per frame. Default 512.
	FrameSamples int `yaml:"frame_samples"`
}

// SegmenterConfig holds the speech segmentation thresholds.
type SegmenterConfig struct {
	// Threshold is the minimum VAD score treated as speech. Default 0.3.
	Threshold float64 `yaml:"threshold"`

	// SilenceTimeoutMS ends an utterance after this much continuous silence.
	// Default 1000.
	SilenceTimeoutMS int `yaml:"silence_timeout_ms"`

	// MaxUtteranceMS force-ends an utterance at this duration. Default 15000.
	MaxUtteranceMS int `yaml:"max_utterance_ms"`

	// MinSpeechFrames discards utterances with fewer speech-scored frames.
	// Default 6.
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// PreRollMS is the audio included before detected speech start. Default
	// 500.
	PreRollMS int `yaml:"pre_roll_ms"`

	// PollIntervalMS is how often the ring buffer is checked for a new
	// frame. Must stay under one frame duration. Default 10.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// InterimSilenceMS, when positive, emits one interim clip per utterance
	// after a pause of this length. Default 0 (disabled).
	InterimSilenceMS int `yaml:"interim_silence_ms"`
}

// PlaybackConfig holds the barge-in parameters.
type PlaybackConfig struct {
	// WatchIntervalMS is the speech polling cadence during playback.
	// Default 100.
	WatchIntervalMS int `yaml:"watch_interval_ms"`

	// InterruptionDelayMS is the sustained-speech debounce before playback
	// aborts. Default 1000.
	InterruptionDelayMS int `yaml:"interruption_delay_ms"`
}

// PipelineConfig holds conversation-level settings.
type PipelineConfig struct {
	// SystemPrompt is injected as the responder's system message.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting, when set, is spoken before the first user turn instead of a
	// model-generated opening.
	Greeting string `yaml:"greeting"`

	// FallbackPrompt is spoken when recognition yields nothing usable.
	// Default "Sorry, I didn't catch that. Could you repeat it?".
	FallbackPrompt string `yaml:"fallback_prompt"`

	// EndPhrases end the session when matched in a final transcript.
	EndPhrases []string `yaml:"end_phrases"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	VAD ProviderEntry `yaml:"vad"`
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai",
	// "elevenlabs", "energy").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Leave empty to
	// use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "whisper-1", a whisper.cpp model path).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (voice IDs, languages, output formats).
	Options map[string]string `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Fallbacks of fallbacks are ignored.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Option returns the named provider option or def when unset.
func (e ProviderEntry) Option(key, def string) string {
	if v, ok := e.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// defaults fills zero fields with the documented default values.
func (c *Config) defaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameSamples == 0 {
		c.Audio.FrameSamples = 512
	}
	if c.Segmenter.Threshold == 0 {
		c.Segmenter.Threshold = 0.3
	}
	if c.Segmenter.SilenceTimeoutMS == 0 {
		c.Segmenter.SilenceTimeoutMS = 1000
	}
	if c.Segmenter.MaxUtteranceMS == 0 {
		c.Segmenter.MaxUtteranceMS = 15000
	}
	if c.Segmenter.MinSpeechFrames == 0 {
		c.Segmenter.MinSpeechFrames = 6
	}
	if c.Segmenter.PreRollMS == 0 {
		c.Segmenter.PreRollMS = 500
	}
	if c.Segmenter.PollIntervalMS == 0 {
		c.Segmenter.PollIntervalMS = 10
	}
	if c.Playback.WatchIntervalMS == 0 {
		c.Playback.WatchIntervalMS = 100
	}
	if c.Playback.InterruptionDelayMS == 0 {
		c.Playback.InterruptionDelayMS = 1000
	}
	if c.Pipeline.FallbackPrompt == "" {
		c.Pipeline.FallbackPrompt = "Sorry, I didn't catch that. Could you repeat it?"
	}
}

// SilenceTimeout returns the segmenter silence timeout as a duration.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.Segmenter.SilenceTimeoutMS) * time.Millisecond
}

// MaxUtterance returns the utterance cap as a duration.
func (c *Config) MaxUtterance() time.Duration {
	return time.Duration(c.Segmenter.MaxUtteranceMS) * time.Millisecond
}

// PreRoll returns the pre-roll span as a duration.
func (c *Config) PreRoll() time.Duration {
	return time.Duration(c.Segmenter.PreRollMS) * time.Millisecond
}

// PollInterval returns the segmenter's ring polling cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Segmenter.PollIntervalMS) * time.Millisecond
}

// InterimSilence returns the interim pause span as a duration.
func (c *Config) InterimSilence() time.Duration {
	return time.Duration(c.Segmenter.InterimSilenceMS) * time.Millisecond
}

// WatchInterval returns the playback speech polling cadence as a duration.
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Playback.WatchIntervalMS) * time.Millisecond
}

// InterruptionDelay returns the barge-in debounce as a duration.
func (c *Config) InterruptionDelay() time.Duration {
	return time.Duration(c.Playback.InterruptionDelayMS) * time.Millisecond
}
