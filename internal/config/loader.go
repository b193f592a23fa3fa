package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches ${VAR} references in the raw config text. Bare $VAR is left
// alone so values containing dollar signs survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references with environment values. Unset
// variables expand to the empty string.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad": {"energy"},
	"stt": {"openai", "whisper"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. References of the form ${VAR} are replaced with the
// value of the environment variable VAR before decoding, so secrets like API
// keys can stay out of the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := expandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.defaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples must be positive, got %d", cfg.Audio.FrameSamples))
	}

	if cfg.Segmenter.Threshold < 0 || cfg.Segmenter.Threshold > 1 {
		errs = append(errs, fmt.Errorf("segmenter.threshold must be in [0, 1], got %v", cfg.Segmenter.Threshold))
	}
	if cfg.Segmenter.SilenceTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_timeout_ms must be positive, got %d", cfg.Segmenter.SilenceTimeoutMS))
	}
	if cfg.Segmenter.MaxUtteranceMS <= cfg.Segmenter.SilenceTimeoutMS {
		errs = append(errs, fmt.Errorf("segmenter.max_utterance_ms (%d) must exceed silence_timeout_ms (%d)",
			cfg.Segmenter.MaxUtteranceMS, cfg.Segmenter.SilenceTimeoutMS))
	}
	if cfg.Segmenter.MinSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_speech_frames must not be negative, got %d", cfg.Segmenter.MinSpeechFrames))
	}
	if cfg.Segmenter.PollIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.poll_interval_ms must be positive, got %d", cfg.Segmenter.PollIntervalMS))
	}

	if cfg.Playback.WatchIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("playback.watch_interval_ms must be positive, got %d", cfg.Playback.WatchIntervalMS))
	}
	if cfg.Playback.InterruptionDelayMS < cfg.Playback.WatchIntervalMS {
		errs = append(errs, fmt.Errorf("playback.interruption_delay_ms (%d) must be at least watch_interval_ms (%d)",
			cfg.Playback.InterruptionDelayMS, cfg.Playback.WatchIntervalMS))
	}

	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	return errors.Join(errs...)
}

// validateProviderName warns (but does not fail) when a provider name is not
// in the known set, so new providers can be introduced without a lockstep
// config package change.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if known, ok := ValidProviderNames[kind]; ok && !slices.Contains(known, name) {
		slog.Warn("unrecognised provider name",
			"kind", kind, "name", name, "known", known)
	}
}
