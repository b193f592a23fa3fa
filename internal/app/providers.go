package app

import (
	"fmt"
	"strconv"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voicefuture/duplex/internal/config"
	"github.com/voicefuture/duplex/internal/resilience"
	"github.com/voicefuture/duplex/pkg/provider/llm"
	llmanyllm "github.com/voicefuture/duplex/pkg/provider/llm/anyllm"
	llmopenai "github.com/voicefuture/duplex/pkg/provider/llm/openai"
	"github.com/voicefuture/duplex/pkg/provider/stt"
	sttopenai "github.com/voicefuture/duplex/pkg/provider/stt/openai"
	sttwhisper "github.com/voicefuture/duplex/pkg/provider/stt/whisper"
	"github.com/voicefuture/duplex/pkg/provider/tts"
	ttselevenlabs "github.com/voicefuture/duplex/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/voicefuture/duplex/pkg/provider/tts/openai"
	"github.com/voicefuture/duplex/pkg/provider/vad"
	vadenergy "github.com/voicefuture/duplex/pkg/provider/vad/energy"
)

// anyLLMProviders are the responder backends served through any-llm.
var anyLLMProviders = map[string]bool{
	"anthropic": true, "gemini": true, "ollama": true, "deepseek": true,
	"mistral": true, "groq": true, "llamacpp": true, "llamafile": true,
}

// ProviderSet holds the per-stage providers built from configuration.
//
// The recognizer and synthesizer are stateless across turns and shared by all
// sessions. Responders hold conversation history, so each session builds a
// fresh one through NewResponder.
type ProviderSet struct {
	VAD         vad.Engine
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer

	// NewResponder builds a responder with empty history for a new session.
	NewResponder func() (llm.Responder, error)

	// closers release provider resources (loaded models) on shutdown.
	closers []func() error
}

// Close releases provider-held resources.
func (ps *ProviderSet) Close() error {
	var firstErr error
	for _, fn := range ps.closers {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildProviders instantiates every configured provider, wrapping stages that
// declare fallbacks in circuit-breaker failover groups.
func buildProviders(cfg *config.Config) (*ProviderSet, error) {
	ps := &ProviderSet{}

	engine, err := buildVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: vad provider: %w", err)
	}
	ps.VAD = engine

	rec, closer, err := buildRecognizer(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: stt provider: %w", err)
	}
	if closer != nil {
		ps.closers = append(ps.closers, closer)
	}
	if len(cfg.Providers.STT.Fallbacks) > 0 {
		group := resilience.NewRecognizerGroup(rec, cfg.Providers.STT.Name, breakerDefaults("stt"))
		for _, fb := range cfg.Providers.STT.Fallbacks {
			fbRec, fbCloser, err := buildRecognizer(fb)
			if err != nil {
				return nil, fmt.Errorf("app: stt fallback %q: %w", fb.Name, err)
			}
			if fbCloser != nil {
				ps.closers = append(ps.closers, fbCloser)
			}
			group.AddFallback(fb.Name, fbRec)
		}
		ps.Recognizer = group
	} else {
		ps.Recognizer = rec
	}

	syn, err := buildSynthesizer(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("app: tts provider: %w", err)
	}
	if len(cfg.Providers.TTS.Fallbacks) > 0 {
		group := resilience.NewSynthesizerGroup(syn, cfg.Providers.TTS.Name, breakerDefaults("tts"))
		for _, fb := range cfg.Providers.TTS.Fallbacks {
			fbSyn, err := buildSynthesizer(fb)
			if err != nil {
				return nil, fmt.Errorf("app: tts fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, fbSyn)
		}
		ps.Synthesizer = group
	} else {
		ps.Synthesizer = syn
	}

	llmEntry := cfg.Providers.LLM
	pipelineCfg := cfg.Pipeline
	ps.NewResponder = func() (llm.Responder, error) {
		resp, err := buildResponder(llmEntry, pipelineCfg)
		if err != nil {
			return nil, fmt.Errorf("app: llm provider: %w", err)
		}
		if len(llmEntry.Fallbacks) == 0 {
			return resp, nil
		}
		group := resilience.NewResponderGroup(resp, llmEntry.Name, breakerDefaults("llm"))
		for _, fb := range llmEntry.Fallbacks {
			fbResp, err := buildResponder(fb, pipelineCfg)
			if err != nil {
				return nil, fmt.Errorf("app: llm fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, fbResp)
		}
		return group, nil
	}

	// Build one responder up front so misconfiguration fails at startup
	// rather than on the first connection.
	if _, err := ps.NewResponder(); err != nil {
		return nil, err
	}

	return ps, nil
}

func breakerDefaults(stage string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:         stage,
		FailureLimit: 3,
		Cooldown:     30 * time.Second,
		ProbeLimit:   1,
	}
}

func buildVAD(entry config.ProviderEntry) (vad.Engine, error) {
	switch entry.Name {
	case "", "energy":
		var opts []vadenergy.Option
		if ref := entry.Option("reference", ""); ref != "" {
			v, err := strconv.ParseFloat(ref, 64)
			if err != nil {
				return nil, fmt.Errorf("parse reference %q: %w", ref, err)
			}
			opts = append(opts, vadenergy.WithReference(v))
		}
		return vadenergy.New(opts...), nil
	default:
		return nil, fmt.Errorf("unknown vad provider %q", entry.Name)
	}
}

func buildRecognizer(entry config.ProviderEntry) (stt.Recognizer, func() error, error) {
	switch entry.Name {
	case "openai":
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		rec, err := sttopenai.New(entry.APIKey, entry.Model, opts...)
		return rec, nil, err

	case "whisper":
		// Model is the path to a local whisper.cpp model file.
		var opts []sttwhisper.Option
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, sttwhisper.WithLanguage(lang))
		}
		rec, err := sttwhisper.New(entry.Model, opts...)
		if err != nil {
			return nil, nil, err
		}
		return rec, rec.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

func buildResponder(entry config.ProviderEntry, pcfg config.PipelineConfig) (llm.Responder, error) {
	switch {
	case entry.Name == "openai":
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if pcfg.Greeting != "" {
			opts = append(opts, llmopenai.WithGreeting(pcfg.Greeting))
		}
		if temp := entry.Option("temperature", ""); temp != "" {
			v, err := strconv.ParseFloat(temp, 64)
			if err != nil {
				return nil, fmt.Errorf("parse temperature %q: %w", temp, err)
			}
			opts = append(opts, llmopenai.WithTemperature(v))
		}
		return llmopenai.New(entry.APIKey, entry.Model, pcfg.SystemPrompt, opts...)

	case anyLLMProviders[entry.Name]:
		var backendOpts []anyllmlib.Option
		if entry.APIKey != "" {
			backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		opts := []llmanyllm.Option{llmanyllm.WithBackendOptions(backendOpts...)}
		if pcfg.Greeting != "" {
			opts = append(opts, llmanyllm.WithGreeting(pcfg.Greeting))
		}
		if temp := entry.Option("temperature", ""); temp != "" {
			v, err := strconv.ParseFloat(temp, 64)
			if err != nil {
				return nil, fmt.Errorf("parse temperature %q: %w", temp, err)
			}
			opts = append(opts, llmanyllm.WithTemperature(v))
		}
		return llmanyllm.New(entry.Name, entry.Model, pcfg.SystemPrompt, opts...)

	default:
		return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
	}
}

func buildSynthesizer(entry config.ProviderEntry) (tts.Synthesizer, error) {
	switch entry.Name {
	case "openai":
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if voice := entry.Option("voice", ""); voice != "" {
			opts = append(opts, ttsopenai.WithVoice(voice))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)

	case "elevenlabs":
		var opts []ttselevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, ttselevenlabs.WithModel(entry.Model))
		}
		if format := entry.Option("output_format", ""); format != "" {
			opts = append(opts, ttselevenlabs.WithOutputFormat(format))
		}
		return ttselevenlabs.New(entry.APIKey, entry.Option("voice_id", ""), opts...)

	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}
