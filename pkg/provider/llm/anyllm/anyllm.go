// Package anyllm provides an llm.Responder backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	r, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", prompt,
//		anyllm.WithBackendOptions(anyllmlib.WithAPIKey("sk-ant-...")))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/voicefuture/duplex/pkg/provider/llm"
)

// Compile-time assertion.
var _ llm.Responder = (*Responder)(nil)

const (
	defaultMaxTurns    = 12
	interimInstruction = "The caller paused mid-sentence. Reply with a brief, natural " +
		"acknowledgement that you are listening. Do not answer yet."
	openingInstruction = "Greet the caller and offer your help, in one or two short sentences."
)

// Responder implements llm.Responder by wrapping any-llm-go.
type Responder struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	greeting     string
	temperature  float64
	history      *llm.History
}

// config holds optional configuration for the responder.
type config struct {
	backendOpts []anyllmlib.Option
	greeting    string
	temperature float64
	maxTurns    int
}

// Option is a functional option for Responder.
type Option func(*config)

// WithBackendOptions forwards any-llm-go options (API key, base URL) to the
// underlying backend. Without an API key option, the backend falls back to
// its provider-specific environment variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, and so on).
func WithBackendOptions(opts ...anyllmlib.Option) Option {
	return func(c *config) { c.backendOpts = append(c.backendOpts, opts...) }
}

// WithGreeting sets a fixed opening line, skipping the model call in Opening.
func WithGreeting(text string) Option {
	return func(c *config) { c.greeting = text }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// WithMaxHistoryTurns bounds the retained conversation history. Default 12.
func WithMaxHistoryTurns(n int) Option {
	return func(c *config) { c.maxTurns = n }
}

// New creates a Responder backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
func New(providerName, model, systemPrompt string, opts ...Option) (*Responder, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	cfg := &config{maxTurns: defaultMaxTurns}
	for _, o := range opts {
		o(cfg)
	}

	backend, err := createBackend(providerName, cfg.backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Responder{
		backend:      backend,
		model:        model,
		systemPrompt: systemPrompt,
		greeting:     cfg.greeting,
		temperature:  cfg.temperature,
		history:      llm.NewHistory(cfg.maxTurns),
	}, nil
}

// Respond implements llm.Responder.
func (r *Responder) Respond(ctx context.Context, transcript string, interim bool) (llm.Reply, error) {
	params := r.buildParams(r.buildMessages(transcript, interim))

	resp, err := r.backend.Completion(ctx, params)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Reply{}, fmt.Errorf("anyllm: empty choices in response")
	}

	reply := llm.ParseReply(resp.Choices[0].Message.ContentString())
	if !interim {
		r.history.Add(llm.RoleUser, transcript)
		r.history.Add(llm.RoleAssistant, reply.Text)
	}
	return reply, nil
}

// Opening implements llm.Responder.
func (r *Responder) Opening(ctx context.Context) (string, error) {
	if r.greeting != "" {
		r.history.Add(llm.RoleAssistant, r.greeting)
		return r.greeting, nil
	}

	params := r.buildParams([]anyllmlib.Message{
		{Role: anyllmlib.RoleSystem, Content: r.systemPrompt},
		{Role: string(llm.RoleUser), Content: openingInstruction},
	})

	resp, err := r.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: opening: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}

	text := llm.ParseReply(resp.Choices[0].Message.ContentString()).Text
	r.history.Add(llm.RoleAssistant, text)
	return text, nil
}

// buildMessages assembles the system prompt, the bounded history, and the
// new user turn.
func (r *Responder) buildMessages(transcript string, interim bool) []anyllmlib.Message {
	var messages []anyllmlib.Message
	if r.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: r.systemPrompt,
		})
	}
	if interim {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: interimInstruction,
		})
	}

	for _, turn := range r.history.Snapshot() {
		messages = append(messages, anyllmlib.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	return append(messages, anyllmlib.Message{
		Role:    string(llm.RoleUser),
		Content: transcript,
	})
}

func (r *Responder) buildParams(messages []anyllmlib.Message) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model:    r.model,
		Messages: messages,
	}
	if r.temperature != 0 {
		t := r.temperature
		params.Temperature = &t
	}
	return params
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}
