// Package openai provides an llm.Responder backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

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

// Responder implements llm.Responder using OpenAI chat completions.
type Responder struct {
	client       oai.Client
	model        string
	systemPrompt string
	greeting     string
	temperature  float64
	history      *llm.History
}

// config holds optional configuration for the responder.
type config struct {
	baseURL     string
	timeout     time.Duration
	greeting    string
	temperature float64
	maxTurns    int
}

// Option is a functional option for Responder.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
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

// New constructs an OpenAI Responder.
func New(apiKey, model, systemPrompt string, opts ...Option) (*Responder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{maxTurns: defaultMaxTurns}
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

	return &Responder{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: systemPrompt,
		greeting:     cfg.greeting,
		temperature:  cfg.temperature,
		history:      llm.NewHistory(cfg.maxTurns),
	}, nil
}

// Respond implements llm.Responder.
func (r *Responder) Respond(ctx context.Context, transcript string, interim bool) (llm.Reply, error) {
	messages := r.buildMessages(transcript, interim)

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(r.model),
		Messages: messages,
	}
	if r.temperature != 0 {
		params.Temperature = param.NewOpt(r.temperature)
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Reply{}, fmt.Errorf("openai: empty choices in response")
	}

	reply := llm.ParseReply(resp.Choices[0].Message.Content)
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

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(r.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(r.systemPrompt),
			oai.UserMessage(openingInstruction),
		},
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: opening: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	text := llm.ParseReply(resp.Choices[0].Message.Content).Text
	r.history.Add(llm.RoleAssistant, text)
	return text, nil
}

// buildMessages assembles the system prompt, the bounded history, and the
// new user turn into SDK message params.
func (r *Responder) buildMessages(transcript string, interim bool) []oai.ChatCompletionMessageParamUnion {
	var messages []oai.ChatCompletionMessageParamUnion
	if r.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(r.systemPrompt))
	}
	if interim {
		messages = append(messages, oai.SystemMessage(interimInstruction))
	}

	for _, turn := range r.history.Snapshot() {
		switch turn.Role {
		case llm.RoleUser:
			messages = append(messages, oai.UserMessage(turn.Content))
		case llm.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(turn.Content))
		}
	}

	return append(messages, oai.UserMessage(transcript))
}
