package resilience

import (
	"context"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/llm"
	"github.com/voicefuture/duplex/pkg/provider/stt"
	"github.com/voicefuture/duplex/pkg/provider/tts"
)

// Compile-time assertions.
var (
	_ stt.Recognizer  = (*RecognizerGroup)(nil)
	_ llm.Responder   = (*ResponderGroup)(nil)
	_ tts.Synthesizer = (*SynthesizerGroup)(nil)
)

// RecognizerGroup is a failover stt.Recognizer.
type RecognizerGroup struct {
	group *Group[stt.Recognizer]
}

// NewRecognizerGroup wraps primary with failover and breaker protection.
func NewRecognizerGroup(primary stt.Recognizer, name string, cfg BreakerConfig) *RecognizerGroup {
	return &RecognizerGroup{group: NewGroup(primary, name, cfg)}
}

// AddFallback appends a fallback recognizer.
func (g *RecognizerGroup) AddFallback(name string, r stt.Recognizer) {
	g.group.AddFallback(name, r)
}

// Transcribe implements stt.Recognizer.
func (g *RecognizerGroup) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return TryResult(g.group, func(r stt.Recognizer) (string, error) {
		return r.Transcribe(ctx, clip)
	})
}

// ResponderGroup is a failover llm.Responder.
type ResponderGroup struct {
	group *Group[llm.Responder]
}

// NewResponderGroup wraps primary with failover and breaker protection.
func NewResponderGroup(primary llm.Responder, name string, cfg BreakerConfig) *ResponderGroup {
	return &ResponderGroup{group: NewGroup(primary, name, cfg)}
}

// AddFallback appends a fallback responder. Note that each responder keeps
// its own conversation history, so a failover mid-conversation loses the
// context accumulated by earlier entries.
func (g *ResponderGroup) AddFallback(name string, r llm.Responder) {
	g.group.AddFallback(name, r)
}

// Respond implements llm.Responder.
func (g *ResponderGroup) Respond(ctx context.Context, transcript string, interim bool) (llm.Reply, error) {
	return TryResult(g.group, func(r llm.Responder) (llm.Reply, error) {
		return r.Respond(ctx, transcript, interim)
	})
}

// Opening implements llm.Responder.
func (g *ResponderGroup) Opening(ctx context.Context) (string, error) {
	return TryResult(g.group, func(r llm.Responder) (string, error) {
		return r.Opening(ctx)
	})
}

// SynthesizerGroup is a failover tts.Synthesizer.
type SynthesizerGroup struct {
	group *Group[tts.Synthesizer]
}

// NewSynthesizerGroup wraps primary with failover and breaker protection.
func NewSynthesizerGroup(primary tts.Synthesizer, name string, cfg BreakerConfig) *SynthesizerGroup {
	return &SynthesizerGroup{group: NewGroup(primary, name, cfg)}
}

// AddFallback appends a fallback synthesizer.
func (g *SynthesizerGroup) AddFallback(name string, s tts.Synthesizer) {
	g.group.AddFallback(name, s)
}

// Synthesize implements tts.Synthesizer.
func (g *SynthesizerGroup) Synthesize(ctx context.Context, text string) (tts.Synthesis, error) {
	return TryResult(g.group, func(s tts.Synthesizer) (tts.Synthesis, error) {
		return s.Synthesize(ctx, text)
	})
}
