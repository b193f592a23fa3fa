// Package llm defines the conversational response provider interface.
//
// A Responder turns a user transcript into the assistant's next utterance.
// The model signals end of conversation by appending a fenced JSON block to
// its reply; ParseReply strips the block and surfaces it as the session's
// end payload.
package llm

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

// Reply is one assistant response.
type Reply struct {
	// Text is the spoken response, with any end-of-conversation block
	// removed.
	Text string

	// IsFinal is true when the model signalled that the conversation is
	// complete.
	IsFinal bool

	// EndPayload is the raw JSON the model attached to its final reply,
	// empty otherwise.
	EndPayload string
}

// Responder produces assistant replies. Implementations carry conversation
// history across calls and must be safe for concurrent use.
type Responder interface {
	// Respond returns the assistant's reply to the transcript. When interim
	// is true the transcript is a provisional mid-pause reading and the
	// exchange must not be committed to conversation history.
	Respond(ctx context.Context, transcript string, interim bool) (Reply, error)

	// Opening returns the greeting spoken before the first user turn.
	Opening(ctx context.Context) (string, error)
}

// finalBlockRE matches the fenced JSON block a model appends to its last
// reply. The closing fence is optional since models frequently drop it.
var finalBlockRE = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*(?:```)?")

// ParseReply splits a raw model response into spoken text and, when present,
// the end-of-conversation JSON payload.
func ParseReply(raw string) Reply {
	m := finalBlockRE.FindStringSubmatch(raw)
	if m == nil {
		return Reply{Text: strings.TrimSpace(raw)}
	}
	return Reply{
		Text:       strings.TrimSpace(strings.Replace(raw, m[0], "", 1)),
		IsFinal:    true,
		EndPayload: strings.TrimSpace(m[1]),
	}
}

// Role identifies the author of a history turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of conversation history.
type Turn struct {
	Role    Role
	Content string
}

// History is a bounded conversation transcript shared by the Responder
// implementations. It keeps at most maxTurns user/assistant pairs, dropping
// the oldest pair when full. It is safe for concurrent use.
type History struct {
	mu       sync.Mutex
	maxTurns int
	turns    []Turn
}

// NewHistory creates a History keeping at most maxTurns exchanges.
// maxTurns <= 0 means unbounded.
func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

// Add appends one turn, evicting the oldest exchange if over capacity.
func (h *History) Add(role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{Role: role, Content: content})
	if h.maxTurns > 0 {
		for len(h.turns) > h.maxTurns*2 {
			h.turns = h.turns[1:]
		}
	}
}

// Snapshot returns a copy of the current turns in order.
func (h *History) Snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
