// Package mock provides a scripted llm.Responder for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voicefuture/duplex/pkg/provider/llm"
)

// Compile-time assertion.
var _ llm.Responder = (*Responder)(nil)

// Call records one Respond invocation.
type Call struct {
	Transcript string
	Interim    bool
}

// Responder replays scripted replies in order. Once exhausted it keeps
// returning the last one.
type Responder struct {
	// Replies is the sequence returned by successive Respond calls.
	Replies []llm.Reply

	// Greeting is returned by Opening.
	Greeting string

	// Err, when non-nil, is returned by every Respond call.
	Err error

	// OpeningErr, when non-nil, is returned by Opening.
	OpeningErr error

	mu    sync.Mutex
	calls []Call
}

// Respond implements llm.Responder.
func (r *Responder) Respond(ctx context.Context, transcript string, interim bool) (llm.Reply, error) {
	if err := ctx.Err(); err != nil {
		return llm.Reply{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Transcript: transcript, Interim: interim})
	if r.Err != nil {
		return llm.Reply{}, r.Err
	}
	if len(r.Replies) == 0 {
		return llm.Reply{}, nil
	}
	idx := len(r.calls) - 1
	if idx >= len(r.Replies) {
		idx = len(r.Replies) - 1
	}
	return r.Replies[idx], nil
}

// Opening implements llm.Responder.
func (r *Responder) Opening(context.Context) (string, error) {
	if r.OpeningErr != nil {
		return "", r.OpeningErr
	}
	return r.Greeting, nil
}

// Calls returns a copy of every Respond invocation so far.
func (r *Responder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
