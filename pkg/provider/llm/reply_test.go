package llm_test

import (
	"testing"

	"github.com/voicefuture/duplex/pkg/provider/llm"
)

func TestParseReplyPlainText(t *testing.T) {
	reply := llm.ParseReply("  Sure, I can help with that.  ")
	if reply.IsFinal {
		t.Error("plain reply parsed as final")
	}
	if reply.Text != "Sure, I can help with that." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.EndPayload != "" {
		t.Errorf("payload = %q, want empty", reply.EndPayload)
	}
}

func TestParseReplyWithEndBlock(t *testing.T) {
	raw := "Thanks for calling, goodbye!\n```json\n{\"outcome\": \"resolved\"}\n```"
	reply := llm.ParseReply(raw)
	if !reply.IsFinal {
		t.Fatal("reply with JSON block not parsed as final")
	}
	if reply.Text != "Thanks for calling, goodbye!" {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.EndPayload != `{"outcome": "resolved"}` {
		t.Errorf("payload = %q", reply.EndPayload)
	}
}

func TestParseReplyUnclosedFence(t *testing.T) {
	raw := "Goodbye!\n```json {\"outcome\": \"resolved\"}"
	reply := llm.ParseReply(raw)
	if !reply.IsFinal {
		t.Fatal("unclosed fence not parsed as final")
	}
	if reply.Text != "Goodbye!" {
		t.Errorf("text = %q", reply.Text)
	}
}

func TestHistoryEvictsOldestPair(t *testing.T) {
	h := llm.NewHistory(2)
	for i := 0; i < 3; i++ {
		h.Add(llm.RoleUser, "q")
		h.Add(llm.RoleAssistant, "a")
	}
	if h.Len() != 4 {
		t.Fatalf("len = %d, want 4 (2 turns)", h.Len())
	}
	turns := h.Snapshot()
	if turns[0].Role != llm.RoleUser {
		t.Errorf("first retained turn role = %v, want user", turns[0].Role)
	}
}
