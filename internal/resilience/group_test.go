package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicefuture/duplex/internal/resilience"
	"github.com/voicefuture/duplex/pkg/audio"
	sttmock "github.com/voicefuture/duplex/pkg/provider/stt/mock"
)

func TestGroupFallsBackToSecondary(t *testing.T) {
	primary := &sttmock.Recognizer{Err: errBoom}
	secondary := &sttmock.Recognizer{Transcripts: []string{"hello"}}

	g := resilience.NewRecognizerGroup(primary, "primary", resilience.BreakerConfig{
		FailureLimit: 3,
		Cooldown:     time.Hour,
	})
	g.AddFallback("secondary", secondary)

	text, err := g.Transcribe(context.Background(), audio.Clip{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want hello", text)
	}
	if primary.Calls() != 1 || secondary.Calls() != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", primary.Calls(), secondary.Calls())
	}
}

func TestGroupSkipsOpenBreaker(t *testing.T) {
	primary := &sttmock.Recognizer{Err: errBoom}
	secondary := &sttmock.Recognizer{Transcripts: []string{"ok"}}

	g := resilience.NewRecognizerGroup(primary, "primary", resilience.BreakerConfig{
		FailureLimit: 1,
		Cooldown:     time.Hour,
	})
	g.AddFallback("secondary", secondary)

	for i := 0; i < 3; i++ {
		if _, err := g.Transcribe(context.Background(), audio.Clip{}); err != nil {
			t.Fatalf("Transcribe %d: %v", i, err)
		}
	}
	// The primary's breaker opened after its first failure, so only that one
	// call ever reached it.
	if primary.Calls() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.Calls())
	}
	if secondary.Calls() != 3 {
		t.Errorf("secondary calls = %d, want 3", secondary.Calls())
	}
}

func TestGroupAllFailed(t *testing.T) {
	primary := &sttmock.Recognizer{Err: errBoom}

	g := resilience.NewRecognizerGroup(primary, "primary", resilience.BreakerConfig{
		FailureLimit: 5,
		Cooldown:     time.Hour,
	})

	_, err := g.Transcribe(context.Background(), audio.Clip{})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
