package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicefuture/duplex/internal/config"
	"github.com/voicefuture/duplex/pkg/audio"
	audiomock "github.com/voicefuture/duplex/pkg/audio/mock"
	"github.com/voicefuture/duplex/pkg/provider/llm"
	llmmock "github.com/voicefuture/duplex/pkg/provider/llm/mock"
	sttmock "github.com/voicefuture/duplex/pkg/provider/stt/mock"
	ttsmock "github.com/voicefuture/duplex/pkg/provider/tts/mock"
	vadmock "github.com/voicefuture/duplex/pkg/provider/vad/mock"
)

// recordingNotifier captures forwarded events for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	transcripts []string
	responses   []string
	exits       int
}

func (n *recordingNotifier) SendTranscript(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcripts = append(n.transcripts, text)
	return nil
}

func (n *recordingNotifier) SendResponse(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses = append(n.responses, text)
	return nil
}

func (n *recordingNotifier) SendExit(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exits++
	return nil
}

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm:
    name: openai
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func mockProviderSet(responder *llmmock.Responder) *ProviderSet {
	return &ProviderSet{
		VAD:         &vadmock.Engine{},
		Recognizer:  &sttmock.Recognizer{},
		Synthesizer: &ttsmock.Synthesizer{},
		NewResponder: func() (llm.Responder, error) {
			return responder, nil
		},
	}
}

func TestSessionRunsToCompletion(t *testing.T) {
	responder := &llmmock.Responder{Greeting: "Welcome!"}
	sm := NewSessionManager(testAppConfig(t), mockProviderSet(responder), nil, nil)

	// A source that drains immediately ends the session cleanly.
	frames := make([]audio.Frame, 3)
	for i := range frames {
		frames[i] = audio.Frame{
			Data:       make([]byte, 1024),
			SampleRate: 16000,
			Timestamp:  time.Duration(i) * 32 * time.Millisecond,
		}
	}
	source := audiomock.NewSource(frames)
	notifier := &recordingNotifier{}

	err := sm.Run(context.Background(), source, audiomock.NewSink(), notifier, "127.0.0.1:1234")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.responses) != 1 || notifier.responses[0] != "Welcome!" {
		t.Errorf("forwarded responses = %v, want the greeting", notifier.responses)
	}
	if sm.Count() != 0 {
		t.Errorf("session count after Run = %d, want 0", sm.Count())
	}
}

func TestSessionTrackingWhileRunning(t *testing.T) {
	responder := &llmmock.Responder{}
	sm := NewSessionManager(testAppConfig(t), mockProviderSet(responder), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A source that never delivers keeps the session alive until cancel.
	blocked := &blockingSource{}
	done := make(chan error, 1)
	go func() {
		done <- sm.Run(ctx, blocked, audiomock.NewSink(), nil, "127.0.0.1:9999")
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sm.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(time.Millisecond)
	}

	active := sm.Active()
	if len(active) != 1 || active[0].RemoteAddr != "127.0.0.1:9999" {
		t.Errorf("active sessions = %+v", active)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
	if sm.Count() != 0 {
		t.Errorf("session count after stop = %d, want 0", sm.Count())
	}
}

func TestSessionFailsWhenResponderCannotBeBuilt(t *testing.T) {
	ps := mockProviderSet(nil)
	ps.NewResponder = func() (llm.Responder, error) {
		return nil, context.DeadlineExceeded
	}
	sm := NewSessionManager(testAppConfig(t), ps, nil, nil)

	err := sm.Run(context.Background(), audiomock.NewSource(nil), audiomock.NewSink(), nil, "127.0.0.1:1")
	if err == nil {
		t.Fatal("Run succeeded without a responder")
	}
	if sm.Count() != 0 {
		t.Errorf("session count = %d, want 0", sm.Count())
	}
}

// blockingSource blocks NextFrame until the context is cancelled.
type blockingSource struct{}

func (s *blockingSource) NextFrame(ctx context.Context) (audio.Frame, error) {
	<-ctx.Done()
	return audio.Frame{}, ctx.Err()
}

func (s *blockingSource) Stop() error { return nil }
