package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/voicefuture/duplex/internal/pipeline"
	"github.com/voicefuture/duplex/pkg/audio"
	audiomock "github.com/voicefuture/duplex/pkg/audio/mock"
	llmmock "github.com/voicefuture/duplex/pkg/provider/llm/mock"
	sttmock "github.com/voicefuture/duplex/pkg/provider/stt/mock"
	ttsmock "github.com/voicefuture/duplex/pkg/provider/tts/mock"
	vadmock "github.com/voicefuture/duplex/pkg/provider/vad/mock"
	"github.com/voicefuture/duplex/pkg/playback"
	"github.com/voicefuture/duplex/pkg/provider/llm"
	"github.com/voicefuture/duplex/pkg/segment"
)

const frameDur = 32 * time.Millisecond

// pacedSource delivers one frame every interval, then blocks until the
// context is cancelled, keeping the session alive past the scripted audio.
type pacedSource struct {
	frames   []audio.Frame
	next     int
	interval time.Duration
}

func (s *pacedSource) NextFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-time.After(s.interval):
	}
	if s.next >= len(s.frames) {
		<-ctx.Done()
		return audio.Frame{}, ctx.Err()
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *pacedSource) Stop() error { return nil }

// frames builds n silent frames with consecutive timestamps. The VAD mock's
// scripted scores decide which of them count as speech.
func frames(n int) []audio.Frame {
	out := make([]audio.Frame, n)
	for i := range out {
		out[i] = audio.Frame{
			Data:       make([]byte, 1024),
			SampleRate: 16000,
			Timestamp:  time.Duration(i) * frameDur,
		}
	}
	return out
}

// utteranceScores scripts two silent frames, six speech frames, then silence
// (the mock repeats the final score once exhausted).
func utteranceScores() []float64 {
	return []float64{0, 0, 1, 1, 1, 1, 1, 1, 0}
}

func testConfig() pipeline.Config {
	return pipeline.Config{
		Segmenter: segment.Config{
			SampleRate:      16000,
			FrameSamples:    512,
			Threshold:       0.3,
			SilenceTimeout:  3 * frameDur,
			MaxUtterance:    time.Second,
			MinSpeechFrames: 2,
			PreRoll:         2 * frameDur,
			PollInterval:    time.Millisecond,
		},
		Playback: playback.Config{
			SampleRate:        16000,
			WatchInterval:     5 * time.Millisecond,
			InterruptionDelay: 25 * time.Millisecond,
		},
		FallbackPrompt: "Say that again?",
	}
}

// start subscribes to events and launches Run in the background. The returned
// channel yields Run's error once and nil afterwards.
func start(t *testing.T, p *pipeline.Pipeline) (<-chan pipeline.Event, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := p.Events()
	finished := make(chan error, 1)
	go func() {
		finished <- p.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not shut down")
		}
	})
	return events, finished
}

func waitEvent(t *testing.T, events <-chan pipeline.Event, want pipeline.EventType) pipeline.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %v", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestFullTurn(t *testing.T) {
	source := &pacedSource{frames: frames(30), interval: 5 * time.Millisecond}
	sink := audiomock.NewSink()
	rec := &sttmock.Recognizer{Transcripts: []string{"hello there"}}
	resp := &llmmock.Responder{
		Greeting: "Hi, how can I help?",
		Replies:  []llm.Reply{{Text: "Nice to meet you."}},
	}
	synth := &ttsmock.Synthesizer{}

	p, err := pipeline.New(source, sink, pipeline.Providers{
		VAD:         &vadmock.Engine{Scores: utteranceScores()},
		Recognizer:  rec,
		Responder:   resp,
		Synthesizer: synth,
	}, testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, _ := start(t, p)

	greeting := waitEvent(t, events, pipeline.EventResponse)
	if greeting.Text != "Hi, how can I help?" {
		t.Errorf("greeting = %q", greeting.Text)
	}

	waitEvent(t, events, pipeline.EventSpeechStarted)
	waitEvent(t, events, pipeline.EventSpeechEnded)

	transcript := waitEvent(t, events, pipeline.EventTranscript)
	if transcript.Text != "hello there" {
		t.Errorf("transcript = %q", transcript.Text)
	}

	reply := waitEvent(t, events, pipeline.EventResponse)
	if reply.Text != "Nice to meet you." {
		t.Errorf("reply = %q", reply.Text)
	}

	// Synthesis and playback follow the response event, so poll briefly.
	deadline := time.Now().Add(5 * time.Second)
	for len(sink.PlayedPayloads()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("played %d payloads, want at least 2", len(sink.PlayedPayloads()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	texts := synth.Texts()
	if !slices.Contains(texts, "Hi, how can I help?") || !slices.Contains(texts, "Nice to meet you.") {
		t.Errorf("synthesized texts = %v", texts)
	}
	if calls := resp.Calls(); len(calls) != 1 || calls[0].Interim {
		t.Errorf("responder calls = %+v", calls)
	}
}

func TestEndPhraseEndsSession(t *testing.T) {
	source := &pacedSource{frames: frames(30), interval: 5 * time.Millisecond}
	rec := &sttmock.Recognizer{Transcripts: []string{"okay goodbye"}}
	resp := &llmmock.Responder{}
	cfg := testConfig()
	cfg.EndPhrases = []string{"goodbye"}

	p, err := pipeline.New(source, audiomock.NewSink(), pipeline.Providers{
		VAD:         &vadmock.Engine{Scores: utteranceScores()},
		Recognizer:  rec,
		Responder:   resp,
		Synthesizer: &ttsmock.Synthesizer{},
	}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, finished := start(t, p)

	waitEvent(t, events, pipeline.EventSessionEnded)

	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after end phrase")
	}

	if calls := resp.Calls(); len(calls) != 0 {
		t.Errorf("responder was called after end phrase: %+v", calls)
	}
	if p.State() != pipeline.StateEnded {
		t.Errorf("state = %v, want ended", p.State())
	}
}

func TestFinalReplyEndsSession(t *testing.T) {
	source := &pacedSource{frames: frames(30), interval: 5 * time.Millisecond}
	resp := &llmmock.Responder{
		Replies: []llm.Reply{{
			Text:       "Goodbye, have a great day.",
			IsFinal:    true,
			EndPayload: `{"reason":"complete"}`,
		}},
	}

	p, err := pipeline.New(source, audiomock.NewSink(), pipeline.Providers{
		VAD:         &vadmock.Engine{Scores: utteranceScores()},
		Recognizer:  &sttmock.Recognizer{Transcripts: []string{"that is all"}},
		Responder:   resp,
		Synthesizer: &ttsmock.Synthesizer{},
	}, testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, finished := start(t, p)

	ended := waitEvent(t, events, pipeline.EventSessionEnded)
	if ended.Payload != `{"reason":"complete"}` {
		t.Errorf("end payload = %q", ended.Payload)
	}

	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after final reply")
	}
}

func TestFallbackPromptOnRecognitionFailure(t *testing.T) {
	source := &pacedSource{frames: frames(30), interval: 5 * time.Millisecond}
	rec := &sttmock.Recognizer{Err: errors.New("upstream unavailable")}
	resp := &llmmock.Responder{}
	synth := &ttsmock.Synthesizer{}
	cfg := testConfig()

	p, err := pipeline.New(source, audiomock.NewSink(), pipeline.Providers{
		VAD:         &vadmock.Engine{Scores: utteranceScores()},
		Recognizer:  rec,
		Responder:   resp,
		Synthesizer: synth,
	}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, _ := start(t, p)
	waitEvent(t, events, pipeline.EventSpeechEnded)

	deadline := time.Now().Add(5 * time.Second)
	for !slices.Contains(synth.Texts(), cfg.FallbackPrompt) {
		if time.Now().After(deadline) {
			t.Fatalf("fallback prompt never synthesized; texts = %v", synth.Texts())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if calls := resp.Calls(); len(calls) != 0 {
		t.Errorf("responder called despite failed recognition: %+v", calls)
	}
}

func TestShortUtteranceDiscarded(t *testing.T) {
	source := &pacedSource{frames: frames(30), interval: 5 * time.Millisecond}
	rec := &sttmock.Recognizer{Transcripts: []string{"should never be used"}}
	synth := &ttsmock.Synthesizer{}
	cfg := testConfig()
	cfg.Segmenter.MinSpeechFrames = 10

	p, err := pipeline.New(source, audiomock.NewSink(), pipeline.Providers{
		VAD:         &vadmock.Engine{Scores: []float64{0, 0, 1, 1, 1, 0}},
		Recognizer:  rec,
		Responder:   &llmmock.Responder{},
		Synthesizer: synth,
	}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, _ := start(t, p)
	waitEvent(t, events, pipeline.EventSpeechStarted)

	// The discard returns the pipeline to listening without a turn.
	deadline := time.Now().Add(5 * time.Second)
	for p.State() != pipeline.StateAwaitingSpeech {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, never returned to awaiting_speech", p.State())
		}
		time.Sleep(time.Millisecond)
	}

	if rec.Calls() != 0 {
		t.Errorf("recognizer called %d times for a discarded utterance", rec.Calls())
	}
	if texts := synth.Texts(); len(texts) != 0 {
		t.Errorf("synthesized %v for a discarded utterance", texts)
	}

	// A discarded utterance stays silent: no speech-ended notification.
	for {
		select {
		case ev := <-events:
			if ev.Type == pipeline.EventSpeechEnded {
				t.Fatal("EventSpeechEnded published for a discarded utterance")
			}
		default:
			return
		}
	}
}

func TestSourceDrainEndsRunCleanly(t *testing.T) {
	source := audiomock.NewSource(frames(5))

	p, err := pipeline.New(source, audiomock.NewSink(), pipeline.Providers{
		VAD:         &vadmock.Engine{},
		Recognizer:  &sttmock.Recognizer{},
		Responder:   &llmmock.Responder{},
		Synthesizer: &ttsmock.Synthesizer{},
	}, testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, finished := start(t, p)
	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after source drained")
	}
}
