package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicefuture/duplex/internal/endword"
	"github.com/voicefuture/duplex/internal/observe"
	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/playback"
	"github.com/voicefuture/duplex/pkg/provider/llm"
	"github.com/voicefuture/duplex/pkg/provider/stt"
	"github.com/voicefuture/duplex/pkg/provider/tts"
	"github.com/voicefuture/duplex/pkg/provider/vad"
	"github.com/voicefuture/duplex/pkg/segment"
)

// State is the pipeline's coarse lifecycle phase, exposed for transports and
// tests.
type State int32

const (
	// StateIdle means Run has not started yet.
	StateIdle State = iota

	// StateAwaitingSpeech means the pipeline is listening for speech onset.
	StateAwaitingSpeech

	// StateCapturing means an utterance is being captured.
	StateCapturing

	// StateResponding means recognition/response/synthesis is in flight.
	StateResponding

	// StatePlaying means assistant audio is playing.
	StatePlaying

	// StateEnded means the session has terminated.
	StateEnded
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSpeech:
		return "awaiting_speech"
	case StateCapturing:
		return "capturing"
	case StateResponding:
		return "responding"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Config holds session-level tuning for a Pipeline. Segmentation and
// playback parameters are forwarded to their packages; zero values take
// those packages' defaults.
type Config struct {
	Segmenter segment.Config
	Playback  playback.Config

	// FallbackPrompt is spoken when recognition yields nothing usable.
	FallbackPrompt string

	// EndPhrases terminate the session when matched in a final transcript.
	EndPhrases []string
}

// Providers bundles the external services a session depends on.
type Providers struct {
	VAD         vad.Engine
	Recognizer  stt.Recognizer
	Responder   llm.Responder
	Synthesizer tts.Synthesizer
}

// Pipeline drives one duplex conversation over an audio source/sink pair.
// Create with New, run with Run; a Pipeline is single-use.
type Pipeline struct {
	cfg       Config
	source    audio.Source
	ring      *audio.Ring
	seg       *segment.Segmenter
	coord     *playback.Coordinator
	providers Providers
	endFilter *endword.Filter
	notifier  *Notifier
	metrics   *observe.Metrics
	log       *slog.Logger

	state atomic.Int32

	// processing serializes utterance handling; the interim path only runs
	// when it can take the lock without waiting.
	processing sync.Mutex

	// speechEndedAt is the wall-clock moment the last utterance completed,
	// for turn-latency measurement.
	speechEndedAt atomic.Int64
}

// New assembles a Pipeline over the given transport endpoints and providers.
func New(source audio.Source, sink audio.Sink, providers Providers, cfg Config, metrics *observe.Metrics, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if cfg.FallbackPrompt == "" {
		cfg.FallbackPrompt = "Sorry, I didn't catch that. Could you repeat it?"
	}
	cfg.Segmenter.ApplyDefaults()

	ring := audio.NewRing(audio.RingCapacity(
		cfg.Segmenter.SampleRate, cfg.Segmenter.FrameSamples, cfg.Segmenter.MaxUtterance))

	seg, err := segment.New(ring, providers.VAD, cfg.Segmenter, log)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		source:    source,
		ring:      ring,
		seg:       seg,
		providers: providers,
		notifier:  &Notifier{},
		metrics:   metrics,
		log:       log,
	}
	if len(cfg.EndPhrases) > 0 {
		p.endFilter = endword.New(cfg.EndPhrases)
	}

	p.coord = playback.New(sink, seg, cfg.Playback, log,
		playback.WithInterruptHandler(p.onInterrupt))

	return p, nil
}

// State returns the pipeline's current phase.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// setState publishes a phase transition to both State() readers and the
// sessions-by-state gauge. StateIdle is not represented in the gauge.
func (p *Pipeline) setState(ctx context.Context, next State) {
	prev := State(p.state.Swap(int32(next)))
	if prev == next {
		return
	}
	prevName := prev.String()
	if prev == StateIdle {
		prevName = ""
	}
	p.metrics.RecordStateChange(ctx, prevName, next.String())
}

// Events returns a subscription to pipeline events. Must be called before
// Run to observe the session from the start.
func (p *Pipeline) Events() <-chan Event { return p.notifier.Subscribe(32) }

// Run executes the session until the conversation ends, the source drains,
// or ctx is cancelled. A normally terminated conversation returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(ctx, StateAwaitingSpeech)
	p.metrics.ActiveSessions.Add(ctx, 1)
	defer p.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	defer p.notifier.Close()
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		p.setState(cleanup, StateEnded)
		p.metrics.RecordStateChange(cleanup, StateEnded.String(), "")
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.captureLoop(ctx) })
	g.Go(func() error { return p.seg.Run(ctx) })
	g.Go(func() error { return p.sessionLoop(ctx) })

	err := g.Wait()
	p.coord.Stop(context.WithoutCancel(ctx))
	p.coord.Wait()

	switch {
	case err == nil,
		errors.Is(err, errSessionEnded),
		errors.Is(err, errSourceDrained),
		errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// captureLoop pulls frames from the source into the ring buffer.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	frameBytes := p.cfg.Segmenter.FrameSamples * audio.BytesPerSample
	for {
		frame, err := p.source.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			p.log.Info("audio source drained")
			return errSourceDrained
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pipeline: read frame: %w", err)
		}
		if frameBytes > 0 && len(frame.Data) != frameBytes {
			p.log.Debug("dropping frame with unexpected size",
				"got_bytes", len(frame.Data), "want_bytes", frameBytes)
			continue
		}
		p.ring.Append(frame)
	}
}

// sessionLoop consumes segmenter output and drives the conversation.
func (p *Pipeline) sessionLoop(ctx context.Context) error {
	if err := p.speakOpening(ctx); err != nil {
		p.log.Warn("opening greeting failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ts, ok := <-p.seg.Started():
			if !ok {
				return nil
			}
			p.setState(ctx, StateCapturing)
			p.log.Debug("speech started", "at", ts)
			p.notifier.Publish(Event{Type: EventSpeechStarted})

		case clip, ok := <-p.seg.Clips():
			if !ok {
				return nil
			}
			if err := p.handleUtterance(ctx, clip); err != nil {
				return err
			}

		case clip, ok := <-p.seg.Interims():
			if !ok {
				return nil
			}
			p.handleInterim(ctx, clip)
		}
	}
}

// speakOpening plays the greeting before the first user turn.
func (p *Pipeline) speakOpening(ctx context.Context) error {
	greeting, err := p.providers.Responder.Opening(ctx)
	if err != nil {
		return err
	}
	if greeting == "" {
		return nil
	}
	p.notifier.Publish(Event{Type: EventResponse, Text: greeting})
	return p.speak(ctx, greeting, false)
}

// handleUtterance runs the full recognize → respond → synthesize → play turn
// for one completed utterance. It returns errSessionEnded to terminate the
// conversation.
func (p *Pipeline) handleUtterance(ctx context.Context, clip audio.Clip) error {
	p.processing.Lock()
	defer p.processing.Unlock()

	// A discarded utterance was a noise burst: no speech-ended notification,
	// and whatever is playing keeps playing.
	if clip.Empty() {
		p.log.Debug("utterance discarded by segmenter")
		p.metrics.RecordUtterance(ctx, "discarded")
		p.setState(ctx, StateAwaitingSpeech)
		return nil
	}

	p.notifier.Publish(Event{Type: EventSpeechEnded})
	p.speechEndedAt.Store(time.Now().UnixNano())

	// A completed utterance always wins over whatever is still playing.
	if err := p.coord.Stop(ctx); err != nil {
		p.log.Warn("failed to stop playback before handling utterance", "error", err)
	}

	p.setState(ctx, StateResponding)

	ctx, span := observe.StartSpan(ctx, "pipeline.turn")
	defer span.End()

	text, err := p.transcribe(ctx, clip)
	if err != nil || text == "" {
		if err != nil {
			p.log.Warn("transcription failed", "error", err)
			p.metrics.RecordProviderError(ctx, "stt", "transcribe")
		}
		p.metrics.RecordUtterance(ctx, "empty")
		if err := p.speak(ctx, p.cfg.FallbackPrompt, false); err != nil {
			p.log.Warn("fallback prompt playback failed", "error", err)
		}
		return nil
	}

	p.metrics.RecordUtterance(ctx, "transcribed")
	p.notifier.Publish(Event{Type: EventTranscript, Text: text})
	p.log.Info("transcript", "text", text)

	if p.endFilter != nil {
		if phrase, ok := p.endFilter.Match(text); ok {
			p.log.Info("end phrase matched", "phrase", phrase)
			p.notifier.Publish(Event{Type: EventSessionEnded})
			return errSessionEnded
		}
	}

	reply, err := p.respond(ctx, text)
	if err != nil {
		p.log.Error("response generation failed", "error", err)
		p.metrics.RecordProviderError(ctx, "llm", "respond")
		reply = llm.Reply{Text: p.cfg.FallbackPrompt}
	}

	p.notifier.Publish(Event{Type: EventResponse, Text: reply.Text})

	if err := p.speak(ctx, reply.Text, reply.IsFinal); err != nil {
		p.log.Warn("response playback failed", "error", err)
	}

	if reply.IsFinal {
		p.notifier.Publish(Event{Type: EventSessionEnded, Payload: reply.EndPayload})
		return errSessionEnded
	}
	return nil
}

// handleInterim gives the responder a chance to acknowledge a long pause.
// It is skipped entirely when a final utterance is already being handled.
func (p *Pipeline) handleInterim(ctx context.Context, clip audio.Clip) {
	if clip.Empty() {
		return
	}
	if !p.processing.TryLock() {
		return
	}
	defer p.processing.Unlock()

	text, err := p.transcribe(ctx, clip)
	if err != nil || text == "" {
		return
	}

	reply, err := p.providers.Responder.Respond(ctx, text, true)
	if err != nil || reply.Text == "" {
		return
	}
	if err := p.speak(ctx, reply.Text, false); err != nil {
		p.log.Debug("interim playback failed", "error", err)
	}
}

// transcribe runs recognition with latency recording. ErrNoSpeech maps to an
// empty transcript.
func (p *Pipeline) transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	start := time.Now()
	text, err := p.providers.Recognizer.Transcribe(ctx, clip)
	p.metrics.RecognizeDuration.Record(ctx, time.Since(start).Seconds())
	if errors.Is(err, stt.ErrNoSpeech) {
		return "", nil
	}
	return text, err
}

// respond generates the assistant reply, retrying once on failure.
func (p *Pipeline) respond(ctx context.Context, text string) (llm.Reply, error) {
	start := time.Now()
	defer func() {
		p.metrics.RespondDuration.Record(ctx, time.Since(start).Seconds())
	}()

	reply, err := p.providers.Responder.Respond(ctx, text, false)
	if err == nil {
		return reply, nil
	}
	p.log.Warn("response generation failed, retrying", "error", err)
	return p.providers.Responder.Respond(ctx, text, false)
}

// speak synthesizes text and starts playback. When wait is true it blocks
// until playback completes, so final goodbyes play out before teardown.
func (p *Pipeline) speak(ctx context.Context, text string, wait bool) error {
	start := time.Now()
	syn, err := p.providers.Synthesizer.Synthesize(ctx, text)
	p.metrics.SynthesizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return fmt.Errorf("pipeline: synthesize: %w", err)
	}

	session, err := p.coord.Play(ctx, syn.Audio, syn.Format)
	if err != nil {
		return fmt.Errorf("pipeline: play: %w", err)
	}

	if endedAt := p.speechEndedAt.Swap(0); endedAt != 0 {
		turn := time.Since(time.Unix(0, endedAt))
		p.metrics.TurnDuration.Record(ctx, turn.Seconds())
	}

	p.setState(ctx, StatePlaying)
	go func() {
		<-session.Done()
		if p.state.CompareAndSwap(int32(StatePlaying), int32(StateAwaitingSpeech)) {
			p.metrics.RecordStateChange(context.Background(),
				StatePlaying.String(), StateAwaitingSpeech.String())
		}
	}()

	if wait {
		select {
		case <-session.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// onInterrupt runs once per barge-in interruption.
func (p *Pipeline) onInterrupt() {
	p.log.Info("playback interrupted by caller")
	p.metrics.Interruptions.Add(context.Background(), 1)
	p.notifier.Publish(Event{Type: EventPlaybackInterrupted})
}
