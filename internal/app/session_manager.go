package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicefuture/duplex/internal/config"
	"github.com/voicefuture/duplex/internal/observe"
	"github.com/voicefuture/duplex/internal/pipeline"
	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/playback"
	"github.com/voicefuture/duplex/pkg/segment"
)

// ClientNotifier receives conversation updates for display on the client.
// All methods are best-effort; delivery failures do not stop the session.
type ClientNotifier interface {
	SendTranscript(ctx context.Context, text string) error
	SendResponse(ctx context.Context, text string) error
	SendExit(ctx context.Context) error
}

// SessionInfo holds metadata about one active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string `json:"session_id"`

	// RemoteAddr is the client's network address.
	RemoteAddr string `json:"remote_addr"`

	// StartedAt is when the session was accepted.
	StartedAt time.Time `json:"started_at"`
}

// SessionManager runs duplex conversations, one pipeline per connected
// client. All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg       *config.Config
	providers *ProviderSet
	metrics   *observe.Metrics
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]SessionInfo
	seq      int64
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg *config.Config, providers *ProviderSet, metrics *observe.Metrics, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		cfg:       cfg,
		providers: providers,
		metrics:   metrics,
		log:       log,
		sessions:  make(map[string]SessionInfo),
	}
}

// Run executes one full duplex session over the given transport endpoints and
// blocks until the conversation ends or ctx is cancelled. notifier may be nil
// when the transport has no side channel for text updates.
func (sm *SessionManager) Run(ctx context.Context, source audio.Source, sink audio.Sink, notifier ClientNotifier, remoteAddr string) error {
	info := sm.register(remoteAddr)
	defer sm.unregister(info.SessionID)

	log := sm.log.With("session_id", info.SessionID)
	log.Info("session started", "remote_addr", remoteAddr)

	responder, err := sm.providers.NewResponder()
	if err != nil {
		return fmt.Errorf("app: session %s: %w", info.SessionID, err)
	}

	p, err := pipeline.New(source, sink, pipeline.Providers{
		VAD:         sm.providers.VAD,
		Recognizer:  sm.providers.Recognizer,
		Responder:   responder,
		Synthesizer: sm.providers.Synthesizer,
	}, sm.pipelineConfig(), sm.metrics, log)
	if err != nil {
		return fmt.Errorf("app: session %s: %w", info.SessionID, err)
	}

	events := p.Events()
	var forwarders sync.WaitGroup
	if notifier != nil {
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			sm.forwardEvents(ctx, events, notifier, log)
		}()
	}

	err = p.Run(ctx)
	forwarders.Wait()

	log.Info("session ended", "duration", time.Since(info.StartedAt).Round(time.Millisecond))
	return err
}

// Active returns a snapshot of the currently running sessions.
func (sm *SessionManager) Active() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, info := range sm.sessions {
		out = append(out, info)
	}
	return out
}

// Count returns the number of running sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

func (sm *SessionManager) register(remoteAddr string) SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.seq++
	info := SessionInfo{
		SessionID:  fmt.Sprintf("sess-%s-%d", time.Now().UTC().Format("20060102T150405Z"), sm.seq),
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now().UTC(),
	}
	sm.sessions[info.SessionID] = info
	return info
}

func (sm *SessionManager) unregister(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// forwardEvents relays pipeline events to the client until the event channel
// closes.
func (sm *SessionManager) forwardEvents(ctx context.Context, events <-chan pipeline.Event, notifier ClientNotifier, log *slog.Logger) {
	for ev := range events {
		var err error
		switch ev.Type {
		case pipeline.EventTranscript:
			err = notifier.SendTranscript(ctx, ev.Text)
		case pipeline.EventResponse:
			err = notifier.SendResponse(ctx, ev.Text)
		case pipeline.EventSessionEnded:
			err = notifier.SendExit(ctx)
		}
		if err != nil {
			log.Debug("event forwarding failed", "event", ev.Type, "error", err)
		}
	}
}

// pipelineConfig maps the server configuration onto per-session pipeline
// settings.
func (sm *SessionManager) pipelineConfig() pipeline.Config {
	cfg := sm.cfg
	return pipeline.Config{
		Segmenter: segment.Config{
			SampleRate:      cfg.Audio.SampleRate,
			FrameSamples:    cfg.Audio.FrameSamples,
			Threshold:       cfg.Segmenter.Threshold,
			SilenceTimeout:  cfg.SilenceTimeout(),
			MaxUtterance:    cfg.MaxUtterance(),
			MinSpeechFrames: cfg.Segmenter.MinSpeechFrames,
			PreRoll:         cfg.PreRoll(),
			PollInterval:    cfg.PollInterval(),
			InterimSilence:  cfg.InterimSilence(),
		},
		Playback: playback.Config{
			SampleRate:        cfg.Audio.SampleRate,
			WatchInterval:     cfg.WatchInterval(),
			InterruptionDelay: cfg.InterruptionDelay(),
		},
		FallbackPrompt: cfg.Pipeline.FallbackPrompt,
		EndPhrases:     cfg.Pipeline.EndPhrases,
	}
}
