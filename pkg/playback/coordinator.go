package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicefuture/duplex/pkg/audio"
)

// SpeechMonitor reports whether the user is currently speaking. The
// segmenter satisfies this.
type SpeechMonitor interface {
	Speaking() bool
}

// Config holds the barge-in parameters.
type Config struct {
	// SampleRate used for payload duration estimates of headerless formats.
	// Default 16000.
	SampleRate int

	// WatchInterval is how often the speech monitor is polled during
	// playback. Default 100ms.
	WatchInterval time.Duration

	// InterruptionDelay is how long speech must persist, uninterrupted,
	// before playback is aborted. Speech that stops before the delay
	// elapses resets the debounce. Default 1s.
	InterruptionDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = 100 * time.Millisecond
	}
	if c.InterruptionDelay == 0 {
		c.InterruptionDelay = time.Second
	}
}

// Coordinator serializes playback through a sink. At most one session is
// active at a time; starting a new one while another is active is a caller
// bug and returns an error.
type Coordinator struct {
	cfg     Config
	sink    audio.Sink
	monitor SpeechMonitor
	log     *slog.Logger

	// onInterrupt, when set, is invoked once per barge-in interruption.
	onInterrupt func()

	mu      sync.Mutex
	current *Session
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option is a functional option for Coordinator.
type Option func(*Coordinator)

// WithInterruptHandler registers a callback invoked whenever playback is
// aborted because of barge-in (not by an explicit Stop).
func WithInterruptHandler(fn func()) Option {
	return func(c *Coordinator) { c.onInterrupt = fn }
}

// New creates a Coordinator playing through sink and watching monitor for
// barge-in.
func New(sink audio.Sink, monitor SpeechMonitor, cfg Config, log *slog.Logger, opts ...Option) *Coordinator {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{cfg: cfg, sink: sink, monitor: monitor, log: log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Play starts playback of the payload and returns a Session that completes
// when playback finishes naturally, is interrupted by barge-in, or is stopped.
func (c *Coordinator) Play(ctx context.Context, payload []byte, format audio.PayloadFormat) (*Session, error) {
	c.mu.Lock()
	if c.current != nil && c.current.State() == StatePlaying {
		c.mu.Unlock()
		return nil, fmt.Errorf("playback: session already active")
	}

	duration := audio.PayloadDuration(payload, format, c.cfg.SampleRate)
	session := newSession(duration)

	if err := c.sink.Play(ctx, payload, format); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("playback: start: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	c.current = session
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug("playback started", "duration", duration, "format", format)
	go c.watch(watchCtx, session)

	return session, nil
}

// Stop aborts the in-flight session, if any, marking it interrupted. It is
// safe to call when nothing is playing.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	session := c.current
	cancel := c.cancel
	c.mu.Unlock()

	if session == nil || session.State() != StatePlaying {
		return nil
	}

	if session.finish(StateInterrupted) {
		c.log.Info("playback stopped")
		if err := c.sink.StopPlayback(ctx); err != nil {
			cancel()
			return fmt.Errorf("playback: stop sink: %w", err)
		}
	}
	cancel()
	return nil
}

// Wait blocks until any in-flight watcher goroutine has exited.
func (c *Coordinator) Wait() { c.wg.Wait() }

// watch waits out the playback duration while polling for barge-in.
func (c *Coordinator) watch(ctx context.Context, session *Session) {
	defer c.wg.Done()

	timer := time.NewTimer(session.Duration())
	defer timer.Stop()
	ticker := time.NewTicker(c.cfg.WatchInterval)
	defer ticker.Stop()

	// speechSince is the wall-clock moment the current uninterrupted speech
	// run began; zero means no run in progress.
	var speechSince time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			if session.finish(StateFinished) {
				c.log.Debug("playback finished")
			}
			return

		case <-ticker.C:
			if !c.monitor.Speaking() {
				speechSince = time.Time{}
				continue
			}
			if speechSince.IsZero() {
				speechSince = time.Now()
				continue
			}
			if time.Since(speechSince) < c.cfg.InterruptionDelay {
				continue
			}
			if session.finish(StateInterrupted) {
				c.log.Info("playback interrupted by speech",
					"after", time.Since(speechSince))
				if err := c.sink.StopPlayback(ctx); err != nil {
					c.log.Warn("failed to stop sink after barge-in", "error", err)
				}
				if c.onInterrupt != nil {
					c.onInterrupt()
				}
			}
			return
		}
	}
}
