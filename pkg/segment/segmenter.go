package segment

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voicefuture/duplex/pkg/audio"
	"github.com/voicefuture/duplex/pkg/provider/vad"
)

// Config holds the segmenter's stream and segmentation parameters. Zero
// values take the defaults below, which match 16 kHz telephony-style capture.
type Config struct {
	// SampleRate of incoming frames in Hz. Default 16000.
	SampleRate int

	// FrameSamples per frame. Default 512.
	FrameSamples int

	// Threshold is the minimum VAD score treated as speech. Default 0.3.
	Threshold float64

	// SilenceTimeout ends an utterance after this much continuous silence.
	// Default 1s.
	SilenceTimeout time.Duration

	// MaxUtterance force-ends an utterance at this duration. Default 15s.
	MaxUtterance time.Duration

	// MinSpeechFrames discards utterances whose extracted clip, pre-roll
	// included, has fewer frames. Default 6 (~200ms at the default stream
	// parameters).
	MinSpeechFrames int

	// PreRoll is how much audio before the detected speech start to include
	// in the clip. Default 500ms.
	PreRoll time.Duration

	// PollInterval is how often the ring buffer is checked for a new frame.
	// Must be shorter than one frame duration to avoid missing frames.
	// Default 10ms.
	PollInterval time.Duration

	// InterimSilence, when positive, emits one interim clip per utterance
	// once a silence run lasts this long without yet ending the utterance.
	// Default 0 (disabled).
	InterimSilence time.Duration
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FrameSamples == 0 {
		c.FrameSamples = 512
	}
	if c.Threshold == 0 {
		c.Threshold = 0.3
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = time.Second
	}
	if c.MaxUtterance == 0 {
		c.MaxUtterance = 15 * time.Second
	}
	if c.MinSpeechFrames == 0 {
		c.MinSpeechFrames = 6
	}
	if c.PreRoll == 0 {
		c.PreRoll = 500 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Millisecond
	}
}

// Segmenter polls a ring buffer for newly captured frames, scores them with
// a VAD session, and emits utterance clips.
//
// A zero-frame clip on Clips signals a discarded utterance: speech started
// but the extracted clip had too few frames to be usable.
type Segmenter struct {
	cfg  Config
	ring *audio.Ring
	sess vad.SessionHandle
	det  *Detector
	log  *slog.Logger

	started  chan time.Duration
	clips    chan audio.Clip
	interims chan audio.Clip

	speaking atomic.Bool
}

// New creates a Segmenter reading from ring and scoring with a fresh session
// from engine.
func New(ring *audio.Ring, engine vad.Engine, cfg Config, log *slog.Logger) (*Segmenter, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = slog.Default()
	}

	sess, err := engine.NewSession(vad.Config{
		SampleRate:   cfg.SampleRate,
		FrameSamples: cfg.FrameSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("segment: create vad session: %w", err)
	}

	return &Segmenter{
		cfg:  cfg,
		ring: ring,
		sess: sess,
		det: NewDetector(DetectorConfig{
			Threshold:      cfg.Threshold,
			SilenceTimeout: cfg.SilenceTimeout,
			MaxUtterance:   cfg.MaxUtterance,
		}),
		log:      log,
		started:  make(chan time.Duration, 1),
		clips:    make(chan audio.Clip, 1),
		interims: make(chan audio.Clip, 1),
	}, nil
}

// Started returns a channel that receives the start timestamp of each
// detected utterance. Notifications are dropped if the receiver lags.
func (s *Segmenter) Started() <-chan time.Duration { return s.started }

// Clips returns the channel of completed utterance clips. A clip with no
// frames means the utterance was discarded as too short.
func (s *Segmenter) Clips() <-chan audio.Clip { return s.clips }

// Interims returns the channel of interim clips, emitted at most once per
// utterance during a pause that has not yet ended it. Emissions are dropped
// if the receiver lags.
func (s *Segmenter) Interims() <-chan audio.Clip { return s.interims }

// Speaking reports whether the most recently scored frame was speech. The
// playback coordinator polls this for barge-in detection.
func (s *Segmenter) Speaking() bool { return s.speaking.Load() }

// Run polls the ring buffer until ctx is done, emitting clips as utterances
// complete. It closes all output channels and the VAD session on return.
func (s *Segmenter) Run(ctx context.Context) error {
	defer close(s.started)
	defer close(s.clips)
	defer close(s.interims)
	defer s.sess.Close()

	frameBytes := s.cfg.FrameSamples * audio.BytesPerSample
	lastSeen := time.Duration(-1)
	interimSent := false

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, ok := s.ring.Latest()
		if !ok || frame.Timestamp == lastSeen {
			continue
		}
		lastSeen = frame.Timestamp

		if len(frame.Data) != frameBytes {
			s.log.Debug("skipping frame with unexpected size",
				"got_bytes", len(frame.Data), "want_bytes", frameBytes)
			continue
		}

		score, err := s.sess.Score(frame.Data)
		if err != nil {
			s.log.Warn("vad scoring failed, treating frame as silence", "error", err)
			score = 0
		}
		s.speaking.Store(score >= s.cfg.Threshold)

		tr, win := s.det.Observe(frame.Timestamp, score)
		switch tr {
		case TransitionStarted:
			interimSent = false
			select {
			case s.started <- frame.Timestamp:
			default:
			}

		case TransitionEnded:
			s.speaking.Store(false)
			s.sess.Reset()

			// The minimum-length check runs on the extracted clip, pre-roll
			// included, not on the speech-scored frame count.
			clip := audio.Clip{
				Frames:     s.ring.SnapshotRange(win.Start-s.cfg.PreRoll, win.End),
				SampleRate: s.cfg.SampleRate,
			}
			if len(clip.Frames) < s.cfg.MinSpeechFrames {
				s.log.Debug("discarding short utterance",
					"frames", len(clip.Frames), "min", s.cfg.MinSpeechFrames)
				clip.Frames = nil
			} else {
				s.log.Info("utterance captured",
					"start", win.Start, "end", win.End,
					"frames", len(clip.Frames), "maxed_out", win.MaxedOut)
			}

			select {
			case s.clips <- clip:
			case <-ctx.Done():
				return ctx.Err()
			}

		case TransitionNone:
			if s.cfg.InterimSilence > 0 && !interimSent && s.det.Phase() == PhaseConfirming {
				if frame.Timestamp-s.det.SilenceStart() >= s.cfg.InterimSilence {
					interimSent = true
					clip := audio.Clip{
						Frames:     s.ring.SnapshotRange(s.det.SpeechStart()-s.cfg.PreRoll, frame.Timestamp),
						SampleRate: s.cfg.SampleRate,
					}
					select {
					case s.interims <- clip:
					default:
					}
				}
			}
		}
	}
}
