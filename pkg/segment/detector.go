// Package segment turns a stream of per-frame speech scores into discrete
// utterances. The Detector is a pure state machine driven by frame timestamps
// and scores; the Segmenter wraps it with ring-buffer polling and clip
// extraction.
package segment

import "time"

// Phase is the detector's current view of the stream.
type Phase int

const (
	// PhaseSilence means no utterance is in progress.
	PhaseSilence Phase = iota

	// PhaseSpeech means an utterance is in progress and the last frame
	// scored as speech.
	PhaseSpeech

	// PhaseConfirming means an utterance is in progress but recent frames
	// scored as silence; the utterance ends once the silence persists for
	// the configured timeout, and reverts to PhaseSpeech if speech resumes
	// first.
	PhaseConfirming
)

// Transition is the outcome of observing one frame.
type Transition int

const (
	// TransitionNone means the phase did not cross an utterance boundary.
	TransitionNone Transition = iota

	// TransitionStarted means a new utterance began at this frame.
	TransitionStarted

	// TransitionEnded means the in-progress utterance ended; the Window
	// returned alongside describes it.
	TransitionEnded
)

// Window describes one completed utterance.
type Window struct {
	// Start is the timestamp of the first speech frame.
	Start time.Duration

	// End is the timestamp where speech stopped: the first frame of the
	// confirming silence run, or the frame that hit the utterance cap.
	End time.Duration

	// SpeechFrames counts frames that scored at or above the threshold.
	SpeechFrames int

	// MaxedOut is true when the utterance was force-ended by MaxUtterance
	// rather than by silence.
	MaxedOut bool
}

// DetectorConfig holds the segmentation thresholds.
type DetectorConfig struct {
	// Threshold is the minimum score treated as speech.
	Threshold float64

	// SilenceTimeout is how long silence must persist to end an utterance.
	SilenceTimeout time.Duration

	// MaxUtterance force-ends an utterance that exceeds this duration.
	MaxUtterance time.Duration
}

// Detector is the segmentation state machine. It is driven purely by frame
// timestamps, never by wall-clock time, so identical input always produces
// identical output. It is not safe for concurrent use.
type Detector struct {
	cfg DetectorConfig

	phase        Phase
	speechStart  time.Duration
	silenceStart time.Duration
	speechFrames int
}

// NewDetector creates a Detector in PhaseSilence.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase { return d.phase }

// SpeechStart returns the start timestamp of the in-progress utterance.
// Only meaningful outside PhaseSilence.
func (d *Detector) SpeechStart() time.Duration { return d.speechStart }

// SilenceStart returns the timestamp where the current confirming silence
// run began. Only meaningful in PhaseConfirming.
func (d *Detector) SilenceStart() time.Duration { return d.silenceStart }

// Reset returns the detector to PhaseSilence, abandoning any in-progress
// utterance.
func (d *Detector) Reset() {
	d.phase = PhaseSilence
	d.speechStart = 0
	d.silenceStart = 0
	d.speechFrames = 0
}

// Observe feeds one frame's timestamp and score to the state machine and
// reports any utterance boundary it crossed. Timestamps must be monotonically
// increasing.
func (d *Detector) Observe(ts time.Duration, score float64) (Transition, Window) {
	speech := score >= d.cfg.Threshold

	switch d.phase {
	case PhaseSilence:
		if !speech {
			return TransitionNone, Window{}
		}
		d.phase = PhaseSpeech
		d.speechStart = ts
		d.speechFrames = 1
		return TransitionStarted, Window{}

	case PhaseSpeech:
		if speech {
			d.speechFrames++
			if d.maxedOut(ts) {
				return d.end(Window{Start: d.speechStart, End: ts, SpeechFrames: d.speechFrames, MaxedOut: true})
			}
			return TransitionNone, Window{}
		}
		d.phase = PhaseConfirming
		d.silenceStart = ts
		if d.maxedOut(ts) {
			return d.end(Window{Start: d.speechStart, End: ts, SpeechFrames: d.speechFrames, MaxedOut: true})
		}
		return TransitionNone, Window{}

	case PhaseConfirming:
		if speech {
			d.phase = PhaseSpeech
			d.speechFrames++
			if d.maxedOut(ts) {
				return d.end(Window{Start: d.speechStart, End: ts, SpeechFrames: d.speechFrames, MaxedOut: true})
			}
			return TransitionNone, Window{}
		}
		if ts-d.silenceStart >= d.cfg.SilenceTimeout {
			return d.end(Window{Start: d.speechStart, End: d.silenceStart, SpeechFrames: d.speechFrames})
		}
		if d.maxedOut(ts) {
			return d.end(Window{Start: d.speechStart, End: d.silenceStart, SpeechFrames: d.speechFrames, MaxedOut: true})
		}
		return TransitionNone, Window{}
	}

	return TransitionNone, Window{}
}

func (d *Detector) maxedOut(ts time.Duration) bool {
	return d.cfg.MaxUtterance > 0 && ts-d.speechStart >= d.cfg.MaxUtterance
}

func (d *Detector) end(w Window) (Transition, Window) {
	d.Reset()
	return TransitionEnded, w
}
