package audio_test

import (
	"testing"
	"time"

	"github.com/voicefuture/duplex/pkg/audio"
)

func TestEncodeWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 32000) // 1 second at 16 kHz mono
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("encoded length = %d, want %d", len(wav), 44+len(pcm))
	}

	d, err := audio.WAVDuration(wav)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if d != time.Second {
		t.Errorf("duration = %v, want 1s", d)
	}
}

func TestWAVDurationRejectsGarbage(t *testing.T) {
	if _, err := audio.WAVDuration([]byte("definitely not a wav file")); err == nil {
		t.Fatal("expected error for non-WAV payload")
	}
}

func TestPayloadDurationFallback(t *testing.T) {
	// 8000 samples of raw PCM at 16 kHz is half a second.
	pcm := make([]byte, 16000)
	d := audio.PayloadDuration(pcm, audio.FormatPCM, 16000)
	if d != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", d)
	}

	// A corrupt WAV payload also falls back to the PCM estimate.
	d = audio.PayloadDuration(pcm, audio.FormatWAV, 16000)
	if d != 500*time.Millisecond {
		t.Errorf("corrupt-wav fallback duration = %v, want 500ms", d)
	}
}

func TestClipPCMAndDuration(t *testing.T) {
	clip := audio.Clip{
		Frames: []audio.Frame{
			{Data: make([]byte, 1024), SampleRate: 16000},
			{Data: make([]byte, 1024), SampleRate: 16000, Timestamp: 32 * time.Millisecond},
		},
		SampleRate: 16000,
	}
	if got := len(clip.PCM()); got != 2048 {
		t.Fatalf("PCM length = %d, want 2048", got)
	}
	if clip.Duration() != 64*time.Millisecond {
		t.Errorf("duration = %v, want 64ms", clip.Duration())
	}
	if clip.Empty() {
		t.Error("clip reported empty")
	}
}
