package audio_test

import (
	"testing"
	"time"

	"github.com/voicefuture/duplex/pkg/audio"
)

func frameAt(ts time.Duration, fill byte) audio.Frame {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = fill
	}
	return audio.Frame{Data: data, SampleRate: 16000, Timestamp: ts}
}

func TestRingCapacity(t *testing.T) {
	// 16 kHz / 512 samples = 31.25 frames/s; 15s max + 1s slack = 500 frames.
	got := audio.RingCapacity(16000, 512, 15*time.Second)
	if got < 500 {
		t.Fatalf("RingCapacity(16000, 512, 15s) = %d, want >= 500", got)
	}
}

func TestRingLatestEmpty(t *testing.T) {
	r := audio.NewRing(4)
	if _, ok := r.Latest(); ok {
		t.Fatal("Latest on empty ring reported ok")
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := audio.NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(frameAt(time.Duration(i)*32*time.Millisecond, byte(i)))
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}

	latest, ok := r.Latest()
	if !ok || latest.Data[0] != 4 {
		t.Fatalf("Latest = %v ok=%v, want frame 4", latest.Data[0], ok)
	}

	// Frames 0 and 1 were overwritten; only 2, 3, 4 remain.
	got := r.SnapshotRange(0, time.Second)
	if len(got) != 3 {
		t.Fatalf("SnapshotRange returned %d frames, want 3", len(got))
	}
	for i, f := range got {
		if f.Data[0] != byte(i+2) {
			t.Errorf("frame %d has fill %d, want %d", i, f.Data[0], i+2)
		}
	}
}

func TestRingSnapshotRangeBounds(t *testing.T) {
	r := audio.NewRing(10)
	for i := 0; i < 10; i++ {
		r.Append(frameAt(time.Duration(i)*32*time.Millisecond, byte(i)))
	}

	got := r.SnapshotRange(64*time.Millisecond, 160*time.Millisecond)
	if len(got) != 4 {
		t.Fatalf("SnapshotRange returned %d frames, want 4", len(got))
	}
	if got[0].Timestamp != 64*time.Millisecond || got[3].Timestamp != 160*time.Millisecond {
		t.Errorf("range = [%v, %v], want [64ms, 160ms]", got[0].Timestamp, got[3].Timestamp)
	}

	// Negative from clamps naturally to the start of the buffer.
	all := r.SnapshotRange(-time.Second, time.Hour)
	if len(all) != 10 {
		t.Errorf("full snapshot returned %d frames, want 10", len(all))
	}
}
