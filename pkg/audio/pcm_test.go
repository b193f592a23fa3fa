package audio_test

import (
	"testing"

	"github.com/voicefuture/duplex/pkg/audio"
)

func TestInt16Conversion(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	b := audio.Int16sToBytes(in)
	out := audio.BytesToInt16s(b)
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := []int16{100, 200, -100, 100}
	mono := audio.StereoToMono(stereo)
	if len(mono) != 2 {
		t.Fatalf("length = %d, want 2", len(mono))
	}
	if mono[0] != 150 || mono[1] != 0 {
		t.Errorf("mono = %v, want [150 0]", mono)
	}
}

func TestResampleMono(t *testing.T) {
	in := make([]int16, 480) // 10ms at 48 kHz
	for i := range in {
		in[i] = int16(i)
	}
	out := audio.ResampleMono(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("length = %d, want 160", len(out))
	}

	// Same-rate input passes through untouched.
	same := audio.ResampleMono(in, 16000, 16000)
	if len(same) != len(in) {
		t.Errorf("same-rate length = %d, want %d", len(same), len(in))
	}
}
