package elevenlabs

import (
	"testing"

	"github.com/voicefuture/duplex/pkg/audio"
)

func TestOutputFormatInfo(t *testing.T) {
	cases := []struct {
		in     string
		format audio.PayloadFormat
		rate   int
	}{
		{"pcm_16000", audio.FormatPCM, 16000},
		{"pcm_24000", audio.FormatPCM, 24000},
		{"mp3_44100_128", audio.FormatMP3, 0},
		{"something_else", audio.FormatPCM, 16000},
	}
	for _, c := range cases {
		format, rate := outputFormatInfo(c.in)
		if format != c.format || rate != c.rate {
			t.Errorf("outputFormatInfo(%q) = (%v, %d), want (%v, %d)",
				c.in, format, rate, c.format, c.rate)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "voice"); err == nil {
		t.Error("empty apiKey accepted")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("empty voiceID accepted")
	}
}
