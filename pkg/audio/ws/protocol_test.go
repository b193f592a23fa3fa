package ws

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/voicefuture/duplex/pkg/audio"
)

func marshal(t *testing.T, env Envelope) string {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return string(b)
}

func TestEnvelopeWireShapes(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want string
	}{
		{
			name: "stop audio command",
			env:  commandEnvelope(CommandStopAudio),
			want: `{"type":"command","payload":{"value":"STOP_AUDIO"}}`,
		},
		{
			name: "transcript text",
			env:  textEnvelope(SubtypeSTT, "hello"),
			want: `{"type":"data","payload":{"type":"text","subtype":"stt","value":"hello"}}`,
		},
		{
			name: "stage latency",
			env:  timestampEnvelope(SubtypeLLM, 0.25),
			want: `{"type":"data","payload":{"type":"timestamp","subtype":"llm","value":0.25}}`,
		},
		{
			name: "audio metadata",
			env:  audioMetadataEnvelope("audio/wav"),
			want: `{"type":"audio","payload":{"type":"audio_metadata","mime_type":"audio/wav"}}`,
		},
		{
			name: "error",
			env:  errorEnvelope("boom"),
			want: `{"type":"error","payload":{"value":"boom"}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := marshal(t, tc.env); got != tc.want {
				t.Errorf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	cc, err := parseConfig([]byte(`{"type":"config","payload":{"codec":"opus","sample_rate":48000,"channels":2}}`))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cc.Codec != CodecOpus || cc.SampleRate != 48000 || cc.Channels != 2 {
		t.Errorf("config = %+v", cc)
	}

	if _, err := parseConfig([]byte(`{"type":"config","payload":{"codec":"flac"}}`)); err == nil {
		t.Error("unknown codec accepted")
	}
	if _, err := parseConfig([]byte(`{"type":"command","payload":{"value":"EXIT"}}`)); err == nil {
		t.Error("non-config message accepted as config")
	}
	if _, err := parseConfig([]byte(`not json`)); err == nil {
		t.Error("malformed message accepted as config")
	}
}

// testConn builds a Conn without a live WebSocket, enough to exercise ingest.
func testConn(cfg Config, client ClientConfig) *Conn {
	cfg.applyDefaults()
	return &Conn{
		cfg:    cfg,
		client: client,
		log:    slog.Default(),
		frames: make(chan audio.Frame, cfg.FrameBuffer),
	}
}

func TestIngestChunksAcrossMessages(t *testing.T) {
	c := testConn(Config{SampleRate: 16000, FrameSamples: 512}, ClientConfig{})

	// 1500 bytes completes one 1024-byte frame and leaves a remainder.
	c.ingest(make([]byte, 1500))
	if got := len(c.frames); got != 1 {
		t.Fatalf("frames after first message = %d, want 1", got)
	}

	// 600 more bytes completes the second frame from the remainder.
	c.ingest(make([]byte, 600))
	if got := len(c.frames); got != 2 {
		t.Fatalf("frames after second message = %d, want 2", got)
	}

	first := <-c.frames
	second := <-c.frames
	if first.Timestamp != 0 {
		t.Errorf("first frame timestamp = %v, want 0", first.Timestamp)
	}
	if want := 32 * time.Millisecond; second.Timestamp != want {
		t.Errorf("second frame timestamp = %v, want %v", second.Timestamp, want)
	}
	if len(first.Data) != 1024 || first.SampleRate != 16000 {
		t.Errorf("frame = %d bytes at %d Hz", len(first.Data), first.SampleRate)
	}
}

func TestIngestResamplesClientRate(t *testing.T) {
	c := testConn(Config{SampleRate: 16000, FrameSamples: 512},
		ClientConfig{Codec: CodecPCM, SampleRate: 32000, Channels: 1})

	// 1024 samples at 32 kHz resample to exactly one 512-sample frame.
	c.ingest(make([]byte, 2048))
	if got := len(c.frames); got != 1 {
		t.Fatalf("frames = %d, want 1", got)
	}
	if f := <-c.frames; len(f.Data) != 1024 {
		t.Errorf("frame size = %d, want 1024", len(f.Data))
	}
}

func TestIngestDownmixesStereo(t *testing.T) {
	c := testConn(Config{SampleRate: 16000, FrameSamples: 512},
		ClientConfig{Codec: CodecPCM, SampleRate: 16000, Channels: 2})

	// 512 interleaved stereo sample pairs downmix to one mono frame.
	c.ingest(make([]byte, 2048))
	if got := len(c.frames); got != 1 {
		t.Fatalf("frames = %d, want 1", got)
	}
}

func TestIsPlayingExpiresWithPayload(t *testing.T) {
	c := testConn(Config{}, ClientConfig{})

	if c.IsPlaying() {
		t.Fatal("fresh connection reports playing")
	}

	c.markPlaying(20 * time.Millisecond)
	if !c.IsPlaying() {
		t.Fatal("not playing right after audio was sent")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatal("still playing long after the payload duration elapsed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A stop must end the window early even with a long payload outstanding.
	c.markPlaying(time.Hour)
	c.playing.Store(false)
	if c.IsPlaying() {
		t.Fatal("playing after stop")
	}
}

func TestIngestDropsOldestWhenQueueFull(t *testing.T) {
	c := testConn(Config{SampleRate: 16000, FrameSamples: 512, FrameBuffer: 1}, ClientConfig{})

	c.ingest(make([]byte, 3*1024))
	if got := len(c.frames); got != 1 {
		t.Fatalf("frames = %d, want 1", got)
	}
	if f := <-c.frames; f.Timestamp != 2*32*time.Millisecond {
		t.Errorf("surviving frame timestamp = %v, want the newest", f.Timestamp)
	}
}
