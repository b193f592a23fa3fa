package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/voicefuture/duplex/pkg/audio"
)

// Compile-time assertions.
var (
	_ audio.Source = (*Conn)(nil)
	_ audio.Sink   = (*Conn)(nil)
)

// opusFrameMs is the packet duration clients must use when streaming Opus.
const opusFrameMs = 20

// Config holds the server-side stream parameters for a connection.
type Config struct {
	// SampleRate of the frames handed to the pipeline. Default 16000.
	SampleRate int

	// FrameSamples per frame handed to the pipeline. Default 512.
	FrameSamples int

	// FrameBuffer is the capacity of the inbound frame queue. When the
	// pipeline falls behind, the oldest queued frames are dropped. Default 256.
	FrameBuffer int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FrameSamples == 0 {
		c.FrameSamples = 512
	}
	if c.FrameBuffer == 0 {
		c.FrameBuffer = 256
	}
}

// Conn adapts one WebSocket connection into an [audio.Source] and
// [audio.Sink] pair for a duplex session. Inbound binary messages are
// re-chunked into fixed-size PCM frames; outbound audio is announced with a
// metadata message and then sent as one binary message.
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	client ClientConfig
	log    *slog.Logger

	// dec is non-nil when the client streams Opus.
	dec *gopus.Decoder

	frames chan audio.Frame

	// pending accumulates decoded PCM until a full frame is available.
	// Owned by readLoop.
	pending  []byte
	frameIdx int64

	writeMu sync.Mutex

	// playing plus playUntil approximate the client-side playback window;
	// the client never reports completion, so the payload duration stands in
	// for it.
	playing   atomic.Bool
	playUntil atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Accept performs the session handshake on an already-upgraded WebSocket
// connection and starts reading audio. The first client message must be a
// config envelope; a malformed one is answered with an error message and
// default settings are used.
func Accept(ctx context.Context, conn *websocket.Conn, cfg Config, log *slog.Logger) (*Conn, error) {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	c := &Conn{
		ws:     conn,
		cfg:    cfg,
		log:    log,
		frames: make(chan audio.Frame, cfg.FrameBuffer),
	}

	if err := c.handshake(ctx); err != nil {
		return nil, err
	}

	go c.readLoop(context.WithoutCancel(ctx))
	return c, nil
}

// handshake reads and applies the client's config message.
func (c *Conn) handshake(ctx context.Context) error {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return fmt.Errorf("ws: read config: %w", err)
	}
	if typ != websocket.MessageText {
		c.log.Warn("first client message was not a config, using defaults")
		_ = c.writeEnvelope(ctx, errorEnvelope("expected config message, using defaults"))
		c.ingest(data)
		return nil
	}

	cc, err := parseConfig(data)
	if err != nil {
		c.log.Warn("invalid client config, using defaults", "error", err)
		_ = c.writeEnvelope(ctx, errorEnvelope("invalid config, using defaults"))
		return nil
	}

	if cc.SampleRate == 0 {
		cc.SampleRate = c.cfg.SampleRate
	}
	if cc.Channels == 0 {
		cc.Channels = 1
	}
	if cc.Codec == CodecOpus {
		dec, err := gopus.NewDecoder(cc.SampleRate, cc.Channels)
		if err != nil {
			_ = c.writeEnvelope(ctx, errorEnvelope("failed to initialize opus decoder"))
			return fmt.Errorf("ws: create opus decoder: %w", err)
		}
		c.dec = dec
	}
	c.client = cc
	c.log.Info("client configured",
		"codec", cc.Codec, "sample_rate", cc.SampleRate, "channels", cc.Channels)
	return nil
}

// readLoop pumps inbound messages until the connection drops. Binary messages
// carry audio; text messages carry client commands.
func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.frames)
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.log.Info("client closed connection")
			} else if !errors.Is(err, context.Canceled) {
				c.log.Warn("connection read failed", "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			c.ingest(data)
		case websocket.MessageText:
			c.handleText(data)
		}
	}
}

// ingest decodes one inbound audio message into pipeline-rate mono PCM and
// emits as many full frames as it completes.
func (c *Conn) ingest(data []byte) {
	pcm, err := c.decode(data)
	if err != nil {
		c.log.Warn("dropping undecodable audio message", "error", err)
		return
	}
	c.pending = append(c.pending, pcm...)

	frameBytes := c.cfg.FrameSamples * audio.BytesPerSample
	frameDur := time.Duration(c.cfg.FrameSamples) * time.Second / time.Duration(c.cfg.SampleRate)

	for len(c.pending) >= frameBytes {
		frame := audio.Frame{
			Data:       append([]byte(nil), c.pending[:frameBytes]...),
			SampleRate: c.cfg.SampleRate,
			Timestamp:  time.Duration(c.frameIdx) * frameDur,
		}
		c.pending = c.pending[frameBytes:]
		c.frameIdx++

		select {
		case c.frames <- frame:
		default:
			// Queue full: drop the oldest frame to keep capture real-time.
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- frame:
			default:
			}
		}
	}
}

// decode converts one inbound audio message to mono PCM at the pipeline rate.
func (c *Conn) decode(data []byte) ([]byte, error) {
	var samples []int16
	if c.dec != nil {
		frameSize := c.client.SampleRate * opusFrameMs / 1000
		pcm, err := c.dec.Decode(data, frameSize, false)
		if err != nil {
			return nil, fmt.Errorf("ws: opus decode: %w", err)
		}
		samples = pcm
	} else {
		samples = audio.BytesToInt16s(data)
	}

	if c.client.Channels == 2 {
		samples = audio.StereoToMono(samples)
	}
	if c.client.SampleRate != 0 && c.client.SampleRate != c.cfg.SampleRate {
		samples = audio.ResampleMono(samples, c.client.SampleRate, c.cfg.SampleRate)
	}
	return audio.Int16sToBytes(samples), nil
}

// handleText processes client text messages after the handshake. Only the
// EXIT command is meaningful; everything else is ignored.
func (c *Conn) handleText(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("ignoring malformed client message", "error", err)
		return
	}
	if env.Type != TypeCommand {
		return
	}
	var command string
	if err := json.Unmarshal(env.Payload.Value, &command); err != nil {
		return
	}
	if command == CommandExit {
		c.log.Info("client requested exit")
		_ = c.Close()
	}
}

// NextFrame implements [audio.Source]. It returns io.EOF once the connection
// has closed and all buffered frames are consumed.
func (c *Conn) NextFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case f, ok := <-c.frames:
		if !ok {
			return audio.Frame{}, io.EOF
		}
		return f, nil
	}
}

// Stop implements [audio.Source] by closing the connection.
func (c *Conn) Stop() error {
	return c.Close()
}

// Play implements [audio.Sink]: it announces the payload with an audio
// metadata message, then sends the payload as a binary message. The client is
// responsible for actual playback timing.
func (c *Conn) Play(ctx context.Context, payload []byte, format audio.PayloadFormat) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.writeEnvelopeLocked(ctx, audioMetadataEnvelope(format.MIME())); err != nil {
		return fmt.Errorf("ws: send audio metadata: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageBinary, payload); err != nil {
		return fmt.Errorf("ws: send audio: %w", err)
	}
	c.markPlaying(audio.PayloadDuration(payload, format, c.cfg.SampleRate))
	return nil
}

// markPlaying records the window during which IsPlaying reports true.
func (c *Conn) markPlaying(d time.Duration) {
	c.playUntil.Store(time.Now().Add(d).UnixNano())
	c.playing.Store(true)
}

// StopPlayback implements [audio.Sink] by telling the client to abort the
// audio it is playing.
func (c *Conn) StopPlayback(ctx context.Context) error {
	c.playing.Store(false)
	if err := c.writeEnvelope(ctx, commandEnvelope(CommandStopAudio)); err != nil {
		return fmt.Errorf("ws: send stop command: %w", err)
	}
	return nil
}

// IsPlaying implements [audio.Sink]. It turns false once the payload's
// estimated duration has elapsed or StopPlayback is called.
func (c *Conn) IsPlaying() bool {
	return c.playing.Load() && time.Now().UnixNano() < c.playUntil.Load()
}

// SendTranscript forwards a recognized transcript to the client.
func (c *Conn) SendTranscript(ctx context.Context, text string) error {
	return c.writeEnvelope(ctx, textEnvelope(SubtypeSTT, text))
}

// SendResponse forwards the assistant's reply text to the client.
func (c *Conn) SendResponse(ctx context.Context, text string) error {
	return c.writeEnvelope(ctx, textEnvelope(SubtypeOutput, text))
}

// SendLatency reports a stage latency (in seconds) to the client. Subtype
// should be one of SubtypeSTT, SubtypeLLM, SubtypeTTS.
func (c *Conn) SendLatency(ctx context.Context, subtype string, seconds float64) error {
	return c.writeEnvelope(ctx, timestampEnvelope(subtype, seconds))
}

// SendError forwards a recoverable error description to the client.
func (c *Conn) SendError(ctx context.Context, message string) error {
	return c.writeEnvelope(ctx, errorEnvelope(message))
}

// SendExit tells the client the session is over. It does not close the
// connection; use Close for that.
func (c *Conn) SendExit(ctx context.Context) error {
	return c.writeEnvelope(ctx, commandEnvelope(CommandExit))
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close(websocket.StatusNormalClosure, "session complete")
	})
	return c.closeErr
}

func (c *Conn) writeEnvelope(ctx context.Context, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeEnvelopeLocked(ctx, env)
}

func (c *Conn) writeEnvelopeLocked(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ws: marshal envelope: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, b)
}
