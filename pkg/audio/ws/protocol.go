// Package ws provides a browser-facing WebSocket audio transport. A single
// connection carries both directions of a duplex session: the client streams
// microphone audio as binary messages, and the server sends synthesized audio
// plus JSON control messages back.
//
// The text protocol uses one envelope shape for every message:
//
//	{"type": "<kind>", "payload": {...}}
//
// Kinds are "config" (client hello), "command" (EXIT, STOP_AUDIO), "data"
// (text and timestamp updates), "audio" (metadata preceding a binary audio
// message), and "error".
package ws

import (
	"encoding/json"
	"fmt"
)

// Message kinds.
const (
	TypeConfig  = "config"
	TypeCommand = "command"
	TypeData    = "data"
	TypeAudio   = "audio"
	TypeError   = "error"
)

// Commands sent to the client.
const (
	// CommandExit tells the client the session is over.
	CommandExit = "EXIT"

	// CommandStopAudio tells the client to abort the audio it is playing.
	CommandStopAudio = "STOP_AUDIO"
)

// Data payload types.
const (
	PayloadText          = "text"
	PayloadTimestamp     = "timestamp"
	PayloadAudioMetadata = "audio_metadata"
)

// Text and timestamp subtypes identify which pipeline stage a data message
// belongs to.
const (
	SubtypeSTT    = "stt"
	SubtypeLLM    = "llm"
	SubtypeTTS    = "tts"
	SubtypeOutput = "output"
)

// Envelope is the wire shape of every text message in either direction.
type Envelope struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Payload carries the kind-specific fields of an Envelope. Unused fields are
// omitted from the encoded JSON.
type Payload struct {
	Type     string          `json:"type,omitempty"`
	Subtype  string          `json:"subtype,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	MimeType string          `json:"mime_type,omitempty"`

	// Client config fields, present only on TypeConfig messages.
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// ClientConfig describes the audio the client will stream. The zero value
// means 16-bit PCM at the server's pipeline rate, mono.
type ClientConfig struct {
	// Codec is "pcm" or "opus". Empty means pcm.
	Codec string

	// SampleRate of the client's audio in Hz. Zero means the server rate.
	SampleRate int

	// Channels is 1 or 2. Zero means mono.
	Channels int
}

// Codec names accepted in a config message.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// commandEnvelope builds a command message.
func commandEnvelope(command string) Envelope {
	return Envelope{
		Type:    TypeCommand,
		Payload: Payload{Value: mustRaw(command)},
	}
}

// textEnvelope builds a data/text message for the given stage subtype.
func textEnvelope(subtype, text string) Envelope {
	return Envelope{
		Type: TypeData,
		Payload: Payload{
			Type:    PayloadText,
			Subtype: subtype,
			Value:   mustRaw(text),
		},
	}
}

// timestampEnvelope builds a data/timestamp message carrying a stage latency
// in seconds.
func timestampEnvelope(subtype string, seconds float64) Envelope {
	return Envelope{
		Type: TypeData,
		Payload: Payload{
			Type:    PayloadTimestamp,
			Subtype: subtype,
			Value:   mustRaw(seconds),
		},
	}
}

// audioMetadataEnvelope builds the metadata message that precedes each binary
// audio message.
func audioMetadataEnvelope(mimeType string) Envelope {
	return Envelope{
		Type: TypeAudio,
		Payload: Payload{
			Type:     PayloadAudioMetadata,
			MimeType: mimeType,
		},
	}
}

// errorEnvelope builds an error message.
func errorEnvelope(message string) Envelope {
	return Envelope{
		Type:    TypeError,
		Payload: Payload{Value: mustRaw(message)},
	}
}

// parseConfig decodes a client config message. It returns an error when the
// message is not a well-formed config envelope or names an unknown codec.
func parseConfig(data []byte) (ClientConfig, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientConfig{}, fmt.Errorf("ws: decode message: %w", err)
	}
	if env.Type != TypeConfig {
		return ClientConfig{}, fmt.Errorf("ws: expected %q message, got %q", TypeConfig, env.Type)
	}

	cc := ClientConfig{
		Codec:      env.Payload.Codec,
		SampleRate: env.Payload.SampleRate,
		Channels:   env.Payload.Channels,
	}
	switch cc.Codec {
	case "", CodecPCM, CodecOpus:
	default:
		return ClientConfig{}, fmt.Errorf("ws: unsupported codec %q", cc.Codec)
	}
	if cc.Channels < 0 || cc.Channels > 2 {
		return ClientConfig{}, fmt.Errorf("ws: unsupported channel count %d", cc.Channels)
	}
	return cc, nil
}

// mustRaw marshals a primitive value into a RawMessage. The inputs are
// strings and floats, which cannot fail to marshal.
func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic("ws: marshal primitive: " + err.Error())
	}
	return b
}
