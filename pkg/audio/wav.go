package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeWAV wraps raw 16-bit little-endian PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * BytesPerSample)
	blockAlign := uint16(channels * BytesPerSample)

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(16)) // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}

// WAVDuration parses the header of a RIFF/WAVE payload and returns the
// duration of its data chunk.
func WAVDuration(payload []byte) (time.Duration, error) {
	if len(payload) < 12 || string(payload[0:4]) != "RIFF" || string(payload[8:12]) != "WAVE" {
		return 0, fmt.Errorf("audio: not a RIFF/WAVE payload")
	}

	var byteRate uint32
	pos := 12
	for pos+8 <= len(payload) {
		id := string(payload[pos : pos+4])
		size := binary.LittleEndian.Uint32(payload[pos+4 : pos+8])
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(payload) {
				return 0, fmt.Errorf("audio: truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(payload[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), nil
		}

		pos = body + int(size)
		if size%2 == 1 {
			pos++
		}
	}
	return 0, fmt.Errorf("audio: no data chunk found")
}

// PayloadDuration estimates the playback duration of a synthesized payload.
// WAV payloads are measured from their header; anything else falls back to
// treating the payload as raw 16-bit mono PCM at sampleRate, which is the
// conservative estimate used to schedule playback completion.
func PayloadDuration(payload []byte, format PayloadFormat, sampleRate int) time.Duration {
	if format == FormatWAV {
		if d, err := WAVDuration(payload); err == nil {
			return d
		}
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	samples := len(payload) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
