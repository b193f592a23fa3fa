package audio

import "encoding/binary"

// BytesToInt16s converts 16-bit little-endian PCM bytes to samples. A
// trailing odd byte is dropped.
func BytesToInt16s(b []byte) []int16 {
	n := len(b) / BytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16sToBytes converts samples to 16-bit little-endian PCM bytes.
func Int16sToBytes(s []int16) []byte {
	out := make([]byte, len(s)*BytesPerSample)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// StereoToMono downmixes interleaved stereo samples by averaging each pair.
func StereoToMono(stereo []int16) []int16 {
	out := make([]int16, len(stereo)/2)
	for i := range out {
		l := int32(stereo[i*2])
		r := int32(stereo[i*2+1])
		out[i] = int16((l + r) / 2)
	}
	return out
}

// ResampleMono resamples mono PCM samples from one rate to another using
// linear interpolation. It returns the input unchanged when the rates match.
func ResampleMono(in []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(in[idx])
		b := float64(in[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
