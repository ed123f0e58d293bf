package audio

import (
	"encoding/base64"
	"encoding/binary"
)

// Decode converts a base64 wire payload to raw bytes.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Encode converts raw bytes to the base64 wire representation.
// Decode(Encode(b)) is byte-exact for any b.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodePCM16 interprets data as signed 16-bit little-endian PCM interleaved
// by channel, normalizes each sample by 1/32768, and de-interleaves into a
// Buffer labeled with the caller-asserted rate and channel count.
//
// Bytes beyond the last whole interleaved frame are truncated. A payload
// that truncates to zero frames yields a single-sample silent buffer --
// malformed chunks must never take the pipeline down.
func DecodePCM16(data []byte, sampleRate, channels int) *Buffer {
	if channels < 1 {
		channels = 1
	}

	bytesPerFrame := 2 * channels
	frames := len(data) / bytesPerFrame
	if frames == 0 {
		return NewBuffer(channels, 1, sampleRate)
	}

	const scale = 1.0 / 32768.0
	buf := NewBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		base := i * bytesPerFrame
		for ch := 0; ch < channels; ch++ {
			s := int16(binary.LittleEndian.Uint16(data[base+2*ch : base+2*ch+2]))
			buf.Data[ch][i] = float64(s) * scale
		}
	}
	return buf
}

// Interleave converts per-channel float64 samples into interleaved int16,
// clamping to [-1, 1] and scaling asymmetrically (32767 positive, 32768
// negative) so full-scale negative samples map to -32768 exactly.
func Interleave(data [][]float64) []int16 {
	if len(data) == 0 {
		return nil
	}
	channels := len(data)
	frames := len(data[0])

	out := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = floatToInt16(data[ch][i])
		}
	}
	return out
}

func floatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v >= 0 {
		return int16(v * 32767)
	}
	return int16(v * 32768)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
