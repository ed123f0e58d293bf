package audio

import "encoding/binary"

const wavHeaderSize = 44

// EncodeWAV serializes a buffer to a standard uncompressed 16-bit PCM WAV
// file: 44-byte RIFF header followed by interleaved little-endian samples.
// Any standard player can open the output.
func EncodeWAV(b *Buffer) []byte {
	samples := Interleave(b.Data)
	dataSize := len(samples) * 2

	channels := b.Channels()
	byteRate := b.SampleRate * channels * 2
	blockAlign := channels * 2

	out := make([]byte, wavHeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // format tag: PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], BitDepth)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(s))
	}
	return out
}
