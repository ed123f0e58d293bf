package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x00},
		{0xff, 0x00, 0x7f, 0x80},
		bytes.Repeat([]byte{0xab}, 1000),
	}
	for _, p := range payloads {
		got, err := Decode(Encode(p))
		if err != nil {
			t.Fatalf("Decode(Encode(%d bytes)): %v", len(p), err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip changed payload of %d bytes", len(p))
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not base64!!!"); err == nil {
		t.Error("Decode accepted invalid base64")
	}
}

func TestDecodePCM16(t *testing.T) {
	// Two stereo frames: (32767, -32768), (0, 16384)
	raw := make([]byte, 8)
	minSample := int16(-32768)
	binary.LittleEndian.PutUint16(raw[0:], uint16(int16(32767)))
	binary.LittleEndian.PutUint16(raw[2:], uint16(minSample))
	binary.LittleEndian.PutUint16(raw[4:], 0)
	binary.LittleEndian.PutUint16(raw[6:], 16384)

	buf := DecodePCM16(raw, 48000, 2)
	if buf.Channels() != 2 {
		t.Fatalf("Channels = %d, want 2", buf.Channels())
	}
	if buf.Len() != 2 {
		t.Fatalf("Len = %d, want 2", buf.Len())
	}
	if buf.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", buf.SampleRate)
	}

	checks := []struct {
		ch, i int
		want  float64
	}{
		{0, 0, 32767.0 / 32768.0},
		{1, 0, -1.0},
		{0, 1, 0},
		{1, 1, 0.5},
	}
	for _, c := range checks {
		if got := buf.Data[c.ch][c.i]; got != c.want {
			t.Errorf("Data[%d][%d] = %v, want %v", c.ch, c.i, got, c.want)
		}
	}
}

func TestDecodePCM16TruncatesPartialFrame(t *testing.T) {
	// 6 bytes at 2 channels = 1 whole frame + 2 leftover bytes
	raw := make([]byte, 6)
	buf := DecodePCM16(raw, 48000, 2)
	if buf.Len() != 1 {
		t.Errorf("Len = %d, want 1 (partial frame truncated)", buf.Len())
	}
}

func TestDecodePCM16EmptyPayload(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x01}} {
		buf := DecodePCM16(raw, 48000, 2)
		if buf.Len() != 1 {
			t.Errorf("%d bytes: Len = %d, want 1 (silent)", len(raw), buf.Len())
		}
		for ch := range buf.Data {
			if buf.Data[ch][0] != 0 {
				t.Errorf("%d bytes: channel %d not silent", len(raw), ch)
			}
		}
	}
}

func TestFloatToInt16(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},    // clamp high
		{-2, -32768},  // clamp low
		{0.5, 16383},  // 0.5 * 32767 truncated
		{-0.5, -16384},
	}
	for _, tt := range tests {
		if got := floatToInt16(tt.in); got != tt.want {
			t.Errorf("floatToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestInterleave(t *testing.T) {
	data := [][]float64{
		{0.5, -1.0},
		{0, 1.0},
	}
	got := Interleave(data)
	want := []int16{16383, 0, -32768, 32767}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}

	if out := Interleave(nil); out != nil {
		t.Errorf("Interleave(nil) = %v, want nil", out)
	}
}

func TestSamplesToBytes(t *testing.T) {
	got := SamplesToBytes([]int16{1, -1})
	want := []byte{0x01, 0x00, 0xff, 0xff}
	if !bytes.Equal(got, want) {
		t.Errorf("SamplesToBytes = %x, want %x", got, want)
	}
}
