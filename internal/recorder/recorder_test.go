package recorder

import (
	"encoding/binary"
	"os"
	"strings"
	"testing"

	"github.com/hewland/promptmix/internal/audio"
)

func chunk(frames int, v float64) *audio.Buffer {
	buf := audio.NewBuffer(audio.Channels, frames, audio.SampleRate)
	for ch := range buf.Data {
		for i := range buf.Data[ch] {
			buf.Data[ch][i] = v
		}
	}
	return buf
}

func TestAppendWhileDisarmedIsNoop(t *testing.T) {
	r := New(t.TempDir())
	r.Append(chunk(10, 0.5))

	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty (nothing captured)", path)
	}
}

func TestRecordWritesWAV(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	if r.Recording() {
		t.Error("recorder armed before Start")
	}
	r.Start()
	if !r.Recording() {
		t.Error("recorder not armed after Start")
	}

	r.Append(chunk(100, 0.5))
	r.Append(chunk(50, -0.25))

	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.Recording() {
		t.Error("recorder still armed after Stop")
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".wav") {
		t.Errorf("path = %q, want a .wav under %q", path, dir)
	}
	if got := r.LastPath(); got != path {
		t.Errorf("LastPath = %q, want %q", got, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("output is not a WAV file")
	}
	wantData := 150 * audio.Channels * 2
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(wantData) {
		t.Errorf("data chunk size = %d, want %d (chunks merged in order)", got, wantData)
	}
}

func TestStartClearsPriorSet(t *testing.T) {
	r := New(t.TempDir())
	r.Start()
	r.Append(chunk(100, 0.5))
	r.Start() // re-arm discards the earlier capture

	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty after re-arm", path)
	}
}
