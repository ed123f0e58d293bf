// Package recorder accumulates decoded audio chunks while armed and flushes
// them to a WAV file on stop.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hewland/promptmix/internal/audio"
)

// Recorder collects the recorded buffer set. Chunks append in arrival
// order; the set is cleared on start and consumed-and-cleared on stop.
type Recorder struct {
	outputDir string

	mu     sync.Mutex
	armed  bool
	chunks []*audio.Buffer
	last   string
}

// New creates a disarmed recorder writing into outputDir.
func New(outputDir string) *Recorder {
	return &Recorder{outputDir: outputDir}
}

// Start clears any prior set and arms the recorder.
func (r *Recorder) Start() {
	r.mu.Lock()
	r.chunks = nil
	r.armed = true
	r.mu.Unlock()
}

// Recording reports whether the recorder is armed.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// LastPath returns the most recently written file, if any.
func (r *Recorder) LastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Append adds a decoded chunk to the set. A no-op while disarmed.
func (r *Recorder) Append(buf *audio.Buffer) {
	r.mu.Lock()
	if r.armed {
		r.chunks = append(r.chunks, buf)
	}
	r.mu.Unlock()
}

// Stop disarms, merges the set into one buffer, and writes it as a WAV
// file named with a UTC timestamp. Returns the file path, or "" when
// nothing was captured.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	chunks := r.chunks
	r.chunks = nil
	r.armed = false
	r.mu.Unlock()

	if len(chunks) == 0 {
		return "", nil
	}

	merged := merge(chunks)
	name := fmt.Sprintf("promptmix-%s.wav", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	path := filepath.Join(r.outputDir, name)

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("recorder: output dir: %w", err)
	}
	if err := os.WriteFile(path, audio.EncodeWAV(merged), 0o644); err != nil {
		return "", fmt.Errorf("recorder: write %s: %w", path, err)
	}

	r.mu.Lock()
	r.last = path
	r.mu.Unlock()
	return path, nil
}

// merge concatenates chunks in order into a single buffer labeled with the
// first chunk's rate and channel count.
func merge(chunks []*audio.Buffer) *audio.Buffer {
	channels := chunks[0].Channels()
	var total int
	for _, c := range chunks {
		total += c.Len()
	}

	out := audio.NewBuffer(channels, total, chunks[0].SampleRate)
	off := 0
	for _, c := range chunks {
		for ch := 0; ch < channels && ch < c.Channels(); ch++ {
			copy(out.Data[ch][off:], c.Data[ch])
		}
		off += c.Len()
	}
	return out
}
