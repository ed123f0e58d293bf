package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"

	"github.com/hewland/promptmix/internal/audio"
)

const mp3Bitrate = "192k"

// MP3Handler serves the rendered mix as chunked MP3 over HTTP. Each
// connection runs its own ffmpeg encoder fed from a broadcaster queue, so
// one stalled client never affects the render clock or other listeners.
type MP3Handler struct {
	broadcaster *Broadcaster
}

// NewMP3Handler creates the /stream handler.
func NewMP3Handler(b *Broadcaster) *MP3Handler {
	return &MP3Handler{broadcaster: b}
}

func (h *MP3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "promptmix")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := encoderCmd(ctx)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("MP3 stream: stdin pipe: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("MP3 stream: stdout pipe: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("MP3 stream: ffmpeg start: %v", err)
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("MP3 listener connected (total: %d)", h.broadcaster.ListenerCount())
	defer log.Printf("MP3 listener disconnected")

	go feedEncoder(ctx, listener, stdin)

	// Relay encoded MP3 to the response as it is produced.
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("MP3 stream: encoder read: %v", err)
			}
			break
		}
	}
	cmd.Wait()
}

// encoderCmd builds the per-connection PCM to MP3 encoder, configured for
// the engine's frame format.
func encoderCmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", mp3Bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
}

// feedEncoder writes rendered frames to the encoder's stdin until the
// listener or the connection goes away.
func feedEncoder(ctx context.Context, l *Listener, stdin io.WriteCloser) {
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame, ok := <-l.Frames():
			if !ok {
				return
			}
			if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
