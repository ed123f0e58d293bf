// Package session implements the client side of the remote generative-music
// streaming session: a websocket carrying weighted-prompt updates and
// playback commands out, and audio chunks plus status events back.
package session

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WeightedPrompt is a text descriptor paired with its influence weight.
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// AudioChunk is one base64-encoded PCM chunk from the server.
type AudioChunk struct {
	Data string `json:"data"`
}

// FilteredPrompt reports a prompt the model refused to act on.
type FilteredPrompt struct {
	Text           string `json:"text"`
	FilteredReason string `json:"filteredReason"`
}

type serverContent struct {
	AudioChunks []AudioChunk `json:"audioChunks"`
}

// serverMessage is the envelope for everything the server sends. Exactly
// one field is set per message.
type serverMessage struct {
	SetupComplete  *struct{}       `json:"setupComplete,omitempty"`
	FilteredPrompt *FilteredPrompt `json:"filteredPrompt,omitempty"`
	ServerContent  *serverContent  `json:"serverContent,omitempty"`
}

type setupPayload struct {
	Model string `json:"model"`
}

type weightedPromptsPayload struct {
	WeightedPrompts []WeightedPrompt `json:"weightedPrompts"`
}

// clientMessage is the outbound envelope. Exactly one field is set.
type clientMessage struct {
	Setup           *setupPayload           `json:"setup,omitempty"`
	PlaybackControl string                  `json:"playbackControl,omitempty"`
	WeightedPrompts *weightedPromptsPayload `json:"weightedPrompts,omitempty"`
}

// Callbacks receive inbound session events. They are invoked sequentially
// from a single read-loop goroutine, in arrival order -- the ordering
// guarantee the playback scheduler depends on. OnError and OnClose fire at
// most once between them; after either, the session is unusable.
type Callbacks struct {
	OnSetupComplete  func()
	OnFilteredPrompt func(FilteredPrompt)
	OnAudioChunks    func([]AudioChunk)
	OnError          func(error)
	OnClose          func()
}

// Config identifies the remote endpoint and model.
type Config struct {
	URL              string
	APIKey           string
	Model            string
	HandshakeTimeout time.Duration
}

// Session is a live connection to the streaming model. No automatic
// reconnection: after a transport error the owner must Connect again.
type Session struct {
	conn *websocket.Conn
	cb   Callbacks

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu     sync.Mutex
	closed bool

	terminal sync.Once
}

// Connect dials the endpoint, sends the setup envelope, and starts the read
// loop. The returned session is usable until an error or Close.
func Connect(ctx context.Context, cfg Config, cb Callbacks) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("session: endpoint URL not configured")
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("session: connect failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("session: connect failed: %w", err)
	}

	s := &Session{conn: conn, cb: cb}

	if err := s.send(clientMessage{Setup: &setupPayload{Model: cfg.Model}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: setup: %w", err)
	}

	go s.readLoop()
	return s, nil
}

// Play asks the server to start (or resume) generating audio.
func (s *Session) Play() error {
	return s.send(clientMessage{PlaybackControl: "play"})
}

// Pause asks the server to pause generation.
func (s *Session) Pause() error {
	return s.send(clientMessage{PlaybackControl: "pause"})
}

// Stop asks the server to stop generation and discard stream position.
func (s *Session) Stop() error {
	return s.send(clientMessage{PlaybackControl: "stop"})
}

// SetWeightedPrompts replaces the server's prompt set with the given one.
// Always the entire set, never a delta.
func (s *Session) SetWeightedPrompts(prompts []WeightedPrompt) error {
	return s.send(clientMessage{WeightedPrompts: &weightedPromptsPayload{WeightedPrompts: prompts}})
}

// Close tears the connection down. Callbacks do not fire for a local close.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.terminal.Do(func() {}) // suppress OnError/OnClose for local close

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *Session) send(msg clientMessage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session: closed")
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// readLoop decodes server messages and dispatches callbacks sequentially.
func (s *Session) readLoop() {
	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.closed = true
			s.mu.Unlock()

			if closed {
				return
			}
			s.conn.Close()
			s.terminal.Do(func() {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("Session: server closed: %v", err)
					if s.cb.OnClose != nil {
						s.cb.OnClose()
					}
					return
				}
				log.Printf("Session: transport error: %v", err)
				if s.cb.OnError != nil {
					s.cb.OnError(err)
				}
			})
			return
		}

		switch {
		case msg.SetupComplete != nil:
			if s.cb.OnSetupComplete != nil {
				s.cb.OnSetupComplete()
			}
		case msg.FilteredPrompt != nil:
			if s.cb.OnFilteredPrompt != nil {
				s.cb.OnFilteredPrompt(*msg.FilteredPrompt)
			}
		case msg.ServerContent != nil:
			if s.cb.OnAudioChunks != nil && len(msg.ServerContent.AudioChunks) > 0 {
				s.cb.OnAudioChunks(msg.ServerContent.AudioChunks)
			}
		}
	}
}
