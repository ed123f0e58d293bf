// Package player coordinates the remote streaming session with the local
// playback engine: it owns the session lifecycle, feeds decoded chunks to
// the scheduler and the recorder, and converts remote failures into safe
// state transitions. Local state is the source of truth for observers;
// server state is eventually consistent and reconciled only on error.
package player

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hewland/promptmix/internal/audio"
	"github.com/hewland/promptmix/internal/engine"
	"github.com/hewland/promptmix/internal/prompts"
	"github.com/hewland/promptmix/internal/recorder"
	"github.com/hewland/promptmix/internal/session"
)

// Session is the slice of the remote session the player drives. Narrow so
// tests can substitute a fake.
type Session interface {
	Play() error
	Pause() error
	Stop() error
	Close() error
	SetWeightedPrompts([]session.WeightedPrompt) error
}

// ConnectFunc dials a fresh remote session with the player's callbacks.
type ConnectFunc func(ctx context.Context, cb session.Callbacks) (Session, error)

// Player is the playback controller.
type Player struct {
	eng     *engine.Engine
	store   *prompts.Store
	rec     *recorder.Recorder
	connect ConnectFunc

	mu       sync.Mutex
	sess     Session
	usable   bool
	status   string
	filtered []session.FilteredPrompt
}

// New wires a player. The store's sync preconditions and protocol-error
// handling are installed here.
func New(eng *engine.Engine, store *prompts.Store, rec *recorder.Recorder, connect ConnectFunc) *Player {
	p := &Player{
		eng:     eng,
		store:   store,
		rec:     rec,
		connect: connect,
		status:  "stopped",
	}

	store.SetSyncableFunc(func() bool {
		p.mu.Lock()
		ok := p.sess != nil && p.usable
		p.mu.Unlock()
		if !ok {
			return false
		}
		st := eng.State()
		return st == engine.Playing || st == engine.Paused || st == engine.Loading
	})
	store.OnProtocolError(func(err error) {
		log.Printf("Protocol error: %v", err)
		// Stop first: it ends with a "stopped" status, which must not
		// overwrite the error line.
		p.Stop()
		p.setStatus("error: empty prompt set, session closed")
	})
	return p
}

// Status returns the persistent status line.
func (p *Player) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// FilteredPrompts returns prompts the model refused, newest last.
func (p *Player) FilteredPrompts() []session.FilteredPrompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]session.FilteredPrompt, len(p.filtered))
	copy(out, p.filtered)
	return out
}

// Play starts (or resumes) playback: connects a fresh session if none is
// usable, enters loading, and tells the server to play. Audible playback
// begins when the first buffered chunk's start time arrives on the render
// clock, not here.
func (p *Player) Play(ctx context.Context) error {
	if p.eng.State() == engine.Playing || p.eng.State() == engine.Loading {
		return nil
	}

	p.mu.Lock()
	sess := p.sess
	usable := p.usable
	p.mu.Unlock()

	if sess == nil || !usable {
		fresh, err := p.connect(ctx, session.Callbacks{
			OnSetupComplete:  p.onSetupComplete,
			OnFilteredPrompt: p.onFilteredPrompt,
			OnAudioChunks:    p.onAudioChunks,
			OnError:          p.onSessionError,
			OnClose:          p.onSessionClose,
		})
		if err != nil {
			p.setStatus("connection failed")
			return fmt.Errorf("player: connect: %w", err)
		}
		p.mu.Lock()
		p.sess = fresh
		p.usable = true
		p.mu.Unlock()
		p.store.SetSender(fresh)
		sess = fresh
	}

	p.eng.BeginLoading()
	p.setStatus("loading...")

	if err := sess.Play(); err != nil {
		log.Printf("Remote play failed: %v", err)
		p.Stop()
		return fmt.Errorf("player: remote play: %w", err)
	}
	return nil
}

// Pause flips local state immediately and tells the server afterwards. A
// server failure is reported but does not revert the local state -- audio
// has already stopped flowing.
func (p *Player) Pause() {
	p.eng.Pause()
	p.setStatus("paused")

	p.mu.Lock()
	sess := p.sess
	usable := p.usable
	p.mu.Unlock()
	if sess == nil || !usable {
		return
	}
	go func() {
		if err := sess.Pause(); err != nil {
			log.Printf("Remote pause failed: %v", err)
			p.setStatus("paused (server unreachable)")
		}
	}()
}

// Stop tears everything down: render state re-initialized, remote session
// told to stop and closed, handle discarded. The next Play reconnects.
func (p *Player) Stop() {
	p.eng.Reset()

	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.usable = false
	p.mu.Unlock()
	p.store.SetSender(nil)

	if sess != nil {
		if err := sess.Stop(); err != nil {
			log.Printf("Remote stop failed: %v", err)
		}
		if err := sess.Close(); err != nil {
			log.Printf("Session close failed: %v", err)
		}
	}
	p.setStatus("stopped")
}

func (p *Player) onSetupComplete() {
	if p.store.Len() == 0 {
		// Setup finished with nothing configured upstream: unrecoverable
		// for this session, not retried.
		log.Printf("Protocol error: setup complete with no prompts configured")
		p.Stop()
		p.setStatus("error: no prompts configured, session closed")
		return
	}
	p.store.ForceSync()
}

func (p *Player) onFilteredPrompt(fp session.FilteredPrompt) {
	log.Printf("Prompt filtered: %q (%s)", fp.Text, fp.FilteredReason)
	p.mu.Lock()
	p.filtered = append(p.filtered, fp)
	p.mu.Unlock()
}

// onAudioChunks decodes each chunk inline, in arrival order, and hands it
// to the recorder and the scheduler. Decode failures degrade to a minimal
// silent buffer; a malformed chunk never stops the stream.
func (p *Player) onAudioChunks(chunks []session.AudioChunk) {
	for _, c := range chunks {
		data, err := audio.Decode(c.Data)
		if err != nil {
			log.Printf("Chunk decode failed: %v", err)
			data = nil
		}
		buf := audio.DecodePCM16(data, audio.SampleRate, audio.Channels)
		p.rec.Append(buf)
		p.eng.ScheduleChunk(buf)
	}
}

func (p *Player) onSessionError(err error) {
	p.setStatus("connection error")
	p.teardownAfterTransport()
}

func (p *Player) onSessionClose() {
	p.setStatus("connection closed by server")
	p.teardownAfterTransport()
}

// teardownAfterTransport forces stopped after a transport failure. The
// session is already dead; it is only discarded, never redialed here --
// reconnecting is a user decision.
func (p *Player) teardownAfterTransport() {
	p.eng.Reset()

	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.usable = false
	p.mu.Unlock()
	p.store.SetSender(nil)

	if sess != nil {
		sess.Close()
	}
}

func (p *Player) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}
