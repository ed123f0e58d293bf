// Package prompts holds the authoritative weighted-prompt set and keeps the
// remote streaming session in sync with it, coalescing bursts of control
// input into throttled full-set pushes.
package prompts

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hewland/promptmix/internal/session"
)

// DefaultThrottle bounds pushes to one per window; a burst of mutations
// inside the window collapses to a single push carrying the latest state.
const DefaultThrottle = 200 * time.Millisecond

// ErrEmptyPromptSet marks the unrecoverable protocol violation of pushing
// an empty weighted-prompt set.
var ErrEmptyPromptSet = errors.New("prompts: empty prompt set at push time")

// Prompt is one steering knob: stable ID, display text, color tag, weight,
// and a fixed control-channel index assigned at configuration time.
type Prompt struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Color  string  `json:"color"`
	Weight float64 `json:"weight"`
	CC     int     `json:"cc"`
}

// Config is one knob layout entry from a configuration source. Weight is
// zero for fresh layouts; saved presets carry the weights they had.
type Config struct {
	Text   string  `json:"text"`
	Color  string  `json:"color"`
	Weight float64 `json:"weight,omitempty"`
}

// Sender pushes a weighted prompt set to the remote session.
type Sender interface {
	SetWeightedPrompts([]session.WeightedPrompt) error
}

// Store owns the prompt map and the throttled session sync.
type Store struct {
	window time.Duration

	mu      sync.Mutex
	prompts map[string]*Prompt
	sender  Sender
	// syncable reports whether the playback side is in a state where
	// pushes make sense (session connected, playing or paused).
	syncable func() bool
	// onProtocolError is invoked (off the store goroutine) when a push
	// finds the set empty; the owner force-closes the session.
	onProtocolError func(error)

	timer   *time.Timer
	pending bool
}

// NewStore creates an empty store with the given throttle window
// (DefaultThrottle if zero).
func NewStore(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultThrottle
	}
	return &Store{
		window:  window,
		prompts: make(map[string]*Prompt),
	}
}

// SetSender installs (or clears, with nil) the push target.
func (s *Store) SetSender(snd Sender) {
	s.mu.Lock()
	s.sender = snd
	s.mu.Unlock()
}

// SetSyncableFunc installs the push precondition.
func (s *Store) SetSyncableFunc(fn func() bool) {
	s.mu.Lock()
	s.syncable = fn
	s.mu.Unlock()
}

// OnProtocolError installs the empty-set handler.
func (s *Store) OnProtocolError(fn func(error)) {
	s.mu.Lock()
	s.onProtocolError = fn
	s.mu.Unlock()
}

// ApplyConfig replaces the whole prompt set from a knob layout, assigning
// fresh IDs and control-channel indexes in order. If every configured
// weight is zero, the first prompt (by control-channel order) is forced to
// 1.0: the remote model needs a non-degenerate weight vector.
func (s *Store) ApplyConfig(configs []Config) []Prompt {
	s.mu.Lock()
	s.prompts = make(map[string]*Prompt, len(configs))
	allZero := true
	var first *Prompt
	for i, c := range configs {
		p := &Prompt{
			ID:     uuid.NewString(),
			Text:   c.Text,
			Color:  c.Color,
			Weight: c.Weight,
			CC:     i,
		}
		if i == 0 {
			first = p
		}
		if p.Weight != 0 {
			allZero = false
		}
		s.prompts[p.ID] = p
	}
	if allZero && first != nil {
		first.Weight = 1.0
	}
	out := s.snapshotLocked()
	s.mu.Unlock()

	s.scheduleSync()
	return out
}

// Snapshot returns the prompts ordered by control-channel index.
func (s *Store) Snapshot() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []Prompt {
	out := make([]Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CC < out[j].CC })
	return out
}

// SetWeight updates one prompt's weight and schedules a sync.
func (s *Store) SetWeight(id string, weight float64) error {
	s.mu.Lock()
	p, ok := s.prompts[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("prompts: unknown prompt %q", id)
	}
	if weight < 0 {
		weight = 0
	}
	p.Weight = weight
	s.mu.Unlock()

	s.scheduleSync()
	return nil
}

// SetText updates one prompt's display text and schedules a sync.
func (s *Store) SetText(id, text string) error {
	s.mu.Lock()
	p, ok := s.prompts[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("prompts: unknown prompt %q", id)
	}
	p.Text = text
	s.mu.Unlock()

	s.scheduleSync()
	return nil
}

// Configs returns the current layout as a savable configuration, weights
// included, ordered by control channel.
func (s *Store) Configs() []Config {
	snapshot := s.Snapshot()
	out := make([]Config, len(snapshot))
	for i, p := range snapshot {
		out[i] = Config{Text: p.Text, Color: p.Color, Weight: p.Weight}
	}
	return out
}

// Len returns the prompt count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// ForceSync pushes the current set immediately, bypassing the throttle.
// Used when the server reports setup complete.
func (s *Store) ForceSync() {
	s.push()
}

// scheduleSync arranges a push at the current throttle window's boundary.
// Mutations landing while a push is pending coalesce into it; the push
// always carries the state as of the moment it fires.
func (s *Store) scheduleSync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sender == nil || (s.syncable != nil && !s.syncable()) {
		return
	}
	if s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.window, s.push)
}

// push sends the entire current prompt set to the session. An empty set is
// an unrecoverable protocol violation: the push aborts and the owner is
// told to force-close.
func (s *Store) push() {
	s.mu.Lock()
	s.pending = false
	snd := s.sender
	errFn := s.onProtocolError
	if snd == nil || (s.syncable != nil && !s.syncable()) {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if len(snapshot) == 0 {
		log.Printf("Prompt sync aborted: %v", ErrEmptyPromptSet)
		if errFn != nil {
			errFn(ErrEmptyPromptSet)
		}
		return
	}

	weighted := make([]session.WeightedPrompt, len(snapshot))
	for i, p := range snapshot {
		weighted[i] = session.WeightedPrompt{Text: p.Text, Weight: p.Weight}
	}
	if err := snd.SetWeightedPrompts(weighted); err != nil {
		log.Printf("Prompt sync failed: %v", err)
	}
}
