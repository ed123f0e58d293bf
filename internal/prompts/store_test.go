package prompts

import (
	"sync"
	"testing"
	"time"

	"github.com/hewland/promptmix/internal/session"
)

// fakeSender records every push it receives.
type fakeSender struct {
	mu     sync.Mutex
	pushes [][]session.WeightedPrompt
}

func (f *fakeSender) SetWeightedPrompts(ps []session.WeightedPrompt) error {
	f.mu.Lock()
	cp := make([]session.WeightedPrompt, len(ps))
	copy(cp, ps)
	f.pushes = append(f.pushes, cp)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeSender) lastPush() []session.WeightedPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) == 0 {
		return nil
	}
	return f.pushes[len(f.pushes)-1]
}

func TestApplyConfigAssignsOrder(t *testing.T) {
	s := NewStore(time.Hour)
	got := s.ApplyConfig([]Config{
		{Text: "Jazz", Color: "#111111"},
		{Text: "Dub", Color: "#222222"},
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i, p := range got {
		if p.CC != i {
			t.Errorf("prompt %d: CC = %d, want %d", i, p.CC, i)
		}
		if p.ID == "" {
			t.Errorf("prompt %d: empty ID", i)
		}
	}
	if got[0].ID == got[1].ID {
		t.Error("prompts share an ID")
	}
}

func TestApplyConfigForcesFirstWeightWhenAllZero(t *testing.T) {
	s := NewStore(time.Hour)
	got := s.ApplyConfig([]Config{
		{Text: "Jazz"},
		{Text: "Dub"},
	})
	if got[0].Weight != 1.0 {
		t.Errorf("first weight = %v, want 1.0", got[0].Weight)
	}
	if got[1].Weight != 0 {
		t.Errorf("second weight = %v, want 0", got[1].Weight)
	}
}

func TestApplyConfigKeepsNonZeroWeights(t *testing.T) {
	s := NewStore(time.Hour)
	got := s.ApplyConfig([]Config{
		{Text: "Jazz"},
		{Text: "Dub", Weight: 0.7},
	})
	if got[0].Weight != 0 {
		t.Errorf("first weight = %v, want 0 (not forced)", got[0].Weight)
	}
	if got[1].Weight != 0.7 {
		t.Errorf("second weight = %v, want 0.7", got[1].Weight)
	}
}

func TestSetWeight(t *testing.T) {
	s := NewStore(time.Hour)
	ps := s.ApplyConfig([]Config{{Text: "Jazz"}})

	if err := s.SetWeight(ps[0].ID, 1.5); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if got := s.Snapshot()[0].Weight; got != 1.5 {
		t.Errorf("weight = %v, want 1.5", got)
	}

	// Negative weights clamp to zero.
	if err := s.SetWeight(ps[0].ID, -3); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if got := s.Snapshot()[0].Weight; got != 0 {
		t.Errorf("weight = %v, want 0", got)
	}

	if err := s.SetWeight("nope", 1); err == nil {
		t.Error("SetWeight accepted unknown ID")
	}
}

func TestSetText(t *testing.T) {
	s := NewStore(time.Hour)
	ps := s.ApplyConfig([]Config{{Text: "Jazz"}})

	if err := s.SetText(ps[0].ID, "Acid Jazz"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if got := s.Snapshot()[0].Text; got != "Acid Jazz" {
		t.Errorf("text = %q, want %q", got, "Acid Jazz")
	}

	if err := s.SetText("nope", "x"); err == nil {
		t.Error("SetText accepted unknown ID")
	}
}

func TestThrottleCoalescesBurst(t *testing.T) {
	s := NewStore(20 * time.Millisecond)
	ps := s.ApplyConfig([]Config{{Text: "Jazz"}})

	snd := &fakeSender{}
	s.SetSender(snd)

	// A burst of mutations inside one window collapses to a single push
	// carrying the final state.
	for i := 1; i <= 10; i++ {
		if err := s.SetWeight(ps[0].ID, float64(i)/10); err != nil {
			t.Fatalf("SetWeight: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if got := snd.count(); got != 1 {
		t.Fatalf("pushes = %d, want 1", got)
	}
	last := snd.lastPush()
	if len(last) != 1 || last[0].Weight != 1.0 {
		t.Errorf("pushed %+v, want single prompt at weight 1.0", last)
	}
}

func TestThrottleRespectsSyncable(t *testing.T) {
	s := NewStore(5 * time.Millisecond)
	ps := s.ApplyConfig([]Config{{Text: "Jazz"}})

	snd := &fakeSender{}
	s.SetSender(snd)
	s.SetSyncableFunc(func() bool { return false })

	s.SetWeight(ps[0].ID, 0.5)
	time.Sleep(50 * time.Millisecond)
	if got := snd.count(); got != 0 {
		t.Errorf("pushes = %d, want 0 while not syncable", got)
	}
}

func TestForceSyncPushesImmediately(t *testing.T) {
	s := NewStore(time.Hour)
	s.ApplyConfig([]Config{{Text: "Jazz"}})

	snd := &fakeSender{}
	s.SetSender(snd)

	s.ForceSync()
	if got := snd.count(); got != 1 {
		t.Fatalf("pushes = %d, want 1", got)
	}
	if got := snd.lastPush(); len(got) != 1 || got[0].Text != "Jazz" {
		t.Errorf("pushed %+v, want the Jazz prompt", got)
	}
}

func TestEmptyPushIsProtocolError(t *testing.T) {
	s := NewStore(time.Hour)
	snd := &fakeSender{}
	s.SetSender(snd)

	var got error
	done := make(chan struct{})
	s.OnProtocolError(func(err error) {
		got = err
		close(done)
	})

	s.ForceSync()
	select {
	case <-done:
	default:
		t.Fatal("protocol error handler never fired")
	}
	if got != ErrEmptyPromptSet {
		t.Errorf("error = %v, want ErrEmptyPromptSet", got)
	}
	if snd.count() != 0 {
		t.Error("empty set was pushed anyway")
	}
}
