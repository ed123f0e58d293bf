package engine

import (
	"math"
	"testing"
	"time"

	"github.com/hewland/promptmix/internal/audio"
)

// testEngine uses a 20ms client buffer so the first chunk lands exactly one
// frame after anchoring.
func testEngine() *Engine {
	return New(Config{BufferSeconds: 0.02, OutputGain: 1.0})
}

func constantChunk(frames int, v float64) *audio.Buffer {
	buf := audio.NewBuffer(audio.Channels, frames*audio.FrameSize, audio.SampleRate)
	for ch := range buf.Data {
		for i := range buf.Data[ch] {
			buf.Data[ch][i] = v
		}
	}
	return buf
}

func allZero(frame []int16) bool {
	for _, s := range frame {
		if s != 0 {
			return false
		}
	}
	return true
}

func TestNewDefaults(t *testing.T) {
	e := New(Config{})
	if e.State() != Stopped {
		t.Errorf("initial state = %v, want Stopped", e.State())
	}
	if e.Now() != 0 {
		t.Errorf("initial Now = %v, want 0", e.Now())
	}
	if e.bufferSamples != int64(2.0*audio.SampleRate) {
		t.Errorf("default buffer = %d samples, want %d", e.bufferSamples, int64(2.0*audio.SampleRate))
	}
}

func TestScheduleDroppedWhileStopped(t *testing.T) {
	e := testEngine()
	e.ScheduleChunk(constantChunk(1, 0.5))
	if e.BufferedSeconds() != 0 {
		t.Errorf("stopped engine buffered chunk: %v s", e.BufferedSeconds())
	}
}

func TestLoadingToPlaying(t *testing.T) {
	e := testEngine()
	e.BeginLoading()
	if e.State() != Loading {
		t.Fatalf("state = %v, want Loading", e.State())
	}

	e.ScheduleChunk(constantChunk(1, 0.5))
	if got := e.BufferedSeconds(); math.Abs(got-0.04) > 1e-9 {
		t.Errorf("BufferedSeconds = %v, want 0.04 (buffer + chunk)", got)
	}

	// Frame 1 covers the client buffer: silence, still loading.
	frame := e.step()
	if !allZero(frame) {
		t.Error("frame before first start time carried audio")
	}
	if e.State() != Loading {
		t.Errorf("state after buffer frame = %v, want Loading", e.State())
	}

	// Frame 2 reaches the first start time: chunk audible, playing.
	frame = e.step()
	if frame[0] != 16383 {
		t.Errorf("first chunk sample = %d, want 16383", frame[0])
	}
	if e.State() != Playing {
		t.Errorf("state at first start = %v, want Playing", e.State())
	}
}

func TestChunksScheduledBackToBack(t *testing.T) {
	e := testEngine()
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(1, 0.25))
	e.ScheduleChunk(constantChunk(1, 0.5))

	if len(e.queue) != 2 {
		t.Fatalf("queue len = %d, want 2", len(e.queue))
	}
	first, second := e.queue[0], e.queue[1]
	if second.start != first.start+int64(first.buf.Len()) {
		t.Errorf("second start = %d, want end of first (%d)",
			second.start, first.start+int64(first.buf.Len()))
	}

	e.step() // client buffer
	f1 := e.step()
	f2 := e.step()
	if f1[0] != 8191 { // 0.25 * 32767
		t.Errorf("first chunk sample = %d, want 8191", f1[0])
	}
	if f2[0] != 16383 {
		t.Errorf("second chunk sample = %d, want 16383 (no gap)", f2[0])
	}
}

func TestUnderrunRebuffers(t *testing.T) {
	e := testEngine()
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(1, 0.5))

	// Play through the chunk, then keep rendering: the anchor now lags
	// the clock.
	for i := 0; i < 6; i++ {
		e.step()
	}
	if e.State() != Playing {
		t.Fatalf("state = %v, want Playing", e.State())
	}

	e.ScheduleChunk(constantChunk(1, 0.5))
	if e.State() != Loading {
		t.Errorf("state after underrun = %v, want Loading", e.State())
	}
	if e.BufferedSeconds() != 0 {
		t.Errorf("underrun chunk was kept: %v s buffered", e.BufferedSeconds())
	}

	// The next arrival re-anchors one client buffer ahead.
	e.ScheduleChunk(constantChunk(1, 0.5))
	if got := e.BufferedSeconds(); math.Abs(got-0.04) > 1e-9 {
		t.Errorf("re-anchored BufferedSeconds = %v, want 0.04", got)
	}
}

func TestUnderrunTolerance(t *testing.T) {
	e := New(Config{BufferSeconds: 0.02, UnderrunTolerance: 1.0})
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(1, 0.5))
	for i := 0; i < 6; i++ {
		e.step()
	}

	// Anchor lags by far less than a second: not an underrun.
	e.ScheduleChunk(constantChunk(1, 0.5))
	if e.State() != Playing {
		t.Errorf("state = %v, want Playing (lag within tolerance)", e.State())
	}
	if len(e.queue) == 0 {
		t.Error("tolerated chunk was dropped")
	}
}

func TestPauseKeepsScheduledAudioSounding(t *testing.T) {
	e := testEngine()
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(2, 0.5))

	e.step() // buffer
	e.step() // first chunk frame
	e.Pause()
	if e.State() != Paused {
		t.Fatalf("state = %v, want Paused", e.State())
	}

	// Already-scheduled audio keeps playing out.
	frame := e.step()
	if frame[0] != 16383 {
		t.Errorf("paused frame sample = %d, want 16383", frame[0])
	}

	// New arrivals are dropped at the schedule check.
	before := len(e.queue)
	e.ScheduleChunk(constantChunk(1, 0.5))
	if len(e.queue) != before {
		t.Error("paused engine accepted a new chunk")
	}
}

func TestPauseFromStoppedIsNoop(t *testing.T) {
	e := testEngine()
	e.Pause()
	if e.State() != Stopped {
		t.Errorf("state = %v, want Stopped", e.State())
	}
}

func TestResetTearsDown(t *testing.T) {
	e := testEngine()
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(1, 0.5))
	e.step()
	e.step()

	e.Reset()
	if e.State() != Stopped {
		t.Errorf("state = %v, want Stopped", e.State())
	}
	if e.Now() != 0 {
		t.Errorf("Now = %v, want 0", e.Now())
	}
	if e.BufferedSeconds() != 0 {
		t.Errorf("BufferedSeconds = %v, want 0", e.BufferedSeconds())
	}
	if !allZero(e.step()) {
		t.Error("reset engine still rendering audio")
	}
}

func TestResetFromStoppedStillReinitializes(t *testing.T) {
	e := testEngine()
	e.step()
	e.step()
	if e.Now() == 0 {
		t.Fatal("clock did not advance")
	}

	// Stop from stopped: no state change, but a full re-init.
	e.Reset()
	if e.State() != Stopped {
		t.Errorf("state = %v, want Stopped", e.State())
	}
	if e.Now() != 0 {
		t.Errorf("Now = %v, want 0 after re-init", e.Now())
	}
}

func TestLevelOnlyWhilePlaying(t *testing.T) {
	e := testEngine()
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(1, 0.5))

	e.step()
	if e.Level() != 0 {
		t.Errorf("loading Level = %v, want 0", e.Level())
	}

	e.step()
	// RMS of a constant 0.5 signal is 0.5; the aggregate is mean squared
	// RMS across channels = 0.25.
	if got := e.Level(); math.Abs(got-0.25) > 1e-3 {
		t.Errorf("playing Level = %v, want ~0.25", got)
	}

	e.Pause()
	if e.Level() != 0 {
		t.Errorf("paused Level = %v, want 0", e.Level())
	}
}

func TestGainScalesOutput(t *testing.T) {
	e := testEngine()
	e.SetGain(0.5)
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(1, 0.5))
	e.step()
	frame := e.step()
	if frame[0] != 8191 { // 0.25 * 32767
		t.Errorf("gained sample = %d, want 8191", frame[0])
	}
}

type captureInsert struct {
	called bool
}

func (c *captureInsert) Process(block [][]float64) {
	c.called = true
	for ch := range block {
		for i := range block[ch] {
			block[ch][i] = 0
		}
	}
}

func TestInsertOnlyWhenActive(t *testing.T) {
	e := testEngine()
	ins := &captureInsert{}
	e.SetInsert(ins)
	e.BeginLoading()
	e.ScheduleChunk(constantChunk(2, 0.5))
	e.step()

	frame := e.step()
	if ins.called {
		t.Error("insert ran while effects inactive")
	}
	if frame[0] != 16383 {
		t.Errorf("bypass sample = %d, want 16383", frame[0])
	}

	e.SetEffectsActive(true)
	frame = e.step()
	if !ins.called {
		t.Error("insert did not run while effects active")
	}
	if frame[0] != 0 {
		t.Errorf("processed sample = %d, want 0 (insert mutes)", frame[0])
	}
}

func TestOnStateChange(t *testing.T) {
	e := testEngine()
	states := make(chan State, 8)
	e.OnStateChange(func(s State) { states <- s })

	e.BeginLoading()
	select {
	case s := <-states:
		if s != Loading {
			t.Errorf("observed %v, want Loading", s)
		}
	case <-time.After(time.Second):
		t.Fatal("state observer never fired")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Stopped, "stopped"},
		{Loading, "loading"},
		{Playing, "playing"},
		{Paused, "paused"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
