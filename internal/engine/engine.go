// Package engine bridges a server-paced stream of decoded audio chunks to a
// real-time render clock. Chunks arrive at irregular intervals; the engine
// absorbs the jitter in a client-side buffer, lays the chunks end-to-end on
// the clock, detects underruns, and exposes a small state machine to the
// rest of the system.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	timestats "github.com/cwbudde/algo-dsp/stats/time"
	"github.com/hewland/promptmix/internal/audio"
)

// Insert processes a per-channel block in place. The effects chain
// implements it; the engine routes rendered audio through the insert only
// while effects are active.
type Insert interface {
	Process(block [][]float64)
}

// Config holds engine tuning parameters.
type Config struct {
	// BufferSeconds is the client buffer time: the delay between the first
	// chunk's arrival and audible playback, absorbing delivery jitter.
	BufferSeconds float64

	// UnderrunTolerance is how far (seconds) the scheduling anchor may lag
	// the render clock before a chunk arrival is declared an underrun.
	UnderrunTolerance float64

	// OutputGain is the master gain applied before the effects insert.
	OutputGain float64
}

type scheduledChunk struct {
	start int64 // render-clock sample index where the chunk begins
	buf   *audio.Buffer
}

// Engine owns the render clock, the chunk queue, and the routing graph:
// scheduled chunks sum into a master gain node, which feeds either the
// effects insert or the bypass path, then the meter and the frame output.
type Engine struct {
	bufferSamples int64
	tolSamples    int64

	frames chan []int16

	mu         sync.Mutex
	state      State
	clock      int64 // samples rendered since the last teardown
	anchor     int64 // next scheduled start on the render clock; 0 = not yet anchored
	firstStart int64 // start of the first chunk since anchoring; 0 = none
	queue      []scheduledChunk
	gain       float64
	insert     Insert
	effectsOn  bool
	level      float64
	onState    func(State)
}

// New creates a stopped engine.
func New(cfg Config) *Engine {
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = 2.0
	}
	if cfg.OutputGain <= 0 {
		cfg.OutputGain = 1.0
	}
	return &Engine{
		bufferSamples: int64(cfg.BufferSeconds * audio.SampleRate),
		tolSamples:    int64(cfg.UnderrunTolerance * audio.SampleRate),
		frames:        make(chan []int16, 100),
		gain:          cfg.OutputGain,
	}
}

// Frames returns the channel of rendered interleaved int16 frames (20ms each).
func (e *Engine) Frames() <-chan []int16 {
	return e.frames
}

// OnStateChange registers a state observer. Called outside the engine lock.
func (e *Engine) OnStateChange(fn func(State)) {
	e.mu.Lock()
	e.onState = fn
	e.mu.Unlock()
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Now returns the render-clock time in seconds since the last teardown.
func (e *Engine) Now() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.clock) / audio.SampleRate
}

// Level returns the output level in [0, 1], an RMS aggregate of the most
// recently rendered frame. It reads 0 whenever the engine is not playing.
func (e *Engine) Level() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Playing {
		return 0
	}
	return e.level
}

// BufferedSeconds returns how much scheduled audio lies ahead of the clock.
func (e *Engine) BufferedSeconds() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.anchor == 0 || e.anchor <= e.clock {
		return 0
	}
	return float64(e.anchor-e.clock) / audio.SampleRate
}

// SetGain sets the master gain.
func (e *Engine) SetGain(g float64) {
	e.mu.Lock()
	e.gain = g
	e.mu.Unlock()
}

// SetInsert installs the effects insert node.
func (e *Engine) SetInsert(ins Insert) {
	e.mu.Lock()
	e.insert = ins
	e.mu.Unlock()
}

// SetEffectsActive rewires the graph: active routes the master gain through
// the insert, inactive reconnects it straight to the meter/output path. The
// switch is a rewire, not a node parameter, so it takes effect at the next
// rendered frame.
func (e *Engine) SetEffectsActive(on bool) {
	e.mu.Lock()
	e.effectsOn = on
	e.mu.Unlock()
}

// EffectsActive reports whether the insert is in the signal path.
func (e *Engine) EffectsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effectsOn
}

// BeginLoading enters the loading state on a play request, clearing the
// scheduling anchor so the next arriving chunk re-anchors fresh.
func (e *Engine) BeginLoading() {
	e.mu.Lock()
	e.anchor = 0
	e.firstStart = 0
	e.setStateLocked(Loading)
	e.mu.Unlock()
}

// Pause flips to paused immediately. Chunks already scheduled keep sounding
// to completion; newly arriving chunks are dropped at the schedule check.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state == Playing || e.state == Loading {
		e.setStateLocked(Paused)
	}
	e.mu.Unlock()
}

// Reset unconditionally tears down and re-initializes the render state:
// clock back to zero, anchor cleared, queue discarded, state stopped. Safe
// (and still a full re-init) when already stopped.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.clock = 0
	e.anchor = 0
	e.firstStart = 0
	e.queue = nil
	e.level = 0
	e.setStateLocked(Stopped)
	e.mu.Unlock()
}

// ScheduleChunk places a decoded chunk on the render clock. Chunks are laid
// end-to-end in arrival order: arrival order is playback order.
//
// Paused/stopped arrivals are dropped -- stale audio from a torn-down
// session must never play. The first chunk after anchoring starts a client
// buffer time in the future. An anchor already in the past is an underrun:
// the chunk is discarded, the anchor reset, and the state machine re-enters
// loading so the next arrival re-buffers fresh.
func (e *Engine) ScheduleChunk(buf *audio.Buffer) {
	e.mu.Lock()

	if e.state == Paused || e.state == Stopped {
		e.mu.Unlock()
		return
	}

	if e.anchor == 0 {
		e.anchor = e.clock + e.bufferSamples
		e.firstStart = e.anchor
	} else if e.anchor < e.clock-e.tolSamples {
		e.anchor = 0
		e.firstStart = 0
		log.Printf("Underrun: re-buffering (clock %.2fs)", float64(e.clock)/audio.SampleRate)
		if e.state == Playing {
			e.setStateLocked(Loading)
		}
		e.mu.Unlock()
		return
	}

	e.queue = append(e.queue, scheduledChunk{start: e.anchor, buf: buf})
	e.anchor += int64(buf.Len())
	e.mu.Unlock()
}

// Run drives the render clock in real time. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.frames)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := e.step()

		select {
		case e.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// step renders one frame and advances the clock. Split from Run so tests
// can drive the clock deterministically.
func (e *Engine) step() []int16 {
	block := make([][]float64, audio.Channels)
	for ch := range block {
		block[ch] = make([]float64, audio.FrameSize)
	}

	e.mu.Lock()

	e.renderLocked(block)

	gain := e.gain
	for ch := range block {
		for i := range block[ch] {
			block[ch][i] *= gain
		}
	}

	insert := e.insert
	useInsert := e.effectsOn && insert != nil

	// The chunk's samples become audible the moment the first scheduled
	// start time arrives on the render clock -- "ready" is defined by the
	// clock, not by message arrival.
	if e.state == Loading && e.firstStart != 0 && e.clock+audio.FrameSize > e.firstStart {
		e.setStateLocked(Playing)
	}

	e.clock += audio.FrameSize
	e.mu.Unlock()

	// The insert runs outside the engine lock; the chain has its own.
	if useInsert {
		insert.Process(block)
	}

	var sum float64
	for ch := range block {
		r := timestats.RMS(block[ch])
		sum += r * r
	}
	level := sum / float64(len(block))
	if level > 1 {
		level = 1
	}

	e.mu.Lock()
	e.level = level
	e.mu.Unlock()

	return audio.Interleave(block)
}

// renderLocked mixes every scheduled chunk overlapping the current frame
// into block and drops chunks the clock has fully passed.
func (e *Engine) renderLocked(block [][]float64) {
	frameStart := e.clock
	frameEnd := e.clock + audio.FrameSize

	live := e.queue[:0]
	for _, c := range e.queue {
		chunkLen := int64(c.buf.Len())
		chunkEnd := c.start + chunkLen

		if chunkEnd <= frameStart {
			continue // fully played
		}
		live = append(live, c)
		if c.start >= frameEnd {
			continue // not due yet
		}

		from := frameStart
		if c.start > from {
			from = c.start
		}
		to := frameEnd
		if chunkEnd < to {
			to = chunkEnd
		}

		srcOff := from - c.start
		dstOff := from - frameStart
		n := to - from
		for ch := 0; ch < len(block) && ch < c.buf.Channels(); ch++ {
			src := c.buf.Data[ch][srcOff : srcOff+n]
			dst := block[ch][dstOff : dstOff+n]
			for i := range src {
				dst[i] += src[i]
			}
		}
	}
	e.queue = live
}

// setStateLocked changes state and notifies the observer without holding
// the lock during the callback.
func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	if fn := e.onState; fn != nil {
		go fn(s)
	}
}
