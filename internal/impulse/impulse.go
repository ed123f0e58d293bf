// Package impulse synthesizes convolution kernels for reverb simulation:
// decaying filtered noise shaped by a named preset.
package impulse

import (
	"math"
	"math/rand/v2"

	"github.com/hewland/promptmix/internal/audio"
)

// Preset names a reverb kernel shape.
type Preset string

const (
	LargeHall Preset = "large-hall"
	SmallRoom Preset = "small-room"
	Cave      Preset = "cave"
	None      Preset = "none"
)

// shape fixes a preset's tail duration and decay exponent.
type shape struct {
	duration float64 // seconds
	decay    float64 // envelope exponent
}

var shapes = map[Preset]shape{
	LargeHall: {duration: 2.0, decay: 2.0},
	SmallRoom: {duration: 0.5, decay: 3.0},
	Cave:      {duration: 3.0, decay: 1.5},
}

// Presets returns all kernel presets in display order.
func Presets() []Preset {
	return []Preset{None, SmallRoom, LargeHall, Cave}
}

// Valid reports whether p names a known preset.
func Valid(p Preset) bool {
	if p == None {
		return true
	}
	_, ok := shapes[p]
	return ok
}

// Generate synthesizes a two-channel impulse response at the given rate.
//
// Each sample is uniform(-1,1) * (1 - i/len)^decay, drawn independently per
// channel: uncorrelated channels approximate a diffuse stereo field. The
// "none" preset returns a single-sample identity kernel (1.0 per channel),
// a passthrough convolution. Unknown presets fall back to "none".
func Generate(p Preset, sampleRate int) *audio.Buffer {
	sh, ok := shapes[p]
	if !ok {
		buf := audio.NewBuffer(audio.Channels, 1, sampleRate)
		for ch := range buf.Data {
			buf.Data[ch][0] = 1.0
		}
		return buf
	}

	length := int(float64(sampleRate) * sh.duration)
	buf := audio.NewBuffer(audio.Channels, length, sampleRate)
	for ch := range buf.Data {
		for i := 0; i < length; i++ {
			env := math.Pow(1-float64(i)/float64(length), sh.decay)
			buf.Data[ch][i] = (rand.Float64()*2 - 1) * env
		}
	}
	return buf
}
