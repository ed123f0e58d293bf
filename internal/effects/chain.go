// Package effects implements the fixed post-processing signal path:
// convolution reverb -> feedback delay -> biquad filter, stereo, applied as
// an engine insert. Parameter changes ramp; only the reverb kernel swaps
// outright.
package effects

import (
	"fmt"
	"log"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/hewland/promptmix/internal/audio"
	"github.com/hewland/promptmix/internal/impulse"
)

const (
	// rampTau is the smoothing time constant for delay and filter
	// parameter changes.
	rampTau = 0.05

	// reverbBlockOrder sets convolver latency to 2^6 = 64 samples.
	reverbBlockOrder = 6

	delayWetMix = 0.3

	minDelayTime = 0.001
	maxDelayTime = 2.0
	maxFeedback  = 0.95
)

// Chain is the effects chain controller. It processes per-channel blocks in
// place; the engine decides whether the chain is in the signal path at all.
type Chain struct {
	sampleRate int

	mu     sync.Mutex
	params Params

	rev    [audio.Channels]*reverb.ConvolutionReverb
	delay  [audio.Channels]*effects.Delay
	filter [audio.Channels]*biquad.Section

	delayTime     *audio.Smoothed
	delayFeedback *audio.Smoothed
	delayMix      *audio.Smoothed
	filterFreq    *audio.Smoothed
	filterQ       *audio.Smoothed

	// filterKind is the active coefficient designer. A disabled filter is
	// not removed from the path: it is redesigned as a neutral allpass near
	// Nyquist, so topology never changes for filter on/off.
	filterKind string
}

// NewChain builds the chain in its neutral setting.
func NewChain(sampleRate int) (*Chain, error) {
	c := &Chain{
		sampleRate: sampleRate,
		params:     Defaults(),
		filterKind: "allpass",
	}

	p := c.params
	c.delayTime = audio.NewSmoothed(p.Delay.Time, rampTau)
	c.delayFeedback = audio.NewSmoothed(p.Delay.Feedback, rampTau)
	c.delayMix = audio.NewSmoothed(0, rampTau)
	c.filterFreq = audio.NewSmoothed(c.neutralFreq(), rampTau)
	c.filterQ = audio.NewSmoothed(0.707, rampTau)

	if err := c.setKernel(impulse.None); err != nil {
		return nil, err
	}
	for ch := 0; ch < audio.Channels; ch++ {
		d, err := effects.NewDelay(float64(sampleRate))
		if err != nil {
			return nil, fmt.Errorf("effects: delay: %w", err)
		}
		d.SetMix(0)
		c.delay[ch] = d
		c.filter[ch] = biquad.NewSection(design.Allpass(c.neutralFreq(), 0.707, float64(sampleRate)))
	}
	return c, nil
}

// Params returns the last applied setting.
func (c *Chain) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Apply replaces the chain setting. The reverb kernel swaps instantly (a
// swap may click; accepted); delay time/feedback and filter frequency/Q
// ramp toward their targets over the smoothing time constant.
func (c *Chain) Apply(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Reverb != c.params.Reverb {
		if err := c.setKernel(impulse.Preset(p.Reverb)); err != nil {
			return err
		}
	}

	c.delayTime.Set(clamp(p.Delay.Time, minDelayTime, maxDelayTime))
	c.delayFeedback.Set(clamp(p.Delay.Feedback, 0, maxFeedback))
	if p.Delay.Enabled {
		c.delayMix.Set(delayWetMix)
	} else {
		c.delayMix.Set(0)
	}

	nyquist := float64(c.sampleRate) / 2
	if p.Filter.Enabled {
		c.filterKind = p.Filter.Type
		c.filterFreq.Set(clamp(p.Filter.Frequency, 10, nyquist*0.99))
		c.filterQ.Set(clamp(p.Filter.Q, 0.05, 30))
	} else {
		c.filterKind = "allpass"
		c.filterFreq.Set(c.neutralFreq())
		c.filterQ.Set(0.707)
	}

	c.params = p
	return nil
}

// Process runs the chain over a per-channel block in place. Implements
// engine.Insert.
func (c *Chain) Process(block [][]float64) {
	if len(block) == 0 || len(block[0]) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dt := float64(len(block[0])) / float64(c.sampleRate)
	c.advanceParamsLocked(dt)

	for ch := range block {
		if ch >= audio.Channels {
			break
		}
		if err := c.rev[ch].ProcessInPlace(block[ch]); err != nil {
			log.Printf("Effects: reverb: %v", err)
		}
		c.delay[ch].ProcessInPlace(block[ch])
		c.filter[ch].ProcessBlock(block[ch])
	}
}

// advanceParamsLocked steps every smoothed parameter by dt and pushes the
// new values into the DSP stages.
func (c *Chain) advanceParamsLocked(dt float64) {
	t := c.delayTime.Advance(dt)
	fb := c.delayFeedback.Advance(dt)
	mix := c.delayMix.Advance(dt)
	for ch := range c.delay {
		if err := c.delay[ch].SetTime(t); err == nil {
			_ = c.delay[ch].SetFeedback(fb)
			_ = c.delay[ch].SetMix(mix)
		}
	}

	freq := c.filterFreq.Advance(dt)
	q := c.filterQ.Advance(dt)
	coeffs := c.designFilter(freq, q)
	for ch := range c.filter {
		// Keep the section state; only the coefficients move.
		c.filter[ch].Coefficients = coeffs
	}
}

func (c *Chain) designFilter(freq, q float64) biquad.Coefficients {
	sr := float64(c.sampleRate)
	switch c.filterKind {
	case FilterLowpass:
		return design.Lowpass(freq, q, sr)
	case FilterHighpass:
		return design.Highpass(freq, q, sr)
	case FilterBandpass:
		return design.Bandpass(freq, q, sr)
	case FilterNotch:
		return design.Notch(freq, q, sr)
	default:
		return design.Allpass(freq, q, sr)
	}
}

// setKernel rebuilds the per-channel convolvers from an impulse preset.
// Caller holds c.mu (or is the constructor).
func (c *Chain) setKernel(p impulse.Preset) error {
	ir := impulse.Generate(p, c.sampleRate)
	for ch := 0; ch < audio.Channels; ch++ {
		kch := ch
		if kch >= ir.Channels() {
			kch = ir.Channels() - 1
		}
		r, err := reverb.NewConvolutionReverb(ir.Data[kch], reverbBlockOrder)
		if err != nil {
			return fmt.Errorf("effects: reverb kernel %q: %w", p, err)
		}
		// The chain runs fully wet through the convolver; the "none"
		// preset's identity kernel is the passthrough.
		r.SetWetDry(1, 0)
		c.rev[ch] = r
	}
	return nil
}

// neutralFreq is the allpass center used when the filter is disabled:
// just under Nyquist, where the allpass is audibly transparent.
func (c *Chain) neutralFreq() float64 {
	return float64(c.sampleRate) / 2 * 0.99
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
