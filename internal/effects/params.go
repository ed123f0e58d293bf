package effects

import (
	"fmt"

	"github.com/hewland/promptmix/internal/impulse"
)

// Filter type names, Web-style biquad vocabulary.
const (
	FilterLowpass  = "lowpass"
	FilterHighpass = "highpass"
	FilterBandpass = "bandpass"
	FilterNotch    = "notch"
)

// DelayParams configures the feedback delay stage.
type DelayParams struct {
	Enabled  bool    `json:"enabled"`
	Time     float64 `json:"time"`     // seconds
	Feedback float64 `json:"feedback"` // 0..1
}

// FilterParams configures the biquad stage.
type FilterParams struct {
	Enabled   bool    `json:"enabled"`
	Type      string  `json:"type"`
	Frequency float64 `json:"frequency"` // Hz
	Q         float64 `json:"q"`
}

// Params is a full effects setting. Applying it replaces all prior
// settings -- there is no partial merge.
type Params struct {
	Reverb string       `json:"reverb"` // impulse preset name
	Delay  DelayParams  `json:"delay"`
	Filter FilterParams `json:"filter"`
}

// Defaults returns the neutral chain setting: identity reverb, delay and
// filter disabled.
func Defaults() Params {
	return Params{
		Reverb: string(impulse.None),
		Delay:  DelayParams{Time: 0.25, Feedback: 0.35},
		Filter: FilterParams{Type: FilterLowpass, Frequency: 12000, Q: 0.707},
	}
}

// Validate checks ranges and names; values are clamped by Apply, so this
// only rejects settings no clamp can rescue.
func (p Params) Validate() error {
	if !impulse.Valid(impulse.Preset(p.Reverb)) {
		return fmt.Errorf("unknown reverb preset %q", p.Reverb)
	}
	switch p.Filter.Type {
	case FilterLowpass, FilterHighpass, FilterBandpass, FilterNotch:
	default:
		return fmt.Errorf("unknown filter type %q", p.Filter.Type)
	}
	return nil
}
