package audio

import "math"

// Smoothed is a one-pole parameter smoother: Advance moves the value toward
// the target along an exponential curve with the given time constant, so
// control changes never step audibly.
type Smoothed struct {
	value  float64
	target float64
	tau    float64 // seconds
}

// NewSmoothed creates a smoother at an initial value with time constant tau.
func NewSmoothed(initial, tau float64) *Smoothed {
	if tau <= 0 {
		tau = 0.01
	}
	return &Smoothed{value: initial, target: initial, tau: tau}
}

// Set ramps toward a new target.
func (s *Smoothed) Set(target float64) {
	s.target = target
}

// SetImmediate jumps to a value with no ramp.
func (s *Smoothed) SetImmediate(v float64) {
	s.value = v
	s.target = v
}

// Advance steps the smoother by dt seconds and returns the new value.
// Values within 1e-6 of the target snap to it.
func (s *Smoothed) Advance(dt float64) float64 {
	if s.value != s.target {
		s.value += (s.target - s.value) * (1 - math.Exp(-dt/s.tau))
		if math.Abs(s.target-s.value) < 1e-6 {
			s.value = s.target
		}
	}
	return s.value
}

// Value returns the current smoothed value.
func (s *Smoothed) Value() float64 { return s.value }

// Target returns the ramp destination.
func (s *Smoothed) Target() float64 { return s.target }
