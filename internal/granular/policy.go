package granular

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Range is a closed interval. Min == Max is a valid, fixed value.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Draw picks uniformly within the range.
func (r Range) Draw(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Within reports whether r fits inside limits and is ordered.
func (r Range) Within(limits Range) error {
	switch {
	case math.IsNaN(r.Min) || math.IsNaN(r.Max):
		return fmt.Errorf("%w: NaN bound", ErrInvalidRange)
	case r.Min > r.Max:
		return fmt.Errorf("%w: min %.2f > max %.2f", ErrInvalidRange, r.Min, r.Max)
	case r.Min < limits.Min || r.Max > limits.Max:
		return fmt.Errorf("%w: [%.2f, %.2f] outside [%.2f, %.2f]",
			ErrInvalidRange, r.Min, r.Max, limits.Min, limits.Max)
	}
	return nil
}

// Params are the user-facing grain parameter ranges, read once per tick.
type Params struct {
	Duration Range
	Rate     Range
	Fade     Range
	Scale    Scale
}

// Grain is one grain's randomized parameters.
type Grain struct {
	Duration float64
	Rate     float64
	Fade     float64
	Pan      Pan
	Offset   float64
}

// PlayTime is the wall-clock length before any buffer clamping.
func (g Grain) PlayTime() float64 { return g.Duration / g.Rate }

// DrawGrain draws one grain against a buffer bufferDuration seconds long.
// Draw order is fixed, so a seeded rng reproduces the same stream:
// duration, rate, fade, pan direction, offset.
func DrawGrain(rng *rand.Rand, p Params, bufferDuration float64) Grain {
	dur := p.Duration.Draw(rng)
	rate := PickScaledRate(rng, p.Rate.Min, p.Rate.Max, p.Scale)
	play := dur / rate
	fade := math.Min(p.Fade.Draw(rng), play/2)

	pan := Pan{Start: 1, RampTo: -1}
	if rng.Float64() < 0.5 {
		pan = Pan{Start: -1, RampTo: 1}
	}

	offset := rng.Float64() * math.Max(0, bufferDuration-play)
	return Grain{
		Duration: dur,
		Rate:     rate,
		Fade:     fade,
		Pan:      pan,
		Offset:   offset,
	}
}
