package granular

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Scale is a named set of semitone degrees within an octave.
type Scale struct {
	name    string
	degrees [12]bool
}

// NewScale builds a scale. Degrees are folded into 0..11, so 12 means the
// root and -1 means degree 11.
func NewScale(name string, degrees ...int) Scale {
	s := Scale{name: name}
	for _, d := range degrees {
		s.degrees[mod12(d)] = true
	}
	return s
}

// Name returns the scale's name.
func (s Scale) Name() string { return s.name }

// Has reports whether semitone lands on a degree of the scale, in any octave.
func (s Scale) Has(semitone int) bool { return s.degrees[mod12(semitone)] }

// Degrees returns the scale's degrees in ascending order.
func (s Scale) Degrees() []int {
	var out []int
	for d, ok := range s.degrees {
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func mod12(n int) int { return ((n % 12) + 12) % 12 }

var scales = []Scale{
	NewScale("Major", 0, 2, 4, 5, 7, 9, 11),
	NewScale("Minor", 0, 2, 3, 5, 7, 8, 10),
	NewScale("Chromatic", 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
	NewScale("MajorChord", 0, 4, 7),
	NewScale("MinorChord", 0, 3, 7),
	NewScale("MinorSeventh", 0, 3, 7, 10),
	NewScale("Octave", 0, 12),
	NewScale("Fifths", 0, 7),
	NewScale("Blues", 0, 3, 5, 6, 7, 10),
	NewScale("JazzMinor", 0, 2, 3, 5, 7, 9, 10),
	NewScale("Mixolydian", 0, 2, 4, 5, 7, 9, 10),
	NewScale("Locrian", 0, 1, 3, 5, 6, 8, 10),
	NewScale("MelodicMinor", 0, 2, 3, 5, 7, 9, 11),
	NewScale("Phrygian", 0, 1, 3, 5, 7, 8, 10),
	NewScale("LydianDominant", 0, 2, 4, 6, 7, 9, 10),
	NewScale("Algerian", 0, 1, 3, 4, 6, 7, 10),
	NewScale("JazzHungarianMinor", 0, 1, 4, 5, 7, 8, 10),
	NewScale("HarmonicMajor", 0, 2, 4, 5, 7, 8, 11),
	NewScale("HungarianMajor", 0, 2, 4, 5, 7, 8, 10),
	NewScale("IndianRaga", 0, 1, 3, 4, 5, 6, 8, 9, 10),
	NewScale("Pentatonic", 0, 2, 4, 7, 9),
	NewScale("WholeTone", 0, 2, 4, 6, 8, 10),
	NewScale("Lydian", 0, 2, 4, 6, 7, 9, 11),
	NewScale("HarmonicMinor", 0, 2, 3, 5, 7, 8, 11),
	NewScale("HungarianMinor", 0, 2, 3, 6, 7, 8, 11),
	NewScale("Spanish", 0, 1, 3, 4, 5, 7, 8, 10),
	NewScale("JazzBlues", 0, 2, 3, 5, 6, 7, 9, 10),
}

// DefaultScale is the scale used when none is configured.
const DefaultScale = "Fifths"

// ScaleByName looks up one of the built-in scales.
func ScaleByName(name string) (Scale, error) {
	i := slices.IndexFunc(scales, func(s Scale) bool { return s.name == name })
	if i < 0 {
		return Scale{}, fmt.Errorf("%w: %q", ErrUnknownScale, name)
	}
	return scales[i], nil
}

// ScaleNames lists the built-in scales in display order.
func ScaleNames() []string {
	names := make([]string, len(scales))
	for i, s := range scales {
		names[i] = s.name
	}
	return names
}

// PickScaledRate picks a playback rate between minRate and maxRate that
// transposes by a whole number of semitones landing on a degree of s. Bounds
// are rounded inwards to the nearest semitone, and every candidate is equally
// likely. When no semitone qualifies the rate is 1.
func PickScaledRate(r *rand.Rand, minRate, maxRate float64, s Scale) float64 {
	if !(minRate > 0) || !(maxRate > 0) || math.IsInf(minRate, 0) || math.IsInf(maxRate, 0) {
		return 1
	}
	lo := int(math.Ceil(12 * math.Log2(minRate)))
	hi := int(math.Floor(12 * math.Log2(maxRate)))

	count := 0
	for n := lo; n <= hi; n++ {
		if s.Has(n) {
			count++
		}
	}
	if count == 0 {
		return 1
	}

	pick := r.IntN(count)
	for n := lo; n <= hi; n++ {
		if !s.Has(n) {
			continue
		}
		if pick == 0 {
			return SemitoneRate(n)
		}
		pick--
	}
	return 1
}

// SemitoneRate converts a transposition in semitones to a playback rate.
func SemitoneRate(semitones int) float64 {
	return math.Exp2(float64(semitones) / 12)
}
