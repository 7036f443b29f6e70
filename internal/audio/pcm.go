package audio

import (
	"encoding/binary"
	"math"
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FloatToInt16 converts a float sample in [-1, 1] to int16, clipping
// anything outside that range. NaN becomes silence.
func FloatToInt16(v float32) int16 {
	if v != v {
		return 0
	}
	s := math.Round(float64(v) * 32767)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}

// FloatsToSamples converts interleaved float samples into dst, which must be
// at least as long as src. It returns dst[:len(src)].
func FloatsToSamples(dst []int16, src []float32) []int16 {
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = FloatToInt16(v)
	}
	return dst
}
