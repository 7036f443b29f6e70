package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is a decoded, read-only audio sample held in planar float32 form.
// Grains reference the Buffer they were scheduled with, so a Buffer must not
// be mutated once it has been handed to the engine.
type Buffer struct {
	SampleRate int
	Data       [][]float32 // one slice per channel, all the same length
}

// NewBuffer allocates a silent buffer of the given shape.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// FromInterleaved splits interleaved samples into a planar Buffer.
// A trailing partial frame is dropped.
func FromInterleaved(samples []float32, sampleRate, channels int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	frames := len(samples) / channels
	b := NewBuffer(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			b.Data[ch][i] = samples[i*channels+ch]
		}
	}
	return b
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Frames returns the length of the buffer in sample frames.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the length of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Frame reads frame i as a stereo pair. Mono buffers are duplicated to both
// sides; channels beyond the second are ignored.
func (b *Buffer) Frame(i int) (left, right float32) {
	switch len(b.Data) {
	case 0:
		return 0, 0
	case 1:
		v := b.Data[0][i]
		return v, v
	default:
		return b.Data[0][i], b.Data[1][i]
	}
}
