package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter writes interleaved float frames to a 16-bit PCM WAV file.
type WAVWriter struct {
	enc      *wav.Encoder
	channels int
	ib       *goaudio.IntBuffer
	frames   int
}

// NewWAVWriter wraps w in a 16-bit PCM WAV encoder. The header is finalized
// on Close, so w must be seekable.
func NewWAVWriter(w io.WriteSeeker, sampleRate, channels int) *WAVWriter {
	return &WAVWriter{
		enc:      wav.NewEncoder(w, sampleRate, BitDepth, channels, 1),
		channels: channels,
		ib: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: BitDepth,
		},
	}
}

// Write appends interleaved float samples.
func (w *WAVWriter) Write(samples []float32) error {
	if cap(w.ib.Data) < len(samples) {
		w.ib.Data = make([]int, len(samples))
	}
	w.ib.Data = w.ib.Data[:len(samples)]
	for i, v := range samples {
		w.ib.Data[i] = int(FloatToInt16(v))
	}
	if err := w.enc.Write(w.ib); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	w.frames += len(samples) / w.channels
	return nil
}

// Frames returns how many frames have been written so far.
func (w *WAVWriter) Frames() int { return w.frames }

// Close flushes the encoder and patches the header sizes.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}
