package granular

import (
	"math"
	"sync"

	"github.com/satindergrewal/blobular/internal/audio"
	"github.com/satindergrewal/blobular/internal/graph"
)

// silence is the envelope floor. Exponential ramps cannot start or end at 0.
const silence = 0.0001

// Pan is a stereo sweep from Start to RampTo over a grain's lifetime.
type Pan struct {
	Start  float64 `json:"start"`
	RampTo float64 `json:"ramp_to"`
}

// GrainSpec is everything needed to play one grain.
type GrainSpec struct {
	StartTime float64 // context time
	Duration  float64 // requested wall-clock length, seconds
	Rate      float64
	Gain      float64
	Fade      float64
	Pan       Pan
	Offset    float64 // seconds into the buffer
}

// Slice is the geometry a grain actually gets once clamped to its buffer.
type Slice struct {
	BufferSeconds float64 // sample time read from the buffer
	PlayTime      float64 // wall-clock length
	Fade          float64 // fade-in and fade-out length
}

// ComputeSlice clamps a grain to what remains of a bufferDuration-second
// buffer past its offset and caps the fade to half the resulting play time.
func ComputeSlice(bufferDuration float64, spec GrainSpec) Slice {
	rate := spec.Rate
	if !(rate > 0) {
		rate = 1
	}
	needed := math.Max(0, spec.Duration) * rate
	avail := math.Max(0, bufferDuration-spec.Offset)
	slice := math.Min(needed, avail)
	play := slice / rate
	return Slice{
		BufferSeconds: slice,
		PlayTime:      play,
		Fade:          math.Max(0, math.Min(spec.Fade, play/2)),
	}
}

// GrainHandle owns the nodes of one playing grain.
type GrainHandle struct {
	Slice Slice

	src  *graph.BufferSource
	gain *graph.Gain
	pan  *graph.StereoPanner

	once sync.Once
	done chan struct{}
}

// Release disconnects and frees the grain's nodes. Only the first call does
// anything; it runs automatically when the grain ends.
func (h *GrainHandle) Release() {
	h.once.Do(func() {
		h.src.Release()
		h.gain.Release()
		h.pan.Release()
		close(h.done)
	})
}

// Done is closed once the grain has been released.
func (h *GrainHandle) Done() <-chan struct{} { return h.done }

// PlayGrain builds source -> envelope -> pan -> out for one grain and
// schedules it. The returned handle releases itself when the source ends;
// onEnded, if non-nil, runs right after that.
func PlayGrain(ctx *graph.Context, buf *audio.Buffer, spec GrainSpec, out graph.Node, onEnded func()) *GrainHandle {
	sl := ComputeSlice(buf.Duration(), spec)
	rate := spec.Rate
	if !(rate > 0) {
		rate = 1
	}

	h := &GrainHandle{
		Slice: sl,
		src:   ctx.NewBufferSource(buf),
		gain:  ctx.NewGain(),
		pan:   ctx.NewStereoPanner(),
		done:  make(chan struct{}),
	}

	t0, t1 := spec.StartTime, spec.StartTime+sl.PlayTime
	h.src.PlaybackRate.SetValue(rate)

	env := h.gain.Gain
	env.SetValueAtTime(silence, t0)
	env.ExponentialRampToValueAtTime(spec.Gain, t0+sl.Fade)
	env.SetValueAtTime(spec.Gain, t1-sl.Fade)
	env.ExponentialRampToValueAtTime(silence, t1)

	h.pan.Pan.SetValueAtTime(spec.Pan.Start, t0)
	h.pan.Pan.LinearRampToValueAtTime(spec.Pan.RampTo, t1)

	h.src.Connect(h.gain)
	h.gain.Connect(h.pan)
	h.pan.Connect(out)

	h.src.OnEnded(func() {
		h.Release()
		if onEnded != nil {
			onEnded()
		}
	})
	h.src.Start(t0, spec.Offset, sl.BufferSeconds)
	return h
}
