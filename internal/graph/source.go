package graph

import (
	"math"

	"github.com/satindergrewal/blobular/internal/audio"
)

// BufferSource plays a slice of a decoded Buffer once. Output is linearly
// interpolated, and a buffer recorded at a different rate than the context
// is resampled on the fly.
type BufferSource struct {
	nodeBase
	PlaybackRate *Param

	buf      *audio.Buffer
	srFactor float64

	started    bool
	startFrame int64
	phase      float64 // read position in buffer frames
	endPhase   float64
	finished   bool
	onEnded    func()
}

// NewBufferSource creates a one-shot source over buf. buf may be nil, in
// which case the source ends as soon as it starts.
func (c *Context) NewBufferSource(buf *audio.Buffer) *BufferSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &BufferSource{buf: buf, srFactor: 1}
	s.register(c, s)
	s.PlaybackRate = newParam(c, 1)
	if buf != nil && buf.SampleRate > 0 {
		s.srFactor = float64(buf.SampleRate) / float64(c.sampleRate)
	}
	return s
}

// OnEnded sets the callback run once the source has played its slice. It
// runs on the rendering goroutine after the context lock is released, so it
// may call back into the graph.
func (s *BufferSource) OnEnded(fn func()) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.onEnded = fn
}

// Start schedules playback at context time when, reading duration seconds of
// buffer time beginning offset seconds into the buffer. A start time already
// in the past starts on the next rendered frame. Only the first call has any
// effect.
func (s *BufferSource) Start(when, offset, duration float64) {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.started || s.released {
		return
	}
	s.started = true
	s.startFrame = max(int64(math.Round(when*float64(c.sampleRate))), c.frame)

	var frames, bufRate float64
	if s.buf != nil {
		frames = float64(s.buf.Frames())
		bufRate = float64(s.buf.SampleRate)
	}
	s.phase = clampFloat(offset*bufRate, 0, frames)
	s.endPhase = clampFloat((offset+max(duration, 0))*bufRate, s.phase, frames)
	c.sources[s] = struct{}{}
}

// Ended reports whether the source has finished playing.
func (s *BufferSource) Ended() bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.finished
}

func (s *BufferSource) process(frame int64, n int) {
	clear(s.out[0][:n])
	clear(s.out[1][:n])
	s.mono = s.buf != nil && s.buf.Channels() == 1
	if !s.started || s.finished {
		return
	}

	sr := float64(s.ctx.sampleRate)
	last := s.buf.Frames() - 1
	for i := 0; i < n; i++ {
		f := frame + int64(i)
		if f < s.startFrame {
			continue
		}
		if s.phase >= s.endPhase {
			s.finished = true
			return
		}
		idx := int(s.phase)
		frac := float32(s.phase - float64(idx))
		l0, r0 := s.buf.Frame(idx)
		l1, r1 := l0, r0
		if idx < last {
			l1, r1 = s.buf.Frame(idx + 1)
		}
		s.out[0][i] = l0 + (l1-l0)*frac
		s.out[1][i] = r0 + (r1-r0)*frac

		inc := s.PlaybackRate.valueAt(float64(f)/sr) * s.srFactor
		if inc <= 0 {
			s.finished = true
			return
		}
		s.phase += inc
	}
	if s.phase >= s.endPhase && frame+int64(n) > s.startFrame {
		s.finished = true
	}
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
