// Package graph is a small pull-based audio processing graph with a sample
// clock. Nodes are created from a Context, wired with Connect, and rendered by
// pulling from the Context's destination one quantum at a time.
//
// All node mutation is serialized through the owning Context, so nodes may be
// created and automated from one goroutine while another calls Render.
package graph

import (
	"cmp"
	"slices"
	"sync"

	"github.com/satindergrewal/blobular/internal/audio"
)

// Quantum is the number of frames rendered per processing block.
const Quantum = 128

// Context owns the sample clock and every node created from it.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	frame      int64 // next frame to render
	quantum    int64 // increments once per rendered block

	dest    *Destination
	sources map[*BufferSource]struct{}
	live    int
	nextID  uint64
}

// NewContext creates a context rendering at sampleRate. A non-positive rate
// falls back to audio.SampleRate.
func NewContext(sampleRate int) *Context {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	c := &Context{
		sampleRate: sampleRate,
		sources:    make(map[*BufferSource]struct{}),
	}
	c.dest = &Destination{}
	c.dest.init(c, c.dest)
	return c
}

// SampleRate returns the context's rate in Hz.
func (c *Context) SampleRate() int { return c.sampleRate }

// CurrentTime returns the time in seconds of the next frame to be rendered.
// It only advances through Render and never goes backwards.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Context) now() float64 {
	return float64(c.frame) / float64(c.sampleRate)
}

// Destination returns the context's output node.
func (c *Context) Destination() *Destination { return c.dest }

// ActiveSources returns the number of sources that have been started and
// have neither ended nor been released.
func (c *Context) ActiveSources() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

// LiveNodes returns the number of nodes created from this context that have
// not been released. The destination is not counted.
func (c *Context) LiveNodes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Render fills dst with interleaved stereo samples and advances the clock by
// len(dst)/2 frames. Ended callbacks of sources that finished during this
// call run after the context lock is released, in the order they ended.
func (c *Context) Render(dst []float32) {
	frames := len(dst) / audio.Channels
	var ended []*BufferSource

	c.mu.Lock()
	for off := 0; off < frames; {
		n := min(Quantum, frames-off)
		c.quantum++
		c.dest.pull(c.quantum, c.frame, n)
		// Started sources advance even when nothing downstream pulls them.
		for s := range c.sources {
			s.pull(c.quantum, c.frame, n)
		}
		for i := 0; i < n; i++ {
			dst[(off+i)*2] = c.dest.out[0][i]
			dst[(off+i)*2+1] = c.dest.out[1][i]
		}
		c.frame += int64(n)
		off += n
		ended = c.collectEnded(ended)
	}
	c.mu.Unlock()

	for _, s := range ended {
		if s.onEnded != nil {
			s.onEnded()
		}
	}
}

// collectEnded removes finished sources from the active set.
func (c *Context) collectEnded(ended []*BufferSource) []*BufferSource {
	mark := len(ended)
	for s := range c.sources {
		if s.finished {
			delete(c.sources, s)
			ended = append(ended, s)
		}
	}
	slices.SortFunc(ended[mark:], func(a, b *BufferSource) int {
		return cmp.Compare(a.id, b.id)
	})
	return ended
}
