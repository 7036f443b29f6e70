package audio

import (
	"context"
	"log"
	"sync"
	"time"
)

// Renderer produces interleaved stereo float samples on demand. Each call
// advances the renderer's clock by len(dst)/Channels frames.
type Renderer interface {
	Render(dst []float32)
}

// Pipeline pulls frames from a Renderer at real-time rate and publishes them
// as 20ms int16 PCM frames. It is the clock master for live playback: the
// renderer only advances when the pipeline asks for the next frame.
type Pipeline struct {
	src     Renderer
	frameCh chan []int16

	mu       sync.RWMutex
	rendered int64 // frames
	peak     float32
	late     int
}

// NewPipeline creates a pipeline that renders from src.
func NewPipeline(src Renderer) *Pipeline {
	return &Pipeline{
		src:     src,
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// PipelineStatus is a point-in-time snapshot of the render loop.
type PipelineStatus struct {
	Position time.Duration `json:"position"`
	Peak     float32       `json:"peak"`
	Late     int           `json:"late_frames"`
}

// Status returns current playback info.
func (p *Pipeline) Status() PipelineStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PipelineStatus{
		Position: time.Duration(p.rendered) * time.Second / SampleRate,
		Peak:     p.peak,
		Late:     p.late,
	}
}

// Run starts the pipeline. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	scratch := make([]float32, FrameSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.src.Render(scratch)
		frame := FloatsToSamples(make([]int16, FrameSamples), scratch)
		p.update(scratch)

		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return
		default:
			// Consumer is behind; block, but count it so Status can show it.
			p.markLate()
			select {
			case p.frameCh <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) update(frame []float32) {
	var peak float32
	for _, v := range frame {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	p.mu.Lock()
	p.rendered += int64(len(frame) / Channels)
	p.peak = peak
	p.mu.Unlock()
}

func (p *Pipeline) markLate() {
	p.mu.Lock()
	p.late++
	n := p.late
	p.mu.Unlock()
	if n == 1 || n%500 == 0 {
		log.Printf("Pipeline: frame consumer is behind (%d late frames)", n)
	}
}
