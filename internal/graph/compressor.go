package graph

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/effects"
)

// maxKneeDB is the widest knee the underlying compressor accepts.
const maxKneeDB = 24

// CompressorSettings configures a Compressor.
type CompressorSettings struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// Compressor is a stereo-linked soft-knee dynamics compressor. Both channels
// share one detector driven by the louder side, so the stereo image does not
// shift under gain reduction.
type Compressor struct {
	nodeBase
	comp      *effects.Compressor
	reduction float64 // dB, <= 0, over the last rendered quantum
}

// NewCompressor creates a compressor with no makeup gain. Knee widths above
// 24 dB are clamped.
func (c *Context) NewCompressor(s CompressorSettings) (*Compressor, error) {
	comp, err := effects.NewCompressor(float64(c.sampleRate))
	if err != nil {
		return nil, fmt.Errorf("compressor: %w", err)
	}
	steps := []struct {
		name string
		set  func() error
	}{
		{"threshold", func() error { return comp.SetThreshold(s.ThresholdDB) }},
		{"knee", func() error { return comp.SetKnee(math.Min(s.KneeDB, maxKneeDB)) }},
		{"ratio", func() error { return comp.SetRatio(s.Ratio) }},
		{"attack", func() error { return comp.SetAttack(durationMs(s.Attack)) }},
		{"release", func() error { return comp.SetRelease(durationMs(s.Release)) }},
		{"makeup", func() error { return comp.SetMakeupGain(0) }},
	}
	for _, st := range steps {
		if err := st.set(); err != nil {
			return nil, fmt.Errorf("compressor %s: %w", st.name, err)
		}
	}
	comp.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()
	n := &Compressor{comp: comp}
	n.register(c, n)
	return n, nil
}

// Reduction returns the deepest gain reduction in dB applied during the most
// recently rendered quantum. Zero means no compression.
func (n *Compressor) Reduction() float64 {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return n.reduction
}

func (n *Compressor) process(frame int64, count int) {
	n.mixInputs(n.ctx.quantum, frame, count)
	n.comp.ResetMetrics()
	for i := 0; i < count; i++ {
		l, r := n.out[0][i], n.out[1][i]
		peak := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
		g := 1.0
		if out := n.comp.ProcessSample(peak); peak > 0 {
			g = out / peak
		}
		n.out[0][i] = l * float32(g)
		n.out[1][i] = r * float32(g)
	}
	n.reduction = 0
	if g := n.comp.GetMetrics().GainReduction; g > 0 && g < 1 {
		n.reduction = 20 * math.Log10(g)
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
