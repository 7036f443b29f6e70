package graph

import "math"

// StereoPanner positions its input with an equal-power law. Pan runs from
// -1 (hard left) to +1 (hard right).
type StereoPanner struct {
	nodeBase
	Pan *Param
}

// NewStereoPanner creates a centered panner.
func (c *Context) NewStereoPanner() *StereoPanner {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &StereoPanner{}
	p.register(c, p)
	p.Pan = newParam(c, 0)
	return p
}

func (p *StereoPanner) process(frame int64, n int) {
	p.mixInputs(p.ctx.quantum, frame, n)
	mono := p.mono
	p.mono = false
	sr := float64(p.ctx.sampleRate)
	for i := 0; i < n; i++ {
		pan := math.Max(-1, math.Min(1, p.Pan.valueAt(float64(frame+int64(i))/sr)))
		l, r := p.out[0][i], p.out[1][i]
		p.out[0][i], p.out[1][i] = panSample(l, r, pan, mono)
	}
}

// panSample applies the equal-power pan law. Mono input is spread across
// both sides; stereo input keeps the far channel and folds the near one in.
func panSample(l, r float32, pan float64, mono bool) (float32, float32) {
	if mono {
		x := (pan + 1) / 2
		gl := float32(math.Cos(x * math.Pi / 2))
		gr := float32(math.Sin(x * math.Pi / 2))
		return l * gl, l * gr
	}
	if pan <= 0 {
		x := pan + 1
		gl := float32(math.Cos(x * math.Pi / 2))
		gr := float32(math.Sin(x * math.Pi / 2))
		return l + r*gl, r * gr
	}
	gl := float32(math.Cos(pan * math.Pi / 2))
	gr := float32(math.Sin(pan * math.Pi / 2))
	return l * gl, r + l*gr
}
