package graph

import (
	"math"
	"sort"
)

type rampKind int

const (
	rampNone rampKind = iota
	rampLinear
	rampExponential
)

type paramEvent struct {
	kind  rampKind
	time  float64
	value float64
}

// Param is an automatable node parameter. Events are evaluated per sample
// against the context clock.
type Param struct {
	ctx          *Context
	defaultValue float64
	events       []paramEvent
}

func newParam(ctx *Context, v float64) *Param {
	return &Param{ctx: ctx, defaultValue: v}
}

// SetValue drops all scheduled automation and sets the value immediately.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = nil
	p.defaultValue = v
}

// SetValueAtTime jumps to v at time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: rampNone, time: t, value: v})
}

// LinearRampToValueAtTime ramps linearly from the previous event to v,
// arriving at time t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: rampLinear, time: t, value: v})
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event to
// v, arriving at time t. If either end is zero or the ends differ in sign
// the previous value is held until t.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: rampExponential, time: t, value: v})
}

// ValueAt returns the automated value at time t.
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(t)
}

// insert places e after every event at or before its time, so events sharing
// a timestamp keep their insertion order.
func (p *Param) insert(e paramEvent) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

// valueAt evaluates the automation timeline. The caller holds ctx.mu.
func (p *Param) valueAt(t float64) float64 {
	t0, v0 := 0.0, p.defaultValue
	for _, e := range p.events {
		if e.time <= t {
			t0, v0 = e.time, e.value
			continue
		}
		switch e.kind {
		case rampLinear:
			return linearRamp(t0, v0, e.time, e.value, t)
		case rampExponential:
			return exponentialRamp(t0, v0, e.time, e.value, t)
		}
		return v0
	}
	return v0
}

func linearRamp(t0, v0, t1, v1, t float64) float64 {
	if t1 <= t0 {
		return v1
	}
	return v0 + (v1-v0)*(t-t0)/(t1-t0)
}

func exponentialRamp(t0, v0, t1, v1, t float64) float64 {
	if t1 <= t0 {
		return v1
	}
	if v0 <= 0 && v1 >= 0 || v0 >= 0 && v1 <= 0 {
		return v0
	}
	return v0 * math.Pow(v1/v0, (t-t0)/(t1-t0))
}
