package graph

import "slices"

// Node is anything that can be wired into a Context's graph.
type Node interface {
	// Connect routes this node's output into dst's input. Connecting the same
	// pair twice is a no-op.
	Connect(dst Node)
	// Disconnect removes every outgoing connection.
	Disconnect()
	// Release disconnects the node and returns it to the context. It is safe
	// to call more than once.
	Release()

	base() *nodeBase
	process(frame int64, n int)
}

// nodeBase carries the wiring and per-quantum output shared by every node.
type nodeBase struct {
	ctx      *Context
	self     Node
	id       uint64
	inputs   []Node
	outputs  []Node
	released bool

	// out holds the last rendered quantum, cached so fan-out renders once.
	out        [2][Quantum]float32
	mono       bool
	renderedAt int64
}

func (b *nodeBase) init(ctx *Context, self Node) {
	b.ctx = ctx
	b.self = self
	ctx.nextID++
	b.id = ctx.nextID
}

// register counts the node as live. The caller holds ctx.mu.
func (b *nodeBase) register(ctx *Context, self Node) {
	b.init(ctx, self)
	ctx.live++
}

func (b *nodeBase) base() *nodeBase { return b }

func (b *nodeBase) Connect(dst Node) {
	c := b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	d := dst.base()
	if b.released || d.released || d.ctx != c {
		return
	}
	if slices.Contains(b.outputs, dst) {
		return
	}
	b.outputs = append(b.outputs, dst)
	d.inputs = append(d.inputs, b.self)
}

func (b *nodeBase) Disconnect() {
	c := b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	b.disconnect()
}

func (b *nodeBase) disconnect() {
	for _, dst := range b.outputs {
		d := dst.base()
		d.inputs = slices.DeleteFunc(d.inputs, func(n Node) bool { return n == b.self })
	}
	b.outputs = nil
}

func (b *nodeBase) Release() {
	c := b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	b.release()
}

func (b *nodeBase) release() {
	if b.released {
		return
	}
	b.disconnect()
	for _, src := range b.inputs {
		sb := src.base()
		sb.outputs = slices.DeleteFunc(sb.outputs, func(n Node) bool { return n == b.self })
	}
	b.inputs = nil
	b.released = true
	c := b.ctx
	c.live--
	if s, ok := b.self.(*BufferSource); ok {
		delete(c.sources, s)
	}
}

// pull renders the node for quantum q unless it already has.
func (b *nodeBase) pull(q, frame int64, n int) {
	if b.renderedAt == q {
		return
	}
	b.renderedAt = q
	b.self.process(frame, n)
}

// mixInputs sums every input into b.out. The result is mono only when every
// input is mono.
func (b *nodeBase) mixInputs(q, frame int64, n int) {
	clear(b.out[0][:n])
	clear(b.out[1][:n])
	b.mono = len(b.inputs) > 0
	for _, in := range b.inputs {
		ib := in.base()
		ib.pull(q, frame, n)
		if !ib.mono {
			b.mono = false
		}
		for i := 0; i < n; i++ {
			b.out[0][i] += ib.out[0][i]
			b.out[1][i] += ib.out[1][i]
		}
	}
}

// Destination is the terminal node of a Context. It sums its inputs.
type Destination struct {
	nodeBase
}

func (d *Destination) process(frame int64, n int) {
	d.mixInputs(d.ctx.quantum, frame, n)
}

// Release is a no-op for the destination.
func (d *Destination) Release() {}

// Gain multiplies its summed input by an automatable gain.
type Gain struct {
	nodeBase
	Gain *Param
}

// NewGain creates a gain node with unity gain.
func (c *Context) NewGain() *Gain {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := &Gain{}
	g.register(c, g)
	g.Gain = newParam(c, 1)
	return g
}

func (g *Gain) process(frame int64, n int) {
	g.mixInputs(g.ctx.quantum, frame, n)
	sr := float64(g.ctx.sampleRate)
	for i := 0; i < n; i++ {
		v := float32(g.Gain.valueAt(float64(frame+int64(i)) / sr))
		g.out[0][i] *= v
		g.out[1][i] *= v
	}
}
