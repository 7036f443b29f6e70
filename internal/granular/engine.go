package granular

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/blobular/internal/audio"
	"github.com/satindergrewal/blobular/internal/graph"
)

// ParamSource supplies the live grain parameters. It is queried once per tick.
type ParamSource interface {
	Params() Params
}

// BufferProvider supplies the current source sample, or nil if none is
// loaded. The returned buffer must not be mutated afterwards.
type BufferProvider interface {
	Buffer() *audio.Buffer
}

// LoadFunc loads the fallback sample used when the provider has none.
type LoadFunc func(ctx context.Context) (*audio.Buffer, error)

// EngineConfig holds scheduler parameters.
type EngineConfig struct {
	Voices        int
	Lookahead     time.Duration // how far ahead of the clock grains are scheduled
	TickInterval  time.Duration // Run's tick period
	GrainGain     float64       // peak envelope level per grain
	MasterGain    float64
	MaxIterations int // grains per voice per tick
	MaxInFlight   int // active sources across all voices, 0 = unbounded
	Seed          uint64
	Fallback      LoadFunc
}

// DefaultEngineConfig returns the stock scheduler settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Voices:        DefaultVoices,
		Lookahead:     100 * time.Millisecond,
		TickInterval:  16 * time.Millisecond,
		GrainGain:     0.8,
		MasterGain:    1.0,
		MaxIterations: 64,
		MaxInFlight:   256,
	}
}

// State is the scheduler lifecycle state.
type State int

const (
	Idle State = iota
	Scheduling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduling:
		return "scheduling"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// GrainEvent records one scheduled grain for display.
type GrainEvent struct {
	Voice         int       `json:"voice"`
	ScheduledTime float64   `json:"scheduled_time"`
	Duration      float64   `json:"duration"`
	Rate          float64   `json:"playback_rate"`
	Fade          float64   `json:"fade"`
	Pan           Pan       `json:"pan"`
	Offset        float64   `json:"offset"`
	CreatedAt     time.Time `json:"created_at"`
}

type voice struct {
	nextGrainTime float64
	guarded       bool // max-iterations guard tripped on the previous tick
}

// Engine schedules N independent grain voices against a playback context.
type Engine struct {
	ctx     *graph.Context
	params  ParamSource
	buffers BufferProvider
	cfg     EngineConfig

	mu        sync.Mutex
	state     State
	bus       *Bus
	fallback  *audio.Buffer
	voices    []voice // arena; only the first count are live
	count     int
	events    []*GrainEvent
	rng       *rand.Rand
	scheduled uint64
	first     int // voice scheduled first on the next tick

	completed atomic.Uint64
}

// NewEngine creates an idle engine. Nothing is wired into ctx until Start.
func NewEngine(ctx *graph.Context, params ParamSource, buffers BufferProvider, cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.Voices < MinVoices || cfg.Voices > MaxVoices {
		cfg.Voices = def.Voices
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = def.Lookahead
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Engine{
		ctx:     ctx,
		params:  params,
		buffers: buffers,
		cfg:     cfg,
		voices:  make([]voice, cfg.Voices),
		count:   cfg.Voices,
		events:  make([]*GrainEvent, cfg.Voices),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Start wires the shared bus on first use, makes sure a sample is available
// and starts every voice at the current clock time. Starting while already
// playing re-syncs every voice to now.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.bus == nil {
		bus, err := NewBus(e.ctx, e.cfg.MasterGain)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		e.bus = bus
	}
	needFallback := e.buffers.Buffer() == nil && e.fallback == nil
	e.mu.Unlock()

	if needFallback {
		if e.cfg.Fallback == nil {
			return ErrNoBuffer
		}
		buf, err := e.cfg.Fallback(ctx)
		if err != nil {
			return fmt.Errorf("load fallback sample: %w", err)
		}
		e.mu.Lock()
		e.fallback = buf
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.ctx.CurrentTime()
	for i := range e.voices[:e.count] {
		e.voices[i] = voice{nextGrainTime: now}
	}
	e.state = Scheduling
	log.Printf("Engine started: %d voices at t=%.3fs", e.count, now)
	return nil
}

// Stop halts scheduling. Grains already scheduled play out. Calling Stop
// when not playing does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Scheduling {
		return
	}
	e.state = Stopped
	log.Printf("Engine stopped after %d grains", e.scheduled)
}

// Playing reports whether the engine is scheduling.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Scheduling
}

// SetVoiceCount resizes the voice arena. Surviving voices keep their
// timelines; added voices start at the current clock time.
func (e *Engine) SetVoiceCount(n int) error {
	if n < MinVoices || n > MaxVoices {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrVoiceCount, n, MinVoices, MaxVoices)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == e.count {
		return nil
	}
	now := e.ctx.CurrentTime()
	for i := e.count; i < n; i++ {
		if i < len(e.voices) {
			e.voices[i] = voice{nextGrainTime: now}
		} else {
			e.voices = append(e.voices, voice{nextGrainTime: now})
		}
	}
	if n < len(e.events) {
		clear(e.events[n:])
		e.events = e.events[:n]
	} else {
		e.events = append(e.events, make([]*GrainEvent, n-len(e.events))...)
	}
	log.Printf("Voice count %d -> %d", e.count, n)
	e.count = n
	return nil
}

// VoiceCount returns the number of live voices.
func (e *Engine) VoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// NextGrainTimes returns each live voice's next scheduled grain time.
func (e *Engine) NextGrainTimes() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float64, e.count)
	for i := range out {
		out[i] = e.voices[i].nextGrainTime
	}
	return out
}

// Events returns the latest grain per voice; entries are nil for voices that
// have not produced a grain yet.
func (e *Engine) Events() []*GrainEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*GrainEvent, len(e.events))
	copy(out, e.events)
	return out
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State          string  `json:"state"`
	Playing        bool    `json:"playing"`
	Voices         int     `json:"voices"`
	Clock          float64 `json:"clock"`
	InFlight       int     `json:"in_flight"`
	Scheduled      uint64  `json:"scheduled"`
	Completed      uint64  `json:"completed"`
	BufferDuration float64 `json:"buffer_duration"`
	ReductionDB    float64 `json:"reduction_db"`
}

// Status returns current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		State:     e.state.String(),
		Playing:   e.state == Scheduling,
		Voices:    e.count,
		Scheduled: e.scheduled,
	}
	bus := e.bus
	buf := e.currentBuffer()
	e.mu.Unlock()

	st.Clock = e.ctx.CurrentTime()
	st.InFlight = e.ctx.ActiveSources()
	st.Completed = e.completed.Load()
	st.BufferDuration = buf.Duration()
	if bus != nil {
		st.ReductionDB = bus.Compressor.Reduction()
	}
	return st
}

// Run calls Tick every TickInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick schedules every grain due within the look-ahead horizon. It does
// nothing unless the engine is playing with a bus and a sample available.
func (e *Engine) Tick() {
	// Read params before locking: the param source may call back into the
	// engine (voice count changes) while holding its own lock.
	p := e.params.Params()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Scheduling || e.bus == nil {
		return
	}
	buf := e.currentBuffer()
	if buf.Frames() == 0 {
		return
	}

	now := e.ctx.CurrentTime()
	horizon := now + e.cfg.Lookahead.Seconds()
	// Rotate the starting voice so a full in-flight budget is shared.
	e.first %= e.count
	for k := range e.count {
		e.scheduleVoice((e.first+k)%e.count, buf, p, now, horizon)
	}
	e.first++
}

func (e *Engine) scheduleVoice(i int, buf *audio.Buffer, p Params, now, horizon float64) {
	v := &e.voices[i]
	for n := 0; v.nextGrainTime < horizon; n++ {
		if n == e.cfg.MaxIterations {
			if !v.guarded {
				log.Printf("Voice %d: %d grains in one tick, deferring the rest (duration %.2f-%.2f, fade %.2f-%.2f)",
					i, n, p.Duration.Min, p.Duration.Max, p.Fade.Min, p.Fade.Max)
			}
			v.guarded = true
			v.nextGrainTime = math.Max(v.nextGrainTime, now)
			return
		}
		if e.cfg.MaxInFlight > 0 && e.ctx.ActiveSources() >= e.cfg.MaxInFlight {
			// Skip rather than queue, so the voice does not burst later.
			v.nextGrainTime = math.Max(v.nextGrainTime, now)
			return
		}

		g := DrawGrain(e.rng, p, buf.Duration())
		e.events[i] = &GrainEvent{
			Voice:         i,
			ScheduledTime: v.nextGrainTime,
			Duration:      g.Duration,
			Rate:          g.Rate,
			Fade:          g.Fade,
			Pan:           g.Pan,
			Offset:        g.Offset,
			CreatedAt:     time.Now(),
		}
		PlayGrain(e.ctx, buf, GrainSpec{
			StartTime: v.nextGrainTime,
			Duration:  g.Duration,
			Rate:      g.Rate,
			Gain:      e.cfg.GrainGain,
			Fade:      g.Fade,
			Pan:       g.Pan,
			Offset:    g.Offset,
		}, e.bus.Input(), e.grainEnded)
		e.scheduled++
		v.nextGrainTime += g.Duration - g.Fade
	}
	v.guarded = false
}

func (e *Engine) grainEnded() { e.completed.Add(1) }

// currentBuffer prefers the provider's sample over the fallback. The caller
// holds e.mu.
func (e *Engine) currentBuffer() *audio.Buffer {
	if buf := e.buffers.Buffer(); buf != nil {
		return buf
	}
	return e.fallback
}
