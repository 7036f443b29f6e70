package graph

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/satindergrewal/blobular/internal/audio"
)

// testRate is a power of two so frame counts convert to seconds exactly.
const testRate = 1024

func constBuffer(sr, channels, frames int, v float32) *audio.Buffer {
	b := audio.NewBuffer(sr, channels, frames)
	for ch := range b.Data {
		for i := range b.Data[ch] {
			b.Data[ch][i] = v
		}
	}
	return b
}

// render renders frames and returns the left and right channels.
func render(c *Context, frames int) (left, right []float32) {
	dst := make([]float32, frames*2)
	c.Render(dst)
	left = make([]float32, frames)
	right = make([]float32, frames)
	for i := 0; i < frames; i++ {
		left[i], right[i] = dst[i*2], dst[i*2+1]
	}
	return left, right
}

func TestClockAdvancesOnlyThroughRender(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	if c.CurrentTime() != 0 {
		t.Fatalf("initial CurrentTime = %v, want 0", c.CurrentTime())
	}
	render(c, 300) // spans a partial quantum
	if got, want := c.CurrentTime(), 300.0/testRate; got != want {
		t.Errorf("CurrentTime = %v, want %v", got, want)
	}
}

func TestNewContextDefaultsRate(t *testing.T) {
	t.Parallel()
	if got := NewContext(0).SampleRate(); got != audio.SampleRate {
		t.Errorf("SampleRate = %d, want %d", got, audio.SampleRate)
	}
}

func TestBufferSourcePlaysSliceAndEnds(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 0.5))
	src.Connect(c.Destination())

	ended := 0
	src.OnEnded(func() { ended++ })
	src.Start(0, 0, 10.0/testRate)
	if c.ActiveSources() != 1 {
		t.Fatalf("ActiveSources = %d, want 1", c.ActiveSources())
	}

	left, right := render(c, 20)
	want := make([]float32, 20)
	for i := 0; i < 10; i++ {
		want[i] = 0.5
	}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("left mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, right); diff != "" {
		t.Errorf("mono source should reach both sides (-want +got):\n%s", diff)
	}
	if ended != 1 {
		t.Errorf("ended callbacks = %d, want 1", ended)
	}
	if c.ActiveSources() != 0 {
		t.Errorf("ActiveSources after end = %d, want 0", c.ActiveSources())
	}

	render(c, 200)
	if ended != 1 {
		t.Errorf("ended fired again: %d", ended)
	}
}

func TestBufferSourceScheduledInFuture(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 2, 100, 1))
	src.Connect(c.Destination())
	src.Start(5.0/testRate, 0, 2.0/testRate)

	left, _ := render(c, 10)
	want := []float32{0, 0, 0, 0, 0, 1, 1, 0, 0, 0}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferSourceStartInPastStartsNow(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	render(c, 50)

	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 1))
	src.Connect(c.Destination())
	src.Start(10.0/testRate, 0, 3.0/testRate)

	left, _ := render(c, 5)
	want := []float32{1, 1, 1, 0, 0}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferSourceOffsetClampsToBufferEnd(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	b := audio.NewBuffer(testRate, 1, 10)
	for i := range b.Data[0] {
		b.Data[0][i] = float32(i)
	}
	src := c.NewBufferSource(b)
	src.Connect(c.Destination())
	src.Start(0, 7.0/testRate, 1) // asks for far more than remains

	left, _ := render(c, 6)
	want := []float32{7, 8, 9, 0, 0, 0}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if !src.Ended() {
		t.Error("source should have ended at the buffer end")
	}
}

func TestBufferSourceRateAndResampling(t *testing.T) {
	t.Parallel()

	t.Run("playback rate interpolates", func(t *testing.T) {
		c := NewContext(testRate)
		b := audio.NewBuffer(testRate, 1, 8)
		for i := range b.Data[0] {
			b.Data[0][i] = float32(i)
		}
		src := c.NewBufferSource(b)
		src.PlaybackRate.SetValue(0.5)
		src.Connect(c.Destination())
		src.Start(0, 0, 2.0/testRate)

		left, _ := render(c, 6)
		want := []float32{0, 0.5, 1, 1.5, 0, 0}
		if diff := cmp.Diff(want, left); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("buffer rate mismatch", func(t *testing.T) {
		c := NewContext(testRate)
		// 20 frames at twice the context rate should take 10 context frames.
		src := c.NewBufferSource(constBuffer(2*testRate, 1, 20, 1))
		src.Connect(c.Destination())
		src.Start(0, 0, 10.0/testRate)

		left, _ := render(c, 12)
		var played int
		for _, v := range left {
			if v != 0 {
				played++
			}
		}
		if played != 10 {
			t.Errorf("played %d frames, want 10", played)
		}
	})
}

func TestNilBufferSourceEndsImmediately(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(nil)
	done := false
	src.OnEnded(func() { done = true })
	src.Start(0, 0, 1)
	render(c, 1)
	if !done {
		t.Error("source with no buffer never ended")
	}
}

func TestUnconnectedSourceStillEnds(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 1))
	done := false
	src.OnEnded(func() { done = true })
	src.Start(0, 0, 0.05)
	render(c, 100)
	if !done {
		t.Error("unconnected source never ended")
	}
}

func TestEndedCallbackMayReleaseNodes(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 1))
	g := c.NewGain()
	p := c.NewStereoPanner()
	src.Connect(g)
	g.Connect(p)
	p.Connect(c.Destination())
	src.OnEnded(func() {
		src.Release()
		g.Release()
		p.Release()
	})
	src.Start(0, 0, 20.0/testRate)

	if c.LiveNodes() != 3 {
		t.Fatalf("LiveNodes = %d, want 3", c.LiveNodes())
	}
	render(c, 128)
	if c.LiveNodes() != 0 {
		t.Errorf("LiveNodes after end = %d, want 0", c.LiveNodes())
	}
	if n := len(c.Destination().inputs); n != 0 {
		t.Errorf("destination still has %d inputs", n)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	g := c.NewGain()
	g.Release()
	g.Release()
	if c.LiveNodes() != 0 {
		t.Errorf("LiveNodes = %d, want 0", c.LiveNodes())
	}
	c.Destination().Release()
}

func TestReleasedSourceDropsFromActive(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 1))
	src.Start(0, 0, 1)
	src.Release()
	if c.ActiveSources() != 0 {
		t.Errorf("ActiveSources = %d, want 0", c.ActiveSources())
	}
}

func TestFanOutRendersOnce(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	b := audio.NewBuffer(testRate, 1, 8)
	for i := range b.Data[0] {
		b.Data[0][i] = float32(i)
	}
	src := c.NewBufferSource(b)
	g1, g2 := c.NewGain(), c.NewGain()
	src.Connect(g1)
	src.Connect(g2)
	src.Connect(g2) // duplicate connections are ignored
	g1.Connect(c.Destination())
	g2.Connect(c.Destination())
	src.Start(0, 0, 4.0/testRate)

	left, _ := render(c, 4)
	want := []float32{0, 2, 4, 6}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 1))
	src.Connect(c.Destination())
	src.Disconnect()
	src.Start(0, 0, 0.01)
	left, _ := render(c, 4)
	if diff := cmp.Diff(make([]float32, 4), left); diff != "" {
		t.Errorf("disconnected source was audible (-want +got):\n%s", diff)
	}
}

func TestGainAutomation(t *testing.T) {
	t.Parallel()
	c := NewContext(testRate)
	src := c.NewBufferSource(constBuffer(testRate, 1, 100, 1))
	g := c.NewGain()
	src.Connect(g)
	g.Connect(c.Destination())
	g.Gain.SetValueAtTime(0, 0)
	g.Gain.LinearRampToValueAtTime(1, 4.0/testRate)
	src.Start(0, 0, 0.1)

	left, _ := render(c, 6)
	want := []float32{0, 0.25, 0.5, 0.75, 1, 1}
	if diff := cmp.Diff(want, left, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStereoPannerEqualPower(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		channels    int
		pan         float64
		left, right float32
	}{
		{"mono center", 1, 0, float32(math.Sqrt2 / 2), float32(math.Sqrt2 / 2)},
		{"mono hard left", 1, -1, 1, 0},
		{"mono hard right", 1, 1, 0, 1},
		{"stereo center", 2, 0, 1, 1},
		{"stereo hard left", 2, -1, 2, 0},
		{"stereo hard right", 2, 1, 0, 2},
		{"clamped beyond range", 1, 5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewContext(testRate)
			src := c.NewBufferSource(constBuffer(testRate, tt.channels, 10, 1))
			p := c.NewStereoPanner()
			p.Pan.SetValue(tt.pan)
			src.Connect(p)
			p.Connect(c.Destination())
			src.Start(0, 0, 10.0/testRate)

			left, right := render(c, 1)
			opt := cmpopts.EquateApprox(0, 1e-6)
			if !cmp.Equal(tt.left, left[0], opt) || !cmp.Equal(tt.right, right[0], opt) {
				t.Errorf("got (%v, %v), want (%v, %v)", left[0], right[0], tt.left, tt.right)
			}
		})
	}
}

func TestCompressor(t *testing.T) {
	t.Parallel()
	settings := CompressorSettings{
		ThresholdDB: -24,
		KneeDB:      30,
		Ratio:       12,
		Attack:      3 * time.Millisecond,
		Release:     250 * time.Millisecond,
	}

	t.Run("quiet signal passes untouched", func(t *testing.T) {
		c := NewContext(audio.SampleRate)
		comp, err := c.NewCompressor(settings)
		if err != nil {
			t.Fatalf("NewCompressor: %v", err)
		}
		src := c.NewBufferSource(constBuffer(audio.SampleRate, 2, audio.SampleRate, 0.001))
		src.Connect(comp)
		comp.Connect(c.Destination())
		src.Start(0, 0, 1)

		left, _ := render(c, 1024)
		if got := left[1023]; math.Abs(float64(got)-0.001) > 1e-7 {
			t.Errorf("output = %v, want 0.001", got)
		}
		if r := comp.Reduction(); r != 0 {
			t.Errorf("Reduction = %v dB, want 0", r)
		}
	})

	t.Run("loud signal is reduced", func(t *testing.T) {
		c := NewContext(audio.SampleRate)
		comp, err := c.NewCompressor(settings)
		if err != nil {
			t.Fatalf("NewCompressor: %v", err)
		}
		src := c.NewBufferSource(constBuffer(audio.SampleRate, 2, audio.SampleRate, 1))
		src.Connect(comp)
		comp.Connect(c.Destination())
		src.Start(0, 0, 1)

		left, right := render(c, audio.SampleRate/4)
		last := len(left) - 1
		if left[last] >= 0.5 {
			t.Errorf("output = %v, want well under 0.5", left[last])
		}
		if left[last] != right[last] {
			t.Errorf("stereo link broken: L=%v R=%v", left[last], right[last])
		}
		if r := comp.Reduction(); r > -10 {
			t.Errorf("Reduction = %v dB, want below -10", r)
		}
	})

	t.Run("invalid ratio", func(t *testing.T) {
		c := NewContext(audio.SampleRate)
		bad := settings
		bad.Ratio = 0
		if _, err := c.NewCompressor(bad); err == nil {
			t.Error("expected an error for ratio 0")
		}
		if c.LiveNodes() != 0 {
			t.Errorf("failed compressor leaked a node")
		}
	})
}
