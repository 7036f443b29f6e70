package granular

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewControlsFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	c := NewControls(Settings{Voices: 99})
	if diff := cmp.Diff(DefaultSettings(), c.Settings()); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
	if got := c.Params().Scale.Name(); got != DefaultScale {
		t.Errorf("scale = %q, want %q", got, DefaultScale)
	}
}

func TestControlsApply(t *testing.T) {
	t.Parallel()
	c := NewControls(DefaultSettings())

	var resized []int
	c.OnVoiceChange(func(n int) error {
		resized = append(resized, n)
		return nil
	})

	next := DefaultSettings()
	next.Voices = 4
	next.Scale = "Pentatonic"
	next.Rate = Range{0.5, 2}
	if err := c.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff := cmp.Diff([]int{4}, resized); diff != "" {
		t.Errorf("voice callbacks (-want +got):\n%s", diff)
	}
	p := c.Params()
	if p.Scale.Name() != "Pentatonic" || p.Rate != (Range{0.5, 2}) {
		t.Errorf("Params = %+v", p)
	}

	// Same voice count does not call back.
	next.Fade = Range{0.2, 0.4}
	if err := c.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(resized) != 1 {
		t.Errorf("callback ran for unchanged voice count")
	}
}

func TestControlsApplyRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   error
	}{
		{"too many voices", func(s *Settings) { s.Voices = 21 }, ErrVoiceCount},
		{"duration too short", func(s *Settings) { s.Duration = Range{0.001, 1} }, ErrInvalidRange},
		{"inverted rate", func(s *Settings) { s.Rate = Range{2, 1} }, ErrInvalidRange},
		{"fade too long", func(s *Settings) { s.Fade = Range{0.1, 5} }, ErrInvalidRange},
		{"unknown scale", func(s *Settings) { s.Scale = "Klingon" }, ErrUnknownScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewControls(DefaultSettings())
			s := DefaultSettings()
			tt.mutate(&s)
			if err := c.Apply(s); !errors.Is(err, tt.want) {
				t.Fatalf("Apply err = %v, want %v", err, tt.want)
			}
			if diff := cmp.Diff(DefaultSettings(), c.Settings()); diff != "" {
				t.Errorf("rejected settings were applied (-want +got):\n%s", diff)
			}
		})
	}
}

func TestControlsApplyVoiceCallbackError(t *testing.T) {
	t.Parallel()
	c := NewControls(DefaultSettings())
	c.OnVoiceChange(func(int) error { return ErrVoiceCount })
	s := DefaultSettings()
	s.Voices = 3
	if err := c.Apply(s); !errors.Is(err, ErrVoiceCount) {
		t.Fatalf("Apply err = %v", err)
	}
	if c.Settings().Voices != DefaultVoices {
		t.Error("voice count changed despite callback error")
	}
}

func TestSettingsQuery(t *testing.T) {
	t.Parallel()
	got := DefaultSettings().Query()
	want := url.Values{
		"blobs":    {"8"},
		"duration": {"0.80-8.80"},
		"rate":     {"0.90-1.40"},
		"fade":     {"0.10-1.00"},
		"scale":    {"Fifths"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Query (-want +got):\n%s", diff)
	}
}

func TestParseQuery(t *testing.T) {
	t.Parallel()
	base := DefaultSettings()
	tests := []struct {
		name  string
		query string
		want  func(s *Settings)
	}{
		{"empty", "", func(s *Settings) {}},
		{"dash ranges", "blobs=12&duration=1.50-3.00&rate=0.50-2.00&fade=0.20-0.40&scale=Blues", func(s *Settings) {
			s.Voices = 12
			s.Duration = Range{1.5, 3}
			s.Rate = Range{0.5, 2}
			s.Fade = Range{0.2, 0.4}
			s.Scale = "Blues"
		}},
		{"comma ranges", "duration=2,4", func(s *Settings) { s.Duration = Range{2, 4} }},
		{"invalid entries ignored", "blobs=50&duration=abc&rate=9-10&scale=Nope&fade=0.5", func(s *Settings) {}},
		{"inverted ignored", "duration=5-1", func(s *Settings) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			want := base
			tt.want(&want)
			if diff := cmp.Diff(want, ParseQuery(q, base)); diff != "" {
				t.Errorf("ParseQuery (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueryRoundTrip(t *testing.T) {
	t.Parallel()
	s := Settings{Voices: 3, Duration: Range{0.25, 9.5}, Rate: Range{0.75, 1.25}, Fade: Range{0.5, 2}, Scale: "WholeTone"}
	if diff := cmp.Diff(s, ParseQuery(s.Query(), DefaultSettings())); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}
