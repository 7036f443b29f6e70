package granular

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Control limits.
const (
	MinVoices     = 1
	MaxVoices     = 20
	DefaultVoices = 8
)

var (
	DurationLimits = Range{Min: 0.01, Max: 1000}
	FadeLimits     = Range{Min: 0.1, Max: 3.0}
	RateLimits     = Range{Min: 0.25, Max: 4.0}

	DefaultDuration = Range{Min: 0.8, Max: 8.8}
	DefaultFade     = Range{Min: 0.1, Max: 1.0}
	DefaultRate     = Range{Min: 0.9, Max: 1.4}
)

// Settings is a plain snapshot of the user controls.
type Settings struct {
	Voices   int    `json:"voices"`
	Duration Range  `json:"duration"`
	Rate     Range  `json:"rate"`
	Fade     Range  `json:"fade"`
	Scale    string `json:"scale"`
}

// DefaultSettings returns the stock controls.
func DefaultSettings() Settings {
	return Settings{
		Voices:   DefaultVoices,
		Duration: DefaultDuration,
		Rate:     DefaultRate,
		Fade:     DefaultFade,
		Scale:    DefaultScale,
	}
}

// Validate checks every field against the control limits.
func (s Settings) Validate() error {
	if s.Voices < MinVoices || s.Voices > MaxVoices {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrVoiceCount, s.Voices, MinVoices, MaxVoices)
	}
	if err := s.Duration.Within(DurationLimits); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	if err := s.Rate.Within(RateLimits); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if err := s.Fade.Within(FadeLimits); err != nil {
		return fmt.Errorf("fade: %w", err)
	}
	if _, err := ScaleByName(s.Scale); err != nil {
		return err
	}
	return nil
}

// Controls is the live, concurrency-safe store of user settings. It is the
// engine's ParamSource.
type Controls struct {
	mu       sync.RWMutex
	settings Settings
	scale    Scale
	onVoices func(int) error
}

// NewControls creates controls from s, falling back to defaults if s is
// invalid.
func NewControls(s Settings) *Controls {
	if s.Validate() != nil {
		s = DefaultSettings()
	}
	sc, _ := ScaleByName(s.Scale)
	return &Controls{settings: s, scale: sc}
}

// OnVoiceChange registers fn to be called when the voice count changes. An
// error from fn rejects the change.
func (c *Controls) OnVoiceChange(fn func(int) error) {
	c.mu.Lock()
	c.onVoices = fn
	c.mu.Unlock()
}

// Params implements ParamSource.
func (c *Controls) Params() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Params{
		Duration: c.settings.Duration,
		Rate:     c.settings.Rate,
		Fade:     c.settings.Fade,
		Scale:    c.scale,
	}
}

// Settings returns a copy of the current settings.
func (c *Controls) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Apply validates and installs s as a whole.
func (c *Controls) Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	sc, _ := ScaleByName(s.Scale)

	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Voices != c.settings.Voices && c.onVoices != nil {
		if err := c.onVoices(s.Voices); err != nil {
			return err
		}
	}
	c.settings = s
	c.scale = sc
	return nil
}

// Query encodes the settings as URL query parameters.
func (s Settings) Query() url.Values {
	v := url.Values{}
	v.Set("blobs", strconv.Itoa(s.Voices))
	v.Set("duration", formatRange(s.Duration))
	v.Set("rate", formatRange(s.Rate))
	v.Set("fade", formatRange(s.Fade))
	if s.Scale != "" {
		v.Set("scale", s.Scale)
	}
	return v
}

// ParseQuery overlays any valid parameters in q onto base. Ranges accept
// either "min-max" or "min,max". Invalid entries are ignored.
func ParseQuery(q url.Values, base Settings) Settings {
	out := base
	if n, err := strconv.Atoi(q.Get("blobs")); err == nil && n >= MinVoices && n <= MaxVoices {
		out.Voices = n
	}
	if r, ok := parseRange(q.Get("duration")); ok && r.Within(DurationLimits) == nil {
		out.Duration = r
	}
	if r, ok := parseRange(q.Get("rate")); ok && r.Within(RateLimits) == nil {
		out.Rate = r
	}
	if r, ok := parseRange(q.Get("fade")); ok && r.Within(FadeLimits) == nil {
		out.Fade = r
	}
	if name := q.Get("scale"); name != "" {
		if _, err := ScaleByName(name); err == nil {
			out.Scale = name
		}
	}
	return out
}

func formatRange(r Range) string {
	return strconv.FormatFloat(r.Min, 'f', 2, 64) + "-" + strconv.FormatFloat(r.Max, 'f', 2, 64)
}

func parseRange(s string) (Range, bool) {
	if s == "" {
		return Range{}, false
	}
	sep := ","
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	lo, hi, ok := strings.Cut(s, sep)
	if !ok {
		return Range{}, false
	}
	minV, err1 := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	maxV, err2 := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err1 != nil || err2 != nil {
		return Range{}, false
	}
	return Range{Min: minV, Max: maxV}, true
}
