package config

import (
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/satindergrewal/blobular/internal/audio"
	"github.com/satindergrewal/blobular/internal/granular"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Playback context
	SampleRate int

	// Initial user controls
	Controls granular.Settings

	// Scheduler
	Lookahead     time.Duration
	Tick          time.Duration
	GrainGain     float64
	MasterGain    float64
	MaxIterations int
	MaxInFlight   int
	Seed          uint64 // 0 picks a random seed

	// Source sample
	Sample     string // local file loaded at boot; empty uses the embedded default
	PondURL    string // audio pond bucket; empty disables the pond
	PondPrefix string

	// Outputs
	Speaker bool
	STUNURL string

	AutoStart bool
}

// Load reads configuration from environment variables with sane defaults.
// Invalid values fall back to the default for that setting.
func Load() Config {
	sched := granular.DefaultEngineConfig()
	return Config{
		Port:       envInt("BLOBULAR_PORT", 8080),
		SampleRate: envInt("BLOBULAR_SAMPLE_RATE", audio.SampleRate),

		Controls: granular.ParseQuery(url.Values{
			"blobs":    {os.Getenv("BLOBULAR_VOICES")},
			"scale":    {os.Getenv("BLOBULAR_SCALE")},
			"duration": {os.Getenv("BLOBULAR_DURATION")},
			"rate":     {os.Getenv("BLOBULAR_RATE")},
			"fade":     {os.Getenv("BLOBULAR_FADE")},
		}, granular.DefaultSettings()),

		Lookahead:     envDuration("BLOBULAR_LOOKAHEAD", sched.Lookahead),
		Tick:          envDuration("BLOBULAR_TICK", sched.TickInterval),
		GrainGain:     envFloat("BLOBULAR_GRAIN_GAIN", sched.GrainGain),
		MasterGain:    envFloat("BLOBULAR_MASTER_GAIN", sched.MasterGain),
		MaxIterations: envInt("BLOBULAR_MAX_ITERATIONS", sched.MaxIterations),
		MaxInFlight:   envInt("BLOBULAR_MAX_IN_FLIGHT", sched.MaxInFlight),
		Seed:          envUint64("BLOBULAR_SEED", 0),

		Sample:     envStr("BLOBULAR_SAMPLE", ""),
		PondURL:    envStr("BLOBULAR_POND_URL", ""),
		PondPrefix: envStr("BLOBULAR_POND_PREFIX", "audio-pond/"),

		Speaker: envBool("BLOBULAR_SPEAKER", false),
		STUNURL: envStr("BLOBULAR_STUN_URL", ""),

		AutoStart: envBool("BLOBULAR_AUTOSTART", false),
	}
}

// Engine returns the scheduler configuration.
func (c Config) Engine() granular.EngineConfig {
	return granular.EngineConfig{
		Voices:        c.Controls.Voices,
		Lookahead:     c.Lookahead,
		TickInterval:  c.Tick,
		GrainGain:     c.GrainGain,
		MasterGain:    c.MasterGain,
		MaxIterations: c.MaxIterations,
		MaxInFlight:   c.MaxInFlight,
		Seed:          c.Seed,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint64(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
