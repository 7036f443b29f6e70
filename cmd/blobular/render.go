package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/satindergrewal/blobular/internal/audio"
	"github.com/satindergrewal/blobular/internal/config"
)

// render runs the engine against the playback clock as fast as possible and
// writes the mix to a 16-bit stereo WAV file.
func render(cfg config.Config, path string, seconds float64) error {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("invalid duration %v", seconds)
	}
	a, err := newApp(cfg, cfg.SampleRate)
	if err != nil {
		return err
	}
	sr := a.graph.SampleRate()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := a.engine.Start(context.Background()); err != nil {
		return err
	}

	started := time.Now()
	w := audio.NewWAVWriter(f, sr, audio.Channels)
	total := int(math.Round(seconds * float64(sr)))
	chunk := max(1, int(cfg.Tick.Seconds()*float64(sr)))
	buf := make([]float32, chunk*audio.Channels)
	for done := 0; done < total; done += chunk {
		n := min(chunk, total-done)
		a.engine.Tick()
		a.graph.Render(buf[:n*audio.Channels])
		if err := w.Write(buf[:n*audio.Channels]); err != nil {
			return err
		}
	}
	a.engine.Stop()
	if err := w.Close(); err != nil {
		return err
	}

	st := a.engine.Status()
	log.Printf("Rendered %.1fs to %s in %v (%d grains, %d Hz)",
		float64(w.Frames())/float64(sr), path, time.Since(started).Round(time.Millisecond), st.Scheduled, sr)
	return nil
}
