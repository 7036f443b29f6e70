package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/blobular/internal/audio"
	"github.com/satindergrewal/blobular/internal/config"
	"github.com/satindergrewal/blobular/internal/granular"
	"github.com/satindergrewal/blobular/internal/graph"
	"github.com/satindergrewal/blobular/internal/pond"
	"github.com/satindergrewal/blobular/internal/source"
	"github.com/satindergrewal/blobular/internal/stream"
)

func main() {
	renderPath := flag.String("render", "", "render offline to this WAV file and exit")
	seconds := flag.Float64("seconds", 30, "length of the offline render")
	seed := flag.Uint64("seed", 0, "random seed (0 picks one)")
	flag.Parse()

	cfg := config.Load()
	if *seed != 0 {
		cfg.Seed = *seed
	}

	if *renderPath != "" {
		if err := render(cfg, *renderPath, *seconds); err != nil {
			log.Fatalf("render: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("error: %v", err)
	}
	log.Println("blobular stopped")
}

// app is the engine stack shared by live and offline modes.
type app struct {
	graph    *graph.Context
	controls *granular.Controls
	provider *source.Provider
	engine   *granular.Engine
}

func newApp(cfg config.Config, sampleRate int) (*app, error) {
	gctx := graph.NewContext(sampleRate)
	controls := granular.NewControls(cfg.Controls)
	provider := source.NewProvider()
	if cfg.Sample != "" {
		if err := provider.LoadFile(cfg.Sample); err != nil {
			return nil, fmt.Errorf("load sample: %w", err)
		}
	}

	ecfg := cfg.Engine()
	ecfg.Voices = controls.Settings().Voices
	ecfg.Fallback = source.DefaultAsset
	engine := granular.NewEngine(gctx, controls, provider, ecfg)
	controls.OnVoiceChange(engine.SetVoiceCount)

	return &app{graph: gctx, controls: controls, provider: provider, engine: engine}, nil
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.SampleRate != audio.SampleRate {
		log.Printf("Live output runs at %d Hz; BLOBULAR_SAMPLE_RATE=%d applies to -render only", audio.SampleRate, cfg.SampleRate)
	}
	a, err := newApp(cfg, audio.SampleRate)
	if err != nil {
		return err
	}

	pipeline := audio.NewPipeline(a.graph)
	broadcaster := stream.NewBroadcaster()
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.STUNURL)
	defer webrtcHandler.Close()

	if cfg.Speaker {
		spk, err := stream.NewSpeaker(broadcaster)
		if err != nil {
			log.Printf("Speaker disabled: %v", err)
		} else {
			defer spk.Close()
		}
	}

	pondClient := pond.NewClient(cfg.PondURL, cfg.PondPrefix)
	if !pondClient.Enabled() {
		log.Println("Audio pond not configured (set BLOBULAR_POND_URL to enable)")
	}

	srv := newServer(a, pondClient, pipeline, broadcaster, webrtcHandler)
	defer srv.close()

	if cfg.AutoStart {
		if err := a.engine.Start(ctx); err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.routes()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pipeline.Run(ctx)
		return nil
	})
	g.Go(func() error {
		broadcaster.Run(ctx, pipeline.Frames())
		return nil
	})
	g.Go(func() error {
		a.engine.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("blobular live on %s", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		a.engine.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
