package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/satindergrewal/blobular/internal/audio"
	"github.com/satindergrewal/blobular/internal/granular"
	"github.com/satindergrewal/blobular/internal/pond"
	"github.com/satindergrewal/blobular/internal/stream"
)

const maxUploadBytes = 64 << 20

type server struct {
	*app
	pond        *pond.Client
	pipeline    *audio.Pipeline
	broadcaster *stream.Broadcaster
	webrtc      *stream.WebRTCHandler

	mu       sync.Mutex
	loadedAt time.Time
	cancel   func()
}

func newServer(a *app, p *pond.Client, pl *audio.Pipeline, b *stream.Broadcaster, rtc *stream.WebRTCHandler) *server {
	s := &server{app: a, pond: p, pipeline: pl, broadcaster: b, webrtc: rtc}
	s.cancel = a.provider.Subscribe(func(name string, buf *audio.Buffer) {
		s.mu.Lock()
		s.loadedAt = time.Now()
		s.mu.Unlock()
	})
	return s
}

func (s *server) close() { s.cancel() }

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/controls", s.handleGetControls)
	mux.HandleFunc("POST /api/controls", s.handleSetControls)
	mux.HandleFunc("GET /api/scales", s.handleScales)
	mux.HandleFunc("POST /api/sample", s.handleUpload)
	mux.HandleFunc("DELETE /api/sample", s.handleClearSample)
	mux.HandleFunc("GET /api/pond", s.handlePond)
	mux.HandleFunc("POST /api/pond/load", s.handlePondLoad)
	mux.Handle("/stream", stream.NewHTTPHandler(s.broadcaster))
	mux.Handle("/offer", s.webrtc)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		log.Printf("Start failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings := s.controls.Settings()
	sample := s.provider.Name()
	if sample == "" {
		sample = "default"
	}
	s.mu.Lock()
	loadedAt := s.loadedAt
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"engine":           s.engine.Status(),
		"sample":           sample,
		"sample_loaded_at": loadedAt,
		"controls":         settings,
		"query":            settings.Query().Encode(),
		"pipeline":         s.pipeline.Status(),
		"http_listeners":   s.broadcaster.ListenerCount(),
		"webrtc_listeners": s.webrtc.PeerCount(),
		"dropped_frames":   s.broadcaster.Dropped(),
		"pond":             s.pond.Enabled(),
	})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Events())
}

func (s *server) handleGetControls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controls.Settings())
}

// handleSetControls accepts a JSON body (fields left out keep their value)
// or the query-string form used for shareable links.
func (s *server) handleSetControls(w http.ResponseWriter, r *http.Request) {
	settings := s.controls.Settings()
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		settings = granular.ParseQuery(r.Form, settings)
	}
	if err := s.controls.Apply(settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controls.Settings())
}

func (s *server) handleScales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scales":  granular.ScaleNames(),
		"default": granular.DefaultScale,
	})
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := s.provider.LoadBytes(path.Base(name), data); err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, audio.ErrUnsupportedFormat) && !errors.Is(err, audio.ErrEmptyBuffer) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	s.writeSample(w)
}

func (s *server) handleClearSample(w http.ResponseWriter, r *http.Request) {
	s.provider.Clear()
	s.writeSample(w)
}

func (s *server) writeSample(w http.ResponseWriter) {
	buf := s.provider.Buffer()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sample":   s.provider.Name(),
		"duration": buf.Duration(),
		"channels": buf.Channels(),
	})
}

func (s *server) handlePond(w http.ResponseWriter, r *http.Request) {
	objects, err := s.pond.List(r.Context())
	if err != nil {
		writeError(w, pondStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

func (s *server) handlePondLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key required"))
		return
	}
	if err := s.provider.LoadPond(r.Context(), s.pond, req.Key); err != nil {
		writeError(w, pondStatus(err), err)
		return
	}
	s.writeSample(w)
}

func pondStatus(err error) int {
	switch {
	case errors.Is(err, pond.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, pond.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
