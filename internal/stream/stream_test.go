package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWAVHeader(t *testing.T) {
	h := WAVHeader(48000, 2, 16)
	if len(h) != 44 {
		t.Fatalf("header is %d bytes, want 44", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:16]) != "WAVEfmt " || string(h[36:40]) != "data" {
		t.Errorf("bad chunk ids: %q", h)
	}
	got := []uint32{
		binary.LittleEndian.Uint32(h[24:]), // sample rate
		binary.LittleEndian.Uint32(h[28:]), // byte rate
		uint32(binary.LittleEndian.Uint16(h[32:])),
		uint32(binary.LittleEndian.Uint16(h[34:])),
		binary.LittleEndian.Uint32(h[40:]),
	}
	want := []uint32{48000, 192000, 4, 16, streamingSize}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("header fields (-want +got):\n%s", diff)
	}
}

func TestHTTPHandlerStreamsFrames(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16)
	go b.Run(ctx, source)

	srv := httptest.NewServer(NewHTTPHandler(b))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}

	header := make([]byte, 44)
	if _, err := io.ReadFull(resp.Body, header); err != nil {
		t.Fatalf("read header: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for b.ListenerCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("listener never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	source <- []int16{1, -1, 256, -256}

	pcm := make([]byte, 8)
	if _, err := io.ReadFull(resp.Body, pcm); err != nil {
		t.Fatalf("read pcm: %v", err)
	}
	want := []byte{1, 0, 0xff, 0xff, 0, 1, 0, 0xff}
	if !bytes.Equal(pcm, want) {
		t.Errorf("pcm = %v, want %v", pcm, want)
	}
}

func TestSpeakerReaderFillsSilence(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	r := &speakerReader{listener: l}

	p := make([]byte, 8)
	for i := range p {
		p[i] = 0xAA
	}
	n, err := r.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if !bytes.Equal(p, make([]byte, 8)) {
		t.Errorf("underrun read = %v, want silence", p)
	}

	l.C <- []int16{1, 2, 3}
	p = make([]byte, 4)
	r.Read(p)
	if !bytes.Equal(p, []byte{1, 0, 2, 0}) {
		t.Errorf("first read = %v", p)
	}
	p = make([]byte, 4)
	r.Read(p)
	if !bytes.Equal(p, []byte{3, 0, 0, 0}) {
		t.Errorf("second read = %v, want the rest of the frame then silence", p)
	}
}

func TestWebRTCRejectsBadRequests(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "stun:stun.l.google.com:19302")
	defer h.Close()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offer", bytes.NewBufferString("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/offer", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Methods") != "POST" {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d", h.PeerCount())
	}
}
