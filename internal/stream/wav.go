package stream

import (
	"encoding/binary"
	"log"
	"net/http"

	"github.com/satindergrewal/blobular/internal/audio"
)

// streamingSize marks the RIFF and data chunk sizes as unknown.
const streamingSize = 0xFFFFFFFF

// WAVHeader returns a 44-byte PCM WAV header for an endless stream.
func WAVHeader(sampleRate, channels, bitDepth int) []byte {
	blockAlign := channels * bitDepth / 8
	h := make([]byte, 0, 44)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, streamingSize)
	h = append(h, "WAVEfmt "...)
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, 1) // PCM
	h = binary.LittleEndian.AppendUint16(h, uint16(channels))
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate*blockAlign))
	h = binary.LittleEndian.AppendUint16(h, uint16(blockAlign))
	h = binary.LittleEndian.AppendUint16(h, uint16(bitDepth))
	h = append(h, "data"...)
	h = binary.LittleEndian.AppendUint32(h, streamingSize)
	return h
}

// HTTPHandler serves the mix as an endless 16-bit stereo WAV stream.
type HTTPHandler struct {
	broadcaster *Broadcaster
}

func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "blobular")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("HTTP listener connected (total: %d)", h.broadcaster.ListenerCount())
	defer func() {
		log.Printf("HTTP listener disconnected (%d frames dropped)", listener.Dropped())
	}()

	if _, err := w.Write(WAVHeader(audio.SampleRate, audio.Channels, audio.BitDepth)); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.done:
			return
		case frame := <-listener.C:
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
