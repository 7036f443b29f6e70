package stream

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/satindergrewal/blobular/internal/audio"
)

// Speaker plays the mix through the local audio device.
type Speaker struct {
	broadcaster *Broadcaster
	listener    *Listener
	player      *oto.Player
	once        sync.Once
}

// NewSpeaker opens the default output device and starts playing frames
// from b. Only one Speaker may exist per process.
func NewSpeaker(b *Broadcaster) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   2 * audio.FrameDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	l := b.Subscribe()
	p := ctx.NewPlayer(&speakerReader{listener: l})
	p.SetBufferSize(2 * audio.FrameBytes)
	p.Play()
	log.Printf("Speaker output started (%d Hz, %d ch)", audio.SampleRate, audio.Channels)
	return &Speaker{broadcaster: b, listener: l, player: p}, nil
}

// Close stops playback and detaches from the broadcaster.
func (s *Speaker) Close() error {
	var err error
	s.once.Do(func() {
		s.broadcaster.Unsubscribe(s.listener)
		err = s.player.Close()
	})
	return err
}

// speakerReader adapts a listener to the io.Reader oto pulls from. It
// never blocks: when no frame is ready it plays silence.
type speakerReader struct {
	listener *Listener
	buf      []byte
	pending  []byte
	underrun uint64
	lastLog  time.Time
}

func (r *speakerReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) == 0 && !r.next() {
			clear(p[n:])
			r.noteUnderrun()
			return len(p), nil
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	return n, nil
}

func (r *speakerReader) next() bool {
	select {
	case frame := <-r.listener.C:
		if cap(r.buf) < 2*len(frame) {
			r.buf = make([]byte, 2*len(frame))
		}
		r.pending = r.buf[:2*len(frame)]
		for i, s := range frame {
			binary.LittleEndian.PutUint16(r.pending[2*i:], uint16(s))
		}
		return true
	default:
		return false
	}
}

func (r *speakerReader) noteUnderrun() {
	r.underrun++
	if time.Since(r.lastLog) >= 10*time.Second {
		r.lastLog = time.Now()
		log.Printf("Speaker underrun (%d total)", r.underrun)
	}
}
