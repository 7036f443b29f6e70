// Package source holds the sample the granular engine slices grains from.
package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/satindergrewal/blobular/assets"
	"github.com/satindergrewal/blobular/internal/audio"
)

const maxDownloadBytes = 64 << 20

// Fetcher retrieves raw sample bytes by key, such as a pond client.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ChangeFunc is told about every sample change. buf is nil after Clear.
type ChangeFunc func(name string, buf *audio.Buffer)

// Provider holds the current sample and notifies subscribers when it
// changes. It is safe for concurrent use.
type Provider struct {
	http *http.Client

	mu     sync.RWMutex
	name   string
	buf    *audio.Buffer
	subs   map[int]ChangeFunc
	nextID int
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{
		http: &http.Client{Timeout: 30 * time.Second},
		subs: make(map[int]ChangeFunc),
	}
}

// Buffer returns the current sample, or nil.
func (p *Provider) Buffer() *audio.Buffer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buf
}

// Name returns the current sample's display name.
func (p *Provider) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// SetBuffer replaces the current sample. Grains already playing keep the
// buffer they started with.
func (p *Provider) SetBuffer(name string, buf *audio.Buffer) error {
	if buf.Frames() == 0 {
		return audio.ErrEmptyBuffer
	}
	p.set(name, buf)
	log.Printf("Sample loaded: %s (%.2fs, %d ch, %d Hz)", name, buf.Duration(), buf.Channels(), buf.SampleRate)
	return nil
}

// Clear drops the current sample.
func (p *Provider) Clear() {
	p.set("", nil)
}

func (p *Provider) set(name string, buf *audio.Buffer) {
	p.mu.Lock()
	p.name, p.buf = name, buf
	subs := make([]ChangeFunc, 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(name, buf)
	}
}

// Subscribe registers fn for sample changes and returns a function that
// unregisters it.
func (p *Provider) Subscribe(fn ChangeFunc) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// LoadBytes decodes data and makes it the current sample.
func (p *Provider) LoadBytes(name string, data []byte) error {
	buf, err := audio.Decode(data, name)
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return p.SetBuffer(name, buf)
}

// LoadFile decodes a local audio file and makes it the current sample.
func (p *Provider) LoadFile(filename string) error {
	buf, err := audio.DecodeFile(filename)
	if err != nil {
		return err
	}
	return p.SetBuffer(filepath.Base(filename), buf)
}

// LoadURL downloads and decodes an audio file over HTTP.
func (p *Provider) LoadURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("load url %q: not an http(s) URL", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", rawURL, err)
	}
	return p.LoadBytes(path.Base(u.Path), data)
}

// LoadPond fetches key from f and makes it the current sample.
func (p *Provider) LoadPond(ctx context.Context, f Fetcher, key string) error {
	data, err := f.Fetch(ctx, key)
	if err != nil {
		return err
	}
	return p.LoadBytes(path.Base(key), data)
}

var defaultSample = sync.OnceValues(func() (*audio.Buffer, error) {
	return audio.Decode(assets.DefaultWAV, assets.DefaultName)
})

// Default returns the embedded fallback sample, decoding it on first use.
// It matches the engine's fallback loader signature.
func DefaultAsset(context.Context) (*audio.Buffer, error) {
	buf, err := defaultSample()
	if err != nil {
		return nil, fmt.Errorf("decode embedded sample: %w", err)
	}
	return buf, nil
}
