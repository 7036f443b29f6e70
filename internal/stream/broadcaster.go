// Package stream delivers the rendered mix to HTTP, WebRTC and local
// speaker outputs.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// ListenerBuffer is how many 20ms frames a listener may lag before frames
// are dropped for it.
const ListenerBuffer = 150

// Broadcaster fans PCM frames from one pipeline out to any number of
// listeners. A slow listener loses frames; it never stalls the others.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	dropped   atomic.Uint64 // from listeners that have left
}

// Listener receives frames from a Broadcaster.
type Listener struct {
	C       chan []int16
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped returns how many frames this listener missed.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, ListenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes l and closes its Done channel. It is safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	if _, ok := b.listeners[l]; ok {
		delete(b.listeners, l)
		b.dropped.Add(l.dropped.Load())
	}
	b.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

// ListenerCount returns the number of subscribed listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Dropped returns the total frames dropped across current and past listeners.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.dropped.Load()
	for l := range b.listeners {
		n += l.dropped.Load()
	}
	return n
}

// Run forwards frames from source until ctx is done or source is closed.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
