// Package stream carries the engine's rendered output to listeners: a
// broadcaster fans the single render feed out to per-listener frame queues,
// and the MP3 and WebRTC handlers encode those queues for transport. Every
// listener hears the same post-effects mix.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hewland/promptmix/internal/audio"
)

// listenerQueueSeconds is how far a listener may fall behind the render
// clock before its frames are dropped.
const listenerQueueSeconds = 3

var listenerQueueFrames = int(listenerQueueSeconds * time.Second / audio.FrameDuration)

// Broadcaster fans rendered PCM frames out to every subscribed listener.
// The render clock is never stalled by a slow consumer.
type Broadcaster struct {
	dropped atomic.Uint64

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener is one subscriber's frame queue.
type Listener struct {
	frames chan []int16
	done   chan struct{}
}

// Frames returns the listener's queue of interleaved int16 frames, one per
// render tick.
func (l *Listener) Frames() <-chan []int16 { return l.frames }

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a listener and returns its frame queue.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		frames: make(chan []int16, listenerQueueFrames),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Safe to call more
// than once for the same listener.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of subscribed listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// DroppedFrames returns how many frames have been discarded because a
// listener's queue was full.
func (b *Broadcaster) DroppedFrames() uint64 {
	return b.dropped.Load()
}

// Run fans frames from source (the engine's output channel) out to every
// listener until ctx is cancelled or the engine closes the channel.
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
				case l.frames <- frame:
				default:
					b.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
