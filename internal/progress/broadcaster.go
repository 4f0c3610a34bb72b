package progress

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 64

// Broadcaster fans events out to subscribers over bounded channels.
// Publishing never blocks: an event a full subscriber cannot take is
// dropped and counted.
type Broadcaster struct {
	mu      sync.Mutex
	subs    []chan Event
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold
// buffer events. Non-positive values use DefaultBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{buffer: buffer}
}

// Subscribe registers a new bounded event channel. The channel is
// closed when the broadcaster closes; subscribing after Close returns
// an already-closed channel.
func (b *Broadcaster) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded on full buffers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Publishing after Close is a
// no-op, and Close itself is idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
