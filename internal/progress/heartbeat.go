package progress

import (
	"sync"
	"time"
)

// Heartbeat periodically publishes a progress summary computed from a
// snapshot source. It only reads the snapshot; it never mutates run
// state.
type Heartbeat struct {
	interval time.Duration
	source   func() Snapshot
	b        *Broadcaster
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// StartHeartbeat begins emitting on its own ticker. The source is
// called once per beat from the heartbeat goroutine.
func StartHeartbeat(interval time.Duration, source func() Snapshot, b *Broadcaster) *Heartbeat {
	h := &Heartbeat{
		interval: interval,
		source:   source,
		b:        b,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Heartbeat) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := h.source()
			h.b.Publish(HeartbeatEvent{
				Snapshot: snap,
				ETA:      EstimateETA(snap.Elapsed, snap.Done+snap.Skipped, snap.Total),
			})
		case <-h.stop:
			return
		}
	}
}

// Stop halts the ticker and waits for the heartbeat goroutine to
// exit. Safe to call more than once.
func (h *Heartbeat) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
