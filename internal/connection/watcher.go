package connection

import (
	"sync"
	"sync/atomic"
)

// Watcher is one subscriber to manager events.
type Watcher struct {
	// C delivers events in order. It is closed by Close or when the manager
	// stops.
	C <-chan Event

	ch      chan Event
	hub     *eventHub
	dropped atomic.Int64
}

// Dropped returns how many events were skipped because C was full.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Close unregisters the watcher and closes C.
func (w *Watcher) Close() {
	w.hub.remove(w)
}

// eventHub fans events out to watchers without blocking the event loop.
type eventHub struct {
	mu       sync.Mutex
	watchers map[*Watcher]struct{}
	closed   bool
	dropped  atomic.Int64
}

func newEventHub() *eventHub {
	return &eventHub{watchers: make(map[*Watcher]struct{})}
}

func (h *eventHub) add(buffer int) *Watcher {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	w := &Watcher{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return w
	}
	h.watchers[w] = struct{}{}
	return w
}

func (h *eventHub) remove(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.watchers[w]; !ok {
		return
	}
	delete(h.watchers, w)
	close(w.ch)
}

// publish delivers ev to every watcher that has room.
func (h *eventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watchers {
		select {
		case w.ch <- ev:
		default:
			w.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// closeAll closes every watcher. Later add calls return closed watchers.
func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watchers {
		close(w.ch)
	}
	h.watchers = make(map[*Watcher]struct{})
	h.closed = true
}
