package live

import (
	"context"
	"sync"
)

// subscriberBuffer bounds how many signals a slow subscriber may lag behind
// before new ones are dropped for it.
const subscriberBuffer = 8

// MemoryHub fans signals out to in-process subscribers, typically one per
// open server-sent-events stream.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{} // userID -> subscribers
	closed bool
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[chan Event]struct{})}
}

// Notify delivers the event to every subscriber of userID without blocking.
func (h *MemoryHub) Notify(_ context.Context, userID, event string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- Event{UserID: userID, Name: event}:
		default:
			// Subscriber is behind; it will refresh on the next signal.
		}
	}
	return nil
}

// Subscribe registers for userID's signals. The returned cancel function
// unregisters and closes the channel; it is safe to call more than once.
func (h *MemoryHub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[userID][ch]; !ok {
				return
			}
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Close closes every subscriber channel.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, chans := range h.subs {
		for ch := range chans {
			close(ch)
		}
		delete(h.subs, userID)
	}
	h.closed = true
	return nil
}
