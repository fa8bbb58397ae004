// Package events fans activity entries out to live subscribers.
package events

import (
	"sync"

	"github.com/harrylevesque/makerdash/internal/models"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Hub broadcasts activity to every subscriber.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan models.Activity]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[chan models.Activity]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan models.Activity, func()) {
	ch := make(chan models.Activity, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers a to every subscriber without blocking. A subscriber whose
// queue is full misses the entry.
func (h *Hub) Publish(a models.Activity) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
