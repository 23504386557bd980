package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultHubBuffer is the per-subscriber queue length used by NewHub when
// buffer is not positive.
const DefaultHubBuffer = 16

// Hub is an in-process Publisher that fans payloads out to live
// subscribers of a subject. Slow subscribers lose messages instead of
// blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	buffer  int
	dropped atomic.Uint64
}

type subscription struct {
	ch   chan []byte
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultHubBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers interest in subject. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(subject string) (<-chan []byte, func()) {
	sub := &subscription{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[subject]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[subject] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[subject], sub)
			if len(h.subs[subject]) == 0 {
				delete(h.subs, subject)
			}
			close(sub.ch)
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers a copy of data to every subscriber of subject.
func (h *Hub) Publish(_ context.Context, subject string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.subs[subject]
	if len(set) == 0 {
		return nil
	}
	msg := append([]byte(nil), data...)
	for sub := range set {
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Health always succeeds.
func (h *Hub) Health(context.Context) error { return nil }

// Subscribers reports how many subscribers subject has.
func (h *Hub) Subscribers(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subject])
}

// Dropped is the number of messages discarded because a subscriber's
// queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
