package events

import (
	"context"
	"sync"

	"sessiongate/internal/domain"
)

// subscriberBuffer bounds how far a slow listener may lag before Publish blocks on it
const subscriberBuffer = 16

// Hub fans auth events out to subscribers in publish order
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscription
	nextID      uint64
}

type subscription struct {
	ch   chan domain.AuthEvent
	done chan struct{}
	once sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uint64]*subscription),
	}
}

// Subscribe registers a listener. The returned function unsubscribes it and is safe to
// call more than once; the channel is never closed.
func (h *Hub) Subscribe() (<-chan domain.AuthEvent, func()) {
	sub := &subscription{
		ch:   make(chan domain.AuthEvent, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, unsubscribe
}

// Publish delivers event to every current subscriber. It returns early when ctx is
// cancelled; unsubscribed listeners are skipped.
func (h *Hub) Publish(ctx context.Context, event domain.AuthEvent) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-ctx.Done():
			return
		}
	}
}
