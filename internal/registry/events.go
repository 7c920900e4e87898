package registry

import (
	"sync"

	"github.com/kalambet/jobwatch/internal/sites"
)

// EventKind classifies a registry change.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
	EventChanged
	EventReordered
	EventBulkStarted
	EventBulkFinished
)

// Event notifies subscribers of a change. ID and Status are set for
// per-site events only.
type Event struct {
	Kind   EventKind
	ID     string
	Status sites.Status
}

const subscriberBuffer = 64

type eventHub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

// Subscribe returns a channel of change events and a function that ends the
// subscription. Delivery is best effort: a subscriber that falls behind
// misses events rather than blocking the registry.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	return r.events.subscribe()
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *eventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
