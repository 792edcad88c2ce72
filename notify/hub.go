package notify

import "sync"

// Hub fans events out to live subscribers such as SSE streams. Slow
// subscribers miss events rather than block the publisher.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: map[int]chan Event{}}
}

// Subscribe returns a buffered event channel and a cancel func that must be
// called when the subscriber goes away.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

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

// Broadcast delivers ev to every subscriber with room in its buffer.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
