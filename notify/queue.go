// Package notify carries game events from the services to the
// notification worker without blocking the request path.
package notify

import (
	"sync"
	"time"

	"prompt-guess-game/logger"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventGuessScored  EventType = "guess_scored"
	EventRoundRotated EventType = "round_rotated"
)

type Event struct {
	Type       EventType      `json:"type"`
	RoundID    string         `json:"round_id"`
	UserID     string         `json:"user_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Emitter accepts events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}

// Queue is a bounded in-process event buffer. When full, new events are
// dropped and logged.
type Queue struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
	log    zerolog.Logger
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan Event, size), log: logger.Component("notify")}
}

func (q *Queue) Emit(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.log.Warn().Str("type", string(ev.Type)).Str("round_id", ev.RoundID).Msg("event queue full, dropping event")
	}
}

// Events is the receive side, drained by the notification worker.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Close stops accepting events and closes the channel. Safe to call twice.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
