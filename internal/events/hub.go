// Package events broadcasts job progress and core domain events to
// connected clients via a client registry, fan-out Broadcast, and a
// per-client buffered send channel, generalized into a typed Event/Hub
// pair shared by both the WebSocket and SSE transports.
package events

import (
	"encoding/json"
	"sync"

	"github.com/stump/stump/internal/models"
)

// Kind tags an Event's payload shape.
type Kind string

const (
	KindJobProgress Kind = "job:progress"
	KindCore        Kind = "core"
)

// Event is one broadcast message: a kind plus its JSON-encoded payload,
// ready to forward verbatim over either a WebSocket frame or an SSE
// "data:" line.
type Event struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// JobProgressEvent wraps a models.JobProgress as a broadcastable Event.
func JobProgressEvent(p models.JobProgress) Event {
	data, _ := json.Marshal(p)
	return Event{Kind: KindJobProgress, Payload: data}
}

// CoreEvent wraps an arbitrary domain notification (library scan
// started/finished, watcher detected a change, ...) as the
// CoreEvent.
func CoreEvent(message string) Event {
	data, _ := json.Marshal(map[string]string{"message": message})
	return Event{Kind: KindCore, Payload: data}
}

// Subscriber is one connected consumer's mailbox — a WebSocket writer
// goroutine or an SSE handler both drain the same channel shape.
type Subscriber struct {
	ch chan Event
}

func (s *Subscriber) Events() <-chan Event { return s.ch }

// Hub fans out Events to every active Subscriber, dropping a message for
// any subscriber whose buffer is full rather than blocking the publisher
// — best-effort delivery so one slow consumer can't stall the others.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]bool)}
}

// Subscribe registers a new consumer with a 64-message buffer.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, 64)}
	h.mu.Lock()
	h.subscribers[sub] = true
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}

// Publish fans an Event out to every subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
