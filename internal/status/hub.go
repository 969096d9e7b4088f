package status

import (
	"encoding/json"
	"sync"
	"time"

	"trafficpilot/internal/models"
)

// Event names carried in Envelope.Event
const (
	EventBotStatus  = "bot-status"
	EventBotCommand = "bot-command"
	EventBotUpdate  = "bot-update"
)

const subscriberBuffer = 64

// Envelope is one frame on the observer stream
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub fans out envelopes to any number of in-process subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Envelope]struct{}
	closed      bool
}

// NewHub constructs a hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Envelope]struct{})}
}

// Publish broadcasts a lifecycle event as a bot-status frame.
func (h *Hub) Publish(event models.BotStatusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.Broadcast(Envelope{Event: EventBotStatus, Data: event})
}

// Relay rebroadcasts an observer command payload verbatim as a bot-update frame.
func (h *Hub) Relay(data json.RawMessage) {
	h.Broadcast(Envelope{Event: EventBotUpdate, Data: data})
}

// Broadcast notifies all subscribers. Non-blocking; drops if a buffer is full.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subscribers {
		select {
		case ch <- env:
		default:
		}
	}
}

// Subscribe returns a channel that will receive future envelopes and a cleanup func.
func (h *Hub) Subscribe() (<-chan Envelope, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Envelope)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Envelope, subscriberBuffer)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
