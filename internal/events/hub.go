// Package events fans coordinator transitions out to live observers.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the coordinator.
const (
	JobSubmitted = "job.submitted"
	JobPending   = "job.pending"
	JobCompleted = "job.completed"
	JobFailed    = "job.failed"
	JobAborted   = "job.aborted"

	AgentRunning = "agent.running"
	AgentDone    = "agent.done"
	AgentError   = "agent.error"
	AgentUpdated = "agent.updated"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(eventType string, data any)
}

// Discard drops every event. Components use it when no hub is wired.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, any) {}

// Hub is an in-memory pub/sub with a ring buffer so late observers can catch
// up on recent transitions.
type Hub struct {
	nextID atomic.Int64

	mu   sync.Mutex
	ring []Event
	head int
	n    int

	subs      map[int]chan Event
	nextSubID int
	subBuffer int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		ring:      make([]Event, capacity),
		subs:      make(map[int]chan Event),
		subBuffer: 128,
	}
}

func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.appendLocked(ev)
	for _, ch := range h.subs {
		// Slow observers miss events rather than stall a submission.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers an observer. The returned func unsubscribes and closes
// the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, h.subBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live observers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Since returns buffered events with ID greater than lastID, oldest first.
func (h *Hub) Since(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.n)
	for i := 0; i < h.n; i++ {
		ev := h.ring[(h.head+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) appendLocked(ev Event) {
	if h.n < len(h.ring) {
		h.ring[(h.head+h.n)%len(h.ring)] = ev
		h.n++
		return
	}
	h.ring[h.head] = ev
	h.head = (h.head + 1) % len(h.ring)
}
