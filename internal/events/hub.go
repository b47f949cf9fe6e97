// Package events is an in-memory pub/sub for sender lifecycle and command
// outcome notifications.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the sender.
const (
	SenderStarted    = "sender.started"
	SenderStopped    = "sender.stopped"
	CommandAccepted  = "command.accepted"
	CommandDropped   = "command.dropped"
	CommandRejected  = "command.rejected"
	CommandSucceeded = "command.succeeded"
	CommandFailed    = "command.failed"
	CallbackFailed   = "callback.failed"
)

const (
	defaultHistory    = 100
	subscriberBacklog = 128
)

// Event is one notification. Data holds a JSON object.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"`
}

// Hub fans events out to subscribers and remembers the most recent ones so a
// reconnecting client can replay what it missed. IDs start at 1 and are
// assigned in publish order.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	history []Event // circular, oldest at next when full
	next    int
	full    bool
	subs    map[*subscription]struct{}
}

type subscription struct {
	ch chan Event
}

// NewHub returns a Hub that keeps the last history events.
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{
		history: make([]Event, history),
		subs:    make(map[*subscription]struct{}),
	}
}

// Publish stamps data as a new event and delivers it. A subscriber whose
// backlog is full misses the event. Publishing to a nil Hub is a no-op.
func (h *Hub) Publish(eventType string, data any) {
	if h == nil {
		return
	}
	payload := encode(data)
	at := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: at, Data: payload}
	h.remember(ev)

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener for events published from now on. The
// returned func unregisters it and closes the channel; calling it again does
// nothing.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, subscriberBacklog)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// SnapshotSince returns remembered events newer than lastID, oldest first.
// A lastID of 0 returns everything remembered.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ordered := h.history[:h.next]
	if h.full {
		ordered = append(append([]Event(nil), h.history[h.next:]...), h.history[:h.next]...)
	}

	out := make([]Event, 0, len(ordered))
	for _, ev := range ordered {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// remember stores ev, overwriting the oldest entry once history is full.
// Callers hold mu.
func (h *Hub) remember(ev Event) {
	h.history[h.next] = ev
	h.next++
	if h.next == len(h.history) {
		h.next = 0
		h.full = true
	}
}

func encode(data any) []byte {
	if data == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return []byte("{}")
	}
	return b
}
