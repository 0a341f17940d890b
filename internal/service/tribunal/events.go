package tribunal

import (
	"log"
	"sync"
	"time"
)

// EventType tags one session feed event.
type EventType string

const (
	EventSession  EventType = "session"
	EventAnalysis EventType = "analysis"
	EventTurn     EventType = "turn"
	EventAudio    EventType = "audio"
	EventVerdict  EventType = "verdict"
	EventError    EventType = "error"
)

// Event is one entry on a session's live feed, consumed by the SSE and
// WebSocket handlers.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

const subscriberBuffer = 64

type subscriber struct {
	ch     chan Event
	closed bool
}

// Bus fans session events out to any number of subscribers. Publishing
// never blocks: a subscriber that falls more than a buffer behind loses
// events rather than stalling the session.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[int]*subscriber
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]*subscriber)}
}

// Subscribe registers a feed for one session. The cancel function
// unregisters and closes the channel; it is idempotent.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	id := b.next
	b.next++

	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]*subscriber)
	}
	b.subs[sessionID][id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.subs[sessionID][id]; ok && !cur.closed {
			cur.closed = true
			close(cur.ch)
			delete(b.subs[sessionID], id)
		}
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber of its session.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[evt.SessionID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			log.Printf("[events] session=%s slow subscriber dropped %s event", evt.SessionID, evt.Type)
		}
	}
}

// DropSession closes every subscriber of an evicted session.
func (b *Bus) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs[sessionID] {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		delete(b.subs[sessionID], id)
	}
	delete(b.subs, sessionID)
}
