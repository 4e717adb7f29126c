// Package bus provides the in-process publish/subscribe channel the sync
// layer uses to tell interested parties that data changed.
package bus

import (
	"context"
	"sync"
	"time"
)

const (
	// EventSyncFinished is published after a remote sync pass has been
	// applied to the local store.
	EventSyncFinished = "sync-finished"
	// EventDataChanged is published after a local mutation.
	EventDataChanged = "data-changed"
)

// Message is a single event delivered to subscribers of one user.
type Message struct {
	UserID    string
	EventType string
	Timestamp time.Time
}

// Bus fans messages out to per-user subscribers. Delivery is best-effort: a
// subscriber with a full buffer misses the message instead of blocking the
// publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for one user's events. The returned cancel
// function is idempotent and is also invoked when the context ends.
func (b *Bus) Subscribe(ctx context.Context, userID string) (<-chan Message, func()) {
	if userID == "" {
		closed := make(chan Message)
		close(closed)
		return closed, func() {}
	}
	entry := &subscriber{
		id:     b.nextSequence(),
		stream: make(chan Message, b.bufferSize),
	}
	b.register(userID, entry)
	cancel := func() {
		b.unregister(userID, entry.id)
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return entry.stream, cancel
}

// Publish delivers the message to every current subscriber of its user.
func (b *Bus) Publish(message Message) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	b.mu.RLock()
	entries := b.subscribers[message.UserID]
	if len(entries) == 0 {
		b.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(entries))
	for _, entry := range entries {
		copies = append(copies, entry)
	}
	b.mu.RUnlock()
	for _, entry := range copies {
		select {
		case entry.stream <- message:
		default:
		}
	}
}

func (b *Bus) nextSequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

func (b *Bus) register(userID string, entry *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[userID]; !ok {
		b.subscribers[userID] = make(map[int64]*subscriber)
	}
	b.subscribers[userID][entry.id] = entry
}

func (b *Bus) unregister(userID string, subscriberID int64) {
	b.mu.Lock()
	entries := b.subscribers[userID]
	if entries != nil {
		delete(entries, subscriberID)
		if len(entries) == 0 {
			delete(b.subscribers, userID)
		}
	}
	b.mu.Unlock()
}
