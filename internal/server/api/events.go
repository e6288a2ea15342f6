package api

import (
	"context"
	"sync"
	"time"
)

const eventChanged = "changed"

// ChangeEvent is pushed to every subscriber of the affected account after an
// accepted write. The type hint is informational; clients are expected to
// respond with a plain resync rather than trusting the payload.
type ChangeEvent struct {
	Event      string    `json:"event"`
	EntityType string    `json:"entity_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispatcher fans change events out to per-user subscriber channels.
// Slow subscribers are skipped rather than blocking the write path.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan ChangeEvent
	nextID      int64
	bufferSize  int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]chan ChangeEvent),
		bufferSize:  16,
	}
}

// Subscribe registers a channel for one user's events. The subscription is
// dropped when ctx ends.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (<-chan ChangeEvent, func()) {
	if userID == "" {
		ch := make(chan ChangeEvent)
		close(ch)
		return ch, func() {}
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	ch := make(chan ChangeEvent, d.bufferSize)
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[int64]chan ChangeEvent)
	}
	d.subscribers[userID][id] = ch
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		if subs, ok := d.subscribers[userID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(d.subscribers, userID)
			}
		}
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

// Publish delivers an event to every subscriber of the user.
func (d *Dispatcher) Publish(userID string, event ChangeEvent) {
	if userID == "" {
		return
	}
	d.mu.RLock()
	channels := make([]chan ChangeEvent, 0, len(d.subscribers[userID]))
	for _, ch := range d.subscribers[userID] {
		channels = append(channels, ch)
	}
	d.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
}
