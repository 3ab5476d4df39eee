package comms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultHistory is the number of events retained per user.
const defaultHistory = 1000

// InMemoryBus is a thread-safe in-process activity bus.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[int64][]handlerEntry // userID -> handlers
	nextID   int
	history  map[int64][]*Event // userID -> events, oldest first
	maxHist  int
	now      func() time.Time
}

type handlerEntry struct {
	id      int
	handler Handler
}

// NewInMemoryBus creates an InMemoryBus that keeps the last 1000 events of
// each user.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[int64][]handlerEntry),
		history:  make(map[int64][]*Event),
		maxHist:  defaultHistory,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish records the event and calls every matching handler outside the lock.
func (b *InMemoryBus) Publish(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	b.mu.Lock()
	hist := append(b.history[ev.UserID], ev)
	if len(hist) > b.maxHist {
		hist = hist[len(hist)-b.maxHist:]
	}
	b.history[ev.UserID] = hist

	var targets []Handler
	for _, e := range b.handlers[ev.UserID] {
		targets = append(targets, e.handler)
	}
	if ev.UserID != AllUsers {
		for _, e := range b.handlers[AllUsers] {
			targets = append(targets, e.handler)
		}
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish %s: %d handler error(s): %w", ev.Type, len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler for userID. The returned function
// unsubscribes the handler.
func (b *InMemoryBus) Subscribe(userID int64, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[userID] = append(b.handlers[userID], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[userID]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.handlers, userID)
		} else {
			b.handlers[userID] = filtered
		}
	}
}

// History returns the most recent limit events owned by userID.
// A non-positive limit returns all retained events.
func (b *InMemoryBus) History(userID int64, limit int) ([]*Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hist := b.history[userID]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return append([]*Event(nil), hist...), nil
}
