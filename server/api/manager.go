// Package api defines the REST API handlers for the TaskPilot server.
package api

import (
	"sync"

	"github.com/GoCodeAlone/taskpilot/assistant"
)

// Conversations holds one assistant history per user. Access to a user's
// history is serialized so concurrent chat calls from the same user see a
// consistent conversation.
type Conversations struct {
	mu     sync.Mutex
	limit  int
	byUser map[int64]*conversation
}

type conversation struct {
	mu   sync.Mutex
	hist *assistant.History
}

// NewConversations creates a registry whose histories retain limit turns.
func NewConversations(limit int) *Conversations {
	return &Conversations{limit: limit, byUser: make(map[int64]*conversation)}
}

func (c *Conversations) get(userID int64) *conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.byUser[userID]
	if !ok {
		conv = &conversation{hist: assistant.NewHistory(c.limit)}
		c.byUser[userID] = conv
	}
	return conv
}

// With runs fn with exclusive access to userID's history.
func (c *Conversations) With(userID int64, fn func(*assistant.History) error) error {
	conv := c.get(userID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return fn(conv.hist)
}

// Turns returns a copy of userID's history.
func (c *Conversations) Turns(userID int64) []assistant.Turn {
	var turns []assistant.Turn
	_ = c.With(userID, func(h *assistant.History) error {
		turns = h.Turns()
		return nil
	})
	return turns
}

// Clear drops userID's history.
func (c *Conversations) Clear(userID int64) {
	_ = c.With(userID, func(h *assistant.History) error {
		h.Clear()
		return nil
	})
}
