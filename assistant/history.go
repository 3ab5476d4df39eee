package assistant

import (
	"time"

	"github.com/GoCodeAlone/taskpilot/provider"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      provider.Role `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

// History is one user's bounded conversation. It is not safe for concurrent
// use; the owner serializes access.
type History struct {
	limit int
	turns []Turn
	now   func() time.Time
}

// NewHistory returns a History that retains at most limit user and
// assistant turns. System turns are never evicted.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{limit: limit, now: time.Now}
}

// Append records a turn and applies the retention policy.
func (h *History) Append(role provider.Role, content string) {
	h.turns = append(h.turns, Turn{Role: role, Content: content, Timestamp: h.now()})

	var system, dialog []Turn
	for _, t := range h.turns {
		if t.Role == provider.RoleSystem {
			system = append(system, t)
		} else {
			dialog = append(dialog, t)
		}
	}
	if len(dialog) <= h.limit {
		return
	}
	dialog = dialog[len(dialog)-h.limit:]
	h.turns = append(system, dialog...)
}

// Context returns the most recent limit user and assistant turns in
// chronological order.
func (h *History) Context(limit int) []provider.Message {
	var msgs []provider.Message
	for _, t := range h.turns {
		if t.Role != provider.RoleSystem {
			msgs = append(msgs, provider.Message{Role: t.Role, Content: t.Content})
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// Turns returns a copy of every retained turn, system turns included.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

// Clear drops every turn.
func (h *History) Clear() {
	h.turns = nil
}

// Len reports the number of retained turns.
func (h *History) Len() int { return len(h.turns) }
