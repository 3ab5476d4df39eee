// Package comms provides the in-process activity bus. Every task and list
// mutation, whether it came from the REST API or an assistant directive, is
// published here so connected clients can follow along.
package comms

import (
	"context"
	"time"
)

// EventType identifies the kind of activity.
type EventType string

const (
	TypeTaskCreated  EventType = "task_created"
	TypeTaskUpdated  EventType = "task_updated"
	TypeTaskDeleted  EventType = "task_deleted"
	TypeListCreated  EventType = "list_created"
	TypeListDeleted  EventType = "list_deleted"
	TypeConversation EventType = "conversation_cleared"
)

// Sources of activity.
const (
	SourceAPI       = "api"
	SourceAssistant = "assistant"
)

// AllUsers subscribes a handler to every user's activity.
const AllUsers int64 = 0

// Event is one recorded mutation.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    int64     `json:"user_id"`
	TaskID    int64     `json:"task_id,omitempty"`
	ListID    int64     `json:"list_id,omitempty"`
	Source    string    `json:"source"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes a published event.
type Handler func(ctx context.Context, ev *Event) error

// Bus fans activity events out to subscribers and keeps a bounded history.
type Bus interface {
	// Publish records ev and delivers it to the owner's subscribers and to
	// AllUsers subscribers. A missing ID or Timestamp is filled in.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler for userID's events, or every event
	// when userID is AllUsers. Returns an unsubscribe function.
	Subscribe(userID int64, handler Handler) (unsubscribe func())

	// History returns up to limit of userID's most recent events, oldest first.
	History(userID int64, limit int) ([]*Event, error)
}
