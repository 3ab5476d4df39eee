// Package task defines the task and task-list model and their persistence.
package task

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Layouts used for the date and clock columns. Both are stored as text.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Defaults applied to lists created implicitly.
const (
	DefaultListName  = "Default"
	DefaultListIcon  = "📋"
	DefaultListColor = "#0078d4"
)

// ErrNotFound is returned when a task or list does not exist for the owner.
var ErrNotFound = errors.New("not found")

// Priority is the user-facing urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps free-form priority text to a Priority. It accepts the
// English names in any case and the single-character Chinese forms.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "低":
		return PriorityLow, true
	case "medium", "normal", "中":
		return PriorityMedium, true
	case "high", "高":
		return PriorityHigh, true
	}
	return "", false
}

// Task is a single to-do item owned by a user.
type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"-"`
	ListID      int64      `json:"list_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     string     `json:"due_date,omitempty"`   // DateLayout
	StartTime   string     `json:"start_time,omitempty"` // ClockLayout
	EndTime     string     `json:"end_time,omitempty"`   // ClockLayout
	IsImportant bool       `json:"is_important"`
	ListName    string     `json:"list_name,omitempty"`
	ListIcon    string     `json:"list_icon,omitempty"`
	ListColor   string     `json:"list_color,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// List is a named, ordered group of tasks.
type List struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"-"`
	Name           string    `json:"name"`
	Icon           string    `json:"icon"`
	Color          string    `json:"color"`
	SortOrder      int       `json:"sort_order"`
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	CreatedAt      time.Time `json:"created_at"`
}

// Update is a partial task update. Nil fields are left untouched.
type Update struct {
	Title       *string
	Description *string
	Priority    *Priority
	DueDate     *string
	StartTime   *string
	EndTime     *string
	ListID      *int64
	IsImportant *bool
	Completed   *bool
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil &&
		u.DueDate == nil && u.StartTime == nil && u.EndTime == nil &&
		u.ListID == nil && u.IsImportant == nil && u.Completed == nil
}

// Filter controls which tasks are returned by ListTasks.
type Filter struct {
	ListID        int64 `json:"list_id,omitempty"`
	HideCompleted bool  `json:"hide_completed,omitempty"`
}

// Stats summarizes a user's tasks.
type Stats struct {
	Total          int     `json:"total_tasks"`
	Completed      int     `json:"completed_tasks"`
	Pending        int     `json:"pending_tasks"`
	Important      int     `json:"important_tasks"`
	DueToday       int     `json:"today_due_tasks"`
	DueThisWeek    int     `json:"week_due_tasks"`
	CompletionRate float64 `json:"completion_rate"`
}

// Week is a seven-day calendar view starting at WeekStart.
type Week struct {
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
	Days      []Day  `json:"days"`
}

// Day holds the tasks due on one calendar date.
type Day struct {
	Date    string  `json:"date"`
	DayName string  `json:"day_name"`
	Tasks   []*Task `json:"tasks"`
}

// Store persists tasks and lists. Every operation is scoped to the owning user.
type Store interface {
	// CreateTask inserts t for userID and returns the new task ID.
	CreateTask(ctx context.Context, userID int64, t *Task) (int64, error)

	// GetTask returns ErrNotFound if the task does not exist or belongs to someone else.
	GetTask(ctx context.Context, userID, id int64) (*Task, error)

	ListTasks(ctx context.Context, userID int64, filter Filter) ([]*Task, error)

	// UpdateTask applies u and returns the number of rows affected. A ListID
	// naming another user's list yields ErrNotFound.
	UpdateTask(ctx context.Context, userID, id int64, u Update) (int64, error)

	// DeleteTask returns the number of rows affected.
	DeleteTask(ctx context.Context, userID, id int64) (int64, error)

	// SearchTasks matches query case-insensitively against title or
	// description, ordered by importance then due date.
	SearchTasks(ctx context.Context, userID int64, query string) ([]*Task, error)

	// RecentTasks returns the most recently created tasks.
	RecentTasks(ctx context.Context, userID int64, limit int) ([]*Task, error)

	CreateList(ctx context.Context, userID int64, l *List) (int64, error)
	ListLists(ctx context.Context, userID int64) ([]*List, error)
	DeleteList(ctx context.Context, userID, id int64) (int64, error)

	// FindOrCreateList returns the list named exactly name, creating it at
	// the end of the sort order when absent.
	FindOrCreateList(ctx context.Context, userID int64, name, icon, color string) (int64, error)

	// FirstList returns the user's first list by sort order.
	FirstList(ctx context.Context, userID int64) (int64, bool, error)

	// MaxSortOrder returns the highest sort order in use, or 0 with no lists.
	MaxSortOrder(ctx context.Context, userID int64) (int, error)

	Stats(ctx context.Context, userID int64, today time.Time) (*Stats, error)
	Week(ctx context.Context, userID int64, start time.Time) (*Week, error)
}
