package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/taskpilot/task"
)

const directiveInstructions = `
Actions:
You can change the user's tasks by including JSON directives in your reply. The system
finds them, runs them and reports the results. One reply may contain several directives.

1. Create a task:
   {"action": "create_task", "data": {"title": "Task title", "description": "details", "priority": "high|medium|low", "due_date": "2025-01-01", "start_time": "14:30", "end_time": "15:30", "is_important": true, "list_name": "List name"}}
2. Create a list:
   {"action": "create_list", "data": {"name": "List name", "icon": "📋", "color": "#0078d4"}}
3. Update a task:
   {"action": "update_task", "data": {"task_id": 123, "title": "New title", "completed": true}}
4. Delete a task:
   {"action": "delete_task", "data": {"task_id": 123}}
5. Search tasks:
   {"action": "search_tasks", "data": {"query": "keywords"}}

Rules:
- When the user asks to create a task, emit create_task rather than describing it.
- When the user asks to find tasks, emit search_tasks.
- Dates use YYYY-MM-DD and times use 24-hour HH:MM.
- Keep the conversation history in mind so replies stay consistent.`

// SystemPrompt combines the configured persona, the directive format and a
// snapshot of the user's tasks.
func SystemPrompt(base, taskContext string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	b.WriteString("\n")
	b.WriteString(directiveInstructions)
	b.WriteString("\n\nCurrent task data:\n")
	b.WriteString(taskContext)
	return b.String()
}

const recentTaskCount = 5

// TaskContext summarizes the user's tasks for the system prompt.
func TaskContext(ctx context.Context, store task.Store, userID int64, now time.Time) (string, error) {
	st, err := store.Stats(ctx, userID, now)
	if err != nil {
		return "", fmt.Errorf("task stats: %w", err)
	}
	recent, err := store.RecentTasks(ctx, userID, recentTaskCount)
	if err != nil {
		return "", fmt.Errorf("recent tasks: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total tasks: %d, completed: %d, important and open: %d\n", st.Total, st.Completed, st.Important)
	b.WriteString("Recent tasks:\n")
	for _, t := range recent {
		status := "○"
		if t.Completed {
			status = "✓"
		}
		fmt.Fprintf(&b, "%s #%d %s [%s]", status, t.ID, t.Title, t.Priority)
		if t.DueDate != "" {
			fmt.Fprintf(&b, " (due %s)", t.DueDate)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
