package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/GoCodeAlone/taskpilot/comms"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

var (
	// ErrValidation marks a directive with a missing or malformed field.
	ErrValidation = errors.New("validation failed")
	// ErrAuthRequired marks a directive executed without an authenticated user.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUnsupported marks a directive whose action is not recognized.
	ErrUnsupported = errors.New("unsupported action")
)

// Failure codes carried by Outcome.Code.
const (
	CodeValidation   = "validation"
	CodeAuthRequired = "auth_required"
	CodeUnsupported  = "unsupported"
	CodeStore        = "store"
)

// Outcome is the result of executing one directive.
type Outcome struct {
	Kind     Kind         `json:"-"`
	Action   string       `json:"action"`
	Success  bool         `json:"success"`
	Message  string       `json:"message,omitempty"`
	Error    string       `json:"error,omitempty"`
	Code     string       `json:"code,omitempty"`
	TaskID   int64        `json:"task_id,omitempty"`
	ListID   int64        `json:"list_id,omitempty"`
	Affected *int64       `json:"affected,omitempty"`
	Query    string       `json:"query,omitempty"`
	Results  []*task.Task `json:"results,omitempty"`
	Count    int          `json:"count,omitempty"`
}

// Executor applies directives to the task store on behalf of the user
// carried in the request context.
type Executor struct {
	tasks  task.Store
	bus    comms.Bus
	source string
	logger *slog.Logger
}

// NewExecutor creates an Executor. bus may be nil.
func NewExecutor(tasks task.Store, bus comms.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{tasks: tasks, bus: bus, source: comms.SourceAssistant, logger: logger}
}

// WithSource returns a copy of e whose activity events carry source.
func (e *Executor) WithSource(source string) *Executor {
	c := *e
	c.source = source
	return &c
}

// Execute runs one directive. It never returns an error: every failure is
// reported in the Outcome.
func (e *Executor) Execute(ctx context.Context, d Directive) Outcome {
	var out Outcome
	var err error
	switch d.Kind {
	case KindCreateTask:
		out, err = e.createTask(ctx, d.Data)
	case KindCreateList:
		out, err = e.createList(ctx, d.Data)
	case KindUpdateTask:
		out, err = e.updateTask(ctx, d.Data)
	case KindDeleteTask:
		out, err = e.deleteTask(ctx, d.Data)
	case KindSearchTasks:
		out, err = e.searchTasks(ctx, d.Data)
	case KindUnknown:
		err = fmt.Errorf("%w: %q", ErrUnsupported, d.Action)
	}

	out.Kind = d.Kind
	out.Action = d.Kind.String()
	if d.Kind == KindUnknown {
		out.Action = d.Action
	}
	if err != nil {
		e.logger.Debug("directive failed", slog.String("action", out.Action), slog.Any("err", err))
		return Outcome{Kind: d.Kind, Action: out.Action, Error: err.Error(), Code: failureCode(err)}
	}
	out.Success = true
	return out
}

// ExecuteAll runs directives independently, in order.
func (e *Executor) ExecuteAll(ctx context.Context, ds []Directive) []Outcome {
	outcomes := make([]Outcome, 0, len(ds))
	for _, d := range ds {
		outcomes = append(outcomes, e.Execute(ctx, d))
	}
	return outcomes
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	}
	return CodeStore
}

func currentUser(ctx context.Context) (int64, error) {
	id, ok := user.UserIDFromContext(ctx)
	if !ok {
		return 0, ErrAuthRequired
	}
	return id, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func (e *Executor) createTask(ctx context.Context, data gjson.Result) (Outcome, error) {
	uid, err := currentUser(ctx)
	if err != nil {
		return Outcome{}, err
	}
	t := &task.Task{
		Title:       strings.TrimSpace(data.Get("title").String()),
		Description: data.Get("description").String(),
		IsImportant: data.Get("is_important").Bool(),
	}
	if t.Title == "" {
		return Outcome{}, invalid("task title is required")
	}
	if t.Priority, err = priorityField(data, "priority"); err != nil {
		return Outcome{}, err
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.DueDate, err = layoutField(data, "due_date", task.DateLayout); err != nil {
		return Outcome{}, err
	}
	if t.StartTime, err = layoutField(data, "start_time", task.ClockLayout); err != nil {
		return Outcome{}, err
	}
	if t.EndTime, err = layoutField(data, "end_time", task.ClockLayout); err != nil {
		return Outcome{}, err
	}

	listName := strings.TrimSpace(data.Get("list_name").String())
	if t.ListID, err = e.resolveList(ctx, uid, listName); err != nil {
		return Outcome{}, err
	}
	id, err := e.tasks.CreateTask(ctx, uid, t)
	if err != nil {
		return Outcome{}, err
	}

	msg := fmt.Sprintf("Created task %q", t.Title)
	if listName != "" {
		msg += fmt.Sprintf(" in list %q", listName)
	}
	e.publish(ctx, &comms.Event{Type: comms.TypeTaskCreated, UserID: uid, TaskID: id, ListID: t.ListID, Summary: msg})
	return Outcome{TaskID: id, ListID: t.ListID, Message: msg}, nil
}

// resolveList returns the named list, creating it at the end of the sort
// order when absent. Without a name it uses the user's first list, creating
// the default list for a user who has none.
func (e *Executor) resolveList(ctx context.Context, uid int64, name string) (int64, error) {
	if name != "" {
		return e.tasks.FindOrCreateList(ctx, uid, name, task.DefaultListIcon, task.DefaultListColor)
	}
	id, ok, err := e.tasks.FirstList(ctx, uid)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	return e.tasks.FindOrCreateList(ctx, uid, task.DefaultListName, task.DefaultListIcon, task.DefaultListColor)
}

func (e *Executor) createList(ctx context.Context, data gjson.Result) (Outcome, error) {
	uid, err := currentUser(ctx)
	if err != nil {
		return Outcome{}, err
	}
	name := strings.TrimSpace(data.Get("name").String())
	if name == "" {
		return Outcome{}, invalid("list name is required")
	}
	maxOrder, err := e.tasks.MaxSortOrder(ctx, uid)
	if err != nil {
		return Outcome{}, err
	}
	l := &task.List{
		Name:      name,
		Icon:      data.Get("icon").String(),
		Color:     data.Get("color").String(),
		SortOrder: maxOrder + 1,
	}
	id, err := e.tasks.CreateList(ctx, uid, l)
	if err != nil {
		return Outcome{}, err
	}
	msg := fmt.Sprintf("Created list %q", name)
	e.publish(ctx, &comms.Event{Type: comms.TypeListCreated, UserID: uid, ListID: id, Summary: msg})
	return Outcome{ListID: id, Message: msg}, nil
}

func (e *Executor) updateTask(ctx context.Context, data gjson.Result) (Outcome, error) {
	uid, err := currentUser(ctx)
	if err != nil {
		return Outcome{}, err
	}
	id, err := taskIDField(data)
	if err != nil {
		return Outcome{}, err
	}
	u, err := updateFromData(data)
	if err != nil {
		return Outcome{}, err
	}
	n, err := e.tasks.UpdateTask(ctx, uid, id, u)
	if errors.Is(err, task.ErrNotFound) && u.ListID != nil {
		return Outcome{}, invalid("list %d not found", *u.ListID)
	}
	if err != nil {
		return Outcome{}, err
	}
	if n == 0 {
		e.logger.Debug("update matched no task", slog.Int64("task_id", id), slog.Int64("user_id", uid))
	}
	msg := fmt.Sprintf("Updated task %d", id)
	if n > 0 {
		e.publish(ctx, &comms.Event{Type: comms.TypeTaskUpdated, UserID: uid, TaskID: id, Summary: msg})
	}
	return Outcome{TaskID: id, Affected: &n, Message: msg}, nil
}

// updateFromData collects the recognized update fields present in data.
func updateFromData(data gjson.Result) (task.Update, error) {
	var u task.Update
	str := func(key string) *string {
		if v := data.Get(key); v.Exists() {
			s := v.String()
			return &s
		}
		return nil
	}

	u.Title = str("title")
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return u, invalid("task title cannot be empty")
	}
	u.Description = str("description")
	p, err := priorityField(data, "priority")
	if err != nil {
		return u, err
	}
	if p != "" {
		u.Priority = &p
	}
	for _, f := range []struct {
		key    string
		layout string
		dst    **string
	}{
		{"due_date", task.DateLayout, &u.DueDate},
		{"start_time", task.ClockLayout, &u.StartTime},
		{"end_time", task.ClockLayout, &u.EndTime},
	} {
		if !data.Get(f.key).Exists() {
			continue
		}
		v, err := layoutField(data, f.key, f.layout)
		if err != nil {
			return u, err
		}
		*f.dst = &v
	}
	if v := data.Get("list_id"); v.Exists() {
		id := v.Int()
		u.ListID = &id
	}
	if v := data.Get("is_important"); v.Exists() {
		b := v.Bool()
		u.IsImportant = &b
	}
	if v := data.Get("completed"); v.Exists() {
		b := v.Bool()
		u.Completed = &b
	}
	if u.Empty() {
		return u, invalid("no fields to update")
	}
	return u, nil
}

func (e *Executor) deleteTask(ctx context.Context, data gjson.Result) (Outcome, error) {
	uid, err := currentUser(ctx)
	if err != nil {
		return Outcome{}, err
	}
	id, err := taskIDField(data)
	if err != nil {
		return Outcome{}, err
	}
	n, err := e.tasks.DeleteTask(ctx, uid, id)
	if err != nil {
		return Outcome{}, err
	}
	msg := fmt.Sprintf("Deleted task %d", id)
	if n == 0 {
		e.logger.Debug("delete matched no task", slog.Int64("task_id", id), slog.Int64("user_id", uid))
	} else {
		e.publish(ctx, &comms.Event{Type: comms.TypeTaskDeleted, UserID: uid, TaskID: id, Summary: msg})
	}
	return Outcome{TaskID: id, Affected: &n, Message: msg}, nil
}

func (e *Executor) searchTasks(ctx context.Context, data gjson.Result) (Outcome, error) {
	uid, err := currentUser(ctx)
	if err != nil {
		return Outcome{}, err
	}
	query := strings.TrimSpace(data.Get("query").String())
	if query == "" {
		return Outcome{}, invalid("search query is required")
	}
	results, err := e.tasks.SearchTasks(ctx, uid, query)
	if err != nil {
		return Outcome{}, err
	}
	if results == nil {
		results = []*task.Task{}
	}
	return Outcome{
		Query:   query,
		Results: results,
		Count:   len(results),
		Message: fmt.Sprintf("Found %d matching %s", len(results), plural(len(results), "task", "tasks")),
	}, nil
}

func (e *Executor) publish(ctx context.Context, ev *comms.Event) {
	if e.bus == nil {
		return
	}
	ev.Source = e.source
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish activity", slog.Any("err", err))
	}
}

func taskIDField(data gjson.Result) (int64, error) {
	v := data.Get("task_id")
	if !v.Exists() {
		return 0, invalid("task_id is required")
	}
	id := v.Int()
	if id <= 0 {
		return 0, invalid("task_id must be a positive integer, got %s", v.Raw)
	}
	return id, nil
}

func priorityField(data gjson.Result, key string) (task.Priority, error) {
	v := data.Get(key)
	if !v.Exists() || v.Type == gjson.Null || v.String() == "" {
		return "", nil
	}
	p, ok := task.ParsePriority(v.String())
	if !ok {
		return "", invalid("unknown priority %q", v.String())
	}
	return p, nil
}

// layoutField returns the field as text after checking it parses with
// layout. Absent, null and empty values yield "".
func layoutField(data gjson.Result, key, layout string) (string, error) {
	v := data.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return "", nil
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(layout, s); err != nil {
		return "", invalid("%s %q does not match %s", key, s, layout)
	}
	return s, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
