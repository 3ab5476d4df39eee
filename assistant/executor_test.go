package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/GoCodeAlone/taskpilot/comms"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

func newTaskStore(t *testing.T) *task.SQLiteStore {
	t.Helper()
	db, err := task.OpenDB(filepath.Join(t.TempDir(), "assistant.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := task.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return store
}

func mustDirective(t *testing.T, raw string) Directive {
	t.Helper()
	d, err := ParseDirective(raw)
	if err != nil {
		t.Fatalf("ParseDirective(%s): %v", raw, err)
	}
	return d
}

func authed(uid int64) context.Context {
	return user.WithUserID(context.Background(), uid)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func countTasks(t *testing.T, store task.Store, uid int64) int {
	t.Helper()
	tasks, err := store.ListTasks(context.Background(), uid, task.Filter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	return len(tasks)
}

func TestExecutor_CreateTask(t *testing.T) {
	store := newTaskStore(t)
	bus := comms.NewInMemoryBus()
	exec := NewExecutor(store, bus, nil)

	out := exec.Execute(authed(1), mustDirective(t,
		`{"action":"create_task","data":{"title":"Buy milk","priority":"high","due_date":"2026-10-20","start_time":"09:00","end_time":"10:00","is_important":true,"list_name":"Shopping","unknown_field":42}}`))
	if !out.Success {
		t.Fatalf("create_task failed: %+v", out)
	}
	if out.Action != "create_task" || out.TaskID == 0 || out.ListID == 0 {
		t.Errorf("outcome = %+v", out)
	}

	got, err := store.GetTask(context.Background(), 1, out.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "Buy milk" || got.Priority != task.PriorityHigh || !got.IsImportant || got.ListName != "Shopping" {
		t.Errorf("stored task = %+v", got)
	}
	if got.DueDate != "2026-10-20" || got.StartTime != "09:00" || got.EndTime != "10:00" {
		t.Errorf("stored schedule = %s %s-%s", got.DueDate, got.StartTime, got.EndTime)
	}

	events, _ := bus.History(1, 0)
	if len(events) != 1 || events[0].Type != comms.TypeTaskCreated || events[0].Source != comms.SourceAssistant {
		t.Errorf("events = %+v", events)
	}
}

func TestExecutor_CreateTask_EmptyTitleNoMutation(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)

	for _, raw := range []string{
		`{"action":"create_task","data":{"title":""}}`,
		`{"action":"create_task","data":{"title":"   "}}`,
		`{"action":"create_task","data":{"description":"no title"}}`,
	} {
		out := exec.Execute(authed(1), mustDirective(t, raw))
		if out.Success || out.Code != CodeValidation {
			t.Errorf("Execute(%s) = %+v, want validation failure", raw, out)
		}
	}
	if n := countTasks(t, store, 1); n != 0 {
		t.Errorf("tasks created = %d, want 0", n)
	}
	if lists, _ := store.ListLists(context.Background(), 1); len(lists) != 0 {
		t.Errorf("lists created = %d, want 0", len(lists))
	}
}

func TestExecutor_CreateTask_DefaultList(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	ctx := authed(1)

	first := exec.Execute(ctx, mustDirective(t, `{"action":"create_task","data":{"title":"a"}}`))
	second := exec.Execute(ctx, mustDirective(t, `{"action":"create_task","data":{"title":"b"}}`))
	if !first.Success || !second.Success {
		t.Fatalf("outcomes: %+v %+v", first, second)
	}
	if first.ListID == 0 || first.ListID != second.ListID {
		t.Errorf("list ids = %d, %d; want the same default list", first.ListID, second.ListID)
	}
	lists, _ := store.ListLists(context.Background(), 1)
	if len(lists) != 1 || lists[0].Name != task.DefaultListName {
		t.Errorf("lists = %+v", lists)
	}
}

func TestExecutor_CreateTask_ListMatchIsCaseSensitive(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	ctx := authed(1)

	work, _ := store.CreateList(context.Background(), 1, &task.List{Name: "Work", SortOrder: 5})
	same := exec.Execute(ctx, mustDirective(t, `{"action":"create_task","data":{"title":"a","list_name":"Work"}}`))
	other := exec.Execute(ctx, mustDirective(t, `{"action":"create_task","data":{"title":"b","list_name":"work"}}`))
	if same.ListID != work {
		t.Errorf("exact name resolved to %d, want %d", same.ListID, work)
	}
	if other.ListID == work || other.ListID == 0 {
		t.Errorf("different case resolved to %d", other.ListID)
	}
	lists, _ := store.ListLists(context.Background(), 1)
	if last := lists[len(lists)-1]; last.Name != "work" || last.SortOrder != 6 {
		t.Errorf("auto-created list = %+v, want name work at sort 6", last)
	}
}

func TestExecutor_CreateTask_InvalidFields(t *testing.T) {
	exec := NewExecutor(newTaskStore(t), nil, nil)
	for _, raw := range []string{
		`{"action":"create_task","data":{"title":"x","priority":"someday"}}`,
		`{"action":"create_task","data":{"title":"x","due_date":"tomorrow"}}`,
		`{"action":"create_task","data":{"title":"x","start_time":"3pm"}}`,
	} {
		if out := exec.Execute(authed(1), mustDirective(t, raw)); out.Success || out.Code != CodeValidation {
			t.Errorf("Execute(%s) = %+v, want validation failure", raw, out)
		}
	}
}

func TestExecutor_AuthRequired(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	for _, raw := range []string{
		`{"action":"create_task","data":{"title":"x"}}`,
		`{"action":"create_list","data":{"name":"x"}}`,
		`{"action":"update_task","data":{"task_id":1,"title":"x"}}`,
		`{"action":"delete_task","data":{"task_id":1}}`,
		`{"action":"search_tasks","data":{"query":"x"}}`,
	} {
		out := exec.Execute(context.Background(), mustDirective(t, raw))
		if out.Success || out.Code != CodeAuthRequired {
			t.Errorf("Execute(%s) = %+v, want auth_required", raw, out)
		}
	}
	if n := countTasks(t, store, 1); n != 0 {
		t.Errorf("unauthenticated directives created %d tasks", n)
	}
}

func TestExecutor_CreateList(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	ctx := authed(1)

	out := exec.Execute(ctx, mustDirective(t, `{"action":"create_list","data":{"name":"Work","icon":"💼"}}`))
	if !out.Success {
		t.Fatalf("create_list failed: %+v", out)
	}
	out2 := exec.Execute(ctx, mustDirective(t, `{"action":"create_list","data":{"name":"Home"}}`))
	lists, _ := store.ListLists(context.Background(), 1)
	if len(lists) != 2 {
		t.Fatalf("lists = %+v", lists)
	}
	if lists[0].ID != out.ListID || lists[0].SortOrder != 1 || lists[0].Icon != "💼" {
		t.Errorf("first list = %+v", lists[0])
	}
	if lists[1].ID != out2.ListID || lists[1].SortOrder != 2 || lists[1].Color != task.DefaultListColor {
		t.Errorf("second list = %+v", lists[1])
	}

	if out := exec.Execute(ctx, mustDirective(t, `{"action":"create_list","data":{"name":" "}}`)); out.Success {
		t.Error("blank list name should fail")
	}
}

func TestExecutor_UpdateTask(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	ctx := authed(1)

	id, _ := store.CreateTask(context.Background(), 1, &task.Task{Title: "old", Description: "keep me"})
	out := exec.Execute(ctx, mustDirective(t,
		`{"action":"update_task","data":{"task_id":`+itoa(id)+`,"title":"new","completed":true,"priority":"low"}}`))
	if !out.Success || out.Affected == nil || *out.Affected != 1 {
		t.Fatalf("update_task = %+v", out)
	}
	got, _ := store.GetTask(context.Background(), 1, id)
	if got.Title != "new" || !got.Completed || got.CompletedAt == nil || got.Priority != task.PriorityLow {
		t.Errorf("after update = %+v", got)
	}
	if got.Description != "keep me" {
		t.Errorf("absent field changed: %q", got.Description)
	}

	out = exec.Execute(ctx, mustDirective(t, `{"action":"update_task","data":{"task_id":"`+itoa(id)+`","completed":false}}`))
	if !out.Success {
		t.Fatalf("reopen = %+v", out)
	}
	got, _ = store.GetTask(context.Background(), 1, id)
	if got.Completed || got.CompletedAt != nil {
		t.Errorf("after reopen = %+v", got)
	}
}

func TestExecutor_UpdateTask_MissingOrForeign(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)

	id, _ := store.CreateTask(context.Background(), 1, &task.Task{Title: "mine"})
	out := exec.Execute(authed(2), mustDirective(t, `{"action":"update_task","data":{"task_id":`+itoa(id)+`,"title":"stolen"}}`))
	if !out.Success || out.Affected == nil || *out.Affected != 0 {
		t.Errorf("foreign update = %+v, want silent success with 0 affected", out)
	}
	got, _ := store.GetTask(context.Background(), 1, id)
	if got.Title != "mine" {
		t.Errorf("foreign update changed title to %q", got.Title)
	}

	for _, raw := range []string{
		`{"action":"update_task","data":{"title":"x"}}`,
		`{"action":"update_task","data":{"task_id":0,"title":"x"}}`,
		`{"action":"update_task","data":{"task_id":1}}`,
		`{"action":"update_task","data":{"task_id":1,"bogus":true}}`,
	} {
		if out := exec.Execute(authed(1), mustDirective(t, raw)); out.Success || out.Code != CodeValidation {
			t.Errorf("Execute(%s) = %+v, want validation failure", raw, out)
		}
	}
}

func TestExecutor_UpdateTask_BlankPriorityKeepsValue(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	id, _ := store.CreateTask(context.Background(), 1, &task.Task{Title: "urgent", Priority: task.PriorityHigh})

	for _, prio := range []string{`null`, `""`} {
		out := exec.Execute(authed(1), mustDirective(t,
			`{"action":"update_task","data":{"task_id":`+itoa(id)+`,"title":"still urgent","priority":`+prio+`}}`))
		if !out.Success {
			t.Fatalf("priority %s: %+v", prio, out)
		}
		got, _ := store.GetTask(context.Background(), 1, id)
		if got.Priority != task.PriorityHigh {
			t.Errorf("priority %s: stored priority = %q, want high", prio, got.Priority)
		}
	}

	out := exec.Execute(authed(1), mustDirective(t, `{"action":"update_task","data":{"task_id":`+itoa(id)+`,"priority":null}}`))
	if out.Success || out.Code != CodeValidation {
		t.Errorf("null priority alone = %+v, want validation failure", out)
	}
}

func TestExecutor_UpdateTask_ForeignList(t *testing.T) {
	store := newTaskStore(t)
	bus := comms.NewInMemoryBus()
	exec := NewExecutor(store, bus, nil)
	ctx := context.Background()

	foreign, _ := store.CreateList(ctx, 2, &task.List{Name: "Private"})
	id, _ := store.CreateTask(ctx, 1, &task.Task{Title: "mine"})

	out := exec.Execute(authed(1), mustDirective(t,
		`{"action":"update_task","data":{"task_id":`+itoa(id)+`,"list_id":`+itoa(foreign)+`}}`))
	if out.Success || out.Code != CodeValidation {
		t.Fatalf("move into foreign list = %+v, want validation failure", out)
	}
	got, _ := store.GetTask(ctx, 1, id)
	if got.ListID != 0 || got.ListName != "" {
		t.Errorf("task moved to list %d %q", got.ListID, got.ListName)
	}
	lists, _ := store.ListLists(ctx, 2)
	if len(lists) != 1 || lists[0].TotalTasks != 0 {
		t.Errorf("owner's lists = %+v", lists)
	}
	if events, _ := bus.History(1, 0); len(events) != 0 {
		t.Errorf("events = %d, want none", len(events))
	}

	own, _ := store.CreateList(ctx, 1, &task.List{Name: "Work"})
	out = exec.Execute(authed(1), mustDirective(t,
		`{"action":"update_task","data":{"task_id":`+itoa(id)+`,"list_id":`+itoa(own)+`}}`))
	if !out.Success {
		t.Fatalf("move into own list = %+v", out)
	}
	got, _ = store.GetTask(ctx, 1, id)
	if got.ListName != "Work" {
		t.Errorf("ListName = %q, want Work", got.ListName)
	}
}

func TestExecutor_DeleteTask(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)

	id, _ := store.CreateTask(context.Background(), 1, &task.Task{Title: "bye"})
	out := exec.Execute(authed(1), mustDirective(t, `{"action":"delete_task","data":{"task_id":`+itoa(id)+`}}`))
	if !out.Success || *out.Affected != 1 {
		t.Fatalf("delete_task = %+v", out)
	}
	again := exec.Execute(authed(1), mustDirective(t, `{"action":"delete_task","data":{"task_id":`+itoa(id)+`}}`))
	if !again.Success || *again.Affected != 0 {
		t.Errorf("second delete = %+v, want silent success", again)
	}
	if n := countTasks(t, store, 1); n != 0 {
		t.Errorf("tasks left = %d", n)
	}
}

func TestExecutor_SearchTasks(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	bg := context.Background()

	store.CreateTask(bg, 1, &task.Task{Title: "Buy MILK", DueDate: "2026-10-20"})           //nolint:errcheck
	store.CreateTask(bg, 1, &task.Task{Title: "milk tea", IsImportant: true})              //nolint:errcheck
	store.CreateTask(bg, 1, &task.Task{Title: "call", Description: "about the milk order"}) //nolint:errcheck
	store.CreateTask(bg, 2, &task.Task{Title: "someone else's milk"})                      //nolint:errcheck

	out := exec.Execute(authed(1), mustDirective(t, `{"action":"search_tasks","data":{"query":"Milk"}}`))
	if !out.Success || out.Count != 3 || len(out.Results) != 3 {
		t.Fatalf("search = %+v", out)
	}
	if out.Results[0].Title != "milk tea" {
		t.Errorf("important task should come first, got %q", out.Results[0].Title)
	}
	if out.Query != "Milk" {
		t.Errorf("Query = %q", out.Query)
	}

	none := exec.Execute(authed(1), mustDirective(t, `{"action":"search_tasks","data":{"query":"zebra"}}`))
	if !none.Success || none.Count != 0 || none.Results == nil {
		t.Errorf("empty search = %+v", none)
	}
	if out := exec.Execute(authed(1), mustDirective(t, `{"action":"search_tasks","data":{"query":""}}`)); out.Success {
		t.Error("empty query should fail")
	}
}

func TestExecutor_Unsupported(t *testing.T) {
	exec := NewExecutor(newTaskStore(t), nil, nil)
	out := exec.Execute(authed(1), mustDirective(t, `{"action":"launch_rocket","data":{}}`))
	if out.Success || out.Code != CodeUnsupported || out.Action != "launch_rocket" {
		t.Errorf("outcome = %+v", out)
	}
	if !strings.Contains(out.Error, "launch_rocket") {
		t.Errorf("error should name the action: %q", out.Error)
	}
}

type failingStore struct {
	task.Store
}

func (failingStore) FirstList(context.Context, int64) (int64, bool, error) {
	return 0, false, errors.New("disk on fire")
}

func (failingStore) SearchTasks(context.Context, int64, string) ([]*task.Task, error) {
	return nil, errors.New("disk on fire")
}

func TestExecutor_StoreFailureIsOutcome(t *testing.T) {
	exec := NewExecutor(failingStore{}, nil, nil)
	outs := exec.ExecuteAll(authed(1), []Directive{
		mustDirective(t, `{"action":"create_task","data":{"title":"x"}}`),
		mustDirective(t, `{"action":"search_tasks","data":{"query":"x"}}`),
	})
	if len(outs) != 2 {
		t.Fatalf("outcomes = %d", len(outs))
	}
	for _, o := range outs {
		if o.Success || o.Code != CodeStore || !strings.Contains(o.Error, "disk on fire") {
			t.Errorf("outcome = %+v", o)
		}
	}
}

func TestExecutor_IndependentDirectives(t *testing.T) {
	store := newTaskStore(t)
	exec := NewExecutor(store, nil, nil)
	outs := exec.ExecuteAll(authed(1), ScanDirectives(`
		{"action":"create_task","data":{"title":""}}
		{"action":"create_task","data":{"title":"survivor"}}`, nil))
	if len(outs) != 2 || outs[0].Success || !outs[1].Success {
		t.Fatalf("outcomes = %+v", outs)
	}
	if n := countTasks(t, store, 1); n != 1 {
		t.Errorf("tasks = %d, want 1", n)
	}
}
