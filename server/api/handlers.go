package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/GoCodeAlone/taskpilot/assistant"
	"github.com/GoCodeAlone/taskpilot/comms"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

const maxBodyBytes = 1 << 20

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks         task.Store
	Bus           comms.Bus
	Assistant     *assistant.Service
	Executor      *assistant.Executor // tags activity with comms.SourceAPI
	Conversations *Conversations
	Logger        *slog.Logger
	Version       string
	StartAt       time.Time
	Now           func() time.Time
}

// RegisterRoutes registers all authenticated API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)

	mux.HandleFunc("GET /api/lists", h.listLists)
	mux.HandleFunc("POST /api/lists", h.createList)
	mux.HandleFunc("DELETE /api/lists/{id}", h.deleteList)

	mux.HandleFunc("GET /api/search", h.search)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/calendar/week", h.week)

	mux.HandleFunc("POST /api/ai/chat", h.chat)
	mux.HandleFunc("GET /api/ai/history", h.history)
	mux.HandleFunc("DELETE /api/ai/history", h.clearHistory)
	mux.HandleFunc("GET /api/ai/config", h.aiConfig)
	mux.HandleFunc("POST /api/ai/test", h.aiTest)

	mux.HandleFunc("GET /api/activity", h.activity)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// currentUser returns the authenticated user or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid, ok := user.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return uid, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// readObject reads a JSON object request body.
func readObject(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return nil, false
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return body, true
}

// execute runs an action through the executor so REST mutations follow the
// same validation as assistant directives. A failed outcome is written as an
// error response.
func (h *Handlers) execute(w http.ResponseWriter, r *http.Request, kind assistant.Kind, data []byte) (assistant.Outcome, bool) {
	out := h.Executor.Execute(r.Context(), assistant.Directive{
		Kind:   kind,
		Action: kind.String(),
		Data:   gjson.ParseBytes(data),
		Raw:    string(data),
	})
	if out.Success {
		return out, true
	}
	status := http.StatusInternalServerError
	switch out.Code {
	case assistant.CodeValidation, assistant.CodeUnsupported:
		status = http.StatusBadRequest
	case assistant.CodeAuthRequired:
		status = http.StatusUnauthorized
	default:
		h.logger().Error("api action failed", slog.String("action", out.Action), slog.String("err", out.Error))
	}
	writeError(w, status, out.Error)
	return out, false
}

func (h *Handlers) publish(r *http.Request, ev *comms.Event) {
	if h.Bus == nil {
		return
	}
	ev.Source = comms.SourceAPI
	if err := h.Bus.Publish(r.Context(), ev); err != nil {
		h.logger().Warn("publish activity", slog.Any("err", err))
	}
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var filter task.Filter
	if l := q.Get("list_id"); l != "" {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid list_id")
			return
		}
		filter.ListID = n
	}
	if c := q.Get("show_completed"); c == "false" || c == "0" {
		filter.HideCompleted = true
	}

	tasks, err := h.Tasks.ListTasks(r.Context(), uid, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	body, ok := readObject(w, r)
	if !ok {
		return
	}
	out, ok := h.execute(w, r, assistant.KindCreateTask, body)
	if !ok {
		return
	}
	t, err := h.Tasks.GetTask(r.Context(), uid, out.TaskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.Tasks.GetTask(r.Context(), uid, id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	body, ok := readObject(w, r)
	if !ok {
		return
	}
	body, err := sjson.SetBytes(body, "task_id", id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, ok := h.execute(w, r, assistant.KindUpdateTask, body)
	if !ok {
		return
	}
	if out.Affected != nil && *out.Affected == 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	t, err := h.Tasks.GetTask(r.Context(), uid, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, _ := sjson.SetBytes([]byte(`{}`), "task_id", id)
	out, ok := h.execute(w, r, assistant.KindDeleteTask, data)
	if !ok {
		return
	}
	if out.Affected != nil && *out.Affected == 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": out.Message})
}

// --- List handlers ---

func (h *Handlers) listLists(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	lists, err := h.Tasks.ListLists(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lists == nil {
		lists = []*task.List{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *Handlers) createList(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	body, ok := readObject(w, r)
	if !ok {
		return
	}
	out, ok := h.execute(w, r, assistant.KindCreateList, body)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": out.ListID, "message": out.Message})
}

func (h *Handlers) deleteList(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.Tasks.DeleteList(r.Context(), uid, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	h.publish(r, &comms.Event{Type: comms.TypeListDeleted, UserID: uid, ListID: id, Summary: "Deleted list " + strconv.FormatInt(id, 10)})
	w.WriteHeader(http.StatusNoContent)
}

// --- Search, stats and calendar ---

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	data, _ := sjson.SetBytes([]byte(`{}`), "query", q)
	out, ok := h.execute(w, r, assistant.KindSearchTasks, data)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": out.Query, "results": out.Results, "count": out.Count})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	st, err := h.Tasks.Stats(r.Context(), uid, h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) week(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	now := h.now()
	start := now.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))
	if s := r.URL.Query().Get("week_start"); s != "" {
		t, err := time.ParseInLocation(task.DateLayout, s, now.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "week_start must be YYYY-MM-DD")
			return
		}
		start = t
	}
	wk, err := h.Tasks.Week(r.Context(), uid, start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wk)
}

// --- Assistant handlers ---

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var reply *assistant.Reply
	err := h.Conversations.With(uid, func(hist *assistant.History) error {
		var err error
		reply, err = h.Assistant.Chat(r.Context(), hist, req.Message)
		return err
	})
	if errors.Is(err, assistant.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handlers) history(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	turns := h.Conversations.Turns(uid)
	if turns == nil {
		turns = []assistant.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": turns})
}

func (h *Handlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.Conversations.Clear(uid)
	h.publish(r, &comms.Event{Type: comms.TypeConversation, UserID: uid, Summary: "Conversation cleared"})
	writeJSON(w, http.StatusOK, map[string]string{"message": "conversation history cleared"})
}

func (h *Handlers) aiConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"config":  h.Assistant.Config(),
		"enabled": h.Assistant.Enabled(),
	})
}

func (h *Handlers) aiTest(w http.ResponseWriter, r *http.Request) {
	if !h.Assistant.Enabled() {
		writeError(w, http.StatusBadRequest, "no language model configured")
		return
	}
	resp, err := h.Assistant.Probe(r.Context())
	if err != nil {
		h.logger().Warn("model probe failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": resp.Content,
		"model":    resp.Model,
	})
}

// --- Activity / status ---

func (h *Handlers) activity(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	if h.Bus == nil {
		writeJSON(w, http.StatusOK, []*comms.Event{})
		return
	}
	events, err := h.Bus.History(uid, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*comms.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": h.Version,
	}
	if !h.StartAt.IsZero() {
		resp["uptime_seconds"] = int64(h.now().Sub(h.StartAt).Seconds())
	}
	if h.Assistant != nil {
		resp["assistant_enabled"] = h.Assistant.Enabled()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
