package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/taskpilot/assistant"
	"github.com/GoCodeAlone/taskpilot/comms"
	"github.com/GoCodeAlone/taskpilot/config"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

type testServer struct {
	*Server
	handler http.Handler
	tasks   *task.SQLiteStore
	bus     *comms.InMemoryBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := task.OpenDB(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tasks, err := task.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("task store: %v", err)
	}
	users, err := user.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("user store: %v", err)
	}
	bus := comms.NewInMemoryBus()

	cfg := *config.DefaultConfig()
	cfg.Server.Addr = ":0"
	cfg.Auth.JWTSecret = "test-secret-key-1234567890"
	cfg.Auth.TokenTTL = time.Hour

	exec := assistant.NewExecutor(tasks, bus, nil)
	svc := assistant.NewService(cfg.Assistant, nil, tasks, exec, nil)

	s := New(cfg, "test", nil)
	s.SetTaskStore(tasks)
	s.SetUserStore(users)
	s.SetBus(bus)
	s.SetAssistant(svc, exec)
	t.Cleanup(func() { s.Stop(context.Background()) }) //nolint:errcheck

	return &testServer{Server: s, handler: s.Handler(), tasks: tasks, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// register creates an account and returns its token and user ID.
func (ts *testServer) register(t *testing.T, username string) (string, int64) {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, rr.Code, rr.Body.String())
	}
	var resp authResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token, resp.User.ID
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}
