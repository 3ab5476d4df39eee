package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeAPI answers the endpoints the CLI uses and records the bearer token.
func fakeAPI(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		if req["password"] != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid credentials"}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"token":"tok-123","user":{"id":1,"username":"alice"}}`)) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("show_completed") == "false" {
			w.Write([]byte(`[]`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`[{"id":7,"title":"Buy milk","priority":"high","due_date":"2026-10-17","is_important":true,"list_name":"Shopping"},{"id":8,"title":"Done thing","completed":true,"priority":"low"}]`)) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":"` + r.URL.Query().Get("q") + `","results":[{"id":3,"title":"call mom"}],"count":1}`)) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/lists", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Default","icon":"📋","total_tasks":3,"completed_tasks":1}]`)) //nolint:errcheck
	})
	mux.HandleFunc("POST /api/ai/chat", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		json.NewEncoder(w).Encode(map[string]string{"response": "echo: " + req["message"], "source": "local"}) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &gotAuth
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	token = ""
	tasksListID, tasksOpenOnly = 0, false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoginStoresToken(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, gotAuth := fakeAPI(t)

	out, err := run(t, "", "--server", srv.URL, "login", "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "logged in as alice") {
		t.Errorf("output = %q", out)
	}
	if got := loadToken(); got != "tok-123" {
		t.Fatalf("saved token = %q", got)
	}

	if _, err := run(t, "", "--server", srv.URL, "tasks"); err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if *gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", *gotAuth)
	}
}

func TestLoginFailure(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, _ := fakeAPI(t)
	_, err := run(t, "", "--server", srv.URL, "login", "alice", "nope")
	if err == nil || !strings.Contains(err.Error(), "401: invalid credentials") {
		t.Errorf("err = %v", err)
	}
}

func TestTasksTable(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, _ := fakeAPI(t)

	out, err := run(t, "", "--server", srv.URL, "tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	for _, want := range []string{"★ Buy milk", "high", "2026-10-17", "Shopping", "✓", "Done thing"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "", "--server", srv.URL, "tasks", "--open")
	if err != nil {
		t.Fatalf("tasks --open: %v", err)
	}
	if !strings.Contains(out, "no tasks") {
		t.Errorf("output = %q", out)
	}
}

func TestSearchAndLists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, _ := fakeAPI(t)

	out, err := run(t, "", "--server", srv.URL, "search", "call", "mom")
	if err != nil || !strings.Contains(out, "call mom") {
		t.Errorf("search = %q, %v", out, err)
	}
	if _, err := run(t, "", "--server", srv.URL, "search"); err == nil {
		t.Error("search without a query should fail")
	}

	out, err = run(t, "", "--server", srv.URL, "lists")
	if err != nil || !strings.Contains(out, "Default") || !strings.Contains(out, "1/3") {
		t.Errorf("lists = %q, %v", out, err)
	}
}

func TestChat(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, _ := fakeAPI(t)

	out, err := run(t, "", "--server", srv.URL, "chat", "hello", "there")
	if err != nil || !strings.Contains(out, "echo: hello there") {
		t.Errorf("chat = %q, %v", out, err)
	}

	out, err = run(t, "first\n\nsecond\nexit\nignored\n", "--server", srv.URL, "chat")
	if err != nil {
		t.Fatalf("interactive chat: %v", err)
	}
	if !strings.Contains(out, "echo: first") || !strings.Contains(out, "echo: second") || strings.Contains(out, "ignored") {
		t.Errorf("interactive output = %q", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil || !strings.HasPrefix(out, "taskpilot dev") {
		t.Errorf("version = %q, %v", out, err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("短标题", 5); got != "短标题" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("一二三四五六", 4); got != "一二三…" {
		t.Errorf("truncate long = %q", got)
	}
}
