package server

import (
	"net/http"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/GoCodeAlone/taskpilot/config"
)

func TestStaticFS(t *testing.T) {
	ts := newTestServer(t)
	ts.SetStaticFS(fstest.MapFS{
		"index.html": {Data: []byte("<h1>TaskPilot</h1>")},
	})

	rr := ts.do(t, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "TaskPilot") {
		t.Fatalf("GET / = %d %q", rr.Code, rr.Body.String())
	}

	// API routes stay behind auth even with a catch-all file server.
	rr = ts.do(t, http.MethodGet, "/api/tasks", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/tasks without token = %d, want 401", rr.Code)
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := New(*config.DefaultConfig(), "test", nil)
	if err := s.Stop(t.Context()); err != nil {
		t.Errorf("Stop = %v", err)
	}
}
