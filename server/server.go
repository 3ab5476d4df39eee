// Package server implements the TaskPilot HTTP server: REST API, user
// accounts, token auth and SSE activity streaming.
package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/taskpilot/assistant"
	"github.com/GoCodeAlone/taskpilot/comms"
	"github.com/GoCodeAlone/taskpilot/config"
	"github.com/GoCodeAlone/taskpilot/server/api"
	"github.com/GoCodeAlone/taskpilot/server/ws"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

// Server is the TaskPilot HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	tasks     task.Store
	users     user.Store
	bus       comms.Bus
	assistant *assistant.Service
	executor  *assistant.Executor
	hub       *ws.Hub
	handlers  *api.Handlers

	routesOnce  sync.Once
	unsubscribe func()

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		hub:       ws.NewHub(logger),
		startTime: time.Now(),
		version:   ver,
	}
}

// SetTaskStore attaches a task store to the server.
func (s *Server) SetTaskStore(store task.Store) {
	s.tasks = store
}

// SetUserStore attaches a user store to the server.
func (s *Server) SetUserStore(store user.Store) {
	s.users = store
}

// SetBus attaches an activity bus to the server.
func (s *Server) SetBus(bus comms.Bus) {
	s.bus = bus
}

// SetAssistant attaches the chat service and the executor used for REST
// mutations.
func (s *Server) SetAssistant(svc *assistant.Service, exec *assistant.Executor) {
	s.assistant = svc
	s.executor = exec
}

// SetStaticFS sets the embedded filesystem to serve UI files from.
// Call before Start.
func (s *Server) SetStaticFS(fsys fs.FS) {
	s.mux.Handle("/", http.FileServerFS(fsys))
}

// Handler registers routes on first use and returns the root handler.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.registerRoutes)
	return s.requestID(s.mux)
}

// Start registers routes and begins listening. It returns
// http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	exec := s.executor
	if exec == nil {
		exec = assistant.NewExecutor(s.tasks, s.bus, s.logger)
	}
	h := &api.Handlers{
		Tasks:         s.tasks,
		Bus:           s.bus,
		Assistant:     s.assistant,
		Executor:      exec.WithSource(comms.SourceAPI),
		Conversations: api.NewConversations(s.cfg.Assistant.ContextMemory),
		Logger:        s.logger,
		Version:       s.version,
		StartAt:       s.startTime,
	}
	s.handlers = h

	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(comms.AllUsers, s.hub.Relay)
	}

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE authenticates with ?token= since EventSource cannot set headers.
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API.
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams the token owner's activity as Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// EventSource can't set headers, so the token comes in the query.
	uid, err := s.verifyToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.ServeSSE(w, r, uid)
}
