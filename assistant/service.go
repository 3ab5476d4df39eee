// Package assistant turns chat messages into task actions. It extracts task
// intents from plain language, finds action directives in language-model
// replies, executes them against the task store and composes the final reply.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/GoCodeAlone/taskpilot/config"
	"github.com/GoCodeAlone/taskpilot/provider"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

// ErrEmptyMessage is returned by Chat for a blank message.
var ErrEmptyMessage = errors.New("message is empty")

// Source says how a reply was produced.
type Source string

const (
	SourceLocal         Source = "local"
	SourceAI            Source = "ai"
	SourceAIWithActions Source = "ai_with_actions"
	SourceLocalFallback Source = "local_fallback"
	SourceError         Source = "error"
)

// Apology is returned when the reply cannot be produced at all.
const Apology = "Sorry, I ran into a problem. Please try again later."

const probeMessage = "Hello, please reply briefly to confirm the connection works."

// Reply is the answer to one chat message.
type Reply struct {
	Text    string    `json:"response"`
	Source  Source    `json:"source"`
	Actions []Outcome `json:"actions,omitempty"`
}

// Service runs chat turns for one process. Conversation state lives in the
// History passed to each call.
type Service struct {
	cfg      config.AssistantConfig
	provider provider.Provider
	tasks    task.Store
	exec     *Executor
	fallback *Fallback
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. A nil provider answers every message locally.
func NewService(cfg config.AssistantConfig, p provider.Provider, tasks task.Store, exec *Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		provider: p,
		tasks:    tasks,
		exec:     exec,
		fallback: NewFallback(tasks, exec, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Config returns the assistant configuration with the API key masked.
func (s *Service) Config() config.AssistantConfig {
	return s.cfg.Masked()
}

// Enabled reports whether a language model is configured.
func (s *Service) Enabled() bool { return s.provider != nil }

// Chat answers message in the conversation hist and records both turns.
// The only error is ErrEmptyMessage; every other failure is folded into
// the reply.
func (s *Service) Chat(ctx context.Context, hist *History, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	hist.Append(provider.RoleUser, message)

	reply := s.reply(ctx, hist)
	hist.Append(provider.RoleAssistant, reply.Text)
	return reply, nil
}

func (s *Service) reply(ctx context.Context, hist *History) *Reply {
	msgs := hist.Context(s.cfg.ContextMemory)
	message := msgs[len(msgs)-1].Content

	if s.provider == nil {
		text, outcomes := s.fallback.Respond(ctx, message)
		return &Reply{Text: text, Source: SourceLocal, Actions: outcomes}
	}

	system := SystemPrompt(s.systemPrompt(), s.taskContext(ctx))
	req := append([]provider.Message{{Role: provider.RoleSystem, Content: system}}, msgs...)

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	resp, err := s.provider.Chat(callCtx, req)
	if err != nil {
		s.logger.Warn("language model call failed", slog.String("provider", s.provider.Name()), slog.Any("err", err))
		if !s.cfg.FallbackToRules {
			return &Reply{Text: Apology, Source: SourceError}
		}
		text, outcomes := s.fallback.Respond(ctx, message)
		return &Reply{Text: text, Source: SourceLocalFallback, Actions: outcomes}
	}

	directives := ScanDirectives(resp.Content, s.logger)
	if len(directives) == 0 {
		return &Reply{Text: resp.Content, Source: SourceAI}
	}
	outcomes := s.exec.ExecuteAll(ctx, directives)
	return &Reply{Text: Compose(resp.Content, outcomes), Source: SourceAIWithActions, Actions: outcomes}
}

func (s *Service) systemPrompt() string {
	if s.cfg.SystemPrompt != "" {
		return s.cfg.SystemPrompt
	}
	return config.DefaultSystemPrompt
}

func (s *Service) taskContext(ctx context.Context) string {
	uid, ok := user.UserIDFromContext(ctx)
	if !ok {
		return "No signed-in user."
	}
	text, err := TaskContext(ctx, s.tasks, uid, s.now())
	if err != nil {
		s.logger.Warn("build task context", slog.Any("err", err))
		return "Task data unavailable."
	}
	return text
}

// Probe sends a short test message to the configured model.
func (s *Service) Probe(ctx context.Context) (*provider.Response, error) {
	if s.provider == nil {
		return nil, errors.New("no language model configured")
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.provider.Chat(ctx, []provider.Message{{Role: provider.RoleUser, Content: probeMessage}})
}
