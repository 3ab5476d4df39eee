// Command taskpilotd is the TaskPilot server daemon.
// It opens the SQLite database, wires the stores, the assistant and the
// activity bus into the HTTP server, and runs until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/taskpilot/assistant"
	"github.com/GoCodeAlone/taskpilot/comms"
	"github.com/GoCodeAlone/taskpilot/config"
	"github.com/GoCodeAlone/taskpilot/internal/version"
	"github.com/GoCodeAlone/taskpilot/provider"
	"github.com/GoCodeAlone/taskpilot/provider/mock"
	"github.com/GoCodeAlone/taskpilot/server"
	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

var configPath = flag.String("config", "taskpilot.yaml", "path to YAML config file")

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting taskpilotd",
		"version", version.Version,
		"commit", version.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("taskpilotd exited", slog.Any("err", err))
		os.Exit(1)
	}
	fmt.Println("Shutdown complete")
}

// loadConfig reads path when it exists and falls back to the defaults
// otherwise. Environment overrides apply in both cases.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := config.DefaultConfig()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// buildProvider returns the configured language model, or nil when the
// assistant should answer from local rules only.
func buildProvider(cfg config.AssistantConfig) provider.Provider {
	switch cfg.Provider {
	case "mock":
		return mock.New()
	case "openai":
		if cfg.APIKey == "" {
			return nil
		}
		return provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := task.OpenDB(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	tasks, err := task.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	users, err := user.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	bus := comms.NewInMemoryBus()

	llm := buildProvider(cfg.Assistant)
	if llm == nil {
		logger.Warn("no language model configured, assistant runs on local rules")
	} else {
		logger.Info("assistant model configured", slog.String("provider", llm.Name()), slog.String("model", cfg.Assistant.Model))
	}
	exec := assistant.NewExecutor(tasks, bus, logger)
	svc := assistant.NewService(cfg.Assistant, llm, tasks, exec, logger)

	srv := server.New(*cfg, version.Version, logger)
	srv.SetTaskStore(tasks)
	srv.SetUserStore(users)
	srv.SetBus(bus)
	srv.SetAssistant(svc, exec)
	if cfg.Server.StaticDir != "" {
		srv.SetStaticFS(os.DirFS(cfg.Server.StaticDir))
		logger.Info("serving web UI", slog.String("dir", cfg.Server.StaticDir))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	return g.Wait()
}
