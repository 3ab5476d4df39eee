// Package config defines the TaskPilot application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIKey    = "TASKPILOT_API_KEY"
	EnvJWTSecret = "TASKPILOT_JWT_SECRET"
)

// Config is the top-level TaskPilot configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Assistant AssistantConfig `json:"assistant" yaml:"assistant"`
	DataDir   string          `json:"data_dir" yaml:"data_dir"`
	LogLevel  string          `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`             // listen address, e.g., ":9090"
	StaticDir string `json:"static_dir" yaml:"static_dir"` // web UI files; empty serves none
}

// AuthConfig controls session token issuance.
type AuthConfig struct {
	JWTSecret string        `json:"-" yaml:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
}

// AssistantConfig configures the conversational assistant and its
// language-model backend. An empty Provider or APIKey means the assistant
// answers from local rules only.
type AssistantConfig struct {
	Name            string        `json:"name" yaml:"name"`
	Provider        string        `json:"provider" yaml:"provider"` // "openai", "mock" or ""
	APIKey          string        `json:"api_key" yaml:"api_key"`
	BaseURL         string        `json:"base_url" yaml:"base_url"`
	Model           string        `json:"model" yaml:"model"`
	MaxTokens       int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature     float64       `json:"temperature" yaml:"temperature"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	SystemPrompt    string        `json:"system_prompt" yaml:"system_prompt"`
	WelcomeMessage  string        `json:"welcome_message" yaml:"welcome_message"`
	ContextMemory   int           `json:"context_memory" yaml:"context_memory"`
	FallbackToRules bool          `json:"fallback_to_rules" yaml:"fallback_to_rules"`
}

// Masked returns a copy safe to show to clients: the API key is replaced by
// "***" when set.
func (a AssistantConfig) Masked() AssistantConfig {
	if a.APIKey != "" {
		a.APIKey = "***"
	}
	return a
}

// DefaultSystemPrompt is the assistant persona used when none is configured.
const DefaultSystemPrompt = `You are a task-management assistant that helps the user run their to-do lists.
You help the user create, edit and organize tasks, suggest priorities, plan their time
and answer questions about their tasks. Keep replies friendly, professional and short.
When the user asks about their tasks, answer from the current task data.`

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Assistant: AssistantConfig{
			Name:            "TaskPilot",
			Provider:        "openai",
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-3.5-turbo",
			MaxTokens:       500,
			Temperature:     0.7,
			Timeout:         30 * time.Second,
			SystemPrompt:    DefaultSystemPrompt,
			WelcomeMessage:  "Hi! I'm your assistant. I can create tasks, find tasks, set priorities and summarize your progress.",
			ContextMemory:   10,
			FallbackToRules: true,
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
// Environment overrides are applied after the file is parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets from the environment when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Assistant.APIKey = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	if c.Assistant.ContextMemory <= 0 {
		return fmt.Errorf("assistant.context_memory must be positive, got %d", c.Assistant.ContextMemory)
	}
	switch c.Assistant.Provider {
	case "", "openai", "mock":
	default:
		return fmt.Errorf("unknown assistant provider %q", c.Assistant.Provider)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

// DBPath returns the SQLite database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "taskpilot.db")
}
