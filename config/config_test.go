package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskpilot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8081"
assistant:
  provider: mock
  timeout: 5s
  context_memory: 4
data_dir: /tmp/tp
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8081" {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, ":8081")
	}
	if cfg.Assistant.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Assistant.Timeout)
	}
	if cfg.Assistant.ContextMemory != 4 {
		t.Errorf("ContextMemory = %d, want 4", cfg.Assistant.ContextMemory)
	}
	// Untouched keys keep their defaults.
	if cfg.Assistant.MaxTokens != 500 {
		t.Errorf("MaxTokens = %d, want default 500", cfg.Assistant.MaxTokens)
	}
	if !cfg.Assistant.FallbackToRules {
		t.Error("FallbackToRules should default to true")
	}
	if got := cfg.DBPath(); got != filepath.Join("/tmp/tp", "taskpilot.db") {
		t.Errorf("DBPath = %q", got)
	}
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-from-env")
	path := writeConfig(t, "assistant:\n  api_key: sk-from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env value", cfg.Assistant.APIKey)
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "assistant:\n  provider: carrier-pigeon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAssistantConfig_Masked(t *testing.T) {
	a := AssistantConfig{APIKey: "sk-secret"}
	if got := a.Masked().APIKey; got != "***" {
		t.Errorf("Masked().APIKey = %q, want ***", got)
	}
	if a.APIKey != "sk-secret" {
		t.Error("Masked must not modify the receiver")
	}
	if got := (AssistantConfig{}).Masked().APIKey; got != "" {
		t.Errorf("empty key masked to %q, want empty", got)
	}
}
