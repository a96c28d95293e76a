package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wirebird/chatmcp/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected default host localhost, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Transport != config.TransportSSE {
		t.Errorf("Expected default transport sse, got %q", cfg.Server.Transport)
	}
	if cfg.Server.PingInterval != 30*time.Second {
		t.Errorf("Expected default ping interval 30s, got %v", cfg.Server.PingInterval)
	}
	if cfg.Tools.Root != "." {
		t.Errorf("Expected default tools root, got %q", cfg.Tools.Root)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Expected default ollama URL, got %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "llama3.2" {
		t.Errorf("Expected default model, got %q", cfg.Ollama.Model)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: 0.0.0.0
  port: 9090
  transport: stdio
  ping_interval: 10s
tools:
  root: /tmp/sandbox
ollama:
  model: qwen2.5
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host override, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Server.Transport != config.TransportStdIO {
		t.Errorf("Expected transport override, got %q", cfg.Server.Transport)
	}
	if cfg.Server.PingInterval != 10*time.Second {
		t.Errorf("Expected ping interval override, got %v", cfg.Server.PingInterval)
	}
	if cfg.Tools.Root != "/tmp/sandbox" {
		t.Errorf("Expected tools root override, got %q", cfg.Tools.Root)
	}
	if cfg.Ollama.Model != "qwen2.5" {
		t.Errorf("Expected model override, got %q", cfg.Ollama.Model)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Expected default URL to survive partial file, got %q", cfg.Ollama.BaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level override, got %q", cfg.LogLevel)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SANDBOX_DIR", "/srv/data")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "tools:\n  root: $SANDBOX_DIR/files\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tools.Root != "/srv/data/files" {
		t.Errorf("Expected expanded root, got %q", cfg.Tools.Root)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file, got none")
	}
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg, err := config.Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "bad transport",
			mutate:  func(c *config.Config) { c.Server.Transport = "websocket" },
			wantErr: "invalid server.transport",
		},
		{
			name:    "bad port",
			mutate:  func(c *config.Config) { c.Server.Port = 0 },
			wantErr: "invalid server.port",
		},
		{
			name:    "missing host",
			mutate:  func(c *config.Config) { c.Server.Host = "" },
			wantErr: "server.host is required",
		},
		{
			name:    "zero ping interval",
			mutate:  func(c *config.Config) { c.Server.PingInterval = 0 },
			wantErr: "ping_interval",
		},
		{
			name:    "missing root",
			mutate:  func(c *config.Config) { c.Tools.Root = "" },
			wantErr: "tools.root is required",
		},
		{
			name:    "missing model",
			mutate:  func(c *config.Config) { c.Ollama.Model = "" },
			wantErr: "ollama.model is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestServerURL(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.ServerURL(); got != "http://localhost:8080" {
		t.Errorf("Expected http://localhost:8080, got %q", got)
	}
}
