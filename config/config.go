// Package config loads the settings of both binaries: typed defaults,
// optionally overridden by a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Transport kinds the tool server can serve on.
const (
	TransportSSE   = "sse"
	TransportStdIO = "stdio"
)

// Config holds every setting of the tool server and the chat front-end.
// Every field has a default, so both binaries run without a config file.
type Config struct {
	Server   ServerConfig `mapstructure:"server"`
	Tools    ToolsConfig  `mapstructure:"tools"`
	Ollama   OllamaConfig `mapstructure:"ollama"`
	LogLevel string       `mapstructure:"log_level"`
}

// ServerConfig configures the tool server endpoint shared by both binaries:
// the server listens on it, the front-end connects to it.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Transport    string        `mapstructure:"transport"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// ToolsConfig configures the bundled tools.
type ToolsConfig struct {
	// Root is the directory the filesystem tools are confined to.
	Root string `mapstructure:"root"`
}

// OllamaConfig configures the front-end's model runtime.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// Load returns the configuration from the YAML file at path, with defaults
// filled in for everything the file does not set. An empty path loads the
// defaults alone. Environment variables in path-like fields are expanded.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.transport", TransportSSE)
	v.SetDefault("server.ping_interval", "30s")
	v.SetDefault("tools.root", ".")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Tools.Root = os.ExpandEnv(cfg.Tools.Root)
	cfg.Ollama.BaseURL = os.ExpandEnv(cfg.Ollama.BaseURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.Transport != TransportSSE && c.Server.Transport != TransportStdIO {
		return fmt.Errorf("invalid server.transport %q: must be %s or %s",
			c.Server.Transport, TransportSSE, TransportStdIO)
	}
	if c.Server.PingInterval <= 0 {
		return fmt.Errorf("server.ping_interval must be positive")
	}
	if c.Tools.Root == "" {
		return fmt.Errorf("tools.root is required")
	}
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url is required")
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("ollama.model is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// SlogLevel returns the logging level named by LogLevel, info when it does
// not parse.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ServerURL returns the SSE endpoint of the tool server.
func (c Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}
