package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/wirebird/chatmcp"
	"github.com/wirebird/chatmcp/chat"
	"github.com/wirebird/chatmcp/config"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	printBanner()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr, keeping stdout for the conversation itself.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	tpl := "{{ .Title \"chatmcp\" \"\" 0 }}\nchat " + version + "\n\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ollama := chat.NewOllamaClient(cfg.Ollama.BaseURL, chat.WithOllamaLogger(logger))

	models, err := ollama.Models(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach ollama at %s, make sure it is running (ollama serve): %w",
			cfg.Ollama.BaseURL, err)
	}
	if !slices.Contains(models, cfg.Ollama.Model) {
		logger.Warn("configured model not found in ollama",
			slog.String("model", cfg.Ollama.Model),
			slog.String("available", strings.Join(models, ", ")),
		)
	}

	transport := mcp.NewSSEClient(cfg.ServerURL()+"/sse", http.DefaultClient)
	cli := mcp.NewClient(mcp.Info{
		Name:    "chat",
		Version: version,
	}, transport, mcp.WithClientLogger(logger))

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := cli.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to tool server at %s: %w", cfg.ServerURL(), err)
	}
	defer cli.Close()

	srvInfo := cli.ServerInfo()
	fmt.Printf("Connected to %s %s with model %s. Type 'quit' or 'exit' to leave.\n\n",
		srvInfo.Name, srvInfo.Version, cfg.Ollama.Model)

	session := chat.NewSession(cli, ollama, cfg.Ollama.Model, chat.WithSessionLogger(logger))
	return session.Run(ctx)
}
