package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/wirebird/chatmcp"
	"github.com/wirebird/chatmcp/config"
	"github.com/wirebird/chatmcp/toolbox"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	printBanner()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolserver: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func printBanner() {
	// The banner goes to stderr so stdout stays clean for the stdio transport.
	tpl := "{{ .Title \"chatmcp\" \"\" 0 }}\ntoolserver " + version + "\n\n"
	banner.Init(os.Stderr, true, false, bytes.NewBufferString(tpl))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	tools, err := toolbox.NewServer(cfg.Tools.Root, toolbox.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create tool server: %w", err)
	}

	info := mcp.Info{
		Name:    "toolserver",
		Version: version,
	}
	options := []mcp.ServerOption{
		mcp.WithToolServer(tools),
		mcp.WithResourceServer(tools),
		mcp.WithPromptServer(tools),
		mcp.WithServerPingInterval(cfg.Server.PingInterval),
		mcp.WithServerLogger(logger),
	}

	switch cfg.Server.Transport {
	case config.TransportStdIO:
		return serveStdIO(ctx, info, options, logger)
	case config.TransportSSE:
		return serveSSE(ctx, cfg, info, options, logger)
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}
}

func serveStdIO(ctx context.Context, info mcp.Info, options []mcp.ServerOption, logger *slog.Logger) error {
	transport := mcp.NewStdIO(os.Stdin, os.Stdout)
	srv := mcp.NewServer(info, transport, options...)

	go srv.Serve()
	logger.Info("serving on standard streams")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func serveSSE(
	ctx context.Context,
	cfg config.Config,
	info mcp.Info,
	options []mcp.ServerOption,
	logger *slog.Logger,
) error {
	baseURL := cfg.ServerURL()
	transport := mcp.NewSSEServer(baseURL + "/message")

	mux := http.NewServeMux()
	mux.Handle("/sse", transport.HandleSSE())
	mux.Handle("/message", transport.HandleMessage())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	srv := mcp.NewServer(info, transport, options...)
	go srv.Serve()

	httpErrs := make(chan error, 1)
	go func() {
		logger.Info("serving over sse", slog.String("connectURL", baseURL+"/sse"))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrs <- err
		}
	}()

	select {
	case err := <-httpErrs:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return httpSrv.Shutdown(shutdownCtx)
}
