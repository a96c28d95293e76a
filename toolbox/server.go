package toolbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wirebird/chatmcp"
)

// Server exposes the bundled tool set, a couple of informational resources,
// and a greeting prompt over the MCP server interfaces. All filesystem access
// performed by the tools is restricted to the configured root directory.
//
// Server implements the mcp.ToolServer, mcp.ResourceServer and
// mcp.PromptServer interfaces.
type Server struct {
	registry *Registry
	logger   *slog.Logger
}

// Option configures a Server created by NewServer.
type Option func(*Server)

// WithLogger sets the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With(slog.String("package", "toolbox"))
	}
}

// NewServer creates a toolbox server rooted at the given directory and
// registers the bundled tools. The root must exist and be a directory; every
// caller-supplied path is resolved inside it.
func NewServer(root string, options ...Option) (Server, error) {
	info, err := os.Stat(filepath.Clean(root))
	if err != nil {
		return Server{}, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return Server{}, fmt.Errorf("root directory is not a directory: %s", root)
	}

	s := Server{
		registry: NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(&s)
	}

	for _, tool := range bundledTools(root) {
		if err := s.registry.Register(tool); err != nil {
			return Server{}, fmt.Errorf("failed to register tool: %w", err)
		}
	}

	return s, nil
}

// Register adds a custom tool alongside the bundled set. Registration must
// happen before the server starts serving requests.
func (s Server) Register(tool Tool) error {
	return s.registry.Register(tool)
}

// ListTools implements mcp.ToolServer interface.
func (s Server) ListTools(context.Context, mcp.ListToolsParams) (mcp.ListToolsResult, error) {
	return mcp.ListToolsResult{
		Tools: s.registry.Tools(),
	}, nil
}

// CallTool implements mcp.ToolServer interface. Tool-level failures are
// reported inside the result with IsError set rather than as Go errors, so
// the outcome always reaches the model.
func (s Server) CallTool(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	s.logger.Debug("call tool", slog.String("name", params.Name))

	res := s.registry.Dispatch(ctx, params.Name, params.Arguments)
	if res.IsError && len(res.Content) > 0 {
		s.logger.Warn("tool call failed",
			slog.String("name", params.Name), slog.String("err", res.Content[0].Text))
	}
	return res, nil
}
