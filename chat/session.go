package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/wirebird/chatmcp"
)

// ToolCaller is the slice of the MCP client API a session drives: tool
// discovery for the system prompt and tool execution for extracted
// invocations. *mcp.Client satisfies it.
type ToolCaller interface {
	ListTools(ctx context.Context, params mcp.ListToolsParams) (mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error)
}

// Session is one interactive chat session: it reads user turns, queries the
// model, dispatches at most one extracted tool invocation per turn, and
// prints the model's final answer.
type Session struct {
	tools  ToolCaller
	ollama *OllamaClient
	model  string

	conversation *Conversation
	in           io.Reader
	out          io.Writer
	logger       *slog.Logger
}

// SessionOption represents a configuration option for Session.
type SessionOption func(*Session)

// WithSessionIO redirects the session's terminal. The default is stdin and
// stdout.
func WithSessionIO(in io.Reader, out io.Writer) SessionOption {
	return func(s *Session) {
		s.in = in
		s.out = out
	}
}

// WithSessionLogger sets the logger for the session.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger.With(slog.String("package", "chat"))
	}
}

// NewSession creates a session that answers with model, reaching tools
// through tools and the model through ollama.
func NewSession(tools ToolCaller, ollama *OllamaClient, model string, options ...SessionOption) *Session {
	s := &Session{
		tools:  tools,
		ollama: ollama,
		model:  model,
		in:     os.Stdin,
		out:    os.Stdout,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run drives the read-query-answer loop until the input ends, the user types
// "quit" or "exit", or ctx is cancelled. Model and tool failures are reported
// to the terminal and the loop continues; only input failures and a failed
// tool listing at startup end the session with an error.
func (s *Session) Run(ctx context.Context) error {
	prompt, err := s.systemPrompt(ctx)
	if err != nil {
		return fmt.Errorf("failed to build system prompt: %w", err)
	}
	s.conversation = NewConversation(prompt)

	lines := make(chan string)
	readErrs := make(chan error, 1)
	go readLines(ctx, s.in, lines, readErrs)

	for {
		fmt.Fprint(s.out, "You: ")

		var input string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case err := <-readErrs:
			return fmt.Errorf("failed to read input: %w", err)
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			return nil
		}

		s.conversation.AddUser(input)
		if err := s.respond(ctx); err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(s.out)
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string, errs chan<- error) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		errs <- err
		return
	}
	close(lines)
}

// respond runs one turn: query the model, dispatch an extracted invocation if
// there is one, then query once more for the user-facing answer.
func (s *Session) respond(ctx context.Context) error {
	reply, err := s.ollama.Chat(ctx, s.model, s.conversation.Messages())
	if err != nil {
		return fmt.Errorf("failed to query model: %w", err)
	}

	res := Extract(reply)
	if res.Call == nil {
		s.conversation.AddAssistant(res.Text)
		fmt.Fprintf(s.out, "Assistant: %s\n", res.Text)
		return nil
	}

	s.logger.Debug("dispatch tool call", slog.String("tool", res.Call.Name))
	s.conversation.AddAssistant(reply)

	result, err := s.callTool(ctx, *res.Call)
	if err != nil {
		return fmt.Errorf("failed to call tool %s: %w", res.Call.Name, err)
	}
	s.conversation.AddToolResult(res.Call.Name, result)

	fmt.Fprint(s.out, "Assistant: ")
	final, err := s.ollama.ChatStream(ctx, s.model, s.conversation.Messages(), func(content string) error {
		_, err := fmt.Fprint(s.out, content)
		return err
	})
	fmt.Fprintln(s.out)
	if err != nil {
		return fmt.Errorf("failed to query model: %w", err)
	}

	s.conversation.AddAssistant(final)
	return nil
}

func (s *Session) callTool(ctx context.Context, call ToolCall) (string, error) {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("failed to marshal arguments: %w", err)
	}

	res, err := s.tools.CallTool(ctx, mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}
	if res.IsError {
		s.logger.Warn("tool call failed", slog.String("tool", call.Name))
	}

	var parts []string
	for _, content := range res.Content {
		if content.Type == mcp.ContentTypeText {
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// systemPrompt builds the session's system prompt from the server's live tool
// listing, so the model always sees the tool set it can actually call.
func (s *Session) systemPrompt(ctx context.Context) (string, error) {
	res, err := s.tools.ListTools(ctx, mcp.ListToolsParams{})
	if err != nil {
		return "", fmt.Errorf("failed to list tools: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant with access to these tools:\n\n")
	for _, tool := range res.Tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		if len(tool.InputSchema) > 0 {
			fmt.Fprintf(&b, "  arguments schema: %s\n", compactJSON(tool.InputSchema))
		}
	}
	b.WriteString("\nTo use a tool, reply with a single JSON object in this exact format and nothing else:\n\n")
	b.WriteString(`{"tool": "<tool name>", "arguments": {"<argument name>": "<value>"}}`)
	b.WriteString("\n\nAfter a tool result arrives, answer the user in plain text. " +
		"If no tool is needed, answer directly.")

	return b.String(), nil
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
