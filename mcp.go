package mcp

import (
	"context"
	"iter"
)

// ServerTransport provides the server-side communication layer in the MCP protocol.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they are initiated.
	// Each yielded Session represents a unique client connection and provides methods for
	// bidirectional communication. The implementation must guarantee that each session ID
	// is unique across all active connections.
	//
	// The implementation should exit the iteration when the Shutdown method is called.
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the ServerTransport to clean up resources. The implementations
	// should not close the Sessions it produces, the caller would already do that when calling this
	// method. The caller is guaranteed to call this method only once.
	Shutdown(ctx context.Context) error
}

// ClientTransport provides the client-side communication layer in the MCP protocol.
type ClientTransport interface {
	// StartSession initiates a new session with the server. The session is ready for
	// Send calls when StartSession returns without error. Operations are canceled when
	// the context is canceled, and appropriate errors are returned for connection failures.
	StartSession(ctx context.Context) (Session, error)
}

// Session represents a bidirectional communication channel between server and client.
type Session interface {
	// ID returns the unique identifier for this session. The implementation must
	// guarantee that session IDs are unique across all active sessions managed.
	ID() string

	// Send transmits a message to the other party.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields messages received from the other party.
	// The implementations should exit the iteration if the session is closed.
	Messages() iter.Seq[JSONRPCMessage]

	// Stop stops the session.
	// The implementation should not call this, as the caller is guaranteed to call
	// this method once.
	Stop()
}

// Server interfaces

// PromptServer defines the interface for managing prompts in the MCP protocol.
type PromptServer interface {
	// ListPrompts returns a paginated list of available prompts.
	// Returns error if operation fails or context is cancelled.
	ListPrompts(context.Context, ListPromptsParams) (ListPromptResult, error)

	// GetPrompt retrieves a specific prompt template by name with the given arguments.
	// Returns error if prompt not found, arguments are invalid, or context is cancelled.
	GetPrompt(context.Context, GetPromptParams) (GetPromptResult, error)
}

// ResourceServer defines the interface for managing resources in the MCP protocol.
type ResourceServer interface {
	// ListResources returns a paginated list of available resources.
	// Returns error if operation fails or context is cancelled.
	ListResources(context.Context, ListResourcesParams) (ListResourcesResult, error)

	// ReadResource retrieves a specific resource by its URI.
	// Returns error if resource not found, cannot be read, or context is cancelled.
	ReadResource(context.Context, ReadResourceParams) (ReadResourceResult, error)

	// ListResourceTemplates returns all available resource templates.
	// Returns error if templates cannot be retrieved or context is cancelled.
	ListResourceTemplates(context.Context, ListResourceTemplatesParams) (ListResourceTemplatesResult, error)
}

// ToolServer defines the interface for managing tools in the MCP protocol.
type ToolServer interface {
	// ListTools returns a paginated list of available tools.
	// Returns error if operation fails or context is cancelled.
	ListTools(context.Context, ListToolsParams) (ListToolsResult, error)

	// CallTool executes a specific tool with the given arguments. Tool-level failures
	// (unknown tool, invalid arguments, execution errors) should be reported inside the
	// returned CallToolResult with IsError set, so they reach the model as content.
	// Returns error only when the result itself cannot be produced.
	CallTool(context.Context, CallToolParams) (CallToolResult, error)
}
