// Package toolbox implements the tool server side of the chat system: a
// registry of schema-validated tools with a fixed bundled set (arithmetic,
// file access, clock), plus the static resources and prompts the server
// exposes alongside them.
//
// Tools are registered before serving starts and the registry is immutable
// afterwards, so dispatching needs no locking. Every failure mode of a
// dispatch (unknown name, rejected arguments, handler error) is folded into
// the returned result with IsError set, so the outcome always reaches the
// model as content instead of breaking the protocol exchange.
package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/qri-io/jsonschema"
	"github.com/wirebird/chatmcp"
)

var (
	// ErrDuplicateTool is returned by Register when the tool name is already taken.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrUnknownTool reports a dispatch to a name no tool is registered under.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments reports arguments rejected by the tool's input schema.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Handler executes a tool call. The arguments have already been validated
// against the tool's input schema. The returned string becomes the text
// payload of the result; a non-nil error marks the result as failed.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool describes a single registered tool: the wire-visible descriptor and the
// handler that executes it. InputSchema must hold a valid JSON Schema
// document; it is compiled at registration and served verbatim to clients.
type Tool struct {
	Name        string
	Description string
	InputSchema []byte
	Handler     Handler
}

// Registry holds the fixed mapping from tool name to executable behavior and
// parameter contract.
type Registry struct {
	tools map[string]registeredTool
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]registeredTool),
	}
}

// Register adds a tool to the registry. It returns ErrDuplicateTool if the
// name is already registered, or an error if the input schema does not
// compile.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}
	if _, ok := r.tools[tool.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
	}

	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(tool.InputSchema, schema); err != nil {
		return fmt.Errorf("failed to compile input schema for tool %s: %w", tool.Name, err)
	}

	r.tools[tool.Name] = registeredTool{
		tool:   tool,
		schema: schema,
	}
	return nil
}

// Tools returns the wire descriptors of every registered tool, sorted by name.
func (r *Registry) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		tools = append(tools, mcp.Tool{
			Name:        rt.tool.Name,
			Description: rt.tool.Description,
			InputSchema: json.RawMessage(rt.tool.InputSchema),
		})
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools
}

// Dispatch executes the named tool with the given raw arguments. Failures are
// folded into the returned result with IsError set: unknown names, arguments
// rejected by the tool's schema, and handler errors all produce a text message
// instead of a Go error, so the caller can feed the outcome back to the model.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) mcp.CallToolResult {
	res, err := r.call(ctx, name, args)
	if err != nil {
		return mcp.CallToolResult{
			Content: []mcp.Content{
				{
					Type: mcp.ContentTypeText,
					Text: err.Error(),
				},
			},
			IsError: true,
		}
	}
	return res
}

func (r *Registry) call(ctx context.Context, name string, args json.RawMessage) (mcp.CallToolResult, error) {
	rt, ok := r.tools[name]
	if !ok {
		return mcp.CallToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	arguments := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return mcp.CallToolResult{}, fmt.Errorf("%w: %s", ErrInvalidArguments, err)
		}
	}

	vs := rt.schema.Validate(ctx, arguments)
	errs := *vs.Errs
	if len(errs) > 0 {
		var errStr []string
		for _, err := range errs {
			errStr = append(errStr, err.Message)
		}
		return mcp.CallToolResult{}, fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(errStr, ", "))
	}

	text, err := rt.tool.Handler(ctx, arguments)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: text,
			},
		},
		IsError: false,
	}, nil
}
