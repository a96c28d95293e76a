package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/wirebird/chatmcp"
)

type mockPromptServer struct {
	lock       sync.Mutex
	listParams mcp.ListPromptsParams
	getParams  mcp.GetPromptParams
}

type mockResourceServer struct {
	lock                sync.Mutex
	listParams          mcp.ListResourcesParams
	readParams          mcp.ReadResourceParams
	listTemplatesParams mcp.ListResourceTemplatesParams
}

type mockToolServer struct {
	lock       sync.Mutex
	listParams mcp.ListToolsParams
	callParams mcp.CallToolParams

	failCall bool
}

func (m *mockPromptServer) ListPrompts(
	_ context.Context,
	params mcp.ListPromptsParams,
) (mcp.ListPromptResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listParams = params

	return mcp.ListPromptResult{
		Prompts: []mcp.Prompt{
			{Name: "test-prompt", Description: "A prompt for testing"},
		},
	}, nil
}

func (m *mockPromptServer) GetPrompt(
	_ context.Context,
	params mcp.GetPromptParams,
) (mcp.GetPromptResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.getParams = params

	return mcp.GetPromptResult{
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.Content{
					Type: mcp.ContentTypeText,
					Text: "Hello from the prompt",
				},
			},
		},
	}, nil
}

func (m *mockResourceServer) ListResources(
	_ context.Context,
	params mcp.ListResourcesParams,
) (mcp.ListResourcesResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listParams = params

	return mcp.ListResourcesResult{
		Resources: []mcp.Resource{
			{URI: "test://resource", Name: "Test Resource", MimeType: "text/plain"},
		},
	}, nil
}

func (m *mockResourceServer) ReadResource(
	_ context.Context,
	params mcp.ReadResourceParams,
) (mcp.ReadResourceResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.readParams = params

	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			{URI: params.URI, MimeType: "text/plain", Text: "resource body"},
		},
	}, nil
}

func (m *mockResourceServer) ListResourceTemplates(
	_ context.Context,
	params mcp.ListResourceTemplatesParams,
) (mcp.ListResourceTemplatesResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listTemplatesParams = params

	return mcp.ListResourceTemplatesResult{
		Templates: []mcp.ResourceTemplate{
			{URITemplate: "test://{name}", Name: "Test Template"},
		},
	}, nil
}

func (m *mockToolServer) ListTools(
	_ context.Context,
	params mcp.ListToolsParams,
) (mcp.ListToolsResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listParams = params

	return mcp.ListToolsResult{
		Tools: []mcp.Tool{
			{
				Name:        "test-tool",
				Description: "A tool for testing",
				InputSchema: json.RawMessage(`{"type":"object"}`),
			},
		},
	}, nil
}

func (m *mockToolServer) CallTool(
	_ context.Context,
	params mcp.CallToolParams,
) (mcp.CallToolResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.callParams = params

	if m.failCall {
		return mcp.CallToolResult{}, errors.New("tool call failed")
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{Type: mcp.ContentTypeText, Text: "done"},
		},
	}, nil
}
