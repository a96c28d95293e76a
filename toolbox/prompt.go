package toolbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/wirebird/chatmcp"
)

var greetingStyles = map[string]string{
	"friendly": "Please write a warm, friendly greeting",
	"formal":   "Please write a formal, professional greeting",
	"casual":   "Please write a casual, relaxed greeting",
}

// ListPrompts implements mcp.PromptServer interface.
func (s Server) ListPrompts(context.Context, mcp.ListPromptsParams) (mcp.ListPromptResult, error) {
	return mcp.ListPromptResult{
		Prompts: []mcp.Prompt{
			{
				Name:        "greet_user",
				Description: "Generate a greeting prompt",
				Arguments: []mcp.PromptArgument{
					{
						Name:        "name",
						Description: "Name of the person to greet",
						Required:    true,
					},
					{
						Name:        "style",
						Description: "Greeting style: friendly, formal or casual",
						Required:    false,
					},
				},
			},
		},
	}, nil
}

// GetPrompt implements mcp.PromptServer interface. Unknown styles fall back
// to the friendly one.
func (s Server) GetPrompt(_ context.Context, params mcp.GetPromptParams) (mcp.GetPromptResult, error) {
	if params.Name != "greet_user" {
		return mcp.GetPromptResult{}, fmt.Errorf("prompt not found: %s", params.Name)
	}

	name := params.Arguments["name"]
	if name == "" {
		return mcp.GetPromptResult{}, errors.New("argument name is required")
	}

	style, ok := greetingStyles[params.Arguments["style"]]
	if !ok {
		style = greetingStyles["friendly"]
	}

	return mcp.GetPromptResult{
		Description: "Greeting prompt",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.Content{
					Type: mcp.ContentTypeText,
					Text: fmt.Sprintf("%s for someone named %s.", style, name),
				},
			},
		},
	}, nil
}
