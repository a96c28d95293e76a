package toolbox

import (
	"context"
	"testing"

	"github.com/wirebird/chatmcp"
)

func TestListPrompts(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	res, err := s.ListPrompts(context.Background(), mcp.ListPromptsParams{})
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if len(res.Prompts) != 1 {
		t.Fatalf("Expected 1 prompt, got %d", len(res.Prompts))
	}

	prompt := res.Prompts[0]
	if prompt.Name != "greet_user" {
		t.Errorf("Expected greet_user, got %q", prompt.Name)
	}
	if len(prompt.Arguments) != 2 {
		t.Fatalf("Expected 2 arguments, got %d", len(prompt.Arguments))
	}
	if prompt.Arguments[0].Name != "name" || !prompt.Arguments[0].Required {
		t.Errorf("Expected required name argument, got %+v", prompt.Arguments[0])
	}
	if prompt.Arguments[1].Name != "style" || prompt.Arguments[1].Required {
		t.Errorf("Expected optional style argument, got %+v", prompt.Arguments[1])
	}
}

func TestGetPrompt(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	tests := []struct {
		name  string
		style string
		want  string
	}{
		{
			name: "default style",
			want: "Please write a warm, friendly greeting for someone named Alice.",
		},
		{
			name:  "formal style",
			style: "formal",
			want:  "Please write a formal, professional greeting for someone named Alice.",
		},
		{
			name:  "casual style",
			style: "casual",
			want:  "Please write a casual, relaxed greeting for someone named Alice.",
		},
		{
			name:  "unknown style falls back to friendly",
			style: "sarcastic",
			want:  "Please write a warm, friendly greeting for someone named Alice.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]string{"name": "Alice"}
			if tt.style != "" {
				args["style"] = tt.style
			}

			res, err := s.GetPrompt(context.Background(), mcp.GetPromptParams{
				Name:      "greet_user",
				Arguments: args,
			})
			if err != nil {
				t.Fatalf("GetPrompt failed: %v", err)
			}
			if len(res.Messages) != 1 {
				t.Fatalf("Expected 1 message, got %d", len(res.Messages))
			}

			msg := res.Messages[0]
			if msg.Role != mcp.RoleUser {
				t.Errorf("Expected user role, got %q", msg.Role)
			}
			if msg.Content.Text != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, msg.Content.Text)
			}
		})
	}
}

func TestGetPromptMissingName(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	_, err := s.GetPrompt(context.Background(), mcp.GetPromptParams{Name: "greet_user"})
	if err == nil {
		t.Error("Expected error for missing name argument, got none")
	}
}

func TestGetPromptUnknown(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	_, err := s.GetPrompt(context.Background(), mcp.GetPromptParams{
		Name:      "nonexistent",
		Arguments: map[string]string{"name": "Alice"},
	})
	if err == nil {
		t.Error("Expected error for unknown prompt, got none")
	}
}
