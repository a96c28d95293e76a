package chat_test

import (
	"strings"
	"testing"

	"github.com/wirebird/chatmcp/chat"
)

func TestConversationOrder(t *testing.T) {
	c := chat.NewConversation("Be helpful.")
	c.AddUser("What is 2+2?")
	c.AddAssistant(`{"tool": "calculator", "arguments": {"expression": "2+2"}}`)
	c.AddToolResult("calculator", "Result: 4")
	c.AddAssistant("The answer is 4.")

	msgs := c.Messages()
	wantRoles := []string{
		chat.RoleSystem,
		chat.RoleUser,
		chat.RoleAssistant,
		chat.RoleTool,
		chat.RoleAssistant,
	}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("Expected %d messages, got %d", len(wantRoles), len(msgs))
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("Expected role %q at position %d, got %q", role, i, msgs[i].Role)
		}
	}
	if c.Len() != len(wantRoles) {
		t.Errorf("Expected length %d, got %d", len(wantRoles), c.Len())
	}
}

func TestConversationWithoutSystemPrompt(t *testing.T) {
	c := chat.NewConversation("")
	if c.Len() != 0 {
		t.Fatalf("Expected empty conversation, got %d messages", c.Len())
	}

	c.AddUser("Hi")
	if msgs := c.Messages(); msgs[0].Role != chat.RoleUser {
		t.Errorf("Expected user turn first, got %q", msgs[0].Role)
	}
}

func TestConversationToolResultFraming(t *testing.T) {
	c := chat.NewConversation("")
	c.AddToolResult("system_time", "Current time: 2026-01-02 15:04:05")

	msg := c.Messages()[0]
	if msg.Role != chat.RoleTool {
		t.Errorf("Expected tool role, got %q", msg.Role)
	}
	if !strings.Contains(msg.Content, "system_time") {
		t.Errorf("Expected tool name in content, got %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "Current time: 2026-01-02 15:04:05") {
		t.Errorf("Expected tool output in content, got %q", msg.Content)
	}
}

func TestConversationMessagesIsACopy(t *testing.T) {
	c := chat.NewConversation("Be helpful.")
	c.AddUser("Hi")

	msgs := c.Messages()
	msgs[0].Content = "overwritten"

	if got := c.Messages()[0].Content; got != "Be helpful." {
		t.Errorf("Expected internal state untouched, got %q", got)
	}
}
