package chat

import (
	"fmt"
	"slices"
)

// Conversation roles as understood by the Ollama chat API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation holds the ordered turns of one chat session, starting with an
// optional system prompt. It grows for the lifetime of the session and is not
// persisted.
type Conversation struct {
	messages []Message
}

// NewConversation creates a conversation, seeded with systemPrompt when it is
// non-empty.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{
			Role:    RoleSystem,
			Content: systemPrompt,
		})
	}
	return c
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(content string) {
	c.messages = append(c.messages, Message{
		Role:    RoleUser,
		Content: content,
	})
}

// AddAssistant appends a model turn.
func (c *Conversation) AddAssistant(content string) {
	c.messages = append(c.messages, Message{
		Role:    RoleAssistant,
		Content: content,
	})
}

// AddToolResult appends the outcome of a tool call as a context turn, so the
// next model query sees what the tool produced.
func (c *Conversation) AddToolResult(tool, content string) {
	c.messages = append(c.messages, Message{
		Role:    RoleTool,
		Content: fmt.Sprintf("Tool '%s' returned:\n%s", tool, content),
	})
}

// Messages returns a copy of the turns in order.
func (c *Conversation) Messages() []Message {
	return slices.Clone(c.messages)
}

// Len returns the number of turns, the system prompt included.
func (c *Conversation) Len() int {
	return len(c.messages)
}
