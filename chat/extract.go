// Package chat implements the terminal front-end of the system: an Ollama
// API client, tolerant extraction of tool invocations from model output, the
// conversation log, and the interactive session loop that ties them to a
// tool server over the Model Context Protocol.
package chat

import (
	"encoding/json"
	"strings"
)

// ToolCall is a tool invocation extracted from model output.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ExtractResult is the outcome of scanning model output: either a structured
// invocation or plain prose. Call is non-nil only when a well-formed
// invocation was found; otherwise Text carries the trimmed output.
type ExtractResult struct {
	Call *ToolCall
	Text string
}

// Extract scans model output for a tool invocation: a JSON object with a
// "tool" string and an "arguments" object, either as the whole message,
// inside a fenced code block, or embedded in surrounding prose. Anything
// that does not parse as an invocation is treated as a final answer, never
// as an error.
func Extract(text string) ExtractResult {
	trimmed := strings.TrimSpace(text)

	if call := parseToolCall(trimmed); call != nil {
		return ExtractResult{Call: call}
	}
	for _, block := range fencedBlocks(trimmed) {
		if call := parseToolCall(block); call != nil {
			return ExtractResult{Call: call}
		}
	}
	for _, span := range balancedObjects(trimmed) {
		if call := parseToolCall(span); call != nil {
			return ExtractResult{Call: call}
		}
	}

	return ExtractResult{Text: trimmed}
}

func parseToolCall(s string) *ToolCall {
	var raw struct {
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}
	if raw.Tool == "" {
		return nil
	}

	args := raw.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return &ToolCall{
		Name:      raw.Tool,
		Arguments: args,
	}
}

// fencedBlocks returns the contents of every ``` fenced block, language tags
// stripped.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		rest = rest[start+3:]

		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		block := strings.TrimSpace(rest[:end])
		rest = rest[end+3:]

		if !strings.HasPrefix(block, "{") {
			nl := strings.IndexByte(block, '\n')
			if nl < 0 {
				continue
			}
			block = strings.TrimSpace(block[nl+1:])
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// balancedObjects returns every balanced {...} span of the text in order of
// its opening brace, string literals respected.
func balancedObjects(text string) []string {
	var spans []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if end := matchBrace(text, i); end > i {
			spans = append(spans, text[i:end+1])
		}
	}
	return spans
}

// matchBrace returns the index of the brace closing the one at start, or -1
// when the text ends before it balances.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
