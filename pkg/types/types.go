// Package types defines the canonical request/response shapes shared across
// the gateway. Provider-specific wire formats are translated to and from
// these types at the edges.
package types

import "github.com/goccy/go-json"

// ChatMessage is a single message in a chat completion request.
// Content is kept raw because providers accept both plain strings and
// structured content parts.
type ChatMessage struct {
	Role       string          `json:"role"`
	Name       string          `json:"name,omitempty"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ChatRequest is the canonical chat completion request.
type ChatRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// Usage reports token consumption for a completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TextMessage builds a ChatMessage with plain string content.
func TextMessage(role, text string) ChatMessage {
	raw, _ := json.Marshal(text)
	return ChatMessage{Role: role, Content: raw}
}
