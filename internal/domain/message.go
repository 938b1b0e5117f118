package domain

import (
	"encoding/json"
	"time"
)

// Role constants for provider message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message exchanged with an LLM provider.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Name      string     `json:"name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChatRequest is sent to an LLM provider.
//
// TopK and TopP are zero when unset. ResponseSchema, when present, asks the
// provider for JSON output matching the schema; providers that cannot enforce
// a schema fall back to plain JSON mode.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Tools          []ToolSchema    `json:"tools,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	TopK           int             `json:"top_k,omitempty"`
	TopP           float64         `json:"top_p,omitempty"`
	JSONOutput     bool            `json:"json_output,omitempty"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
}

// ApplySettings copies generation settings onto the request.
func (r *ChatRequest) ApplySettings(s GenerationSettings) {
	r.Model = s.Model
	r.Temperature = s.Temperature
	r.TopK = s.TopK
	r.TopP = s.TopP
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
