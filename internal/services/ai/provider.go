package ai

import (
	"context"
	"strings"
)

// Message roles understood by the chat interface.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Stop reasons reported by CompleteWithTools.
const (
	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
)

// NoTextFallback is returned by AllText when a response carries no
// non-empty text blocks.
const NoTextFallback = "(no response text)"

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ToolSpec describes a callable tool: name, natural-language
// description, and a JSON-schema-shaped input spec.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatMessage is one entry in a tool-calling conversation. Assistant
// messages may carry the tool calls they issued; tool messages carry
// the id of the call they answer.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatResult is the model's reply for one turn.
type ChatResult struct {
	TextBlocks []string
	ToolCalls  []ToolCall
	StopReason string
}

// FirstText returns the first non-empty text block, or "" if none.
// Used where partial output is not meaningful on its own.
func (r *ChatResult) FirstText() string {
	for _, t := range r.TextBlocks {
		if strings.TrimSpace(t) != "" {
			return t
		}
	}
	return ""
}

// AllText joins every non-empty text block with newlines, falling back
// to a fixed phrase when there is no text at all.
func (r *ChatResult) AllText() string {
	var parts []string
	for _, t := range r.TextBlocks {
		if strings.TrimSpace(t) != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return NoTextFallback
	}
	return strings.Join(parts, "\n")
}

// LanguageModel is the capability consumed by the agent loop, the
// classification engine, and the maintenance engine. Implementations
// wrap transient rate-limit failures in a single bounded retry.
type LanguageModel interface {
	// Complete sends a system instruction and one user prompt and
	// returns the response text. Used with JSON-only prompts.
	Complete(ctx context.Context, system, prompt string) (string, error)

	// CompleteWithTools drives one turn of a tool-calling exchange.
	CompleteWithTools(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResult, error)

	// Embed returns the embedding vector for a text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// DescribeImage returns a textual description of an image.
	DescribeImage(ctx context.Context, imageURL, prompt string) (string, error)
}
