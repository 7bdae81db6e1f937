package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Roles used on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Message is one wire message. When Blocks is empty the content is
// sent as the plain string Text; otherwise it is the block list.
type Message struct {
	Role   string
	Text   string
	Blocks []Block
}

// MarshalJSON renders the Messages API shape.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}
	if len(m.Blocks) > 0 {
		return json.Marshal(wire{Role: m.Role, Content: m.Blocks})
	}
	return json.Marshal(wire{Role: m.Role, Content: m.Text})
}

// Block is a content block in a request or response.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// ToolSchema describes a tool the model may call.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is one outbound exchange.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSchema
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ResponseKind tells the agent loop what the model asked for.
type ResponseKind int

const (
	// KindText is a final natural-language answer.
	KindText ResponseKind = iota
	// KindToolUse carries one or more tool calls.
	KindToolUse
)

func (k ResponseKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolUse:
		return "tool_use"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(k))
	}
}

// Response is a successful exchange.
type Response struct {
	Kind      ResponseKind
	Text      string
	ToolCalls []ToolCall

	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// ExchangeError is a failed exchange. Diagnostic is user-facing and
// may be empty, in which case the caller picks a generic message.
type ExchangeError struct {
	StatusCode int
	Diagnostic string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm exchange failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm exchange failed (status %d): %s", e.StatusCode, e.Diagnostic)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
