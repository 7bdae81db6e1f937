package conversation

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/seedclaw/seedclaw/internal/llm"
)

var emptyInput = json.RawMessage("{}")

// Serialize renders entries as wire messages. Each maximal run of
// ToolInvocation entries becomes one assistant message of tool_use
// blocks, each run of ToolResult entries one user message of
// tool_result blocks, and every other entry its own plain message.
func Serialize(entries []Entry) []llm.Message {
	msgs := make([]llm.Message, 0, len(entries))
	for i := 0; i < len(entries); {
		switch entries[i].Kind {
		case ToolInvocation:
			msg := llm.Message{Role: llm.RoleAssistant}
			for ; i < len(entries) && entries[i].Kind == ToolInvocation; i++ {
				e := entries[i]
				msg.Blocks = append(msg.Blocks, llm.Block{
					Type:  llm.BlockToolUse,
					ID:    SanitizeUTF8(e.ToolCallID),
					Name:  SanitizeUTF8(e.ToolName),
					Input: decodeInput(e.Text),
				})
			}
			msgs = append(msgs, msg)

		case ToolResult:
			msg := llm.Message{Role: llm.RoleUser}
			for ; i < len(entries) && entries[i].Kind == ToolResult; i++ {
				e := entries[i]
				msg.Blocks = append(msg.Blocks, llm.Block{
					Type:      llm.BlockToolResult,
					ToolUseID: SanitizeUTF8(e.ToolCallID),
					Content:   SanitizeUTF8(e.Text),
				})
			}
			msgs = append(msgs, msg)

		default:
			e := entries[i]
			msgs = append(msgs, llm.Message{Role: e.Role, Text: SanitizeUTF8(e.Text)})
			i++
		}
	}
	return msgs
}

// decodeInput returns the stored input if it is a JSON object, else {}.
func decodeInput(stored string) json.RawMessage {
	clean := SanitizeUTF8(stored)
	var obj map[string]any
	if err := json.Unmarshal([]byte(clean), &obj); err != nil || obj == nil {
		return emptyInput
	}
	return json.RawMessage(clean)
}

// SanitizeUTF8 replaces every byte that is not part of a valid UTF-8
// sequence with '?'. Encoded UTF-16 surrogates (U+D800..U+DFFF) are not
// valid UTF-8, so each of their bytes is replaced too.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteByte('?')
			i++
			continue
		}
		sb.WriteString(s[i : i+size])
		i += size
	}
	return sb.String()
}
