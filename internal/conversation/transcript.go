// Package conversation holds the agent's bounded transcript and renders
// it into Messages API wire messages.
//
// The transcript has a fixed capacity. It is trimmed from the oldest end
// two entries at a time and never begins with a tool invocation or tool
// result, so every tool_result sent to the backend has its tool_use in
// the same request.
package conversation

import (
	"unicode/utf8"

	"github.com/seedclaw/seedclaw/internal/llm"
)

// Field bounds, in bytes.
const (
	MaxEntryText  = 1024
	MaxToolCallID = 32
	MaxToolName   = 20
)

// DefaultCapacity holds three plain exchanges plus one full tool round.
const DefaultCapacity = 3*2 + 6

// Kind classifies a transcript entry.
type Kind int

const (
	PlainText Kind = iota
	ToolInvocation
	ToolResult
)

func (k Kind) String() string {
	switch k {
	case PlainText:
		return "text"
	case ToolInvocation:
		return "tool_use"
	case ToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Entry is one transcript turn. For ToolInvocation entries Text holds
// the call's JSON input; for ToolResult entries it holds the result.
type Entry struct {
	Role       string
	Text       string
	ToolCallID string
	ToolName   string
	Kind       Kind
}

// UserText returns a PlainText user entry.
func UserText(text string) Entry {
	return Entry{Role: llm.RoleUser, Text: clip(text, MaxEntryText), Kind: PlainText}
}

// AssistantText returns a PlainText assistant entry.
func AssistantText(text string) Entry {
	return Entry{Role: llm.RoleAssistant, Text: clip(text, MaxEntryText), Kind: PlainText}
}

// Invocation records a tool call requested by the model.
func Invocation(id, name, input string) Entry {
	return Entry{
		Role:       llm.RoleAssistant,
		Text:       clip(input, MaxEntryText),
		ToolCallID: clip(id, MaxToolCallID),
		ToolName:   clip(name, MaxToolName),
		Kind:       ToolInvocation,
	}
}

// Result records the outcome of the tool call with the given id.
func Result(id, name, output string) Entry {
	return Entry{
		Role:       llm.RoleUser,
		Text:       clip(output, MaxEntryText),
		ToolCallID: clip(id, MaxToolCallID),
		ToolName:   clip(name, MaxToolName),
		Kind:       ToolResult,
	}
}

// Transcript is a fixed-capacity, ordered sequence of entries. It is
// not safe for concurrent use; the agent loop serializes access.
type Transcript struct {
	entries  []Entry
	capacity int
}

// NewTranscript returns an empty transcript. Capacities below 3 are
// raised to 3 so a request with one tool call always fits.
func NewTranscript(capacity int) *Transcript {
	if capacity < 3 {
		capacity = 3
	}
	return &Transcript{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Capacity returns the maximum number of entries.
func (t *Transcript) Capacity() int { return t.capacity }

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }

// Entries returns a copy of the entries, oldest first.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Reset empties the transcript.
func (t *Transcript) Reset() {
	clear(t.entries)
	t.entries = t.entries[:0]
}

// Reserve trims the oldest entries until n more fit, then strips any
// entry that no longer starts a coherent conversation.
func (t *Transcript) Reserve(n int) {
	for len(t.entries)+n > t.capacity && len(t.entries) > 0 {
		drop := 2
		if len(t.entries) < 2 {
			drop = 1
		}
		t.dropFront(drop)
	}
	t.stripLeading()
}

// Append adds e, trimming first if the transcript is full. The
// transcript must open with a user message, so a tool entry or an
// assistant reply that would land at the head is dropped, along with
// anything else left without a leading user message. Tool rounds
// belong in AppendRound, which keeps invocations and results paired.
func (t *Transcript) Append(e Entry) {
	t.Reserve(1)
	t.entries = append(t.entries, e)
	t.stripLeading()
}

// AppendRound records one tool round: every invocation, then every
// result, in call order. Room for the whole round is reserved up front
// so trimming can never separate a result from its invocation.
//
// anchor is the user message that started the current request. If
// trimming evicted it, the round is re-anchored on it so the
// transcript still opens with a user turn. invocations and results
// must be the same length; a round is cut to what fits beside the
// anchor.
func (t *Transcript) AppendRound(anchor Entry, invocations, results []Entry) {
	n := min(len(invocations), len(results))
	if limit := (t.capacity - 1) / 2; n > limit {
		n = limit
	}
	t.Reserve(2 * n)
	if len(t.entries) == 0 {
		t.entries = append(t.entries, anchor)
	}
	t.entries = append(t.entries, invocations[:n]...)
	t.entries = append(t.entries, results[:n]...)
}

func (t *Transcript) dropFront(n int) {
	k := copy(t.entries, t.entries[n:])
	clear(t.entries[k:])
	t.entries = t.entries[:k]
}

// stripLeading removes leading tool entries, whose partners are gone,
// and a leading assistant reply, which the backend rejects as a first
// message.
func (t *Transcript) stripLeading() {
	i := 0
	for i < len(t.entries) {
		e := t.entries[i]
		if e.Kind == PlainText && e.Role == llm.RoleUser {
			break
		}
		i++
	}
	if i > 0 {
		t.dropFront(i)
	}
}

// clip bounds s to n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
