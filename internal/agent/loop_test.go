package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/seedclaw/seedclaw/internal/conversation"
	"github.com/seedclaw/seedclaw/internal/hardware"
	"github.com/seedclaw/seedclaw/internal/llm"
	"github.com/seedclaw/seedclaw/internal/prompts"
	"github.com/seedclaw/seedclaw/internal/tools"
	"github.com/seedclaw/seedclaw/internal/usage"
)

// scriptedLLM replays canned responses and keeps every request.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []*llm.Response
	err      error
	requests []*llm.Request
}

func (s *scriptedLLM) Exchange(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, &llm.ExchangeError{Diagnostic: "script exhausted"}
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func text(s string) *llm.Response {
	return &llm.Response{Kind: llm.KindText, Text: s, StopReason: "end_turn", InputTokens: 10, OutputTokens: 2}
}

func toolUse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{Kind: llm.KindToolUse, ToolCalls: calls, StopReason: "tool_use", InputTokens: 10, OutputTokens: 5}
}

func callOf(id, name, input string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}
}

type fakeUsage struct {
	recs []usage.Record
}

func (f *fakeUsage) Record(_ context.Context, rec usage.Record) error {
	f.recs = append(f.recs, rec)
	return nil
}

type fixture struct {
	loop  *Loop
	llm   *scriptedLLM
	convs *conversation.Store
	board *hardware.Board
	usage *fakeUsage
	calls map[string]int
}

func newFixture(t *testing.T, replies ...*llm.Response) *fixture {
	t.Helper()
	f := &fixture{
		llm:   &scriptedLLM{replies: replies},
		convs: conversation.NewStore(conversation.DefaultCapacity),
		board: hardware.NewBoard(hardware.BoardConfig{
			AllowedPins:    []int{2, 3, 4, 5, 6},
			ADCPins:        []int{2, 3, 4},
			MaxPWMChannels: 6,
		}, nil),
		usage: &fakeUsage{},
		calls: make(map[string]int),
	}

	reg := tools.NewRegistry(nil)
	if err := tools.RegisterHardware(reg, f.board, 1000); err != nil {
		t.Fatal(err)
	}
	err := reg.Register(&tools.Tool{
		Name: "count",
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			f.calls["count"]++
			return `{"ok":true}`, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	f.loop = NewLoop(nil, f.llm, reg, f.convs, Config{MaxToolCalls: 5, MinFreeMemory: 40000})
	f.loop.SetMemoryProbe(MemoryFunc(func() uint64 { return 1 << 30 }))
	f.loop.SetUsageRecorder(f.usage)
	return f
}

func TestRunTextReply(t *testing.T) {
	f := newFixture(t, text("Hello!"))

	resp := f.loop.Run(context.Background(), "hi")

	if resp.Content != "Hello!" || resp.FinishReason != FinishStop || resp.Rounds != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	entries := f.convs.Primary().Entries()
	if len(entries) != 2 || entries[0].Text != "hi" || entries[1].Text != "Hello!" {
		t.Fatalf("transcript = %+v", entries)
	}
	req := f.llm.requests[0]
	if req.System != prompts.DefaultSystem {
		t.Errorf("system prompt not sent")
	}
	if len(req.Tools) != 6 {
		t.Errorf("len(Tools) = %d, want 6", len(req.Tools))
	}
	if len(f.usage.recs) != 1 || f.usage.recs[0].Role != usage.RoleInteractive || f.usage.recs[0].RequestID != resp.RequestID {
		t.Errorf("usage = %+v", f.usage.recs)
	}
}

func TestRunGPIORead(t *testing.T) {
	f := newFixture(t,
		toolUse(callOf("toolu_01", "gpio_read", `{"pin":5}`)),
		text("GPIO5 is HIGH."),
	)
	if err := f.board.SetInput(5, 1); err != nil {
		t.Fatal(err)
	}

	resp := f.loop.Run(context.Background(), "Read GPIO5")

	if resp.Content != "GPIO5 is HIGH." || resp.Rounds != 2 || resp.ToolsUsed["gpio_read"] != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.InputTokens != 20 || resp.OutputTokens != 7 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	msgs := f.llm.requests[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(msgs))
	}
	if msgs[0].Role != llm.RoleUser || msgs[0].Text != "Read GPIO5" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	use := msgs[1].Blocks
	if msgs[1].Role != llm.RoleAssistant || len(use) != 1 || use[0].Type != llm.BlockToolUse || use[0].Name != "gpio_read" || use[0].ID != "toolu_01" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
	res := msgs[2].Blocks
	if msgs[2].Role != llm.RoleUser || len(res) != 1 || res[0].ToolUseID != "toolu_01" || !strings.Contains(res[0].Content, `"state":"HIGH"`) {
		t.Errorf("msgs[2] = %+v", msgs[2])
	}

	entries := f.convs.Primary().Entries()
	kinds := make([]conversation.Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	want := []conversation.Kind{conversation.PlainText, conversation.ToolInvocation, conversation.ToolResult, conversation.PlainText}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("transcript kinds = %v, want %v", kinds, want)
	}
}

func TestRunClampsToolCalls(t *testing.T) {
	var calls []llm.ToolCall
	for i := range 7 {
		calls = append(calls, callOf(fmt.Sprintf("c%d", i), "count", `{}`))
	}
	f := newFixture(t, toolUse(calls...), text("unreachable"))

	resp := f.loop.Run(context.Background(), "do many things")

	if f.calls["count"] != 5 {
		t.Errorf("executed %d calls, want 5", f.calls["count"])
	}
	if resp.Content != prompts.BudgetExhausted || resp.FinishReason != FinishBudget {
		t.Errorf("resp = %+v", resp)
	}
	if len(f.llm.requests) != 1 {
		t.Errorf("exchanges = %d, want 1", len(f.llm.requests))
	}
	entries := f.convs.Primary().Entries()
	if len(entries) != 11 {
		t.Fatalf("transcript len = %d, want 11", len(entries))
	}
	for i, e := range entries[1:6] {
		if e.Kind != conversation.ToolInvocation || e.ToolCallID != fmt.Sprintf("c%d", i) {
			t.Errorf("entry %d = %+v", i+1, e)
		}
	}
	for i, e := range entries[6:] {
		if e.Kind != conversation.ToolResult || e.ToolCallID != fmt.Sprintf("c%d", i) {
			t.Errorf("entry %d = %+v", i+6, e)
		}
	}
}

func TestRunBudgetAcrossRounds(t *testing.T) {
	var replies []*llm.Response
	for i := range 6 {
		replies = append(replies, toolUse(callOf(fmt.Sprintf("r%d", i), "count", `{}`)))
	}
	f := newFixture(t, replies...)

	resp := f.loop.Run(context.Background(), "loop forever")

	if resp.FinishReason != FinishBudget || resp.Rounds != 5 || len(f.llm.requests) != 5 {
		t.Errorf("resp = %+v, exchanges = %d", resp, len(f.llm.requests))
	}
	if first := f.convs.Primary().Entries()[0]; first.Kind != conversation.PlainText || first.Text != "loop forever" {
		t.Errorf("transcript should still start with the request, got %+v", first)
	}
}

func TestRunExchangeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"diagnostic", &llm.ExchangeError{StatusCode: 500, Diagnostic: "LLM API error (HTTP 500): boom"}, "LLM API error (HTTP 500): boom"},
		{"no diagnostic", &llm.ExchangeError{StatusCode: 200, Err: fmt.Errorf("decode response")}, prompts.ExchangeFailed},
		{"plain error", fmt.Errorf("wires crossed"), prompts.ExchangeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.llm.err = tt.err

			resp := f.loop.Run(context.Background(), "hi")

			if resp.Content != tt.want || resp.FinishReason != FinishError {
				t.Errorf("resp = %+v", resp)
			}
			if len(f.usage.recs) != 0 {
				t.Errorf("failed exchange recorded usage")
			}
		})
	}
}

func TestRunLowMemoryReseeds(t *testing.T) {
	f := newFixture(t,
		toolUse(callOf("a1", "count", `{}`)), text("first"),
		text("second"),
		text("third"),
	)
	free := uint64(1 << 30)
	f.loop.SetMemoryProbe(MemoryFunc(func() uint64 { return free }))

	f.loop.Run(context.Background(), "one")
	f.loop.Run(context.Background(), "two")
	if n := f.convs.Primary().Len(); n != 6 {
		t.Fatalf("Len before reseed = %d, want 6", n)
	}

	free = 1000
	resp := f.loop.Run(context.Background(), "three")

	if resp.Content != "third" || resp.FinishReason != FinishStop {
		t.Fatalf("resp = %+v", resp)
	}
	msgs := f.llm.requests[len(f.llm.requests)-1].Messages
	if len(msgs) != 1 || msgs[0].Text != "three" {
		t.Fatalf("reseeded request = %+v", msgs)
	}
	entries := f.convs.Primary().Entries()
	if len(entries) != 2 || entries[0].Text != "three" || entries[1].Text != "third" {
		t.Errorf("transcript = %+v", entries)
	}
}

func TestRunToolUseWithoutCalls(t *testing.T) {
	f := newFixture(t, toolUse(), toolUse(), toolUse())

	resp := f.loop.Run(context.Background(), "hi")

	if resp.FinishReason != FinishError || resp.Content != prompts.MissingToolCalls {
		t.Fatalf("resp = %+v", resp)
	}
	if n := len(f.llm.requests); n != 1 {
		t.Errorf("exchanges = %d, want 1", n)
	}
	entries := f.convs.Primary().Entries()
	if len(entries) != 1 || entries[0].Text != "hi" {
		t.Errorf("transcript = %+v", entries)
	}
}

func TestRunIsolatedLeavesPrimary(t *testing.T) {
	f := newFixture(t, text("hello"), toolUse(callOf("a1", "count", `{}`)), text("No change"))

	f.loop.Run(context.Background(), "hi")
	before := f.convs.Primary().Entries()

	resp := f.loop.RunIsolated(context.Background(), "check the rules")

	if resp.Content != "No change" {
		t.Fatalf("resp = %+v", resp)
	}
	if f.convs.Swapped() {
		t.Error("store still swapped after isolated run")
	}
	after := f.convs.Primary().Entries()
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("primary changed: %+v -> %+v", before, after)
	}
	if msgs := f.llm.requests[1].Messages; len(msgs) != 1 || msgs[0].Text != "check the rules" {
		t.Errorf("isolated run saw history: %+v", msgs)
	}
	last := f.usage.recs[len(f.usage.recs)-1]
	if last.Role != usage.RoleAutonomous {
		t.Errorf("isolated usage role = %q", last.Role)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t, text("hello"))
	f.loop.Run(context.Background(), "hi")
	f.loop.Reset()
	if n := f.convs.Primary().Len(); n != 0 {
		t.Errorf("Len() after Reset = %d", n)
	}
}

func TestSystemPromptIsLive(t *testing.T) {
	f := newFixture(t, text("a"), text("b"))
	prompt := "first prompt"
	f.loop.SetSystemPrompt(func() string { return prompt })

	f.loop.Run(context.Background(), "x")
	prompt = "second prompt"
	f.loop.Run(context.Background(), "y")

	if f.llm.requests[0].System != "first prompt" || f.llm.requests[1].System != "second prompt" {
		t.Errorf("system prompts = %q, %q", f.llm.requests[0].System, f.llm.requests[1].System)
	}
}
