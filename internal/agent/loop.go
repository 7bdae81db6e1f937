// Package agent runs the tool-calling loop that turns one chat message
// into one reply, and the monitor that periodically runs it against
// the autonomous rules.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seedclaw/seedclaw/internal/conversation"
	"github.com/seedclaw/seedclaw/internal/llm"
	"github.com/seedclaw/seedclaw/internal/prompts"
	"github.com/seedclaw/seedclaw/internal/usage"
)

// Finish reasons.
const (
	FinishStop   = "stop"
	FinishBudget = "budget"
	FinishError  = "error"
)

// ToolRunner is the tool surface the loop drives.
type ToolRunner interface {
	Schemas() []llm.ToolSchema
	Execute(ctx context.Context, call llm.ToolCall) string
}

// UsageRecorder receives one record per successful exchange.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Response is the outcome of one run.
type Response struct {
	RequestID    string         `json:"request_id"`
	Content      string         `json:"content"`
	Model        string         `json:"model,omitempty"`
	FinishReason string         `json:"finish_reason"`
	Rounds       int            `json:"rounds"`
	ToolsUsed    map[string]int `json:"tools_used,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Elapsed      time.Duration  `json:"elapsed"`
}

// Config bounds a Loop.
type Config struct {
	// MaxToolCalls is the per-request step budget and the per-round
	// cap on executed calls.
	MaxToolCalls int
	// MinFreeMemory is the free-memory floor, in bytes, below which the
	// transcript is reseeded with just the current message.
	MinFreeMemory uint64
}

// Loop is the agent. Runs, isolated runs and resets are serialized.
type Loop struct {
	logger *slog.Logger
	llm    llm.Exchanger
	tools  ToolRunner
	convs  *conversation.Store
	cfg    Config

	memory MemoryProbe
	usage  UsageRecorder
	system func() string

	mu sync.Mutex
}

// NewLoop creates a loop. Zero Config fields take the defaults.
func NewLoop(logger *slog.Logger, exchanger llm.Exchanger, tools ToolRunner, convs *conversation.Store, cfg Config) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = 5
	}
	return &Loop{
		logger: logger,
		llm:    exchanger,
		tools:  tools,
		convs:  convs,
		cfg:    cfg,
		memory: NewRuntimeProbe(0),
		system: func() string { return prompts.DefaultSystem },
	}
}

// SetMemoryProbe replaces the free-memory source.
func (l *Loop) SetMemoryProbe(p MemoryProbe) { l.memory = p }

// SetUsageRecorder enables the token ledger.
func (l *Loop) SetUsageRecorder(u UsageRecorder) { l.usage = u }

// SetSystemPrompt sets the source of the system prompt, read at every
// exchange so runtime edits apply to the next round.
func (l *Loop) SetSystemPrompt(f func() string) { l.system = f }

// Run answers one user message against the primary transcript.
func (l *Loop) Run(ctx context.Context, message string) *Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run(ctx, message, usage.RoleInteractive)
}

// RunIsolated answers prompt against an empty scratch transcript. The
// primary transcript is untouched and nothing from the run is kept.
func (l *Loop) RunIsolated(ctx context.Context, prompt string) *Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	restore := l.convs.ScopedSwap()
	defer restore()
	return l.run(ctx, prompt, usage.RoleAutonomous)
}

// Reset clears the primary transcript.
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.convs.Primary().Reset()
	l.logger.Info("conversation history cleared")
}

func (l *Loop) run(ctx context.Context, message, role string) *Response {
	start := time.Now()
	resp := &Response{RequestID: newRequestID(), ToolsUsed: make(map[string]int)}
	log := l.logger.With("request_id", resp.RequestID, "role", role)
	defer func() { resp.Elapsed = time.Since(start) }()

	t := l.convs.Current()
	anchor := conversation.UserText(message)
	t.Append(anchor)

	log.Info("agent loop started", "message_len", len(message), "history", t.Len())

	for steps := 0; steps < l.cfg.MaxToolCalls; {
		resp.Rounds++

		if free := l.memory.Available(); free < l.cfg.MinFreeMemory {
			log.Warn("low memory, reseeding transcript",
				"free", free,
				"threshold", l.cfg.MinFreeMemory,
				"dropped", t.Len()-1,
			)
			t.Reset()
			t.Append(anchor)
		}

		req := &llm.Request{
			System:   l.system(),
			Messages: conversation.Serialize(t.Entries()),
			Tools:    l.tools.Schemas(),
		}
		exStart := time.Now()
		out, err := l.llm.Exchange(ctx, req)
		if err != nil {
			log.Error("exchange failed", "round", resp.Rounds, "error", err)
			resp.Content = prompts.ExchangeFailed
			var exErr *llm.ExchangeError
			if errors.As(err, &exErr) && exErr.Diagnostic != "" {
				resp.Content = exErr.Diagnostic
			}
			resp.FinishReason = FinishError
			return resp
		}
		l.record(ctx, resp.RequestID, role, out, time.Since(exStart))
		resp.Model = out.Model
		resp.InputTokens += out.InputTokens
		resp.OutputTokens += out.OutputTokens

		if out.Kind == llm.KindText {
			t.Append(conversation.AssistantText(out.Text))
			resp.Content = out.Text
			resp.FinishReason = FinishStop
			log.Info("agent loop completed",
				"rounds", resp.Rounds,
				"tools", len(resp.ToolsUsed),
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return resp
		}

		calls := out.ToolCalls
		if len(calls) == 0 {
			log.Error("tool use without tool calls", "round", resp.Rounds, "stop_reason", out.StopReason)
			resp.Content = prompts.MissingToolCalls
			resp.FinishReason = FinishError
			return resp
		}
		if len(calls) > l.cfg.MaxToolCalls {
			log.Debug("clamping tool calls", "requested", len(calls), "max", l.cfg.MaxToolCalls)
			calls = calls[:l.cfg.MaxToolCalls]
		}

		invocations := make([]conversation.Entry, 0, len(calls))
		results := make([]conversation.Entry, 0, len(calls))
		for _, c := range calls {
			callStart := time.Now()
			result := l.tools.Execute(ctx, c)
			log.Debug("tool executed",
				"tool", c.Name,
				"id", c.ID,
				"elapsed", time.Since(callStart).Round(time.Millisecond),
			)
			invocations = append(invocations, conversation.Invocation(c.ID, c.Name, string(c.Input)))
			results = append(results, conversation.Result(c.ID, c.Name, result))
			resp.ToolsUsed[c.Name]++
		}
		t.AppendRound(anchor, invocations, results)
		steps += len(calls)
	}

	log.Warn("tool budget exhausted", "rounds", resp.Rounds, "max_tool_calls", l.cfg.MaxToolCalls)
	resp.Content = prompts.BudgetExhausted
	resp.FinishReason = FinishBudget
	return resp
}

func (l *Loop) record(ctx context.Context, requestID, role string, out *llm.Response, elapsed time.Duration) {
	if l.usage == nil {
		return
	}
	err := l.usage.Record(ctx, usage.Record{
		RequestID:    requestID,
		Model:        out.Model,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Role:         role,
		StopReason:   out.StopReason,
		Elapsed:      elapsed,
	})
	if err != nil {
		l.logger.Warn("failed to record usage", "request_id", requestID, "error", err)
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
