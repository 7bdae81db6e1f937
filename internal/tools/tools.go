// Package tools defines the tools available to the agent and executes
// the calls the model makes against them.
//
// Every tool result, success or failure, is a JSON object string that
// goes back to the model verbatim. Failures are reported in-band as
// {"error": "..."} so the model can see and react to them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/seedclaw/seedclaw/internal/llm"
)

// MaxNameLength is the longest tool name the transcript can store.
const MaxNameLength = 20

// Builtin lists every tool the agent is expected to expose.
var Builtin = []string{
	ToolGPIORead, ToolGPIOWrite, ToolADCRead, ToolPWMSet, ToolGPIOStatus,
	ToolWebFetch,
	ToolRuleAdd, ToolRuleRemove, ToolRuleClear, ToolSetAutoInterval, ToolGetRules,
}

// Registration errors.
var (
	ErrToolNameEmpty   = errors.New("tool name is empty")
	ErrToolNameTooLong = errors.New("tool name too long")
	ErrNilHandler      = errors.New("tool handler is nil")
	ErrDuplicateTool   = errors.New("tool already registered")
	ErrInvalidSchema   = errors.New("invalid tool schema")
)

// Handler executes one call with decoded arguments and returns a JSON
// object string.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Registry holds available tools in registration order.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds t after checking that its descriptor is usable. A nil
// Parameters map is replaced by an empty object schema.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return ErrToolNameEmpty
	}
	if len(t.Name) > MaxNameLength {
		return fmt.Errorf("%w: %q is %d bytes, max %d", ErrToolNameTooLong, t.Name, len(t.Name), MaxNameLength)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, t.Name)
	}
	if t.Parameters == nil {
		t.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if err := checkSchema(t.Parameters); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchema, t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

func checkSchema(schema map[string]any) error {
	if typ, _ := schema["type"].(string); typ != "object" {
		return fmt.Errorf("type must be \"object\", got %v", schema["type"])
	}
	props, _ := schema["properties"].(map[string]any)
	var required []string
	switch v := schema["required"].(type) {
	case nil:
	case []string:
		required = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("required entry %v is not a string", item)
			}
			required = append(required, s)
		}
	default:
		return fmt.Errorf("required must be a list, got %T", v)
	}
	for _, key := range required {
		if _, ok := props[key]; !ok {
			return fmt.Errorf("required parameter %q has no property", key)
		}
	}
	return nil
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Verify reports every name in want that is not registered.
func (r *Registry) Verify(want ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, name := range want {
		if _, ok := r.tools[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tools not registered: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Schemas returns the tool declarations sent with every request.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

// Execute runs one call and always produces a JSON object string.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) string {
	t := r.Get(call.Name)
	if t == nil {
		err := &ErrToolUnavailable{ToolName: call.Name}
		r.logger.Warn("unknown tool requested", "tool", call.Name, "id", call.ID)
		return errorResult(err.Error())
	}

	args, err := decodeArgs(call.Input)
	if err != nil {
		r.logger.Warn("invalid tool input", "tool", call.Name, "error", err)
		return errorResult("Invalid tool input JSON")
	}

	out, err := r.run(ctx, t, args)
	if err != nil {
		r.logger.Debug("tool failed", "tool", call.Name, "error", err)
		return errorResult(err.Error())
	}
	if !json.Valid([]byte(out)) {
		return jsonResult(map[string]any{"result": out})
	}
	r.logger.Log(ctx, llm.LevelTrace, "tool result", "tool", call.Name, "result", out)
	return out
}

func (r *Registry) run(ctx context.Context, t *Tool, args map[string]any) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", t.Name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool %s failed unexpectedly", t.Name)
		}
	}()
	return t.Handler(ctx, args)
}

// decodeArgs accepts an empty input or a JSON object.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func errorResult(msg string) string {
	return jsonResult(map[string]string{"error": msg})
}

// jsonResult marshals v, which must be JSON-safe.
func jsonResult(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to encode tool result"}`
	}
	return string(b)
}
