package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/seedclaw/seedclaw/internal/llm"
)

func noop(context.Context, map[string]any) (string, error) { return `{"ok":true}`, nil }

func objectSchema(required ...string) map[string]any {
	props := map[string]any{}
	for _, r := range required {
		props[r] = map[string]any{"type": "string"}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("result %q is not a JSON object: %v", s, err)
	}
	return m
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		tool *Tool
		want error
	}{
		{"nil tool", nil, ErrToolNameEmpty},
		{"empty name", &Tool{Handler: noop}, ErrToolNameEmpty},
		{"long name", &Tool{Name: strings.Repeat("x", 21), Handler: noop}, ErrToolNameTooLong},
		{"nil handler", &Tool{Name: "a"}, ErrNilHandler},
		{"not object", &Tool{Name: "a", Handler: noop, Parameters: map[string]any{"type": "string"}}, ErrInvalidSchema},
		{"required without property", &Tool{
			Name:    "a",
			Handler: noop,
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{"pin"},
			},
		}, ErrInvalidSchema},
		{"required as []any", &Tool{
			Name:    "a",
			Handler: noop,
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"pin": map[string]any{}},
				"required":   []any{"pin"},
			},
		}, nil},
		{"nil parameters", &Tool{Name: "a", Handler: noop}, nil},
		{"max length name", &Tool{Name: strings.Repeat("x", 20), Handler: noop}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry(nil).Register(tt.tool)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Register() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Register() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&Tool{Name: "a", Handler: noop}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&Tool{Name: "a", Handler: noop}); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("second Register() = %v, want ErrDuplicateTool", err)
	}
}

func TestVerifyAndSchemas(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&Tool{Name: name, Description: name + " tool", Parameters: objectSchema(), Handler: noop}); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Verify("alpha", "zeta"); err != nil {
		t.Errorf("Verify(present) = %v", err)
	}
	err := r.Verify("alpha", "missing", "gone")
	if err == nil || !strings.Contains(err.Error(), "missing, gone") {
		t.Errorf("Verify(absent) = %v", err)
	}

	schemas := r.Schemas()
	var names []string
	for _, s := range schemas {
		names = append(names, s.Name)
		if s.InputSchema["type"] != "object" {
			t.Errorf("%s: input schema type = %v", s.Name, s.InputSchema["type"])
		}
	}
	if got := strings.Join(names, ","); got != "zeta,alpha,mid" {
		t.Errorf("schema order = %s, want registration order", got)
	}
}

func TestExecute(t *testing.T) {
	r := NewRegistry(nil)
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.Register(&Tool{Name: "echo", Parameters: objectSchema("text"), Handler: func(_ context.Context, args map[string]any) (string, error) {
		return jsonResult(map[string]any{"text": args["text"]}), nil
	}}))
	must(r.Register(&Tool{Name: "fails", Handler: func(context.Context, map[string]any) (string, error) {
		return "", argErrorf("Missing 'text' parameter")
	}}))
	must(r.Register(&Tool{Name: "panics", Handler: func(context.Context, map[string]any) (string, error) {
		panic("boom")
	}}))
	must(r.Register(&Tool{Name: "plain", Handler: func(context.Context, map[string]any) (string, error) {
		return "not json", nil
	}}))

	tests := []struct {
		name      string
		call      llm.ToolCall
		wantKey   string
		wantValue string
	}{
		{"success", llm.ToolCall{Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)}, "text", "hi"},
		{"unknown", llm.ToolCall{Name: "nope", Input: json.RawMessage(`{}`)}, "error", "Unknown tool: nope"},
		{"bad json", llm.ToolCall{Name: "echo", Input: json.RawMessage(`{"text":`)}, "error", "Invalid tool input JSON"},
		{"array input", llm.ToolCall{Name: "echo", Input: json.RawMessage(`[1,2]`)}, "error", "Invalid tool input JSON"},
		{"handler error", llm.ToolCall{Name: "fails"}, "error", "Missing 'text' parameter"},
		{"panic", llm.ToolCall{Name: "panics"}, "error", "tool panics failed unexpectedly"},
		{"non-json result", llm.ToolCall{Name: "plain"}, "result", "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decode(t, r.Execute(context.Background(), tt.call))
			if got[tt.wantKey] != tt.wantValue {
				t.Errorf("%s = %v, want %q", tt.wantKey, got[tt.wantKey], tt.wantValue)
			}
		})
	}
}

func TestErrToolUnavailable(t *testing.T) {
	var err error = &ErrToolUnavailable{ToolName: "x"}
	var target *ErrToolUnavailable
	if !errors.As(err, &target) || target.ToolName != "x" {
		t.Fatalf("errors.As failed for %v", err)
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"f": 4.0, "frac": 4.7, "neg": -2.0, "s": "4", "i": 3}
	tests := []struct {
		key    string
		want   int
		wantOK bool
	}{
		{"f", 4, true},
		{"frac", 4, true},
		{"neg", -2, true},
		{"i", 3, true},
		{"s", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		got, ok := intArg(args, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("intArg(%q) = %d, %v; want %d, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}
