package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) (*AnthropicClient, *[]time.Duration) {
	t.Helper()
	c := NewAnthropicClient(AnthropicConfig{
		BaseURL:       srv.URL,
		Timeout:       5 * time.Second,
		RateLimitWait: 10 * time.Second,
		MaxRetries:    retries,
	}, StaticCredentials{APIKey: "sk-ant-test", Model: "claude-haiku-4-5-20251001"}, nil)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestExchange_RequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"model":"m","stop_reason":"end_turn","content":[{"type":"text","text":"hi"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 0)
	_, err := c.Exchange(context.Background(), &Request{
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Text: "read pin 4"},
			{Role: RoleAssistant, Blocks: []Block{{Type: BlockToolUse, ID: "toolu_1", Name: "gpio_read", Input: json.RawMessage(`{"pin":4}`)}}},
			{Role: RoleUser, Blocks: []Block{{Type: BlockToolResult, ToolUseID: "toolu_1", Content: `{"pin":4,"value":1}`}}},
		},
		Tools: []ToolSchema{{Name: "gpio_read", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}

	if got["model"] != "claude-haiku-4-5-20251001" || got["system"] != "be brief" {
		t.Errorf("model/system = %v/%v", got["model"], got["system"])
	}
	if got["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v, want 1024", got["max_tokens"])
	}
	msgs := got["messages"].([]any)
	if first := msgs[0].(map[string]any); first["content"] != "read pin 4" {
		t.Errorf("plain message content = %v, want string", first["content"])
	}
	blocks := msgs[1].(map[string]any)["content"].([]any)
	use := blocks[0].(map[string]any)
	if use["type"] != "tool_use" || use["input"].(map[string]any)["pin"] != float64(4) {
		t.Errorf("tool_use block = %v", use)
	}
	result := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	if result["tool_use_id"] != "toolu_1" {
		t.Errorf("tool_result block = %v", result)
	}
	if tools := got["tools"].([]any); tools[0].(map[string]any)["input_schema"] == nil {
		t.Errorf("tool schema missing input_schema: %v", tools[0])
	}
}

func TestExchange_Classification(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantKind  ResponseKind
		wantText  string
		wantCalls int
		wantErr   bool
	}{
		{
			name:     "text",
			body:     `{"stop_reason":"end_turn","content":[{"type":"text","text":"Pin 4 is HIGH."}]}`,
			wantKind: KindText,
			wantText: "Pin 4 is HIGH.",
		},
		{
			name:      "parallel tool use",
			body:      `{"stop_reason":"tool_use","content":[{"type":"text","text":"checking"},{"type":"tool_use","id":"a","name":"gpio_read","input":{"pin":4}},{"type":"tool_use","id":"b","name":"adc_read","input":{"pin":2}}]}`,
			wantKind:  KindToolUse,
			wantCalls: 2,
		},
		{
			name:     "tool blocks without tool_use stop reason",
			body:     `{"stop_reason":"max_tokens","content":[{"type":"text","text":"partial"},{"type":"tool_use","id":"a","name":"gpio_read","input":{}}]}`,
			wantKind: KindText,
			wantText: "partial",
		},
		{
			name:    "empty content",
			body:    `{"stop_reason":"end_turn","content":[]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv, 0)
			resp, err := c.Exchange(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Text: "x"}}})
			if tt.wantErr {
				var xe *ExchangeError
				if !errors.As(err, &xe) {
					t.Fatalf("Exchange() error = %v, want *ExchangeError", err)
				}
				if xe.Diagnostic != "" {
					t.Errorf("Diagnostic = %q, want empty for malformed reply", xe.Diagnostic)
				}
				return
			}
			if err != nil {
				t.Fatalf("Exchange() error: %v", err)
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", resp.Kind, tt.wantKind)
			}
			if resp.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", resp.Text, tt.wantText)
			}
			if len(resp.ToolCalls) != tt.wantCalls {
				t.Errorf("ToolCalls = %d, want %d", len(resp.ToolCalls), tt.wantCalls)
			}
		})
	}
}

func TestExchange_RateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if n == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"stop_reason":"end_turn","content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	t.Run("retries then succeeds", func(t *testing.T) {
		calls.Store(0)
		c, slept := newTestClient(t, srv, 2)
		resp, err := c.Exchange(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Text: "x"}}})
		if err != nil {
			t.Fatalf("Exchange() error: %v", err)
		}
		if resp.Text != "ok" {
			t.Errorf("Text = %q", resp.Text)
		}
		want := []time.Duration{2 * time.Second, 10 * time.Second}
		if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
			t.Errorf("slept = %v, want %v", *slept, want)
		}
	})

	t.Run("no retries returns diagnostic after waiting", func(t *testing.T) {
		calls.Store(0)
		c, slept := newTestClient(t, srv, 0)
		_, err := c.Exchange(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Text: "x"}}})
		var xe *ExchangeError
		if !errors.As(err, &xe) || xe.Diagnostic != DiagnosticRateLimited {
			t.Fatalf("Exchange() error = %v, want rate-limit diagnostic", err)
		}
		if len(*slept) != 1 {
			t.Errorf("slept %d times, want 1", len(*slept))
		}
	})
}

func TestExchange_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"messages: roles must alternate"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 0)
	_, err := c.Exchange(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Text: "x"}}})
	var xe *ExchangeError
	if !errors.As(err, &xe) {
		t.Fatalf("error = %v, want *ExchangeError", err)
	}
	if xe.StatusCode != http.StatusBadRequest || !strings.HasPrefix(xe.Diagnostic, "LLM API error (HTTP 400)") {
		t.Errorf("ExchangeError = %+v", xe)
	}
}

func TestExchange_MissingAPIKey(t *testing.T) {
	c := NewAnthropicClient(AnthropicConfig{}, StaticCredentials{Model: "m"}, nil)
	_, err := c.Exchange(context.Background(), &Request{})
	var xe *ExchangeError
	if !errors.As(err, &xe) || xe.Diagnostic != DiagnosticNoAPIKey {
		t.Errorf("error = %v, want missing-key diagnostic", err)
	}
}

func TestMessageMarshal(t *testing.T) {
	b, _ := json.Marshal(Message{Role: RoleUser, Text: "hello"})
	if string(b) != `{"role":"user","content":"hello"}` {
		t.Errorf("plain = %s", b)
	}
	b, _ = json.Marshal(Message{Role: RoleUser, Blocks: []Block{{Type: BlockToolResult, ToolUseID: "t1", Content: "{}"}}})
	if string(b) != `{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"{}"}]}` {
		t.Errorf("blocks = %s", b)
	}
}
