package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/seedclaw/seedclaw/internal/httpkit"
)

const (
	anthropicMessagesPath = "/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
)

// User-facing diagnostics.
const (
	DiagnosticNoAPIKey    = "API key is not configured. Set it with the api-key command."
	DiagnosticNetwork     = "Network error reaching the LLM API. Check the connection."
	DiagnosticTimeout     = "The LLM API timed out. Wait a moment and try again."
	DiagnosticRateLimited = "Rate limited. Please wait a moment and try again."
)

// AnthropicConfig tunes an AnthropicClient.
type AnthropicConfig struct {
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration

	// RateLimitWait is slept after a 429 when the response carries no
	// Retry-After header.
	RateLimitWait time.Duration

	// MaxRetries is how many times a 429 is retried before the
	// rate-limit diagnostic is returned.
	MaxRetries int
}

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	cfg        AnthropicConfig
	creds      CredentialSource
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig, creds CredentialSource, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	// The model may take most of the timeout before sending headers.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = cfg.Timeout

	return &AnthropicClient{
		cfg:    cfg,
		creds:  creds,
		logger: logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
			httpkit.WithTransport(t),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		sleep: sleepCtx,
	}
}

type anthropicRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []Message    `json:"messages"`
	Tools     []ToolSchema `json:"tools,omitempty"`
}

type anthropicResponse struct {
	ID         string  `json:"id"`
	Model      string  `json:"model"`
	Content    []Block `json:"content"`
	StopReason string  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Exchange sends req and classifies the reply.
func (c *AnthropicClient) Exchange(ctx context.Context, req *Request) (*Response, error) {
	apiKey, model := c.creds.Credentials()
	if apiKey == "" {
		return nil, &ExchangeError{Diagnostic: DiagnosticNoAPIKey}
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: c.cfg.MaxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
	})
	if err != nil {
		return nil, &ExchangeError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	c.logger.Debug("sending exchange",
		"model", model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"bytes", len(body),
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(body))

	for attempt := 0; ; attempt++ {
		resp, wait, err := c.post(ctx, apiKey, body)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}

		c.logger.Warn("rate limited", "attempt", attempt+1, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &ExchangeError{StatusCode: http.StatusTooManyRequests, Diagnostic: DiagnosticRateLimited, Err: err}
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, &ExchangeError{StatusCode: http.StatusTooManyRequests, Diagnostic: DiagnosticRateLimited}
		}
	}
}

// post performs one HTTP attempt. A nil response with a nil error
// means the request was rate limited and should wait the returned
// duration.
func (c *AnthropicClient) post(ctx context.Context, apiKey string, body []byte) (*Response, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+anthropicMessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &ExchangeError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("request failed", "error", err)
		if isTimeout(err) {
			return nil, 0, &ExchangeError{Diagnostic: DiagnosticTimeout, Err: err}
		}
		return nil, 0, &ExchangeError{Diagnostic: DiagnosticNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil, httpkit.RetryAfter(resp.Header, c.cfg.RateLimitWait), nil
	case resp.StatusCode != http.StatusOK:
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, 0, &ExchangeError{
			StatusCode: resp.StatusCode,
			Diagnostic: fmt.Sprintf("LLM API error (HTTP %d): %s", resp.StatusCode, truncate(errBody, 200)),
			Err:        fmt.Errorf("anthropic API error %d", resp.StatusCode),
		}
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, 0, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	out, err := classify(&ar)
	if err != nil {
		return nil, 0, &ExchangeError{StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("exchange complete",
		"model", out.Model,
		"kind", out.Kind,
		"stop_reason", out.StopReason,
		"tool_calls", len(out.ToolCalls),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "text", out.Text)
	return out, 0, nil
}

// classify maps a response onto TEXT or TOOL_USE. Tool use requires
// both the tool_use stop reason and at least one tool_use block.
func classify(ar *anthropicResponse) (*Response, error) {
	out := &Response{
		Model:        ar.Model,
		StopReason:   ar.StopReason,
		InputTokens:  ar.Usage.InputTokens,
		OutputTokens: ar.Usage.OutputTokens,
	}

	var texts []string
	for _, b := range ar.Content {
		switch b.Type {
		case BlockToolUse:
			if b.ID == "" || b.Name == "" {
				continue
			}
			input := b.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Input: input})
		case BlockText:
			texts = append(texts, b.Text)
		}
	}

	if ar.StopReason == "tool_use" && len(out.ToolCalls) > 0 {
		out.Kind = KindToolUse
		return out, nil
	}
	if len(texts) == 0 {
		return nil, errors.New("response has neither text nor tool calls")
	}
	out.Kind = KindText
	out.ToolCalls = nil
	out.Text = strings.Join(texts, "")
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
