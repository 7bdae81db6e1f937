// Package fetch retrieves a bounded slice of a web resource for the
// web_fetch tool. HTML is reduced to readable text; everything else is
// returned as-is after UTF-8 repair.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seedclaw/seedclaw/internal/httpkit"
)

// Defaults for a Fetcher.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 4096
	DefaultMinBytes = 256
	DefaultCapBytes = 8192
)

// ErrInvalidURL is returned for URLs that are empty or not http(s).
var ErrInvalidURL = errors.New("invalid url")

// Config bounds a Fetcher.
type Config struct {
	Timeout         time.Duration
	DefaultMaxBytes int
	MinBytes        int
	MaxBytes        int
}

// Result is what the model sees.
type Result struct {
	URL           string `json:"url"`
	StatusCode    int    `json:"status_code"`
	BytesRead     int    `json:"bytes_read"`
	ContentLength int64  `json:"content_length,omitempty"`
	Body          string `json:"body"`
}

// Fetcher performs GET requests with a hard byte and time budget.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New returns a Fetcher. Zero fields in cfg take the package defaults.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DefaultMaxBytes <= 0 {
		cfg.DefaultMaxBytes = DefaultMaxBytes
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultCapBytes
	}
	if cfg.MinBytes > cfg.MaxBytes {
		cfg.MinBytes = cfg.MaxBytes
	}
	return &Fetcher{
		cfg:    cfg,
		client: httpkit.NewClient(httpkit.WithTimeout(cfg.Timeout), httpkit.WithLogger(logger)),
		logger: logger,
	}
}

// Limit resolves a requested byte budget. Zero or negative means the
// default; anything else is clamped into [MinBytes, MaxBytes].
func (f *Fetcher) Limit(requested int) int {
	if requested <= 0 {
		return f.cfg.DefaultMaxBytes
	}
	return max(f.cfg.MinBytes, min(requested, f.cfg.MaxBytes))
}

// Fetch downloads at most Limit(maxBytes) bytes of rawURL. Non-2xx
// statuses are not errors; the status is reported in the Result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxBytes int) (*Result, error) {
	target, err := normalize(rawURL)
	if err != nil {
		return nil, err
	}
	limit := f.Limit(maxBytes)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "text/html,application/json,text/plain;q=0.9,*/*;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	body := repairUTF8(raw)
	if isHTML(resp.Header.Get("Content-Type")) {
		body = textFromHTML(body)
	}
	if body == "" {
		body = "(empty)"
	}

	f.logger.Debug("web fetch complete",
		"url", target,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	res := &Result{
		URL:        target,
		StatusCode: resp.StatusCode,
		BytesRead:  len(raw),
		Body:       body,
	}
	if resp.ContentLength > 0 {
		res.ContentLength = resp.ContentLength
	}
	return res, nil
}

func normalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u.String(), nil
}

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// repairUTF8 replaces invalid bytes, including a rune cut in half by
// the byte limit, with U+FFFD.
func repairUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
