package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/seedclaw/seedclaw/internal/fetch"
)

type fakeFetcher struct {
	gotURL string
	gotMax int
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, maxBytes int) (*fetch.Result, error) {
	f.gotURL, f.gotMax = url, maxBytes
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{URL: url, StatusCode: 200, BytesRead: 5, Body: "hello"}, nil
}

func TestWebFetch(t *testing.T) {
	f := &fakeFetcher{}
	r := NewRegistry(nil)
	if err := RegisterWeb(r, f); err != nil {
		t.Fatal(err)
	}

	got := call(t, r, ToolWebFetch, `{"url":"https://example.com","max_bytes":512}`)
	if got["status_code"] != 200.0 || got["body"] != "hello" || got["bytes_read"] != 5.0 {
		t.Errorf("web_fetch = %v", got)
	}
	if f.gotURL != "https://example.com" || f.gotMax != 512 {
		t.Errorf("fetcher got %q, %d", f.gotURL, f.gotMax)
	}

	got = call(t, r, ToolWebFetch, `{"url":""}`)
	if got["error"] != "Missing or invalid 'url' parameter" {
		t.Errorf("empty url = %v", got)
	}

	f.err = errors.New("dial tcp: refused")
	got = call(t, r, ToolWebFetch, `{"url":"https://down.example"}`)
	if got["error"] != "HTTP request failed: dial tcp: refused" {
		t.Errorf("fetch error = %v", got)
	}
}
