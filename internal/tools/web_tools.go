package tools

import (
	"context"
	"fmt"

	"github.com/seedclaw/seedclaw/internal/fetch"
)

// ToolWebFetch is the name of the HTTP fetch tool.
const ToolWebFetch = "web_fetch"

// Fetcher is the part of *fetch.Fetcher the tool needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int) (*fetch.Result, error)
}

// RegisterWeb adds web_fetch backed by f.
func RegisterWeb(r *Registry, f Fetcher) error {
	return r.Register(&Tool{
		Name:        ToolWebFetch,
		Description: "Fetch a URL with HTTP GET and return the beginning of the response body. HTML pages are reduced to text. Useful for weather, APIs and other online data.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL to fetch (http or https)",
				},
				"max_bytes": map[string]any{
					"type":        "integer",
					"description": "Maximum bytes to read (default 4096, 256-8192)",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, ok := stringArg(args, "url")
			if !ok {
				return "", argErrorf("Missing or invalid 'url' parameter")
			}
			maxBytes, _ := intArg(args, "max_bytes")
			res, err := f.Fetch(ctx, url, maxBytes)
			if err != nil {
				return "", fmt.Errorf("HTTP request failed: %v", err)
			}
			return jsonResult(res), nil
		},
	})
}
