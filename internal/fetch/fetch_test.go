package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTextFromHTML(t *testing.T) {
	doc := `<!DOCTYPE html>
<html>
<head><title>Greenhouse</title><style>.x { color: red }</style></head>
<body>
<script>var secret = 1;</script>
<h1>Temperature</h1>
<p>Currently <b>21.5</b> C</p>
<ul><li>fan on</li><li>pump off</li></ul>
</body>
</html>`

	got := textFromHTML(doc)

	if !strings.HasPrefix(got, "Greenhouse\n") {
		t.Errorf("title should lead, got %q", got)
	}
	for _, want := range []string{"Temperature", "Currently 21.5 C", "fan on", "pump off"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	for _, bad := range []string{"secret", "color"} {
		if strings.Contains(got, bad) {
			t.Errorf("hidden content %q leaked into %q", bad, got)
		}
	}
}

func TestLimit(t *testing.T) {
	f := New(Config{}, nil)
	tests := []struct {
		requested, want int
	}{
		{0, 4096},
		{-5, 4096},
		{10, 256},
		{256, 256},
		{1000, 1000},
		{8192, 8192},
		{100000, 8192},
	}
	for _, tt := range tests {
		if got := f.Limit(tt.requested); got != tt.want {
			t.Errorf("Limit(%d) = %d, want %d", tt.requested, got, tt.want)
		}
	}
}

func TestFetchPlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "SeedClaw/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer ts.Close()

	f := New(Config{}, nil)
	res, err := f.Fetch(context.Background(), ts.URL, 300)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if res.BytesRead != 300 {
		t.Errorf("BytesRead = %d, want 300", res.BytesRead)
	}
	if res.ContentLength != 1000 {
		t.Errorf("ContentLength = %d, want 1000", res.ContentLength)
	}
	if len(res.Body) != 300 {
		t.Errorf("len(Body) = %d", len(res.Body))
	}
}

func TestFetchEmptyAndErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	res, err := New(Config{}, nil).Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 404 {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if res.Body != "(empty)" {
		t.Errorf("Body = %q", res.Body)
	}
}

func TestFetchRepairsTruncatedRune(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(strings.Repeat("é", 200)))
	}))
	defer ts.Close()

	// 257 bytes splits the 129th two-byte rune.
	res, err := New(Config{}, nil).Fetch(context.Background(), ts.URL, 257)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasSuffix(res.Body, "�") {
		t.Errorf("expected replacement rune at end, got %q", res.Body[len(res.Body)-4:])
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"example.com/x", "https://example.com/x", false},
		{"http://example.com", "http://example.com", false},
		{"  ", "", true},
		{"ftp://example.com", "", true},
		{"file:///etc/passwd", "", true},
	}
	for _, tt := range tests {
		got, err := normalize(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("normalize(%q) err = %v, want ErrInvalidURL", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("normalize(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
