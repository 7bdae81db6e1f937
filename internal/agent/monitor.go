package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/seedclaw/seedclaw/internal/prompts"
	"github.com/seedclaw/seedclaw/internal/rules"
)

// IsolatedRunner runs a prompt without touching the user transcript.
type IsolatedRunner interface {
	RunIsolated(ctx context.Context, prompt string) *Response
}

// MonitorConfig controls how check results are reported.
type MonitorConfig struct {
	// NoChangeMarker in a reply means there is nothing to report.
	NoChangeMarker string
	// ReportPrefix is prepended to every report.
	ReportPrefix string
}

// Monitor counts poll cycles and runs an autonomous check every
// Interval cycles while rules exist.
type Monitor struct {
	logger *slog.Logger
	runner IsolatedRunner
	rules  *rules.Store
	cfg    MonitorConfig

	mu      sync.Mutex
	counter int
}

// NewMonitor creates a monitor over store.
func NewMonitor(logger *slog.Logger, runner IsolatedRunner, store *rules.Store, cfg MonitorConfig) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NoChangeMarker == "" {
		cfg.NoChangeMarker = "No change"
	}
	return &Monitor{logger: logger, runner: runner, rules: store, cfg: cfg}
}

// Tick advances the cycle counter. When it reaches the interval the
// counter restarts and a check runs; ok reports whether that check
// produced something to send.
func (m *Monitor) Tick(ctx context.Context) (report string, ok bool) {
	list, interval := m.rules.Snapshot()

	m.mu.Lock()
	if interval <= 0 || len(list) == 0 {
		m.counter = 0
		m.mu.Unlock()
		return "", false
	}
	m.counter++
	due := m.counter >= interval
	if due {
		m.counter = 0
	}
	m.mu.Unlock()

	if !due {
		return "", false
	}
	return m.Check(ctx)
}

// Check runs one autonomous check now, regardless of the interval.
func (m *Monitor) Check(ctx context.Context) (report string, ok bool) {
	list := m.rules.List()
	if len(list) == 0 {
		return "", false
	}

	m.logger.Info("autonomous check started", "rules", len(list))
	resp := m.runner.RunIsolated(ctx, prompts.MonitorPrompt(list, m.cfg.NoChangeMarker))

	if resp.FinishReason == FinishError {
		m.logger.Warn("autonomous check failed", "request_id", resp.RequestID, "reply", resp.Content)
	}

	switch {
	case strings.TrimSpace(resp.Content) == "":
		return "", false
	case strings.Contains(resp.Content, m.cfg.NoChangeMarker):
		m.logger.Debug("autonomous check: no change", "request_id", resp.RequestID)
		return "", false
	}

	m.logger.Info("autonomous check reported", "request_id", resp.RequestID, "tools", len(resp.ToolsUsed))
	return m.cfg.ReportPrefix + resp.Content, true
}

// Reset restarts the cycle count.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.counter = 0
	m.mu.Unlock()
}
