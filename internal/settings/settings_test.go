package settings

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/seedclaw/seedclaw/internal/opstate"
)

func testSettings(t *testing.T) *Store {
	t.Helper()
	state, err := opstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return New(state, map[Key]string{
		Model:  "claude-haiku-4-5-20251001",
		APIKey: "sk-ant-from-config",
	}, nil)
}

func TestOverrideAndReset(t *testing.T) {
	s := testSettings(t)

	if got := s.Get(Model); got != "claude-haiku-4-5-20251001" {
		t.Errorf("Get(Model) = %q, want config default", got)
	}
	if err := s.Set(Model, "  claude-sonnet-4-5  "); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if got := s.Get(Model); got != "claude-sonnet-4-5" {
		t.Errorf("Get(Model) = %q, want trimmed override", got)
	}
	if err := s.Reset(Model); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if got := s.Get(Model); got != "claude-haiku-4-5-20251001" {
		t.Errorf("Get(Model) after reset = %q, want default", got)
	}
}

func TestSetRejects(t *testing.T) {
	s := testSettings(t)

	if err := s.Set(SystemPrompt, "   "); err == nil {
		t.Error("Set(empty) should error")
	}
	if err := s.Set(SystemPrompt, strings.Repeat("x", maxValueLen+1)); err == nil {
		t.Error("Set(oversized) should error")
	}
}

func TestDisplayMasksSecrets(t *testing.T) {
	s := testSettings(t)

	if got := s.Display(APIKey); got != "sk-a****" {
		t.Errorf("Display(APIKey) = %q, want masked", got)
	}
	if got := s.Display(DiscordChannel); got != "(not set)" {
		t.Errorf("Display(unset) = %q", got)
	}
	s.Set(DiscordChannel, "123456")
	if got := s.Display(DiscordChannel); got != "123456" {
		t.Errorf("Display(DiscordChannel) = %q, want plain value", got)
	}
}
