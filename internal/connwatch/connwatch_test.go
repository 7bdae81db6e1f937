package connwatch

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultBackoffConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultBackoffConfig()

	if cfg.InitialDelay != 3*time.Second {
		t.Errorf("InitialDelay = %v, want 3s", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", cfg.Multiplier)
	}
}

func TestBackoffSchedule(t *testing.T) {
	t.Parallel()
	b := NewBackoff(BackoffConfig{})

	want := []time.Duration{3, 6, 12, 24, 48, 60, 60}
	for i, w := range want {
		if got := b.Failure(); got != w*time.Second {
			t.Errorf("failure %d: wait %v, want %v", i+1, got, w*time.Second)
		}
	}
	if b.Failures() != len(want) {
		t.Errorf("Failures() = %d", b.Failures())
	}

	b.Success()
	if b.Failures() != 0 {
		t.Errorf("Failures() after Success = %d", b.Failures())
	}
	if got := b.Failure(); got != 3*time.Second {
		t.Errorf("wait after reset = %v, want 3s", got)
	}
}

func TestBackoffClampsConfig(t *testing.T) {
	t.Parallel()
	b := NewBackoff(BackoffConfig{InitialDelay: 10 * time.Second, MaxDelay: time.Second, Multiplier: 0.5})
	for range 3 {
		if got := b.Failure(); got != 10*time.Second {
			t.Errorf("wait = %v, want 10s", got)
		}
	}
}

func TestServiceTransitions(t *testing.T) {
	t.Parallel()
	s := NewManager(nil).Track("discord")
	boom := errors.New("boom")

	steps := []struct {
		err  error
		want Transition
	}{
		{boom, Unchanged},
		{boom, Unchanged},
		{nil, Up},
		{nil, Unchanged},
		{boom, Down},
		{boom, Unchanged},
		{nil, Up},
	}
	for i, step := range steps {
		if got := s.Observe(step.err); got != step.want {
			t.Errorf("step %d: Observe(%v) = %v, want %v", i, step.err, got, step.want)
		}
	}
	if !s.IsReady() || !s.EverReady() || s.LastError() != nil {
		t.Errorf("final state: ready=%v ever=%v err=%v", s.IsReady(), s.EverReady(), s.LastError())
	}
}

func TestServiceStatus(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	m.Track("llm").Observe(nil)
	m.Track("discord").Observe(errors.New("401 unauthorized"))

	if m.Track("llm") != m.Track("llm") {
		t.Error("Track should return the same service")
	}

	st := m.Status()
	if len(st) != 2 || st[0].Name != "discord" || st[1].Name != "llm" {
		t.Fatalf("Status() = %+v", st)
	}
	if st[0].Ready || st[0].LastError != "401 unauthorized" || st[0].EverReady {
		t.Errorf("discord = %+v", st[0])
	}
	if !st[1].Ready || st[1].LastCheck.IsZero() {
		t.Errorf("llm = %+v", st[1])
	}
}

func TestTrackEmptyNamePanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewManager(nil).Track("")
}
