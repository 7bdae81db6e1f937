// Package rules stores the monitoring directives the autonomous check
// follows, together with its cadence.
//
// The cadence is coupled to the rule count: whenever the set becomes
// empty, by removal or by clearing, the interval drops to 0 and
// monitoring stops.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/seedclaw/seedclaw/internal/opstate"
)

var (
	// ErrFull is returned by Add when the set is at capacity.
	ErrFull = errors.New("max rules reached")
	// ErrEmpty is returned by Add for blank rule text.
	ErrEmpty = errors.New("rule text is empty")
	// ErrIndex is returned by Remove for an out-of-range index.
	ErrIndex = errors.New("invalid rule index")
)

const intervalKey = "interval"

// Config bounds a Store.
type Config struct {
	MaxRules      int
	MaxRuleLength int
}

// Store is the rule set. It is safe for concurrent use. When backed by
// an opstate store every change is persisted before it takes effect.
type Store struct {
	cfg    Config
	state  *opstate.Store
	logger *slog.Logger

	mu       sync.Mutex
	rules    []string
	interval int
}

// New returns a Store, loading any persisted rules. state may be nil
// for a memory-only store.
func New(cfg Config, state *opstate.Store, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRules <= 0 {
		cfg.MaxRules = 5
	}
	if cfg.MaxRuleLength <= 0 {
		cfg.MaxRuleLength = 256
	}
	s := &Store{cfg: cfg, state: state, logger: logger}
	if state == nil {
		return s, nil
	}

	saved, err := state.List(opstate.NamespaceRules)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	var keys []string
	for k := range saved {
		if strings.HasPrefix(k, "rule.") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(s.rules) == cfg.MaxRules {
			break
		}
		s.rules = append(s.rules, bound(saved[k], cfg.MaxRuleLength))
	}
	if len(s.rules) > 0 {
		s.interval, _ = state.GetInt(opstate.NamespaceRules, intervalKey, 0)
		s.interval = max(0, s.interval)
		logger.Info("monitoring rules loaded", "rules", len(s.rules), "interval", s.interval)
	}
	return s, nil
}

// Add appends a rule, truncated to the configured length, and returns
// the new rule count.
func (s *Store) Add(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rules) >= s.cfg.MaxRules {
		return len(s.rules), fmt.Errorf("%w (%d)", ErrFull, s.cfg.MaxRules)
	}
	next := append(slices.Clone(s.rules), bound(text, s.cfg.MaxRuleLength))
	if err := s.commit(next, s.interval); err != nil {
		return len(s.rules), err
	}
	s.logger.Info("monitoring rule added", "index", len(next)-1, "rules", len(next))
	return len(next), nil
}

// Remove deletes the rule at index (0-based). Removing the last rule
// disables monitoring.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rules) {
		return fmt.Errorf("%w: %d", ErrIndex, index)
	}
	next := slices.Clone(s.rules[:index])
	next = append(next, s.rules[index+1:]...)
	interval := s.interval
	if len(next) == 0 {
		interval = 0
	}
	if err := s.commit(next, interval); err != nil {
		return err
	}
	s.logger.Info("monitoring rule removed", "index", index, "rules", len(next))
	return nil
}

// Clear removes every rule and disables monitoring.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commit(nil, 0); err != nil {
		return err
	}
	s.logger.Info("monitoring rules cleared")
	return nil
}

// SetInterval sets the cadence in poll cycles and returns the applied
// value. Negative values mean 0.
func (s *Store) SetInterval(n int) (int, error) {
	n = max(0, n)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commit(s.rules, n); err != nil {
		return s.interval, err
	}
	s.logger.Info("monitoring interval set", "interval", n)
	return n, nil
}

// List returns a copy of the rules in order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rules)
}

// Count returns the number of rules.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// Interval returns the cadence; 0 means disabled.
func (s *Store) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Snapshot returns the rules and cadence observed together.
func (s *Store) Snapshot() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rules), s.interval
}

// MaxRules returns the configured capacity.
func (s *Store) MaxRules() int { return s.cfg.MaxRules }

// commit persists then installs the new state. Callers hold mu.
func (s *Store) commit(rules []string, interval int) error {
	if s.state != nil {
		values := make(map[string]string, len(rules)+1)
		for i, r := range rules {
			values[fmt.Sprintf("rule.%02d", i)] = r
		}
		values[intervalKey] = fmt.Sprint(interval)
		if err := s.state.ReplaceNamespace(opstate.NamespaceRules, values); err != nil {
			return fmt.Errorf("persist rules: %w", err)
		}
	}
	s.rules = rules
	s.interval = interval
	return nil
}

func bound(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
