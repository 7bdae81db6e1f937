// Package connwatch tracks the health of the services the bridge
// depends on and paces retries against them.
//
// A Backoff schedules the wait after each consecutive failure (3s, 6s,
// 12s, ... capped at 60s by default) and resets on success. A Service
// records probe outcomes and reports up/down transitions, which the
// bridge uses to announce itself once and the console and MQTT
// publisher use to report status.
package connwatch

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// BackoffConfig controls the exponential backoff behavior.
type BackoffConfig struct {
	// InitialDelay is the wait after the first failure (default: 3s).
	InitialDelay time.Duration

	// MaxDelay is the ceiling for backoff growth (default: 60s).
	MaxDelay time.Duration

	// Multiplier scales the delay after each failure (default: 2.0).
	Multiplier float64
}

// DefaultBackoffConfig returns 3s doubling to 60s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 3 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// Backoff is a failure counter that yields growing delays. It is not
// safe for concurrent use.
type Backoff struct {
	cfg      BackoffConfig
	next     time.Duration
	failures int
}

// NewBackoff returns a Backoff. Zero fields in cfg take the defaults.
func NewBackoff(cfg BackoffConfig) *Backoff {
	d := DefaultBackoffConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = d.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = d.Multiplier
	}
	return &Backoff{cfg: cfg, next: cfg.InitialDelay}
}

// Failure records a failure and returns how long to wait before the
// next attempt.
func (b *Backoff) Failure() time.Duration {
	d := b.next
	b.failures++
	b.next = min(time.Duration(float64(b.next)*b.cfg.Multiplier), b.cfg.MaxDelay)
	return d
}

// Success resets the schedule.
func (b *Backoff) Success() {
	b.failures = 0
	b.next = b.cfg.InitialDelay
}

// Failures returns the number of consecutive failures.
func (b *Backoff) Failures() int { return b.failures }

// Transition is the state change caused by one observation.
type Transition int

const (
	// Unchanged means the service stayed up or stayed down.
	Unchanged Transition = iota
	// Up means the service just became reachable.
	Up
	// Down means a reachable service just failed.
	Down
)

func (t Transition) String() string {
	switch t {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unchanged"
	}
}

// ServiceStatus is the health of a tracked service.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
	// EverReady is true once the service has been reached at least once.
	EverReady bool `json:"ever_ready"`
}

// Service records the outcomes of calls to one dependency. It is safe
// for concurrent use.
type Service struct {
	name   string
	logger *slog.Logger

	mu        sync.Mutex
	ready     bool
	everReady bool
	lastErr   error
	lastCheck time.Time
}

// Observe records the outcome of one call and reports the transition
// it caused. The first success is always Up.
func (s *Service) Observe(err error) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	s.lastCheck = time.Now()
	wasReady := s.ready
	s.ready = err == nil

	switch {
	case !wasReady && err == nil:
		first := !s.everReady
		s.everReady = true
		s.logger.Info("service connected", "service", s.name, "first", first)
		return Up
	case wasReady && err != nil:
		s.logger.Warn("service became unreachable", "service", s.name, "error", err)
		return Down
	case err != nil:
		s.logger.Debug("service still unreachable", "service", s.name, "error", err)
	}
	return Unchanged
}

// IsReady reports whether the last observation succeeded.
func (s *Service) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// EverReady reports whether the service has ever been reached.
func (s *Service) EverReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.everReady
}

// LastError returns the most recent failure, or nil if healthy.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Status returns the current health.
func (s *Service) Status() ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := ServiceStatus{
		Name:      s.name,
		Ready:     s.ready,
		LastCheck: s.lastCheck,
		EverReady: s.everReady,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Manager hands out Services by name.
type Manager struct {
	mu       sync.RWMutex
	services map[string]*Service
	logger   *slog.Logger
}

// NewManager creates a manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		services: make(map[string]*Service),
		logger:   logger,
	}
}

// Track returns the Service for name, creating it on first use.
//
// Panics if name is empty.
func (m *Manager) Track(name string) *Service {
	if name == "" {
		panic("connwatch: service name must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.services[name]; ok {
		return s
	}
	s := &Service{name: name, logger: m.logger}
	m.services[name] = s
	return s
}

// Status returns every tracked service, sorted by name.
func (m *Manager) Status() []ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServiceStatus, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
