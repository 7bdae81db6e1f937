package conversation

import "sync"

// Store owns the primary transcript and an ephemeral one used for
// isolated runs such as autonomous checks.
type Store struct {
	mu        sync.Mutex
	primary   *Transcript
	ephemeral *Transcript
	active    *Transcript
}

// NewStore creates a store whose transcripts have the given capacity.
func NewStore(capacity int) *Store {
	p := NewTranscript(capacity)
	return &Store{
		primary:   p,
		ephemeral: NewTranscript(capacity),
		active:    p,
	}
}

// Current returns the transcript runs should read and write.
func (s *Store) Current() *Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Primary returns the user-facing transcript regardless of any swap.
func (s *Store) Primary() *Transcript {
	return s.primary
}

// ScopedSwap makes an empty ephemeral transcript current. The returned
// restore func reinstates the primary transcript, untouched, and drops
// everything written during the scope. Calling restore more than once
// is harmless.
func (s *Store) ScopedSwap() (restore func()) {
	s.mu.Lock()
	s.ephemeral.Reset()
	s.active = s.ephemeral
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.ephemeral.Reset()
			s.active = s.primary
			s.mu.Unlock()
		})
	}
}

// Swapped reports whether an isolated scope is active.
func (s *Store) Swapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != s.primary
}
