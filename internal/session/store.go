package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store holds the sessions known to one orchestrator. Callers only ever see
// copies; mutation goes through Update.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    clockwork.Clock
}

// NewStore creates an empty store. A nil clock uses the real clock.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{sessions: make(map[string]*Session), clock: clock}
}

// Create allocates a new IDLE session for key.
func (s *Store) Create(key, inputHash string) Session {
	now := s.clock.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		InputHash: inputHash,
		Phase:     PhaseIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess.Clone()
}

// Restore inserts a READY session recreated from a cached artifact.
func (s *Store) Restore(id, key, inputHash string) Session {
	now := s.clock.Now()
	sess := &Session{
		ID:        id,
		Key:       key,
		InputHash: inputHash,
		Phase:     PhaseReady,
		Progress:  1,
		Step:      "restored from cache",
		CreatedAt: now,
		UpdatedAt: now,
		Restored:  true,
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess.Clone()
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.Clone(), true
}

// Update applies fn to the session under the store lock and returns the
// resulting snapshot. If fn fails the session is left unchanged.
func (s *Store) Update(id string, fn func(*Session, time.Time) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound.WithContext("session_id", id)
	}
	working := sess.Clone()
	if err := fn(&working, s.clock.Now()); err != nil {
		return sess.Clone(), err
	}
	*sess = working
	return working.Clone(), nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// List returns snapshots of all sessions.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// TerminalBefore returns terminal sessions last updated before cutoff.
func (s *Store) TerminalBefore(cutoff time.Time) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.Phase.Terminal() && sess.UpdatedAt.Before(cutoff) {
			out = append(out, sess.Clone())
		}
	}
	return out
}
