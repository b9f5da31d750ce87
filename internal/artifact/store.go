package artifact

import (
	"context"
	"sync"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

// ErrNotFound indicates no bundle is stored for the session.
var ErrNotFound = errors.NotFoundError("artifact not found").Build()

// Store persists bundles by session id.
type Store interface {
	// Save publishes b atomically; readers never observe a partial bundle.
	Save(ctx context.Context, b Bundle) error
	// Load returns the bundle or ErrNotFound.
	Load(ctx context.Context, sessionID string) (Bundle, error)
	// Delete removes the bundle; deleting a missing session is a no-op.
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps bundles in memory. It is used by `landingd build` and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string]Bundle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]Bundle)}
}

func (m *MemoryStore) Save(_ context.Context, b Bundle) error {
	if err := b.Validate(); err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid bundle").Build()
	}
	b.Files = b.Files.Clone()
	m.mu.Lock()
	m.bundles[b.SessionID] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[sessionID]
	if !ok {
		return Bundle{}, ErrNotFound.WithContext("session_id", sessionID)
	}
	b.Files = b.Files.Clone()
	return b, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.bundles, sessionID)
	m.mu.Unlock()
	return nil
}
