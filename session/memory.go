package session

import (
	"sync"

	"github.com/saiset-co/servicehub-client/types"
)

// MemoryStore keeps the session for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	session types.Session
}

func NewMemoryStore(_ *types.SessionConfig) (types.SessionStore, error) {
	return &MemoryStore{}, nil
}

func (m *MemoryStore) Save(session types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	return nil
}

func (m *MemoryStore) Load() (types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = types.Session{}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
