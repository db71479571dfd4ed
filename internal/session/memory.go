package session

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.Expired(time.Now()) {
		_ = m.Delete(ctx, id)
		return nil, ErrNotFound
	}
	s.Cookies = append([]Cookie(nil), s.Cookies...)
	return &s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	cp := *s
	cp.Cookies = append([]Cookie(nil), s.Cookies...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cp
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
