package store

import (
	"context"
	"sync"
	"time"
)

// Store keeps the state that outlives a single connection: the cached list of
// host origins fetched from the remote allow-list, and a journal of envelopes
// a host has already handled.
type Store interface {
	SetValidOrigins(ctx context.Context, origins []string, ttl time.Duration) error
	// GetValidOrigins reports ok=false when nothing is cached or the entry
	// expired. A cached empty list is a hit.
	GetValidOrigins(ctx context.Context) (origins []string, ok bool, err error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error
}

type MemoryStore struct {
	mu            sync.RWMutex
	origins       []string
	originsSet    bool
	originsExpire time.Time
	processed     map[string]time.Time
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processed: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (m *MemoryStore) SetValidOrigins(_ context.Context, origins []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.origins = append([]string{}, origins...)
	m.originsSet = true
	m.originsExpire = m.now().Add(ttl)
	return nil
}

func (m *MemoryStore) GetValidOrigins(_ context.Context) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.originsSet || !m.now().Before(m.originsExpire) {
		return nil, false, nil
	}
	return append([]string{}, m.origins...), true, nil
}

func (m *MemoryStore) IsProcessed(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expireAt, ok := m.processed[key]
	if !ok {
		return false, nil
	}
	return m.now().Before(expireAt), nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, expireAt := range m.processed {
		if !now.Before(expireAt) {
			delete(m.processed, k)
		}
	}
	m.processed[key] = now.Add(ttl)
	return nil
}
