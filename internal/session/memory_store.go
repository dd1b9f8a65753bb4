package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the redis-less session store. Entries carry the same TTL
// as the redis variant so abandoned flows evict instead of accumulating.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, ownerID int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ownerID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, ownerID)
		return Session{State: Idle}, nil
	}
	return entry.session, nil
}

func (s *MemoryStore) Set(_ context.Context, ownerID int64, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[ownerID] = memoryEntry{
		session:   sess,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, ownerID)
	return nil
}
