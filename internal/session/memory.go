package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    Data
	expires time.Time
}

// MemoryStore keeps sessions in process. Sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(e.expires) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	data := e.data
	return &data, nil
}

func (s *MemoryStore) Set(ctx context.Context, id string, data *Data, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sessions[id] = memoryEntry{data: *data, expires: now.Add(ttl)}

	// drop expired entries on write so the map stays bounded
	for k, e := range s.sessions {
		if now.After(e.expires) {
			delete(s.sessions, k)
		}
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
