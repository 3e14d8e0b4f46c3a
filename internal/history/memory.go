package history

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	limit   int
}

// NewMemoryStore returns an empty store capped at MaxEntries.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), limit: MaxEntries}
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	if len(s.entries) <= s.limit {
		return nil
	}
	all := s.sorted()
	for _, old := range all[s.limit:] {
		delete(s.entries, old.ID)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// sorted must be called with the lock held.
func (s *MemoryStore) sorted() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	newestFirst(out)
	return out
}
