package transcript

import (
	"context"
	"sync"
)

// MemoryStorer keeps entries in process memory.
type MemoryStorer struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewMemoryStorer creates an empty in-memory store.
func NewMemoryStorer() *MemoryStorer {
	return &MemoryStorer{entries: make(map[string]*Entry)}
}

// Put implements Storer.
func (s *MemoryStorer) Put(_ context.Context, entry *Entry) (bool, error) {
	if entry == nil {
		return false, errNilEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.Hash]; ok {
		return false, nil
	}
	s.entries[entry.Hash] = entry
	s.order = append(s.order, entry.Hash)
	return true, nil
}

// Get implements Storer.
func (s *MemoryStorer) Get(_ context.Context, hash string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	return e, nil
}

// Has implements Storer.
func (s *MemoryStorer) Has(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[hash]
	return ok, nil
}

// GetByParent implements Storer.
func (s *MemoryStorer) GetByParent(_ context.Context, parentHash *string) ([]*Entry, error) {
	return s.filter(func(e *Entry) bool {
		if parentHash == nil {
			return e.ParentHash == nil
		}
		return e.ParentHash != nil && *e.ParentHash == *parentHash
	}), nil
}

// List implements Storer.
func (s *MemoryStorer) List(_ context.Context) ([]*Entry, error) {
	return s.filter(func(*Entry) bool { return true }), nil
}

// Roots implements Storer.
func (s *MemoryStorer) Roots(ctx context.Context) ([]*Entry, error) {
	return s.GetByParent(ctx, nil)
}

// Leaves implements Storer.
func (s *MemoryStorer) Leaves(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	parents := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		if e.ParentHash != nil {
			parents[*e.ParentHash] = true
		}
	}
	s.mu.RUnlock()

	return s.filter(func(e *Entry) bool { return !parents[e.Hash] }), nil
}

// Close implements Storer.
func (s *MemoryStorer) Close() error {
	return nil
}

func (s *MemoryStorer) filter(keep func(*Entry) bool) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Entry{}
	for _, h := range s.order {
		if e := s.entries[h]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}
