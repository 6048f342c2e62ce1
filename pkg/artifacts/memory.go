package artifacts

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory artifact store used by tests
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores the artifact
func (s *MemoryStore) Put(ctx context.Context, category, id, contentType string, data []byte) (Location, error) {
	key := objectKey(category, id)

	s.mu.Lock()
	s.objects[key] = append([]byte(nil), data...)
	s.mu.Unlock()

	return Location{
		Category:    category,
		ID:          id,
		ContentType: contentType,
		Size:        int64(len(data)),
		Ref:         key,
	}, nil
}

// Get reads an artifact's contents
func (s *MemoryStore) Get(ctx context.Context, category, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[objectKey(category, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes an artifact
func (s *MemoryStore) Delete(ctx context.Context, category, id string) (bool, error) {
	key := objectKey(category, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns the IDs stored under a category
func (s *MemoryStore) List(ctx context.Context, category string) ([]string, error) {
	prefix := category + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for key := range s.objects {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, key[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Driver returns the driver identifier
func (s *MemoryStore) Driver() Driver {
	return DriverMemory
}
