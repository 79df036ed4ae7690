package attachment

import (
	"fmt"
	"sync"
)

type memoryPart struct {
	relType string
	data    []byte
}

// MemoryStore keeps every attachment in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	parts map[string]memoryPart
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{parts: make(map[string]memoryPart)}
}

func (s *MemoryStore) Add(p string, data []byte, relationshipType string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parts[p]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, p)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.parts[p] = memoryPart{relType: relationshipType, data: buf}
	s.order = append(s.order, p)
	return nil
}

func (s *MemoryStore) Find(p string) (*Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part, ok := s.parts[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return &Attachment{Path: p, RelationshipType: part.relType, Data: part.data}, nil
}

// Paths returns attachment paths in insertion order.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
