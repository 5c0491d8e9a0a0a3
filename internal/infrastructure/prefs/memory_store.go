package prefs

import (
	"sync"

	"github.com/jhoicas/mercado-local/internal/application/ports"
)

// MemoryStore almacén en memoria; no sobrevive al proceso. Útil con --ephemeral.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ ports.SessionStore = (*MemoryStore)(nil)

// NewMemoryStore crea un almacén vacío.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.data, key)
		return nil
	}
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]string)
	return nil
}
