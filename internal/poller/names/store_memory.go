package names

import (
	"maps"
	"sync"

	"mutuals/pkg/domain"
)

// InMemoryNameStore maps identifiers to display names for one run. Entries are
// added or refreshed as responses reveal names and are never removed.
type InMemoryNameStore struct {
	mu    sync.RWMutex
	names map[domain.UserID]string
}

func New() *InMemoryNameStore {
	return &InMemoryNameStore{names: make(map[domain.UserID]string)}
}

// Put records name for id. Empty names are ignored so a later lookup without
// a name never erases one learned earlier.
func (s *InMemoryNameStore) Put(id domain.UserID, name string) {
	if id.IsNil() || name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[id] = name
}

func (s *InMemoryNameStore) Lookup(id domain.UserID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[id]
	return name, ok
}

// DisplayName returns the known name for id, or the id itself.
func (s *InMemoryNameStore) DisplayName(id domain.UserID) string {
	if name, ok := s.Lookup(id); ok {
		return name
	}
	return id.String()
}

func (s *InMemoryNameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Snapshot returns a copy safe to read after the run.
func (s *InMemoryNameStore) Snapshot() map[domain.UserID]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.names)
}
