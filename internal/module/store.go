package module

import (
	"sort"
	"sync"
)

// Store owns one Record per Identity.
type Store struct {
	mu      sync.RWMutex
	records map[Identity]*Record
}

func NewStore() *Store {
	return &Store{records: make(map[Identity]*Record)}
}

// GetOrCreate returns the record for id, creating an Unresolved one on first use.
func (s *Store) GetOrCreate(id Identity) *Record {
	s.mu.RLock()
	r := s.records[id]
	s.mu.RUnlock()
	if r != nil {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r = s.records[id]; r == nil {
		r = newRecord(id)
		s.records[id] = r
	}
	return r
}

func (s *Store) Get(id Identity) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// Records returns every record sorted by identity.
func (s *Store) Records() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
