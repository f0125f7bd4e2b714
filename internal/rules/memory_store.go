package rules

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Definition
	byName map[string]*Definition
}

// NewMemoryStore creates an in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Definition),
		byName: make(map[string]*Definition),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rule *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rule
	s.byID[cp.ID] = &cp
	s.byName[cp.Name] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.byID[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	cp := *rule
	return &cp, nil
}

func (s *MemoryStore) GetByName(ctx context.Context, name string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.byName[name]
	if !ok {
		return nil, ErrRuleNotFound
	}
	cp := *rule
	return &cp, nil
}

func (s *MemoryStore) ListEnabled(ctx context.Context) ([]*Definition, error) {
	return s.list(true)
}

func (s *MemoryStore) List(ctx context.Context) ([]*Definition, error) {
	return s.list(false)
}

func (s *MemoryStore) list(enabledOnly bool) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Definition
	for _, rule := range s.byID {
		if enabledOnly && !rule.Enabled {
			continue
		}
		cp := *rule
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.byID[id]
	if !ok {
		return ErrRuleNotFound
	}
	rule.Enabled = enabled
	return nil
}
