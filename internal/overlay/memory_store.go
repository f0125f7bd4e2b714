package overlay

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	byAnchor map[Anchor][]*InvestigatorAction
}

// NewMemoryStore creates an in-memory investigator action store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAnchor: make(map[Anchor][]*InvestigatorAction)}
}

func (s *MemoryStore) Create(ctx context.Context, action *InvestigatorAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Anchor{ID: action.AnchorID, Type: action.AnchorType}
	cp := *action
	s.byAnchor[key] = append(s.byAnchor[key], &cp)
	return nil
}

func (s *MemoryStore) ListByAnchor(ctx context.Context, anchor Anchor) ([]*InvestigatorAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := s.byAnchor[anchor]
	out := make([]*InvestigatorAction, 0, len(actions))
	for _, a := range actions {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) HasFlag(ctx context.Context, anchor Anchor) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.byAnchor[anchor] {
		if a.Action == ActionFlag {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) HasFlagBatch(ctx context.Context, anchors []Anchor) (map[Anchor]bool, error) {
	out := make(map[Anchor]bool, len(anchors))
	for _, anchor := range anchors {
		flagged, err := s.HasFlag(ctx, anchor)
		if err != nil {
			return nil, err
		}
		out[anchor] = flagged
	}
	return out, nil
}
