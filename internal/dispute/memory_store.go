package dispute

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu            sync.RWMutex
	disputes      map[string]*DisputedTransaction
	events        map[string][]*VerificationEvent
	flagsByAcct   map[string]*MoneyMuleFlag
	orderedFlags  []string
	orderInserted []string
}

// NewMemoryStore creates an in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disputes:    make(map[string]*DisputedTransaction),
		events:      make(map[string][]*VerificationEvent),
		flagsByAcct: make(map[string]*MoneyMuleFlag),
	}
}

func (s *MemoryStore) CreateWithEvent(ctx context.Context, d *DisputedTransaction, ev *VerificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dCp := *d
	evCp := *ev
	s.disputes[dCp.ID] = &dCp
	s.events[evCp.DisputeID] = append(s.events[evCp.DisputeID], &evCp)
	s.orderInserted = append(s.orderInserted, dCp.ID)
	return nil
}

func (s *MemoryStore) UpdateWithEvent(ctx context.Context, d *DisputedTransaction, expectedStatus string, ev *VerificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.disputes[d.ID]
	if !ok {
		return ErrDisputeNotFound
	}
	if current.Status != expectedStatus {
		return ErrConflict
	}

	dCp := *d
	evCp := *ev
	s.disputes[dCp.ID] = &dCp
	s.events[evCp.DisputeID] = append(s.events[evCp.DisputeID], &evCp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*DisputedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*DisputedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*DisputedTransaction
	for _, id := range s.orderInserted {
		d := s.disputes[id]
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.SuspicionType != "" && d.SuspicionType != filter.SuspicionType {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*DisputedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*DisputedTransaction
	for _, id := range s.orderInserted {
		d := s.disputes[id]
		if d.Status != StatusHeld || d.MaxHoldUntil == nil {
			continue
		}
		if !d.MaxHoldUntil.Before(now) {
			continue
		}
		cp := *d
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev *VerificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[ev.DisputeID]; !ok {
		return ErrDisputeNotFound
	}
	cp := *ev
	s.events[ev.DisputeID] = append(s.events[ev.DisputeID], &cp)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, disputeID string) ([]*VerificationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[disputeID]
	out := make([]*VerificationEvent, 0, len(events))
	for _, ev := range events {
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) UpsertMuleFlag(ctx context.Context, flag *MoneyMuleFlag) (*MoneyMuleFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.flagsByAcct[flag.AccountID]; ok {
		existing.FlagSource = flag.FlagSource
		existing.RiskScore = flag.RiskScore
		existing.IsConfirmed = flag.IsConfirmed
		existing.Notes = flag.Notes
		existing.UpdatedAt = flag.UpdatedAt
		cp := *existing
		return &cp, nil
	}

	cp := *flag
	s.flagsByAcct[flag.AccountID] = &cp
	s.orderedFlags = append(s.orderedFlags, flag.AccountID)
	out := cp
	return &out, nil
}

func (s *MemoryStore) ListMuleFlags(ctx context.Context, accountID string) ([]*MoneyMuleFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if accountID != "" {
		flag, ok := s.flagsByAcct[accountID]
		if !ok {
			return nil, nil
		}
		cp := *flag
		return []*MoneyMuleFlag{&cp}, nil
	}

	ids := make([]string, len(s.orderedFlags))
	copy(ids, s.orderedFlags)
	sort.Strings(ids)

	out := make([]*MoneyMuleFlag, 0, len(ids))
	for _, id := range ids {
		cp := *s.flagsByAcct[id]
		out = append(out, &cp)
	}
	return out, nil
}
