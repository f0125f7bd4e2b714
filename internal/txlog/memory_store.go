package txlog

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	byRef map[string]*Transaction
	all   []*Transaction
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Transaction),
		byRef: make(map[string]*Transaction),
	}
}

func (s *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tx
	s.byID[cp.ID] = &cp
	if cp.Reference != "" {
		s.byRef[cp.Reference] = &cp
	}
	s.all = append(s.all, &cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byRef[reference]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (s *MemoryStore) CountDistinctSenders(ctx context.Context, receiver string, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	senders := make(map[string]struct{})
	for _, tx := range s.all {
		if tx.ReceiverAccountID == receiver && inWindow(tx.OccurredAt, from, to) {
			senders[tx.SenderAccountID] = struct{}{}
		}
	}
	return len(senders), nil
}

func (s *MemoryStore) SumInflow(ctx context.Context, account string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, tx := range s.all {
		if tx.ReceiverAccountID == account && inWindow(tx.OccurredAt, from, to) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (s *MemoryStore) SumOutflow(ctx context.Context, account string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, tx := range s.all {
		if tx.SenderAccountID == account && inWindow(tx.OccurredAt, from, to) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (s *MemoryStore) CountDistinctFingerprints(ctx context.Context, sender string, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prints := make(map[string]struct{})
	for _, tx := range s.all {
		if tx.SenderAccountID == sender && tx.DeviceFingerprint != "" && inWindow(tx.OccurredAt, from, to) {
			prints[tx.DeviceFingerprint] = struct{}{}
		}
	}
	return len(prints), nil
}
