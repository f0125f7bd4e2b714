package cases

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/fraudwatch/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu              sync.RWMutex
	accountsByNum   map[string]*Account
	devicesByID     map[string]*Device
	alerts          map[string]*Alert
	cases           map[string]*Case
	casesByAlert    map[string]*Case
	actionsByCaseID map[string][]*CaseAction
	now             func() time.Time
}

// NewMemoryStore creates an in-memory case store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accountsByNum:   make(map[string]*Account),
		devicesByID:     make(map[string]*Device),
		alerts:          make(map[string]*Alert),
		cases:           make(map[string]*Case),
		casesByAlert:    make(map[string]*Case),
		actionsByCaseID: make(map[string][]*CaseAction),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) UpsertAccount(ctx context.Context, accountNumber, customerName string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accountsByNum[accountNumber]; ok {
		// Never overwrite identity fields with weaker data.
		if existing.CustomerName == "" || existing.CustomerName == "Unknown" {
			if customerName != "" {
				existing.CustomerName = customerName
			}
		}
		cp := *existing
		return &cp, nil
	}

	account := &Account{
		ID:            idgen.WithPrefix("acc_"),
		AccountNumber: accountNumber,
		CustomerName:  customerName,
		CreatedAt:     s.now(),
	}
	s.accountsByNum[accountNumber] = account
	cp := *account
	return &cp, nil
}

func (s *MemoryStore) UpsertDevice(ctx context.Context, deviceID, deviceType string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.devicesByID[deviceID]; ok {
		cp := *existing
		return &cp, nil
	}

	device := &Device{
		ID:         idgen.WithPrefix("dev_"),
		DeviceID:   deviceID,
		DeviceType: deviceType,
		CreatedAt:  s.now(),
	}
	s.devicesByID[deviceID] = device
	cp := *device
	return &cp, nil
}

func (s *MemoryStore) CreateAlertWithCase(ctx context.Context, alert *Alert, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alertCp := *alert
	caseCp := *c
	s.alerts[alertCp.ID] = &alertCp
	s.cases[caseCp.ID] = &caseCp
	s.casesByAlert[caseCp.AlertID] = &caseCp
	return nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	for _, alert := range s.alerts {
		if filter.Status != "" && alert.Status != filter.Status {
			continue
		}
		if filter.RulePrefix != "" && !strings.HasPrefix(alert.RuleName, filter.RulePrefix) {
			continue
		}
		cp := *alert
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) TagAlert(ctx context.Context, alertID, suspicionType string, riskScore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return ErrAlertNotFound
	}
	alert.IsAFASA = true
	alert.AFASASuspicionType = suspicionType
	alert.AFASARiskScore = riskScore
	return nil
}

func (s *MemoryStore) GetCase(ctx context.Context, id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetCaseByAlert(ctx context.Context, alertID string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.casesByAlert[alertID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCases(ctx context.Context, status string) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Case
	for _, c := range s.cases {
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ApplyCaseAction(ctx context.Context, action *CaseAction, status string) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[action.CaseID]
	if !ok {
		return nil, ErrCaseNotFound
	}

	cp := *action
	s.actionsByCaseID[action.CaseID] = append(s.actionsByCaseID[action.CaseID], &cp)
	c.Status = status
	if alert, ok := s.alerts[c.AlertID]; ok {
		alert.Status = status
	}

	out := *c
	return &out, nil
}

func (s *MemoryStore) ListCaseActions(ctx context.Context, caseID string) ([]*CaseAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := s.actionsByCaseID[caseID]
	out := make([]*CaseAction, 0, len(actions))
	for _, a := range actions {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}
