package cases

import (
	"context"
	"fmt"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/idgen"
	"github.com/mbd888/fraudwatch/internal/metrics"
)

// DefaultAnalyst is attributed when a case action arrives without an actor.
const DefaultAnalyst = "fraud_analyst_1"

// Service applies investigator actions to cases and serves the read side of
// the alert/case workflow.
type Service struct {
	store     Store
	clk       clock.Clock
	publisher Publisher
}

// NewService creates a case service.
func NewService(store Store) *Service {
	return &Service{store: store, clk: clock.System}
}

// WithClock overrides the clock. Used in tests.
func (s *Service) WithClock(clk clock.Clock) *Service {
	s.clk = clk
	return s
}

// WithPublisher sets the live event publisher.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// ApplyAction validates the action, appends it to the audit trail, and moves
// the case to the action's mapped status in one atomic unit.
func (s *Service) ApplyAction(ctx context.Context, caseID, action, performedBy, notes string) (*Case, error) {
	status, ok := statusForAction[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
	if performedBy == "" {
		performedBy = DefaultAnalyst
	}

	rec := &CaseAction{
		ID:          idgen.WithPrefix("act_"),
		CaseID:      caseID,
		Action:      action,
		PerformedBy: performedBy,
		Notes:       notes,
		CreatedAt:   s.clk.Now(),
	}
	updated, err := s.store.ApplyCaseAction(ctx, rec, status)
	if err != nil {
		return nil, err
	}

	metrics.CaseActionsTotal.WithLabelValues(action).Inc()
	if s.publisher != nil {
		s.publisher.Publish("case.action", rec)
	}
	return updated, nil
}

// AuditTrail returns the case's action history, oldest first.
func (s *Service) AuditTrail(ctx context.Context, caseID string) ([]*CaseAction, error) {
	return s.store.ListCaseActions(ctx, caseID)
}

// GetCase returns one case.
func (s *Service) GetCase(ctx context.Context, id string) (*Case, error) {
	return s.store.GetCase(ctx, id)
}

// ListCases returns cases, optionally filtered by status.
func (s *Service) ListCases(ctx context.Context, status string) ([]*Case, error) {
	return s.store.ListCases(ctx, status)
}

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, id string) (*Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// ListAlerts returns alerts ordered by severity then recency.
func (s *Service) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error) {
	return s.store.ListAlerts(ctx, filter)
}
