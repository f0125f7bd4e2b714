package overlay

import (
	"context"
	"errors"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/idgen"
)

var errMissingAction = errors.New("action is required")

// Service records investigator actions against anchors.
type Service struct {
	store Store
	clk   clock.Clock
}

// NewService creates an investigator action service.
func NewService(store Store) *Service {
	return &Service{store: store, clk: clock.System}
}

// WithClock overrides the clock. Used in tests.
func (s *Service) WithClock(clk clock.Clock) *Service {
	s.clk = clk
	return s
}

// SetFlag appends a FLAG override for the anchor. Permanent; the resolver
// has no unflag.
func (s *Service) SetFlag(ctx context.Context, anchor Anchor, ruleKey, note string) (*InvestigatorAction, error) {
	return s.record(ctx, anchor, ActionFlag, "", note, ruleKey)
}

// AddNote appends a NOTE action for the anchor.
func (s *Service) AddNote(ctx context.Context, anchor Anchor, ruleKey, note string) (*InvestigatorAction, error) {
	if note == "" {
		return nil, errors.New("note is required")
	}
	return s.record(ctx, anchor, ActionNote, "", note, ruleKey)
}

// RecordAction appends a free-form investigator action.
func (s *Service) RecordAction(ctx context.Context, anchor Anchor, action, status, note, ruleKey string) (*InvestigatorAction, error) {
	if action == "" {
		return nil, errMissingAction
	}
	return s.record(ctx, anchor, action, status, note, ruleKey)
}

// History returns the anchor's full action trail, oldest first.
func (s *Service) History(ctx context.Context, anchor Anchor) ([]*InvestigatorAction, error) {
	if err := validateAnchor(anchor); err != nil {
		return nil, err
	}
	return s.store.ListByAnchor(ctx, anchor)
}

func (s *Service) record(ctx context.Context, anchor Anchor, action, status, note, ruleKey string) (*InvestigatorAction, error) {
	if err := validateAnchor(anchor); err != nil {
		return nil, err
	}

	rec := &InvestigatorAction{
		ID:         idgen.WithPrefix("iva_"),
		AnchorID:   anchor.ID,
		AnchorType: anchor.Type,
		Action:     action,
		Status:     status,
		Note:       note,
		RuleKey:    ruleKey,
		CreatedAt:  s.clk.Now(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func validateAnchor(anchor Anchor) error {
	if anchor.ID == "" {
		return ErrMissingAnchor
	}
	if !ValidAnchorType(anchor.Type) {
		return ErrInvalidAnchorType
	}
	return nil
}
