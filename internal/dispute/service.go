package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/idgen"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/syncutil"
	"github.com/mbd888/fraudwatch/internal/traces"
	"github.com/mbd888/fraudwatch/internal/txlog"
)

// DefaultHoldWindowDays is the statutory maximum hold window.
const DefaultHoldWindowDays = 30

// DefaultSystemActor is attributed on sweep-driven transitions.
const DefaultSystemActor = "afasa_auto_enforcer"

// Publisher receives dispute events for live fan-out. Optional.
type Publisher interface {
	Publish(event string, payload any)
}

// Service runs the dispute lifecycle. Sharded per-dispute mutexes serialize
// in-process transitions; the store's expected-status check catches races
// across processes.
type Service struct {
	store  Store
	txs    txlog.Store
	clk    clock.Clock
	logger *slog.Logger

	publisher   Publisher
	holdWindow  time.Duration
	systemActor string
	locks       syncutil.ShardedMutex
}

// NewService creates a dispute service with the default 30-day hold window.
func NewService(store Store, txs txlog.Store) *Service {
	return &Service{
		store:       store,
		txs:         txs,
		clk:         clock.System,
		logger:      slog.Default(),
		holdWindow:  DefaultHoldWindowDays * 24 * time.Hour,
		systemActor: DefaultSystemActor,
	}
}

// WithClock overrides the clock. Used in tests.
func (s *Service) WithClock(clk clock.Clock) *Service {
	s.clk = clk
	return s
}

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// WithHoldWindowDays overrides the statutory hold window.
func (s *Service) WithHoldWindowDays(days int) *Service {
	s.holdWindow = time.Duration(days) * 24 * time.Hour
	return s
}

// WithSystemActor overrides the actor attributed on sweep transitions.
func (s *Service) WithSystemActor(actor string) *Service {
	s.systemActor = actor
	return s
}

// WithPublisher sets the live event publisher.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// Initiate creates a dispute in PENDING_HOLD with the statutory max-hold
// deadline, snapshotting account and amount details from the referenced
// transaction when present.
func (s *Service) Initiate(ctx context.Context, alertID, txID, reasonCategory, suspicionType, initiatedBy string) (*DisputedTransaction, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Initiate")
	defer span.End()

	if !ValidReasonCategory(reasonCategory) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReasonCategory, reasonCategory)
	}
	if !ValidSuspicionType(suspicionType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSuspicionType, suspicionType)
	}

	var tx *txlog.Transaction
	if txID != "" {
		var err error
		tx, err = s.txs.Get(ctx, txID)
		if errors.Is(err, txlog.ErrNotFound) {
			tx = nil
		} else if err != nil {
			return nil, err
		}
	}

	now := s.clk.Now()
	maxHold := now.Add(s.holdWindow)
	d := &DisputedTransaction{
		ID:             idgen.WithPrefix("dsp_"),
		AlertID:        alertID,
		ReasonCategory: reasonCategory,
		SuspicionType:  suspicionType,
		Status:         StatusPendingHold,
		MaxHoldUntil:   &maxHold,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if tx != nil {
		d.OriginalTxID = tx.ID
		d.SourceAccountID = tx.SenderAccountID
		d.BeneficiaryAccountID = tx.ReceiverAccountID
		d.Amount = decimal.NullDecimal{Decimal: tx.Amount, Valid: true}
		d.Currency = tx.Currency
	}

	ev := s.newEvent(d.ID, EventInitiated, "Dispute created", initiatedBy)
	if err := s.store.CreateWithEvent(ctx, d, ev); err != nil {
		return nil, err
	}

	metrics.DisputeTransitionsTotal.WithLabelValues(StatusPendingHold).Inc()
	s.publish("dispute.transitioned", d)
	s.logger.Info("dispute initiated",
		"disputeId", d.ID, "alertId", alertID, "suspicionType", suspicionType)
	return d, nil
}

// ApplyHold moves the dispute to HELD and re-arms the statutory clock.
// Callable regardless of current status; re-applying re-arms the deadline.
func (s *Service) ApplyHold(ctx context.Context, id, actor string) (*DisputedTransaction, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.ApplyHold", traces.DisputeID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	maxHold := now.Add(s.holdWindow)
	previous := d.Status
	d.HoldStartAt = &now
	d.MaxHoldUntil = &maxHold
	d.Status = StatusHeld
	d.UpdatedAt = now

	ev := s.newEvent(d.ID, EventCustomerContacted,
		"Temporary hold applied; verification initiated", actor)
	if err := s.store.UpdateWithEvent(ctx, d, previous, ev); err != nil {
		return nil, err
	}

	metrics.DisputeTransitionsTotal.WithLabelValues(StatusHeld).Inc()
	s.publish("dispute.transitioned", d)
	return d, nil
}

// Release resolves the dispute. RELEASE returns funds, RESTITUTION writes
// them off; any other decision escalates — the fail-safe default.
func (s *Service) Release(ctx context.Context, id, decision, actor, notes string) (*DisputedTransaction, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Release", traces.DisputeID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := d.Status
	var eventType string
	switch strings.ToUpper(decision) {
	case "RELEASE":
		d.Status = StatusReleased
		eventType = EventFundsReleased
	case "RESTITUTION":
		d.Status = StatusWrittenOff
		eventType = EventFundsRestituted
	default:
		// Fail-safe: any unrecognized decision escalates.
		d.Status = StatusEscalated
		eventType = EventEscalatedToLEA
	}

	now := s.clk.Now()
	d.HoldEndAt = &now
	d.UpdatedAt = now

	if notes == "" {
		notes = fmt.Sprintf("Decision: %s", decision)
	}
	ev := s.newEvent(d.ID, eventType, notes, actor)
	if err := s.store.UpdateWithEvent(ctx, d, previous, ev); err != nil {
		return nil, err
	}

	metrics.DisputeTransitionsTotal.WithLabelValues(d.Status).Inc()
	s.publish("dispute.transitioned", d)
	return d, nil
}

// AddEvent appends a verification event without changing dispute status.
func (s *Service) AddEvent(ctx context.Context, id, eventType, notes, actor string) (*VerificationEvent, error) {
	if !ValidEventType(eventType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEventType, eventType)
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}

	ev := s.newEvent(id, eventType, notes, actor)
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// AutoEnforceMaxHold escalates every HELD dispute whose statutory deadline
// has passed. Idempotent: a dispute transitioned out of HELD is never
// selected again. A failure on one row is logged and skipped; rows already
// escalated in the same sweep stay escalated.
func (s *Service) AutoEnforceMaxHold(ctx context.Context) (int, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.AutoEnforceMaxHold")
	defer span.End()

	now := s.clk.Now()
	expired, err := s.store.ListExpiredHeld(ctx, now, 100)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, d := range expired {
		if err := s.escalateExpired(ctx, d.ID, now); err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrDisputeNotFound) {
				// A manual transition won the race; nothing to enforce.
				continue
			}
			s.logger.Warn("failed to escalate expired dispute",
				"disputeId", d.ID, "error", err)
			continue
		}
		count++
		metrics.SweepEscalationsTotal.Inc()
	}
	return count, nil
}

func (s *Service) escalateExpired(ctx context.Context, id string, now time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	// Re-read under the lock; a manual release may have landed since the scan.
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != StatusHeld || d.MaxHoldUntil == nil || !d.MaxHoldUntil.Before(now) {
		return ErrConflict
	}

	previous := d.Status
	d.Status = StatusEscalated
	d.HoldEndAt = &now
	d.UpdatedAt = now

	ev := s.newEvent(d.ID, EventEscalatedToLEA,
		"Max hold reached; escalate or release required", s.systemActor)
	if err := s.store.UpdateWithEvent(ctx, d, previous, ev); err != nil {
		return err
	}

	metrics.DisputeTransitionsTotal.WithLabelValues(StatusEscalated).Inc()
	s.publish("dispute.transitioned", d)
	s.logger.Info("dispute auto-escalated", "disputeId", d.ID)
	return nil
}

// Get returns one dispute.
func (s *Service) Get(ctx context.Context, id string) (*DisputedTransaction, error) {
	return s.store.Get(ctx, id)
}

// List returns disputes matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*DisputedTransaction, error) {
	return s.store.List(ctx, filter)
}

// Events returns a dispute's verification trail, oldest first.
func (s *Service) Events(ctx context.Context, id string) ([]*VerificationEvent, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, id)
}

// Summary aggregates dispute counts by status and suspicion type.
type Summary struct {
	TotalDisputes int            `json:"total_disputes"`
	ByStatus      map[string]int `json:"by_status"`
	BySuspicion   map[string]int `json:"by_suspicion"`
}

// Summarize builds the reporting summary over all disputes.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	disputes, err := s.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalDisputes: len(disputes),
		ByStatus:      make(map[string]int),
		BySuspicion:   make(map[string]int),
	}
	for _, d := range disputes {
		summary.ByStatus[d.Status]++
		summary.BySuspicion[d.SuspicionType]++
	}
	return summary, nil
}

// FlagMule records or updates the soft money-mule flag for an account.
func (s *Service) FlagMule(ctx context.Context, accountID, source string, riskScore int, confirmed bool, notes string) (*MoneyMuleFlag, error) {
	if accountID == "" {
		return nil, errors.New("account_id is required")
	}
	if source == "" {
		source = FlagSourceRuleEngine
	}
	if !ValidFlagSource(source) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFlagSource, source)
	}

	now := s.clk.Now()
	flag := &MoneyMuleFlag{
		ID:          idgen.WithPrefix("mmf_"),
		AccountID:   accountID,
		FlagSource:  source,
		RiskScore:   riskScore,
		IsConfirmed: confirmed,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.store.UpsertMuleFlag(ctx, flag)
}

// MuleFlags lists mule flags, optionally for a single account.
func (s *Service) MuleFlags(ctx context.Context, accountID string) ([]*MoneyMuleFlag, error) {
	return s.store.ListMuleFlags(ctx, accountID)
}

func (s *Service) newEvent(disputeID, eventType, notes, createdBy string) *VerificationEvent {
	return &VerificationEvent{
		ID:        idgen.WithPrefix("vev_"),
		DisputeID: disputeID,
		EventType: eventType,
		Notes:     notes,
		CreatedBy: createdBy,
		CreatedAt: s.clk.Now(),
	}
}

func (s *Service) publish(event string, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(event, payload)
	}
}
