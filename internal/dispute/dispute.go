// Package dispute implements the regulated hold/verify/release/escalate
// workflow for disputed transactions, including the statutory max-hold
// enforcement sweep and the money-mule soft-flag registry.
//
// Every state transition writes exactly one verification event in the same
// atomic unit as the status change. The event trail is the audit record and
// is never edited or deleted.
package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDisputeNotFound       = errors.New("disputed transaction not found")
	ErrInvalidReasonCategory = errors.New("invalid reason_category")
	ErrInvalidSuspicionType  = errors.New("invalid suspicion_type")
	ErrInvalidEventType      = errors.New("invalid event type")
	ErrInvalidFlagSource     = errors.New("invalid flag source")

	// ErrConflict means a concurrent transition won the race on the same
	// dispute. The caller may re-read and retry.
	ErrConflict = errors.New("dispute was modified concurrently")
)

// Dispute statuses. PENDING_HOLD is initial; RELEASED, WRITTEN_OFF, and
// ESCALATED are terminal.
const (
	StatusPendingHold = "PENDING_HOLD"
	StatusHeld        = "HELD"
	StatusReleased    = "RELEASED"
	StatusWrittenOff  = "WRITTEN_OFF"
	StatusEscalated   = "ESCALATED"
)

// Verification event types.
const (
	EventInitiated         = "INITIATED"
	EventCustomerContacted = "CUSTOMER_CONTACTED"
	EventFundsReleased     = "FUNDS_RELEASED"
	EventFundsRestituted   = "FUNDS_RESTITUTED"
	EventEscalatedToLEA    = "ESCALATED_TO_LEA"
)

// Reason categories for initiating a dispute.
const (
	ReasonFMSDetected    = "FMS_DETECTED"
	ReasonCustomerReport = "CUSTOMER_REPORT"
	ReasonLEAReferral    = "LEA_REFERRAL"
	ReasonPartnerFIAlert = "PARTNER_FI_ALERT"
)

// Suspicion types.
const (
	SuspicionMoneyMule         = "MONEY_MULE"
	SuspicionSocialEngineering = "SOCIAL_ENGINEERING"
	SuspicionAccountTakeover   = "ACCOUNT_TAKEOVER"
	SuspicionOther             = "OTHER"
)

// Money-mule flag sources.
const (
	FlagSourceRuleEngine     = "RULE_ENGINE"
	FlagSourceGraphAnalytics = "GRAPH_ANALYTICS"
	FlagSourceManualReview   = "MANUAL_REVIEW"
)

// ValidReasonCategory reports whether c is a known reason category.
func ValidReasonCategory(c string) bool {
	switch c {
	case ReasonFMSDetected, ReasonCustomerReport, ReasonLEAReferral, ReasonPartnerFIAlert:
		return true
	}
	return false
}

// ValidSuspicionType reports whether s is a known suspicion type.
func ValidSuspicionType(s string) bool {
	switch s {
	case SuspicionMoneyMule, SuspicionSocialEngineering, SuspicionAccountTakeover, SuspicionOther:
		return true
	}
	return false
}

// ValidEventType reports whether t is a known verification event type.
func ValidEventType(t string) bool {
	switch t {
	case EventInitiated, EventCustomerContacted, EventFundsReleased,
		EventFundsRestituted, EventEscalatedToLEA:
		return true
	}
	return false
}

// ValidFlagSource reports whether s is a known mule-flag source.
func ValidFlagSource(s string) bool {
	switch s {
	case FlagSourceRuleEngine, FlagSourceGraphAnalytics, FlagSourceManualReview:
		return true
	}
	return false
}

// DisputedTransaction is the subject of the regulated workflow. Created by
// Initiate, mutated only by the lifecycle operations, never deleted.
type DisputedTransaction struct {
	ID                   string              `json:"id"`
	AlertID              string              `json:"alertId,omitempty"`
	OriginalTxID         string              `json:"originalTxId,omitempty"`
	SourceAccountID      string              `json:"sourceAccountId"`
	BeneficiaryAccountID string              `json:"beneficiaryAccountId"`
	Amount               decimal.NullDecimal `json:"amount,omitempty"`
	Currency             string              `json:"currency,omitempty"`
	ReasonCategory       string              `json:"reasonCategory"`
	SuspicionType        string              `json:"suspicionType"`
	Status               string              `json:"status"`
	HoldStartAt          *time.Time          `json:"holdStartAt,omitempty"`
	HoldEndAt            *time.Time          `json:"holdEndAt,omitempty"`
	MaxHoldUntil         *time.Time          `json:"maxHoldUntil,omitempty"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

// Terminal reports whether the dispute has reached a terminal status.
func (d *DisputedTransaction) Terminal() bool {
	switch d.Status {
	case StatusReleased, StatusWrittenOff, StatusEscalated:
		return true
	}
	return false
}

// VerificationEvent is one immutable audit entry on a dispute.
type VerificationEvent struct {
	ID        string    `json:"id"`
	DisputeID string    `json:"disputeId"`
	EventType string    `json:"eventType"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MoneyMuleFlag is a long-lived soft flag on an account, independent of the
// dispute state machine.
type MoneyMuleFlag struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	FlagSource  string    `json:"flagSource"`
	RiskScore   int       `json:"riskScore,omitempty"`
	IsConfirmed bool      `json:"isConfirmed"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Filter narrows List. Zero values mean no filtering.
type Filter struct {
	Status        string
	SuspicionType string
}

// Store persists disputes, their verification events, and mule flags.
//
// CreateWithEvent and UpdateWithEvent are atomic: the status write and its
// audit event land together or not at all. UpdateWithEvent additionally
// checks that the row still carries expectedStatus and returns ErrConflict
// when a concurrent transition won.
type Store interface {
	CreateWithEvent(ctx context.Context, d *DisputedTransaction, ev *VerificationEvent) error
	UpdateWithEvent(ctx context.Context, d *DisputedTransaction, expectedStatus string, ev *VerificationEvent) error
	Get(ctx context.Context, id string) (*DisputedTransaction, error)
	List(ctx context.Context, filter Filter) ([]*DisputedTransaction, error)
	// ListExpiredHeld returns HELD disputes whose max_hold_until is strictly
	// before now.
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*DisputedTransaction, error)

	AppendEvent(ctx context.Context, ev *VerificationEvent) error
	ListEvents(ctx context.Context, disputeID string) ([]*VerificationEvent, error)

	UpsertMuleFlag(ctx context.Context, flag *MoneyMuleFlag) (*MoneyMuleFlag, error)
	ListMuleFlags(ctx context.Context, accountID string) ([]*MoneyMuleFlag, error)
}
