// Package txlog stores payment-event snapshots used as scoring input.
//
// Rows are append-only and sourced from upstream ingestion; the core never
// edits or deletes them. The Store also answers the sliding-window aggregate
// queries the risk scorer needs (fan-in, inflow/outflow, device churn).
package txlog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("transaction not found")

// Transaction is a snapshot of a single payment event.
type Transaction struct {
	ID                string          `json:"id"`
	Reference         string          `json:"reference"` // natural key, unique
	SenderAccountID   string          `json:"senderAccountId"`
	ReceiverAccountID string          `json:"receiverAccountId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	OccurredAt        time.Time       `json:"occurredAt"`
	Channel           string          `json:"channel,omitempty"`
	AuthMethod        string          `json:"authMethod,omitempty"`
	DeviceFingerprint string          `json:"deviceFingerprint,omitempty"`
	IPAddress         string          `json:"ipAddress,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Store persists transaction snapshots and answers window aggregates.
// All window queries are inclusive of the interval end.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)

	// CountDistinctSenders counts distinct sender accounts that paid receiver
	// within [from, to].
	CountDistinctSenders(ctx context.Context, receiver string, from, to time.Time) (int, error)
	// SumInflow totals amounts received by account within [from, to].
	SumInflow(ctx context.Context, account string, from, to time.Time) (decimal.Decimal, error)
	// SumOutflow totals amounts sent by account within [from, to].
	SumOutflow(ctx context.Context, account string, from, to time.Time) (decimal.Decimal, error)
	// CountDistinctFingerprints counts distinct non-empty device fingerprints
	// used by sender within [from, to].
	CountDistinctFingerprints(ctx context.Context, sender string, from, to time.Time) (int, error)
}
