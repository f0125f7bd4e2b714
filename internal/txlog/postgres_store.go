package txlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, reference, sender_account_id, receiver_account_id, amount,
		currency, occurred_at, channel, auth_method, device_fingerprint, ip_address, created_at`

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_logs (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		tx.ID, tx.Reference, tx.SenderAccountID, tx.ReceiverAccountID,
		tx.Amount.String(), nullString(tx.Currency), tx.OccurredAt,
		nullString(tx.Channel), nullString(tx.AuthMethod),
		nullString(tx.DeviceFingerprint), nullString(tx.IPAddress), tx.CreatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		// Duplicate reference: the row already exists, treat as settled.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transaction_logs WHERE id = $1`, id)
	return scanTransaction(row)
}

func (s *PostgresStore) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transaction_logs WHERE reference = $1`, reference)
	return scanTransaction(row)
}

func (s *PostgresStore) CountDistinctSenders(ctx context.Context, receiver string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT sender_account_id)
		FROM transaction_logs
		WHERE receiver_account_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
	`, receiver, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct senders: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SumInflow(ctx context.Context, account string, from, to time.Time) (decimal.Decimal, error) {
	return s.sumFlow(ctx, "receiver_account_id", account, from, to)
}

func (s *PostgresStore) SumOutflow(ctx context.Context, account string, from, to time.Time) (decimal.Decimal, error) {
	return s.sumFlow(ctx, "sender_account_id", account, from, to)
}

func (s *PostgresStore) sumFlow(ctx context.Context, column, account string, from, to time.Time) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)::TEXT
		FROM transaction_logs
		WHERE `+column+` = $1 AND occurred_at >= $2 AND occurred_at <= $3
	`, account, from, to).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum %s flow: %w", column, err)
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse flow sum %q: %w", raw, err)
	}
	return sum, nil
}

func (s *PostgresStore) CountDistinctFingerprints(ctx context.Context, sender string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT device_fingerprint)
		FROM transaction_logs
		WHERE sender_account_id = $1
		  AND device_fingerprint IS NOT NULL
		  AND occurred_at >= $2 AND occurred_at <= $3
	`, sender, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct fingerprints: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var amount string
	var currency, channel, authMethod, fp, ipAddr sql.NullString
	err := row.Scan(&t.ID, &t.Reference, &t.SenderAccountID, &t.ReceiverAccountID,
		&amount, &currency, &t.OccurredAt, &channel, &authMethod, &fp, &ipAddr, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	t.Currency = currency.String
	t.Channel = channel.String
	t.AuthMethod = authMethod.String
	t.DeviceFingerprint = fp.String
	t.IPAddress = ipAddr.String
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
