package dispute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/fraudwatch/internal/idgen"
)

const disputeColumns = `id, alert_id, original_tx_id, source_account_id, beneficiary_account_id,
	amount, currency, reason_category, suspicion_type, status,
	hold_start_at, hold_end_at, max_hold_until, created_at, updated_at`

const eventColumns = `id, disputed_tx_id, event_type, notes, created_by, created_at`

// PostgresStore is a PostgreSQL-backed dispute store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a dispute store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateWithEvent(ctx context.Context, d *DisputedTransaction, ev *VerificationEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO afasa_disputed_transactions (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, nullString(d.AlertID), nullString(d.OriginalTxID),
		d.SourceAccountID, d.BeneficiaryAccountID,
		d.Amount, nullString(d.Currency), d.ReasonCategory, d.SuspicionType, d.Status,
		d.HoldStartAt, d.HoldEndAt, d.MaxHoldUntil, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dispute: %w", err)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateWithEvent(ctx context.Context, d *DisputedTransaction, expectedStatus string, ev *VerificationEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE afasa_disputed_transactions
		SET status = $1, hold_start_at = $2, hold_end_at = $3,
		    max_hold_until = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		d.Status, d.HoldStartAt, d.HoldEndAt, d.MaxHoldUntil, d.UpdatedAt,
		d.ID, expectedStatus)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		// Either the dispute is gone or a concurrent transition won.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM afasa_disputed_transactions WHERE id = $1)`,
			d.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check dispute existence: %w", err)
		}
		if !exists {
			return ErrDisputeNotFound
		}
		return ErrConflict
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*DisputedTransaction, error) {
	query := `SELECT ` + disputeColumns + ` FROM afasa_disputed_transactions WHERE id = $1`
	return scanDispute(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*DisputedTransaction, error) {
	query := `SELECT ` + disputeColumns + ` FROM afasa_disputed_transactions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.SuspicionType != "" {
		args = append(args, filter.SuspicionType)
		query += fmt.Sprintf(" AND suspicion_type = $%d", len(args))
	}
	query += ` ORDER BY created_at`

	return s.queryDisputes(ctx, query, args...)
}

func (s *PostgresStore) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*DisputedTransaction, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM afasa_disputed_transactions
		WHERE status = $1 AND max_hold_until IS NOT NULL AND max_hold_until < $2
		ORDER BY max_hold_until
		LIMIT $3`
	return s.queryDisputes(ctx, query, StatusHeld, now, limit)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev *VerificationEvent) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM afasa_disputed_transactions WHERE id = $1)`,
		ev.DisputeID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check dispute existence: %w", err)
	}
	if !exists {
		return ErrDisputeNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO afasa_verification_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.DisputeID, ev.EventType, nullString(ev.Notes),
		nullString(ev.CreatedBy), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append verification event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, disputeID string) ([]*VerificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM afasa_verification_events
		WHERE disputed_tx_id = $1
		ORDER BY created_at`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification events: %w", err)
	}
	defer rows.Close()

	var out []*VerificationEvent
	for rows.Next() {
		var ev VerificationEvent
		var notes, createdBy sql.NullString
		if err := rows.Scan(&ev.ID, &ev.DisputeID, &ev.EventType,
			&notes, &createdBy, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan verification event: %w", err)
		}
		ev.Notes = notes.String
		ev.CreatedBy = createdBy.String
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertMuleFlag(ctx context.Context, flag *MoneyMuleFlag) (*MoneyMuleFlag, error) {
	if flag.ID == "" {
		flag.ID = idgen.WithPrefix("mmf_")
	}
	query := `
		INSERT INTO afasa_money_mule_flags
			(id, account_id, flag_source, risk_score, is_confirmed, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE SET
			flag_source = EXCLUDED.flag_source,
			risk_score = EXCLUDED.risk_score,
			is_confirmed = EXCLUDED.is_confirmed,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, account_id, flag_source, risk_score, is_confirmed, notes, created_at, updated_at`

	var out MoneyMuleFlag
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, query,
		flag.ID, flag.AccountID, flag.FlagSource, flag.RiskScore,
		flag.IsConfirmed, nullString(flag.Notes), flag.CreatedAt, flag.UpdatedAt).
		Scan(&out.ID, &out.AccountID, &out.FlagSource, &out.RiskScore,
			&out.IsConfirmed, &notes, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert mule flag: %w", err)
	}
	out.Notes = notes.String
	return &out, nil
}

func (s *PostgresStore) ListMuleFlags(ctx context.Context, accountID string) ([]*MoneyMuleFlag, error) {
	query := `
		SELECT id, account_id, flag_source, risk_score, is_confirmed, notes, created_at, updated_at
		FROM afasa_money_mule_flags`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = $1`
		args = append(args, accountID)
	}
	query += ` ORDER BY account_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mule flags: %w", err)
	}
	defer rows.Close()

	var out []*MoneyMuleFlag
	for rows.Next() {
		var flag MoneyMuleFlag
		var notes sql.NullString
		if err := rows.Scan(&flag.ID, &flag.AccountID, &flag.FlagSource, &flag.RiskScore,
			&flag.IsConfirmed, &notes, &flag.CreatedAt, &flag.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mule flag: %w", err)
		}
		flag.Notes = notes.String
		out = append(out, &flag)
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryDisputes(ctx context.Context, query string, args ...any) ([]*DisputedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var out []*DisputedTransaction
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*DisputedTransaction, error) {
	var d DisputedTransaction
	var alertID, originalTxID, currency sql.NullString
	var holdStart, holdEnd, maxHold sql.NullTime

	err := row.Scan(&d.ID, &alertID, &originalTxID,
		&d.SourceAccountID, &d.BeneficiaryAccountID,
		&d.Amount, &currency, &d.ReasonCategory, &d.SuspicionType, &d.Status,
		&holdStart, &holdEnd, &maxHold, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dispute: %w", err)
	}

	d.AlertID = alertID.String
	d.OriginalTxID = originalTxID.String
	d.Currency = currency.String
	if holdStart.Valid {
		t := holdStart.Time
		d.HoldStartAt = &t
	}
	if holdEnd.Valid {
		t := holdEnd.Time
		d.HoldEndAt = &t
	}
	if maxHold.Valid {
		t := maxHold.Time
		d.MaxHoldUntil = &t
	}
	return &d, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *VerificationEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO afasa_verification_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.DisputeID, ev.EventType, nullString(ev.Notes),
		nullString(ev.CreatedBy), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record verification event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
