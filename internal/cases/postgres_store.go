package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mbd888/fraudwatch/internal/detection"
	"github.com/mbd888/fraudwatch/internal/idgen"
)

const alertColumns = `id, rule_id, rule_name, subject_account_id, subject_account_number,
	severity, status, summary, details, tx_reference,
	is_afasa, afasa_suspicion_type, afasa_risk_score, created_at`

const caseColumns = `id, alert_id, subject_account_id, status, network_summary,
	linked_accounts, linked_devices, created_at`

// PostgresStore is a PostgreSQL-backed case store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a case store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, accountNumber, customerName string) (*Account, error) {
	account, err := s.getAccountByNumber(ctx, accountNumber)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	account = &Account{
		ID:            idgen.WithPrefix("acc_"),
		AccountNumber: accountNumber,
		CustomerName:  customerName,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, account_number, customer_name, risk_score, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.AccountNumber, account.CustomerName, account.RiskScore, account.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Lost the unique-key race; the row exists now.
			return s.getAccountByNumber(ctx, accountNumber)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) getAccountByNumber(ctx context.Context, accountNumber string) (*Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_number, customer_name, risk_score, created_at
		FROM accounts WHERE account_number = $1`, accountNumber).
		Scan(&account.ID, &account.AccountNumber, &account.CustomerName,
			&account.RiskScore, &account.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *PostgresStore) UpsertDevice(ctx context.Context, deviceID, deviceType string) (*Device, error) {
	device, err := s.getDeviceByNaturalID(ctx, deviceID)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	device = &Device{
		ID:         idgen.WithPrefix("dev_"),
		DeviceID:   deviceID,
		DeviceType: deviceType,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, device_id, device_type, created_at)
		VALUES ($1, $2, $3, $4)`,
		device.ID, device.DeviceID, nullString(device.DeviceType), device.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return s.getDeviceByNaturalID(ctx, deviceID)
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

func (s *PostgresStore) getDeviceByNaturalID(ctx context.Context, deviceID string) (*Device, error) {
	var device Device
	var deviceType sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, device_type, created_at
		FROM devices WHERE device_id = $1`, deviceID).
		Scan(&device.ID, &device.DeviceID, &deviceType, &device.CreatedAt)
	if err != nil {
		return nil, err
	}
	device.DeviceType = deviceType.String
	return &device, nil
}

func (s *PostgresStore) CreateAlertWithCase(ctx context.Context, alert *Alert, c *Case) error {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return fmt.Errorf("failed to encode alert details: %w", err)
	}
	linkedAccounts, err := json.Marshal(emptyIfNilAccounts(c.LinkedAccounts))
	if err != nil {
		return fmt.Errorf("failed to encode linked accounts: %w", err)
	}
	linkedDevices, err := json.Marshal(emptyIfNilDevices(c.LinkedDevices))
	if err != nil {
		return fmt.Errorf("failed to encode linked devices: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		alert.ID, alert.RuleID, alert.RuleName,
		nullString(alert.SubjectAccountID), nullString(alert.SubjectAccountNumber),
		alert.Severity, alert.Status, alert.Summary, details, nullString(alert.TxReference),
		alert.IsAFASA, nullString(alert.AFASASuspicionType), alert.AFASARiskScore, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.AlertID, nullString(c.SubjectAccountID), c.Status,
		nullString(c.NetworkSummary), linkedAccounts, linkedDevices, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	return scanAlert(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.RulePrefix != "" {
		args = append(args, filter.RulePrefix+"%")
		query += fmt.Sprintf(" AND rule_name LIKE $%d", len(args))
	}
	query += `
		ORDER BY CASE severity
			WHEN 'CRITICAL' THEN 4
			WHEN 'HIGH' THEN 3
			WHEN 'MEDIUM' THEN 2
			ELSE 1
		END DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TagAlert(ctx context.Context, alertID, suspicionType string, riskScore int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET is_afasa = TRUE, afasa_suspicion_type = $1, afasa_risk_score = $2
		WHERE id = $3`,
		suspicionType, riskScore, alertID)
	if err != nil {
		return fmt.Errorf("failed to tag alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check tag result: %w", err)
	}
	if rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (s *PostgresStore) GetCase(ctx context.Context, id string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	return scanCase(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetCaseByAlert(ctx context.Context, alertID string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE alert_id = $1`
	return scanCase(s.db.QueryRowContext(ctx, query, alertID))
}

func (s *PostgresStore) ListCases(ctx context.Context, status string) ([]*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyCaseAction(ctx context.Context, action *CaseAction, status string) (*Case, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Row lock so a concurrent action on the same case serializes.
	var alertID string
	err = tx.QueryRowContext(ctx,
		`SELECT alert_id FROM cases WHERE id = $1 FOR UPDATE`, action.CaseID).
		Scan(&alertID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock case: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO case_actions (id, case_id, action, performed_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		action.ID, action.CaseID, action.Action, action.PerformedBy,
		nullString(action.Notes), action.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record case action: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE cases SET status = $1 WHERE id = $2`, status, action.CaseID); err != nil {
		return nil, fmt.Errorf("failed to update case status: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET status = $1 WHERE id = $2`, status, alertID); err != nil {
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit case action: %w", err)
	}
	return s.GetCase(ctx, action.CaseID)
}

func (s *PostgresStore) ListCaseActions(ctx context.Context, caseID string) ([]*CaseAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, action, performed_by, notes, created_at
		FROM case_actions WHERE case_id = $1
		ORDER BY created_at`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list case actions: %w", err)
	}
	defer rows.Close()

	var out []*CaseAction
	for rows.Next() {
		var a CaseAction
		var notes sql.NullString
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Action, &a.PerformedBy,
			&notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case action: %w", err)
		}
		a.Notes = notes.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var alert Alert
	var subjectAccountID, subjectAccountNumber, txRef, suspicionType sql.NullString
	var details []byte

	err := row.Scan(&alert.ID, &alert.RuleID, &alert.RuleName,
		&subjectAccountID, &subjectAccountNumber,
		&alert.Severity, &alert.Status, &alert.Summary, &details, &txRef,
		&alert.IsAFASA, &suspicionType, &alert.AFASARiskScore, &alert.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.SubjectAccountID = subjectAccountID.String
	alert.SubjectAccountNumber = subjectAccountNumber.String
	alert.TxReference = txRef.String
	alert.AFASASuspicionType = suspicionType.String
	if len(details) > 0 {
		if err := json.Unmarshal(details, &alert.Details); err != nil {
			return nil, fmt.Errorf("failed to decode alert details: %w", err)
		}
	}
	return &alert, nil
}

func scanCase(row rowScanner) (*Case, error) {
	var c Case
	var subjectAccountID, networkSummary sql.NullString
	var linkedAccounts, linkedDevices []byte

	err := row.Scan(&c.ID, &c.AlertID, &subjectAccountID, &c.Status,
		&networkSummary, &linkedAccounts, &linkedDevices, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}

	c.SubjectAccountID = subjectAccountID.String
	c.NetworkSummary = networkSummary.String
	if len(linkedAccounts) > 0 {
		if err := json.Unmarshal(linkedAccounts, &c.LinkedAccounts); err != nil {
			return nil, fmt.Errorf("failed to decode linked accounts: %w", err)
		}
	}
	if len(linkedDevices) > 0 {
		if err := json.Unmarshal(linkedDevices, &c.LinkedDevices); err != nil {
			return nil, fmt.Errorf("failed to decode linked devices: %w", err)
		}
	}
	return &c, nil
}

func emptyIfNilAccounts(in []detection.LinkedAccount) []detection.LinkedAccount {
	if in == nil {
		return []detection.LinkedAccount{}
	}
	return in
}

func emptyIfNilDevices(in []detection.LinkedDevice) []detection.LinkedDevice {
	if in == nil {
		return []detection.LinkedDevice{}
	}
	return in
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
