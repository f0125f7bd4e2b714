package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const ruleColumns = `id, name, description, severity, enabled, created_at`

// PostgresStore is a PostgreSQL-backed rule store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a rule store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rule *Definition) error {
	query := `
		INSERT INTO rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.Severity, rule.Enabled, rule.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Seeded concurrently under the same name; treat as settled.
			return nil
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Definition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*Definition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE name = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, name))
}

func (s *PostgresStore) ListEnabled(ctx context.Context) ([]*Definition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE enabled ORDER BY name`
	return s.queryRules(ctx, query)
}

func (s *PostgresStore) List(ctx context.Context) ([]*Definition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules ORDER BY name`
	return s.queryRules(ctx, query)
}

func (s *PostgresStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rules SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*Definition
	for rows.Next() {
		var rule Definition
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Description,
			&rule.Severity, &rule.Enabled, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Definition, error) {
	var rule Definition
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description,
		&rule.Severity, &rule.Enabled, &rule.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}
