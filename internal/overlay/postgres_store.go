package overlay

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const actionColumns = `id, anchor_id, anchor_type, action, status, note, rule_key, created_at`

// PostgresStore is a PostgreSQL-backed investigator action store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an investigator action store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, action *InvestigatorAction) error {
	query := `
		INSERT INTO investigator_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		action.ID, action.AnchorID, action.AnchorType, action.Action,
		nullString(action.Status), nullString(action.Note), nullString(action.RuleKey),
		action.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create investigator action: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAnchor(ctx context.Context, anchor Anchor) ([]*InvestigatorAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM investigator_actions
		WHERE anchor_id = $1 AND anchor_type = $2
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, anchor.ID, anchor.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to list investigator actions: %w", err)
	}
	defer rows.Close()

	var out []*InvestigatorAction
	for rows.Next() {
		var a InvestigatorAction
		var status, note, ruleKey sql.NullString
		if err := rows.Scan(&a.ID, &a.AnchorID, &a.AnchorType, &a.Action,
			&status, &note, &ruleKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investigator action: %w", err)
		}
		a.Status = status.String
		a.Note = note.String
		a.RuleKey = ruleKey.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasFlag(ctx context.Context, anchor Anchor) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM investigator_actions
			WHERE anchor_id = $1 AND anchor_type = $2 AND action = $3
		)`

	var flagged bool
	err := s.db.QueryRowContext(ctx, query, anchor.ID, anchor.Type, ActionFlag).Scan(&flagged)
	if err != nil {
		return false, fmt.Errorf("failed to check flag override: %w", err)
	}
	return flagged, nil
}

func (s *PostgresStore) HasFlagBatch(ctx context.Context, anchors []Anchor) (map[Anchor]bool, error) {
	out := make(map[Anchor]bool, len(anchors))
	if len(anchors) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(anchors))
	for _, anchor := range anchors {
		out[anchor] = false
		ids = append(ids, anchor.ID)
	}

	query := `
		SELECT DISTINCT anchor_id, anchor_type
		FROM investigator_actions
		WHERE action = $1 AND anchor_id = ANY($2)`

	rows, err := s.db.QueryContext(ctx, query, ActionFlag, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to batch check flag overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var anchor Anchor
		if err := rows.Scan(&anchor.ID, &anchor.Type); err != nil {
			return nil, fmt.Errorf("failed to scan flagged anchor: %w", err)
		}
		if _, wanted := out[anchor]; wanted {
			out[anchor] = true
		}
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
