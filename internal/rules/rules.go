// Package rules manages detection rule definitions and the feature-threshold
// rule registry.
//
// RuleDefinitions drive the graph detection oracle (one oracle call per
// enabled rule); the feature registry is a second, independent rule set
// evaluated against per-account feature vectors.
package rules

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
)

// Severity levels shared by rules, alerts, and cases.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Definition is a detection rule. Operators toggle Enabled; the engine treats
// definitions as read-only.
type Definition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // natural key, unique
	Description string    `json:"description,omitempty"`
	Severity    string    `json:"severity"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists rule definitions.
type Store interface {
	Create(ctx context.Context, rule *Definition) error
	Get(ctx context.Context, id string) (*Definition, error)
	GetByName(ctx context.Context, name string) (*Definition, error)
	ListEnabled(ctx context.Context) ([]*Definition, error)
	List(ctx context.Context) ([]*Definition, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}
