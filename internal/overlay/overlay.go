// Package overlay merges the external fraud signal with the local
// investigator override log into a single "is this anchor flagged" answer.
//
// The override log is append-only. A FLAG row permanently flags its anchor;
// there is no unflag, a correction requires a new action type.
package overlay

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidAnchorType = errors.New("invalid anchor type")
	ErrMissingAnchor     = errors.New("anchor id is required")
)

// Anchor types an investigator action can attach to.
const (
	AnchorAccount = "ACCOUNT"
	AnchorDevice  = "DEVICE"
)

// Well-known investigator action kinds. Action is free-form beyond these;
// only ActionFlag carries overlay semantics.
const (
	ActionFlag = "FLAG"
	ActionNote = "NOTE"
)

// ValidAnchorType reports whether t is a known anchor type.
func ValidAnchorType(t string) bool {
	return t == AnchorAccount || t == AnchorDevice
}

// Anchor identifies the subject of an investigator action.
type Anchor struct {
	ID   string `json:"anchorId"`
	Type string `json:"anchorType"`
}

// InvestigatorAction is an immutable audit record of an investigator
// touching an anchor. Never edited or deleted.
type InvestigatorAction struct {
	ID         string    `json:"id"`
	AnchorID   string    `json:"anchorId"`
	AnchorType string    `json:"anchorType"`
	Action     string    `json:"action"`
	Status     string    `json:"status,omitempty"`
	Note       string    `json:"note,omitempty"`
	RuleKey    string    `json:"ruleKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists investigator actions.
type Store interface {
	Create(ctx context.Context, action *InvestigatorAction) error
	ListByAnchor(ctx context.Context, anchor Anchor) ([]*InvestigatorAction, error)
	HasFlag(ctx context.Context, anchor Anchor) (bool, error)
	HasFlagBatch(ctx context.Context, anchors []Anchor) (map[Anchor]bool, error)
}
