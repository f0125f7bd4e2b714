// Package cases holds the alert/case investigation workflow: detections from
// the graph oracle become paired Alert+Case records, investigators work them
// through a fixed action set, and every action lands in an immutable audit
// trail.
package cases

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/fraudwatch/internal/detection"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrCaseNotFound  = errors.New("case not found")
	ErrInvalidAction = errors.New("invalid case action")
)

// Alert and Case statuses.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusResolved   = "RESOLVED"
)

// Investigator actions and the case status each one lands the case in.
// Status is a derived convenience field; the action history is the audit
// source of truth.
const (
	ActionBlockAccount = "BLOCK_ACCOUNT"
	ActionMarkSafe     = "MARK_SAFE"
	ActionEscalate     = "ESCALATE"
)

var statusForAction = map[string]string{
	ActionBlockAccount: StatusResolved,
	ActionMarkSafe:     StatusResolved,
	ActionEscalate:     StatusInProgress,
}

// ValidAction reports whether a is a known investigator action.
func ValidAction(a string) bool {
	_, ok := statusForAction[a]
	return ok
}

// Account is a natural-keyed party record, upserted whenever a detection
// references it. Never deleted.
type Account struct {
	ID            string    `json:"id"`
	AccountNumber string    `json:"accountNumber"` // natural key, unique
	CustomerName  string    `json:"customerName"`
	RiskScore     float64   `json:"riskScore,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Device is a natural-keyed device or shared-identifier record.
type Device struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"` // natural key, unique
	DeviceType string    `json:"deviceType,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Alert is one detection hit. RuleName and SubjectAccountNumber are
// denormalized snapshots taken at creation for list rendering.
type Alert struct {
	ID                   string         `json:"id"`
	RuleID               string         `json:"ruleId"`
	RuleName             string         `json:"ruleName"`
	SubjectAccountID     string         `json:"subjectAccountId,omitempty"`
	SubjectAccountNumber string         `json:"subjectAccountNumber,omitempty"`
	Severity             string         `json:"severity"`
	Status               string         `json:"status"`
	Summary              string         `json:"summary"`
	Details              map[string]any `json:"details,omitempty"`
	TxReference          string         `json:"txReference,omitempty"`

	// Compliance tags set when the risk scorer crosses the AFASA threshold.
	IsAFASA            bool   `json:"isAfasa"`
	AFASASuspicionType string `json:"afasaSuspicionType,omitempty"`
	AFASARiskScore     int    `json:"afasaRiskScore,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Case is the investigation record paired 1:1 with an Alert. The linked
// account/device snapshots are evidence of what was known when the alert
// fired and are immutable after creation.
type Case struct {
	ID               string                    `json:"id"`
	AlertID          string                    `json:"alertId"` // unique
	SubjectAccountID string                    `json:"subjectAccountId,omitempty"`
	Status           string                    `json:"status"`
	NetworkSummary   string                    `json:"networkSummary,omitempty"`
	LinkedAccounts   []detection.LinkedAccount `json:"linkedAccounts"`
	LinkedDevices    []detection.LinkedDevice  `json:"linkedDevices"`
	CreatedAt        time.Time                 `json:"createdAt"`
}

// CaseAction is an immutable audit record. Append-only.
type CaseAction struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performedBy"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AlertFilter narrows ListAlerts. Zero values mean no filtering.
type AlertFilter struct {
	Status     string
	RulePrefix string
}

// Store persists accounts, devices, alerts, cases, and case actions.
//
// CreateAlertWithCase and ApplyCaseAction are atomic: either both of their
// writes land or neither does.
type Store interface {
	UpsertAccount(ctx context.Context, accountNumber, customerName string) (*Account, error)
	UpsertDevice(ctx context.Context, deviceID, deviceType string) (*Device, error)

	CreateAlertWithCase(ctx context.Context, alert *Alert, c *Case) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)
	TagAlert(ctx context.Context, alertID, suspicionType string, riskScore int) error

	GetCase(ctx context.Context, id string) (*Case, error)
	GetCaseByAlert(ctx context.Context, alertID string) (*Case, error)
	ListCases(ctx context.Context, status string) ([]*Case, error)

	// ApplyCaseAction appends the action and moves the case (and its paired
	// alert) to status in one atomic unit, returning the updated case.
	ApplyCaseAction(ctx context.Context, action *CaseAction, status string) (*Case, error)
	ListCaseActions(ctx context.Context, caseID string) ([]*CaseAction, error)
}

// severityRank orders severities for alert listing, highest first.
func severityRank(severity string) int {
	switch severity {
	case "CRITICAL":
		return 4
	case "HIGH":
		return 3
	case "MEDIUM":
		return 2
	default:
		return 1
	}
}
