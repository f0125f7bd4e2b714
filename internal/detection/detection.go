// Package detection defines the contract with the external graph-analytics
// detection oracle.
//
// The oracle discovers suspicious patterns (mule rings, shared identifiers,
// transaction chains) and returns structured detections; how it finds them is
// opaque to this service.
package detection

import (
	"context"
	"errors"
)

// ErrUpstream wraps any oracle transport or decoding failure so callers can
// classify it without inspecting the cause.
var ErrUpstream = errors.New("detection oracle unavailable")

// LinkedAccount is an account connected to the detection subject.
type LinkedAccount struct {
	AccountNumber string `json:"accountNumber"`
	CustomerName  string `json:"customerName,omitempty"`
	Role          string `json:"role,omitempty"`
}

// LinkedDevice is a device or shared identifier connected to the subject.
type LinkedDevice struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType,omitempty"`
}

// Detection is one suspicious pattern reported by the oracle.
type Detection struct {
	SubjectAccountNumber string          `json:"subjectAccountNumber"`
	SubjectCustomerName  string          `json:"subjectCustomerName,omitempty"`
	Severity             string          `json:"severity,omitempty"`
	Summary              string          `json:"summary"`
	NetworkSummary       string          `json:"networkSummary,omitempty"`
	LinkedAccounts       []LinkedAccount `json:"linkedAccounts,omitempty"`
	LinkedDevices        []LinkedDevice  `json:"linkedDevices,omitempty"`
	Details              map[string]any  `json:"details,omitempty"`
	ExternalFlag         bool            `json:"externalFlag,omitempty"`
	// Optional transaction metadata; when present the correlator records a
	// transaction-log snapshot before compliance tagging.
	TxReference string  `json:"txReference,omitempty"`
	TxAmount    float64 `json:"txAmount,omitempty"`
	TxCurrency  string  `json:"txCurrency,omitempty"`
	AuthMethod  string  `json:"authMethod,omitempty"`
	DeviceID    string  `json:"deviceId,omitempty"`
}

// Oracle produces detections for a rule key.
type Oracle interface {
	Detect(ctx context.Context, ruleKey string) ([]Detection, error)
}
