// Package scoring implements multi-signal fraud risk scoring for payment
// transactions.
//
// A transaction is evaluated against two signal families: money-mule
// behavior (fan-in, pass-through flow, high value) and social engineering
// (weak auth, device churn, amount spike, recent profile change). Sub-scores
// range 0-100; the combined score weights mule 0.6 and social 0.4. Scores at
// or above the hold threshold recommend a temporary hold.
package scoring

import "time"

// RecommendedAction is the scorer's verdict on a transaction.
type RecommendedAction string

const (
	ActionNone    RecommendedAction = "NO_ACTION"
	ActionMonitor RecommendedAction = "MONITOR_ONLY"
	ActionHold    RecommendedAction = "TEMP_HOLD_AND_VERIFY"
)

// Suspicion classification tags attached to an assessment.
const (
	SuspicionMoneyMule         = "MONEY_MULE"
	SuspicionSocialEngineering = "SOCIAL_ENGINEERING"
	SuspicionOther             = "OTHER"
)

// Default thresholds. Sub-score thresholds decide tags; combined-score
// thresholds decide the recommended action.
const (
	MuleTagThreshold    = 40
	SocialTagThreshold  = 30
	HoldThreshold       = 70
	MonitorThreshold    = 40
	DefaultHighValue    = 10000
	muleWeight          = 0.6
	socialWeight        = 0.4
	fanInWindow         = 24 * time.Hour
	fingerprintWindow   = 12 * time.Hour
	passThroughRatio    = 0.7
	minFanInSenders     = 5
	amountSpikeMultiple = 3
)

// Assessment is the result of evaluating a single transaction.
type Assessment struct {
	TransactionID     string            `json:"transactionId,omitempty"`
	MuleScore         int               `json:"muleScore"`
	SocialScore       int               `json:"socialScore"`
	CombinedScore     int               `json:"combinedScore"`
	SuspicionTypes    []string          `json:"suspicionTypes"`
	RecommendedAction RecommendedAction `json:"recommendedAction"`
	Signals           []string          `json:"signals"`
	EvaluatedAt       time.Time         `json:"evaluatedAt"`
}

// Profile carries the account's behavioral baseline. AverageAmount is the
// historical mean transfer amount; zero means unknown.
type Profile struct {
	AccountID     string  `json:"accountId"`
	AverageAmount float64 `json:"averageAmount"`
}

// AccountEvent is a recent lifecycle event on the sender's account
// (password reset, profile change, device enrollment).
type AccountEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventProfileChange is the account event type that contributes to the
// social-engineering sub-score.
const EventProfileChange = "PROFILE_CHANGE"
