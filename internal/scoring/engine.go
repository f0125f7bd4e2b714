package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/txlog"
)

// Engine scores transactions against the transaction log. Deterministic for
// identical inputs and log contents.
type Engine struct {
	txs       txlog.Store
	clk       clock.Clock
	highValue decimal.Decimal
}

// NewEngine creates a scoring engine reading windows from the given store.
func NewEngine(txs txlog.Store) *Engine {
	return &Engine{
		txs:       txs,
		clk:       clock.System,
		highValue: decimal.NewFromInt(DefaultHighValue),
	}
}

// WithClock overrides the engine's time source (used for EvaluatedAt only;
// window bounds derive from the transaction's own timestamp).
func (e *Engine) WithClock(c clock.Clock) *Engine {
	e.clk = c
	return e
}

// WithHighValueAmount overrides the high-value transfer threshold.
func (e *Engine) WithHighValueAmount(amount float64) *Engine {
	e.highValue = decimal.NewFromFloat(amount)
	return e
}

// Score evaluates a transaction with optional behavioral context. A nil
// transaction yields a zero assessment tagged OTHER; absent optional inputs
// skip their checks without contributing to the score.
func (e *Engine) Score(ctx context.Context, tx *txlog.Transaction, profile *Profile, recent []AccountEvent) (*Assessment, error) {
	a := &Assessment{
		RecommendedAction: ActionNone,
		EvaluatedAt:       e.clk.Now(),
	}
	if tx != nil {
		a.TransactionID = tx.ID
	}

	mule, muleSignals, err := e.muleScore(ctx, tx)
	if err != nil {
		return nil, err
	}
	social, socialSignals, err := e.socialScore(ctx, tx, profile, recent)
	if err != nil {
		return nil, err
	}

	a.MuleScore = mule
	a.SocialScore = social
	a.Signals = append(muleSignals, socialSignals...)

	a.CombinedScore, a.RecommendedAction = combine(mule, social)

	if mule >= MuleTagThreshold {
		a.SuspicionTypes = append(a.SuspicionTypes, SuspicionMoneyMule)
	}
	if social >= SocialTagThreshold {
		a.SuspicionTypes = append(a.SuspicionTypes, SuspicionSocialEngineering)
	}
	if len(a.SuspicionTypes) == 0 {
		a.SuspicionTypes = []string{SuspicionOther}
	}

	return a, nil
}

// combine folds the sub-scores into the weighted combined score and its
// recommended action.
func combine(mule, social int) (int, RecommendedAction) {
	weighted := muleWeight*float64(mule) + socialWeight*float64(social)
	if weighted > 100 {
		weighted = 100
	}
	combined := int(math.Round(weighted))

	action := ActionNone
	switch {
	case combined >= HoldThreshold:
		action = ActionHold
	case combined >= MonitorThreshold:
		action = ActionMonitor
	}
	return combined, action
}

// muleScore evaluates fan-in, pass-through, and high-value signals over the
// 24h window ending at the transaction time.
func (e *Engine) muleScore(ctx context.Context, tx *txlog.Transaction) (int, []string, error) {
	if tx == nil {
		return 0, nil, nil
	}

	from := tx.OccurredAt.Add(-fanInWindow)
	to := tx.OccurredAt

	score := 0
	var signals []string

	senders, err := e.txs.CountDistinctSenders(ctx, tx.ReceiverAccountID, from, to)
	if err != nil {
		return 0, nil, fmt.Errorf("fan-in query: %w", err)
	}
	if senders >= minFanInSenders {
		score += 25
		signals = append(signals, fmt.Sprintf("High fan-in: %d distinct senders in 24h", senders))
	}

	inflow, err := e.txs.SumInflow(ctx, tx.ReceiverAccountID, from, to)
	if err != nil {
		return 0, nil, fmt.Errorf("inflow query: %w", err)
	}
	outflow, err := e.txs.SumOutflow(ctx, tx.ReceiverAccountID, from, to)
	if err != nil {
		return 0, nil, fmt.Errorf("outflow query: %w", err)
	}
	ratio := 0.0
	if inflow.IsPositive() {
		ratio = outflow.InexactFloat64() / inflow.InexactFloat64()
	}
	if ratio > passThroughRatio && outflow.IsPositive() {
		score += 35
		signals = append(signals, fmt.Sprintf("Pass-through behavior: outflow/inflow ratio %.2f", ratio))
	}

	if tx.Amount.GreaterThanOrEqual(e.highValue) {
		score += 15
		signals = append(signals, fmt.Sprintf("High-value transfer %s", tx.Amount))
	}

	if score > 100 {
		score = 100
	}
	return score, signals, nil
}

// socialScore evaluates auth weakness, device churn, amount spike, and
// recent profile changes. Each check is independent; missing context skips
// the check.
func (e *Engine) socialScore(ctx context.Context, tx *txlog.Transaction, profile *Profile, recent []AccountEvent) (int, []string, error) {
	if tx == nil {
		return 0, nil, nil
	}

	score := 0
	var signals []string

	switch strings.ToUpper(tx.AuthMethod) {
	case "OTP_SMS", "OTP":
		score += 10
		signals = append(signals, "Weak auth (SMS OTP)")
	}

	if tx.DeviceFingerprint != "" {
		from := tx.OccurredAt.Add(-fingerprintWindow)
		prints, err := e.txs.CountDistinctFingerprints(ctx, tx.SenderAccountID, from, tx.OccurredAt)
		if err != nil {
			return 0, nil, fmt.Errorf("fingerprint query: %w", err)
		}
		if prints > 1 {
			score += 20
			signals = append(signals, "Device change close to transfer")
		}
	}

	if profile != nil && profile.AverageAmount > 0 {
		limit := decimal.NewFromFloat(profile.AverageAmount * amountSpikeMultiple)
		if tx.Amount.GreaterThan(limit) {
			score += 20
			signals = append(signals, "Spike vs normal behavior")
		}
	}

	for _, ev := range recent {
		if ev.Type == EventProfileChange {
			score += 15
			signals = append(signals, "Recent profile change before transfer")
			break
		}
	}

	if score > 100 {
		score = 100
	}
	return score, signals, nil
}
