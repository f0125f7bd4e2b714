package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/txlog"
)

var disputeBase = time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)

type disputeFixture struct {
	service *Service
	store   *MemoryStore
	txs     *txlog.MemoryStore
	clk     *clock.Fake
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()

	clk := clock.NewFake(disputeBase)

	store := NewMemoryStore()
	txs := txlog.NewMemoryStore()
	service := NewService(store, txs).WithClock(clk)

	return &disputeFixture{service: service, store: store, txs: txs, clk: clk}
}

func (f *disputeFixture) seedTx(t *testing.T) *txlog.Transaction {
	t.Helper()
	tx := &txlog.Transaction{
		ID:                "txn_dispute1",
		Reference:         "TX-D1",
		SenderAccountID:   "VICTIM-1",
		ReceiverAccountID: "MULE-1",
		Amount:            decimal.NewFromInt(50000),
		Currency:          "PHP",
		OccurredAt:        disputeBase.Add(-time.Hour),
		CreatedAt:         disputeBase.Add(-time.Hour),
	}
	require.NoError(t, f.txs.Create(context.Background(), tx))
	return tx
}

func (f *disputeFixture) initiate(t *testing.T, txID string) *DisputedTransaction {
	t.Helper()
	d, err := f.service.Initiate(context.Background(),
		"alr_1", txID, ReasonFMSDetected, SuspicionMoneyMule, "analyst_1")
	require.NoError(t, err)
	return d
}

func TestInitiateSnapshotsTransaction(t *testing.T) {
	f := newDisputeFixture(t)
	tx := f.seedTx(t)

	d := f.initiate(t, tx.ID)

	assert.Equal(t, StatusPendingHold, d.Status)
	assert.Equal(t, "VICTIM-1", d.SourceAccountID)
	assert.Equal(t, "MULE-1", d.BeneficiaryAccountID)
	require.True(t, d.Amount.Valid)
	assert.True(t, decimal.NewFromInt(50000).Equal(d.Amount.Decimal))
	assert.Equal(t, "PHP", d.Currency)
	require.NotNil(t, d.MaxHoldUntil)
	assert.Equal(t, disputeBase.Add(30*24*time.Hour), *d.MaxHoldUntil)
	assert.Nil(t, d.HoldStartAt)

	events, err := f.service.Events(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventInitiated, events[0].EventType)
	assert.Equal(t, "analyst_1", events[0].CreatedBy)
}

func TestInitiateWithoutTransaction(t *testing.T) {
	f := newDisputeFixture(t)

	d := f.initiate(t, "")
	assert.Empty(t, d.SourceAccountID)
	assert.Empty(t, d.BeneficiaryAccountID)
	assert.False(t, d.Amount.Valid)
}

func TestInitiateValidatesEnums(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.service.Initiate(context.Background(),
		"alr_1", "", "NOT_A_REASON", SuspicionMoneyMule, "analyst_1")
	require.ErrorIs(t, err, ErrInvalidReasonCategory)

	_, err = f.service.Initiate(context.Background(),
		"alr_1", "", ReasonCustomerReport, "NOT_A_SUSPICION", "analyst_1")
	require.ErrorIs(t, err, ErrInvalidSuspicionType)

	// No partial state was written.
	disputes, err := f.service.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, disputes)
}

func TestApplyHoldReArmsClock(t *testing.T) {
	f := newDisputeFixture(t)
	d := f.initiate(t, "")

	f.clk.Advance(2 * time.Hour)
	held, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_2")
	require.NoError(t, err)

	now := disputeBase.Add(2 * time.Hour)
	assert.Equal(t, StatusHeld, held.Status)
	require.NotNil(t, held.HoldStartAt)
	assert.Equal(t, now, *held.HoldStartAt)
	require.NotNil(t, held.MaxHoldUntil)
	assert.Equal(t, now.Add(30*24*time.Hour), *held.MaxHoldUntil)

	// Re-applying re-arms the deadline.
	f.clk.Advance(24 * time.Hour)
	held2, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_2")
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour).Add(30*24*time.Hour), *held2.MaxHoldUntil)

	events, err := f.service.Events(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, events, 3) // INITIATED + 2x CUSTOMER_CONTACTED
	assert.Equal(t, EventCustomerContacted, events[1].EventType)
	assert.Equal(t, EventCustomerContacted, events[2].EventType)
}

func TestReleaseDecisionMapping(t *testing.T) {
	tests := []struct {
		decision   string
		wantStatus string
		wantEvent  string
	}{
		{"RELEASE", StatusReleased, EventFundsReleased},
		{"release", StatusReleased, EventFundsReleased},
		{"RESTITUTION", StatusWrittenOff, EventFundsRestituted},
		{"whatever", StatusEscalated, EventEscalatedToLEA},
		{"", StatusEscalated, EventEscalatedToLEA},
	}

	for _, tt := range tests {
		t.Run("decision_"+tt.decision, func(t *testing.T) {
			f := newDisputeFixture(t)
			d := f.initiate(t, "")
			_, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_1")
			require.NoError(t, err)

			f.clk.Advance(time.Hour)
			resolved, err := f.service.Release(context.Background(), d.ID, tt.decision, "analyst_1", "")
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resolved.Status)
			require.NotNil(t, resolved.HoldEndAt)
			assert.Equal(t, f.clk.Now(), *resolved.HoldEndAt)

			events, err := f.service.Events(context.Background(), d.ID)
			require.NoError(t, err)
			last := events[len(events)-1]
			assert.Equal(t, tt.wantEvent, last.EventType)
			assert.Equal(t, "Decision: "+tt.decision, last.Notes)
		})
	}
}

func TestAddEventIsPureAudit(t *testing.T) {
	f := newDisputeFixture(t)
	d := f.initiate(t, "")

	ev, err := f.service.AddEvent(context.Background(), d.ID,
		EventCustomerContacted, "called customer, no answer", "analyst_1")
	require.NoError(t, err)
	assert.Equal(t, EventCustomerContacted, ev.EventType)

	// Status unchanged.
	after, err := f.service.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingHold, after.Status)

	_, err = f.service.AddEvent(context.Background(), d.ID, "NOT_AN_EVENT", "", "analyst_1")
	require.ErrorIs(t, err, ErrInvalidEventType)

	_, err = f.service.AddEvent(context.Background(), "dsp_missing", EventInitiated, "", "analyst_1")
	require.ErrorIs(t, err, ErrDisputeNotFound)
}

func TestAutoEnforceEscalatesExpiredHolds(t *testing.T) {
	f := newDisputeFixture(t)

	expired := f.initiate(t, "")
	_, err := f.service.ApplyHold(context.Background(), expired.ID, "analyst_1")
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	fresh := f.initiate(t, "")
	_, err = f.service.ApplyHold(context.Background(), fresh.ID, "analyst_1")
	require.NoError(t, err)

	pending := f.initiate(t, "")

	// Move past the first hold's deadline but not the second's.
	f.clk.Advance(30*24*time.Hour - 30*time.Minute)

	count, err := f.service.AutoEnforceMaxHold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	d1, err := f.service.Get(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, d1.Status)
	require.NotNil(t, d1.HoldEndAt)
	assert.Equal(t, f.clk.Now(), *d1.HoldEndAt)

	d2, err := f.service.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, d2.Status)

	d3, err := f.service.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingHold, d3.Status, "PENDING_HOLD is never swept")

	events, err := f.service.Events(context.Background(), expired.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, EventEscalatedToLEA, last.EventType)
	assert.Equal(t, DefaultSystemActor, last.CreatedBy)
}

func TestAutoEnforceIsIdempotent(t *testing.T) {
	f := newDisputeFixture(t)
	d := f.initiate(t, "")
	_, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_1")
	require.NoError(t, err)

	f.clk.Advance(31 * 24 * time.Hour)

	count, err := f.service.AutoEnforceMaxHold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Re-running with no newly expired disputes does nothing.
	count, err = f.service.AutoEnforceMaxHold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	events, err := f.service.Events(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, events, 3) // INITIATED, CUSTOMER_CONTACTED, ESCALATED_TO_LEA
}

func TestAutoEnforceDeadlineIsExclusive(t *testing.T) {
	f := newDisputeFixture(t)
	d := f.initiate(t, "")
	_, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_1")
	require.NoError(t, err)

	// Exactly at the deadline: max_hold_until < now is false.
	f.clk.Advance(30 * 24 * time.Hour)
	count, err := f.service.AutoEnforceMaxHold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	f.clk.Advance(time.Second)
	count, err = f.service.AutoEnforceMaxHold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEveryTransitionWritesExactlyOneEvent(t *testing.T) {
	f := newDisputeFixture(t)
	d := f.initiate(t, "")

	_, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_1")
	require.NoError(t, err)
	_, err = f.service.Release(context.Background(), d.ID, "RELEASE", "analyst_1", "verified with customer")
	require.NoError(t, err)

	events, err := f.service.Events(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventInitiated, events[0].EventType)
	assert.Equal(t, EventCustomerContacted, events[1].EventType)
	assert.Equal(t, EventFundsReleased, events[2].EventType)
	assert.Equal(t, "verified with customer", events[2].Notes)
}

func TestSummarize(t *testing.T) {
	f := newDisputeFixture(t)

	a := f.initiate(t, "")
	_, err := f.service.ApplyHold(context.Background(), a.ID, "x")
	require.NoError(t, err)
	f.initiate(t, "")
	b, err := f.service.Initiate(context.Background(),
		"alr_2", "", ReasonCustomerReport, SuspicionSocialEngineering, "x")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingHold, b.Status)

	summary, err := f.service.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalDisputes)
	assert.Equal(t, 1, summary.ByStatus[StatusHeld])
	assert.Equal(t, 2, summary.ByStatus[StatusPendingHold])
	assert.Equal(t, 2, summary.BySuspicion[SuspicionMoneyMule])
	assert.Equal(t, 1, summary.BySuspicion[SuspicionSocialEngineering])
}

func TestMuleFlagUpsert(t *testing.T) {
	f := newDisputeFixture(t)

	flag, err := f.service.FlagMule(context.Background(),
		"MULE-1", FlagSourceGraphAnalytics, 85, false, "high centrality")
	require.NoError(t, err)
	assert.Equal(t, FlagSourceGraphAnalytics, flag.FlagSource)
	assert.False(t, flag.IsConfirmed)

	// Second flag on the same account updates in place.
	updated, err := f.service.FlagMule(context.Background(),
		"MULE-1", FlagSourceManualReview, 90, true, "confirmed by analyst")
	require.NoError(t, err)
	assert.Equal(t, flag.ID, updated.ID)
	assert.True(t, updated.IsConfirmed)
	assert.Equal(t, 90, updated.RiskScore)

	flags, err := f.service.MuleFlags(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, flags, 1)

	_, err = f.service.FlagMule(context.Background(), "MULE-1", "BAD_SOURCE", 0, false, "")
	require.ErrorIs(t, err, ErrInvalidFlagSource)
}

func TestConcurrentTransitionConflict(t *testing.T) {
	f := newDisputeFixture(t)
	d := f.initiate(t, "")
	_, err := f.service.ApplyHold(context.Background(), d.ID, "analyst_1")
	require.NoError(t, err)

	// Simulate another process releasing the dispute between the sweep's
	// scan and its per-row transition.
	current, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	current.Status = StatusReleased
	err = f.store.UpdateWithEvent(context.Background(), current, StatusHeld,
		&VerificationEvent{ID: "vev_x", DisputeID: d.ID, EventType: EventFundsReleased, CreatedAt: f.clk.Now()})
	require.NoError(t, err)

	f.clk.Advance(31 * 24 * time.Hour)
	count, err := f.service.AutoEnforceMaxHold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "released dispute must not be re-escalated")
}
