package cases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/detection"
	"github.com/mbd888/fraudwatch/internal/rules"
	"github.com/mbd888/fraudwatch/internal/scoring"
	"github.com/mbd888/fraudwatch/internal/txlog"
)

var correlatorBase = time.Date(2026, 5, 12, 12, 0, 0, 0, time.UTC)

type correlatorFixture struct {
	correlator *Correlator
	store      *MemoryStore
	ruleStore  *rules.MemoryStore
	oracle     *detection.StaticOracle
	txs        *txlog.MemoryStore
	clk        *clock.Fake
}

func newCorrelatorFixture(t *testing.T) *correlatorFixture {
	t.Helper()

	clk := clock.NewFake(correlatorBase)

	store := NewMemoryStore()
	ruleStore := rules.NewMemoryStore()
	require.NoError(t, rules.SeedDefaults(context.Background(), ruleStore, clk))

	oracle := detection.NewStaticOracle()
	txs := txlog.NewMemoryStore()
	scorer := scoring.NewEngine(txs).WithClock(clk)

	correlator := NewCorrelator(store, ruleStore, oracle, txs, scorer).WithClock(clk)

	return &correlatorFixture{
		correlator: correlator,
		store:      store,
		ruleStore:  ruleStore,
		oracle:     oracle,
		txs:        txs,
		clk:        clk,
	}
}

func seedTx(t *testing.T, txs *txlog.MemoryStore, ref, sender, receiver string, amount float64, at time.Time, fingerprint string) {
	t.Helper()
	err := txs.Create(context.Background(), &txlog.Transaction{
		ID:                "txn_" + ref,
		Reference:         ref,
		SenderAccountID:   sender,
		ReceiverAccountID: receiver,
		Amount:            decimal.NewFromFloat(amount),
		Currency:          "PHP",
		OccurredAt:        at,
		Channel:           "MOBILE_APP",
		AuthMethod:        "OTP_SMS",
		DeviceFingerprint: fingerprint,
		CreatedAt:         at,
	})
	require.NoError(t, err)
}

func TestRefreshCreatesPairedAlertAndCase(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.oracle.Put("Mule Ring Detection", detection.Detection{
		SubjectAccountNumber: "GCASH-200001",
		SubjectCustomerName:  "Mule Account 1",
		Severity:             "CRITICAL",
		Summary:              "Mule-like account GCASH-200001 detected",
		NetworkSummary:       "3 accounts via shared device",
		LinkedAccounts: []detection.LinkedAccount{
			{AccountNumber: "GCASH-200002", CustomerName: "Mule Account 2", Role: "peer"},
		},
		LinkedDevices: []detection.LinkedDevice{
			{DeviceID: "DEV-12345", DeviceType: "Android"},
		},
	})

	generated, err := f.correlator.RefreshAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, generated)

	alerts, err := f.store.ListAlerts(context.Background(), AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, "Mule Ring Detection", alert.RuleName)
	assert.Equal(t, "CRITICAL", alert.Severity)
	assert.Equal(t, StatusOpen, alert.Status)
	assert.Equal(t, "GCASH-200001", alert.SubjectAccountNumber)
	assert.False(t, alert.IsAFASA)

	cs, err := f.store.GetCaseByAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, cs.Status)
	assert.Equal(t, "3 accounts via shared device", cs.NetworkSummary)
	require.Len(t, cs.LinkedAccounts, 1)
	require.Len(t, cs.LinkedDevices, 1)
	assert.Equal(t, "DEV-12345", cs.LinkedDevices[0].DeviceID)

	// Account and device were upserted by natural key.
	account, err := f.store.UpsertAccount(context.Background(), "GCASH-200001", "")
	require.NoError(t, err)
	assert.Equal(t, "Mule Account 1", account.CustomerName)
}

func TestRefreshIsolatesFailingRule(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.oracle.Fail("Mule Ring Detection", errors.New("neo4j down"))
	f.oracle.Put("Identity Fraud Detection", detection.Detection{
		SubjectAccountNumber: "GCASH-300001",
		Summary:              "Shared identifier used by 4 accounts",
	})

	generated, err := f.correlator.RefreshAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, generated, "failing rule must not block its siblings")
}

func TestRefreshSkipsDisabledRule(t *testing.T) {
	f := newCorrelatorFixture(t)
	mule, err := f.ruleStore.GetByName(context.Background(), "Mule Ring Detection")
	require.NoError(t, err)
	require.NoError(t, f.ruleStore.SetEnabled(context.Background(), mule.ID, false))

	f.oracle.Put("Mule Ring Detection", detection.Detection{
		SubjectAccountNumber: "GCASH-200001",
	})

	generated, err := f.correlator.RefreshAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, generated)
}

func TestRefreshSingleRule(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.oracle.Put("Mule Ring Detection", detection.Detection{SubjectAccountNumber: "A-1"})
	f.oracle.Put("Identity Fraud Detection", detection.Detection{SubjectAccountNumber: "A-2"})

	identity, err := f.ruleStore.GetByName(context.Background(), "Identity Fraud Detection")
	require.NoError(t, err)

	generated, err := f.correlator.RefreshAlerts(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, generated)

	alerts, err := f.store.ListAlerts(context.Background(), AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "A-2", alerts[0].SubjectAccountNumber)
}

func TestComplianceTagging(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.correlator.WithComplianceThreshold(50)

	// Build a mule pattern around MULE-1: 5-sender fan-in, 90% pass-through,
	// and a high-value incoming transfer with weak auth and device churn.
	for i, sender := range []string{"S-1", "S-2", "S-3", "S-4", "S-5"} {
		seedTx(t, f.txs, "IN-"+sender, sender, "MULE-1", 1000,
			correlatorBase.Add(time.Duration(-i-1)*time.Hour), "")
	}
	seedTx(t, f.txs, "OUT-1", "MULE-1", "CASHOUT-1", 18000,
		correlatorBase.Add(-30*time.Minute), "")
	seedTx(t, f.txs, "TX-PRIOR", "VICTIM-1", "SHOP-1", 200,
		correlatorBase.Add(-2*time.Hour), "FP-OLD")
	seedTx(t, f.txs, "TX-1", "VICTIM-1", "MULE-1", 15000,
		correlatorBase, "FP-NEW")

	f.oracle.Put("Mule Ring Detection", detection.Detection{
		SubjectAccountNumber: "MULE-1",
		Summary:              "High-risk mule account",
		TxReference:          "TX-1",
	})

	generated, err := f.correlator.RefreshAlerts(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, generated)

	alerts, err := f.store.ListAlerts(context.Background(), AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.True(t, alert.IsAFASA)
	// mule 75 (fan-in + pass-through + high value), social 30 (OTP + device
	// churn): round(0.6*75 + 0.4*30) = 57.
	assert.Equal(t, 57, alert.AFASARiskScore)
	assert.Equal(t, "MONEY_MULE,SOCIAL_ENGINEERING", alert.AFASASuspicionType)
}

func TestEnsureTransactionFromDetectionMetadata(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.oracle.Put("Mule Ring Detection", detection.Detection{
		SubjectAccountNumber: "MULE-2",
		TxReference:          "TX-NEW",
		TxAmount:             25000,
		TxCurrency:           "PHP",
		AuthMethod:           "OTP_SMS",
		DeviceID:             "DEV-9",
		LinkedAccounts: []detection.LinkedAccount{
			{AccountNumber: "CASHOUT-9"},
		},
	})

	_, err := f.correlator.RefreshAlerts(context.Background(), "")
	require.NoError(t, err)

	tx, err := f.txs.GetByReference(context.Background(), "TX-NEW")
	require.NoError(t, err)
	assert.Equal(t, "MULE-2", tx.SenderAccountID)
	assert.Equal(t, "CASHOUT-9", tx.ReceiverAccountID)
	assert.True(t, decimal.NewFromInt(25000).Equal(tx.Amount))
	assert.Equal(t, "DEV-9", tx.DeviceFingerprint)
}

type stubFeatureSource struct {
	features map[string]rules.FeatureSet
}

func (s stubFeatureSource) Features(ctx context.Context, accountID string) (rules.FeatureSet, error) {
	f, ok := s.features[accountID]
	if !ok {
		return rules.FeatureSet{AccountID: accountID}, nil
	}
	return f, nil
}

func TestFeaturePassCreatesTaggedAlerts(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.correlator.WithFeatureSource(stubFeatureSource{
		features: map[string]rules.FeatureSet{
			"MULE-3": {ImpossibleTravel: true},
		},
	})
	f.oracle.Put("Mule Ring Detection", detection.Detection{
		SubjectAccountNumber: "MULE-3",
	})

	generated, err := f.correlator.RefreshAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, generated, "one graph alert plus one feature alert")

	faf, err := f.store.ListAlerts(context.Background(), AlertFilter{RulePrefix: "FAF-"})
	require.NoError(t, err)
	require.Len(t, faf, 1)
	assert.Equal(t, "FAF-LOGIN-001", faf[0].RuleName)
	assert.Equal(t, true, faf[0].Details["faf"])

	// The feature rule was registered on first use.
	rule, err := f.ruleStore.GetByName(context.Background(), "FAF-LOGIN-001")
	require.NoError(t, err)
	assert.True(t, rule.Enabled)
}
