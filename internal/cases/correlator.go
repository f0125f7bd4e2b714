package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/detection"
	"github.com/mbd888/fraudwatch/internal/idgen"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/rules"
	"github.com/mbd888/fraudwatch/internal/scoring"
	"github.com/mbd888/fraudwatch/internal/traces"
	"github.com/mbd888/fraudwatch/internal/txlog"
)

// DefaultComplianceThreshold is the combined risk score at or above which an
// alert gets compliance-tagged.
const DefaultComplianceThreshold = 60

// FeatureSource builds the per-account feature vector for the feature-rule
// pass. Implementations must return safe defaults when a source is down.
type FeatureSource interface {
	Features(ctx context.Context, accountID string) (rules.FeatureSet, error)
}

// ZeroFeatureSource returns all-zero features. The safe default when no
// graph-metrics backend is wired.
type ZeroFeatureSource struct{}

func (ZeroFeatureSource) Features(ctx context.Context, accountID string) (rules.FeatureSet, error) {
	return rules.FeatureSet{AccountID: accountID}, nil
}

// Publisher receives correlator events for live fan-out. Optional.
type Publisher interface {
	Publish(event string, payload any)
}

// Correlator turns oracle detections into paired Alert+Case records, runs
// the feature-rule pass over touched accounts, and compliance-tags alerts
// whose transactions score above the threshold.
type Correlator struct {
	store     Store
	ruleStore rules.Store
	oracle    detection.Oracle
	txs       txlog.Store
	scorer    *scoring.Engine

	registry  *rules.Registry
	features  FeatureSource
	publisher Publisher
	clk       clock.Clock
	logger    *slog.Logger
	threshold int
}

// NewCorrelator creates a correlator with default registry, zero feature
// source, and the default compliance threshold.
func NewCorrelator(store Store, ruleStore rules.Store, oracle detection.Oracle, txs txlog.Store, scorer *scoring.Engine) *Correlator {
	return &Correlator{
		store:     store,
		ruleStore: ruleStore,
		oracle:    oracle,
		txs:       txs,
		scorer:    scorer,
		registry:  rules.DefaultRegistry(),
		features:  ZeroFeatureSource{},
		clk:       clock.System,
		logger:    slog.Default(),
		threshold: DefaultComplianceThreshold,
	}
}

// WithRegistry overrides the feature-rule registry.
func (c *Correlator) WithRegistry(r *rules.Registry) *Correlator {
	c.registry = r
	return c
}

// WithFeatureSource overrides the feature source.
func (c *Correlator) WithFeatureSource(f FeatureSource) *Correlator {
	c.features = f
	return c
}

// WithPublisher sets the live event publisher.
func (c *Correlator) WithPublisher(p Publisher) *Correlator {
	c.publisher = p
	return c
}

// WithClock overrides the clock. Used in tests.
func (c *Correlator) WithClock(clk clock.Clock) *Correlator {
	c.clk = clk
	return c
}

// WithLogger overrides the logger.
func (c *Correlator) WithLogger(logger *slog.Logger) *Correlator {
	c.logger = logger
	return c
}

// WithComplianceThreshold overrides the tagging threshold.
func (c *Correlator) WithComplianceThreshold(threshold int) *Correlator {
	c.threshold = threshold
	return c
}

// RefreshAlerts runs every enabled rule (or just ruleID when given) against
// the detection oracle, then the feature-rule pass over the touched
// accounts. Rules run concurrently; a failure in one rule or one detection
// is logged and skipped, never aborting its siblings. Returns the number of
// alerts generated.
func (c *Correlator) RefreshAlerts(ctx context.Context, ruleID string) (int, error) {
	ctx, span := traces.StartSpan(ctx, "correlator.RefreshAlerts")
	defer span.End()

	defs, err := c.selectRules(ctx, ruleID)
	if err != nil {
		return 0, err
	}

	var (
		mu        sync.Mutex
		generated int
		touched   = make(map[string]struct{})
	)

	var wg sync.WaitGroup
	for _, rule := range defs {
		wg.Add(1)
		go func(rule *rules.Definition) {
			defer wg.Done()

			detections, err := c.oracle.Detect(ctx, rule.Name)
			if err != nil {
				metrics.OracleErrorsTotal.WithLabelValues(rule.Name).Inc()
				c.logger.Warn("detection oracle call failed",
					"rule", rule.Name, "error", err)
				return
			}

			for _, det := range detections {
				accountNumber, err := c.processDetection(ctx, rule, det)
				if err != nil {
					c.logger.Warn("failed to process detection",
						"rule", rule.Name,
						"account", det.SubjectAccountNumber,
						"error", err)
					continue
				}
				mu.Lock()
				generated++
				if accountNumber != "" {
					touched[accountNumber] = struct{}{}
				}
				mu.Unlock()
			}
		}(rule)
	}
	wg.Wait()

	accountNumbers := make([]string, 0, len(touched))
	for n := range touched {
		accountNumbers = append(accountNumbers, n)
	}
	sort.Strings(accountNumbers)

	for _, accountNumber := range accountNumbers {
		n, err := c.runFeaturePass(ctx, accountNumber)
		if err != nil {
			c.logger.Warn("feature-rule pass failed",
				"account", accountNumber, "error", err)
			continue
		}
		generated += n
	}

	return generated, nil
}

func (c *Correlator) selectRules(ctx context.Context, ruleID string) ([]*rules.Definition, error) {
	if ruleID == "" {
		return c.ruleStore.ListEnabled(ctx)
	}
	rule, err := c.ruleStore.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, nil
	}
	return []*rules.Definition{rule}, nil
}

// processDetection persists one detection as an Alert+Case pair and returns
// the subject account number for the feature pass.
func (c *Correlator) processDetection(ctx context.Context, rule *rules.Definition, det detection.Detection) (string, error) {
	accountNumber := det.SubjectAccountNumber
	if accountNumber == "" {
		return "", errors.New("detection has no subject account")
	}
	customerName := det.SubjectCustomerName
	if customerName == "" {
		customerName = "Unknown"
	}

	account, err := c.store.UpsertAccount(ctx, accountNumber, customerName)
	if err != nil {
		return "", fmt.Errorf("upsert account: %w", err)
	}

	for _, dev := range det.LinkedDevices {
		if dev.DeviceID == "" {
			continue
		}
		if _, err := c.store.UpsertDevice(ctx, dev.DeviceID, dev.DeviceType); err != nil {
			c.logger.Warn("failed to upsert linked device",
				"device", dev.DeviceID, "error", err)
		}
	}

	severity := det.Severity
	if !rules.ValidSeverity(severity) {
		severity = rule.Severity
	}
	summary := det.Summary
	if summary == "" {
		summary = "Suspicious activity detected"
	}

	alert := &Alert{
		ID:                   idgen.WithPrefix("alr_"),
		RuleID:               rule.ID,
		RuleName:             rule.Name,
		SubjectAccountID:     account.ID,
		SubjectAccountNumber: account.AccountNumber,
		Severity:             severity,
		Status:               StatusOpen,
		Summary:              summary,
		Details:              det.Details,
		TxReference:          det.TxReference,
		CreatedAt:            c.clk.Now(),
	}
	cs := &Case{
		ID:               idgen.WithPrefix("cas_"),
		AlertID:          alert.ID,
		SubjectAccountID: account.ID,
		Status:           StatusOpen,
		NetworkSummary:   det.NetworkSummary,
		LinkedAccounts:   det.LinkedAccounts,
		LinkedDevices:    det.LinkedDevices,
		CreatedAt:        c.clk.Now(),
	}
	if err := c.store.CreateAlertWithCase(ctx, alert, cs); err != nil {
		return "", fmt.Errorf("create alert+case: %w", err)
	}
	metrics.AlertsGeneratedTotal.WithLabelValues("graph").Inc()
	c.publish("alert.created", alert)

	if err := c.ensureTransaction(ctx, det); err != nil {
		c.logger.Warn("failed to record transaction snapshot",
			"txRef", det.TxReference, "error", err)
	}
	if err := c.tagIfCompliance(ctx, alert.ID, det.TxReference); err != nil {
		c.logger.Warn("compliance tagging failed",
			"alert", alert.ID, "error", err)
	}

	return account.AccountNumber, nil
}

// runFeaturePass evaluates the feature-rule registry for one account,
// creating one Alert+Case per hit.
func (c *Correlator) runFeaturePass(ctx context.Context, accountNumber string) (int, error) {
	features, err := c.features.Features(ctx, accountNumber)
	if err != nil {
		// Degraded source; evaluate against safe defaults.
		c.logger.Warn("feature source failed, using defaults",
			"account", accountNumber, "error", err)
		features = rules.FeatureSet{AccountID: accountNumber}
	}

	candidates := c.registry.Evaluate(accountNumber, features)
	if len(candidates) == 0 {
		return 0, nil
	}

	account, err := c.store.UpsertAccount(ctx, accountNumber, "Unknown")
	if err != nil {
		return 0, fmt.Errorf("upsert account: %w", err)
	}

	generated := 0
	for _, cand := range candidates {
		rule, err := rules.GetOrCreateByName(ctx, c.ruleStore, c.clk, cand.RuleID, cand.Severity, cand.Title)
		if err != nil {
			c.logger.Warn("failed to resolve feature rule",
				"rule", cand.RuleID, "error", err)
			continue
		}

		severity := cand.Severity
		if !rules.ValidSeverity(severity) {
			severity = rules.SeverityHigh
		}

		alert := &Alert{
			ID:                   idgen.WithPrefix("alr_"),
			RuleID:               rule.ID,
			RuleName:             rule.Name,
			SubjectAccountID:     account.ID,
			SubjectAccountNumber: account.AccountNumber,
			Severity:             severity,
			Status:               StatusOpen,
			Summary:              cand.Summary,
			Details: map[string]any{
				"anchor_type": cand.AnchorType,
				"anchor_id":   cand.AnchorID,
				"faf":         true,
			},
			CreatedAt: c.clk.Now(),
		}
		cs := &Case{
			ID:               idgen.WithPrefix("cas_"),
			AlertID:          alert.ID,
			SubjectAccountID: account.ID,
			Status:           StatusOpen,
			CreatedAt:        c.clk.Now(),
		}
		if err := c.store.CreateAlertWithCase(ctx, alert, cs); err != nil {
			c.logger.Warn("failed to create feature alert",
				"rule", cand.RuleID, "error", err)
			continue
		}
		metrics.AlertsGeneratedTotal.WithLabelValues("feature").Inc()
		c.publish("alert.created", alert)
		generated++

		if cand.AnchorType == "TRANSACTION" {
			if err := c.tagIfCompliance(ctx, alert.ID, cand.AnchorID); err != nil {
				c.logger.Warn("compliance tagging failed",
					"alert", alert.ID, "error", err)
			}
		}
	}
	return generated, nil
}

// ensureTransaction records a transaction-log snapshot for detections that
// carry transaction metadata, so compliance scoring has a row to read.
func (c *Correlator) ensureTransaction(ctx context.Context, det detection.Detection) error {
	if det.TxReference == "" {
		return nil
	}
	if _, err := c.txs.GetByReference(ctx, det.TxReference); err == nil {
		return nil
	} else if !errors.Is(err, txlog.ErrNotFound) {
		return err
	}

	receiver := "UNKNOWN"
	if len(det.LinkedAccounts) > 0 && det.LinkedAccounts[0].AccountNumber != "" {
		receiver = det.LinkedAccounts[0].AccountNumber
	}
	sender := det.SubjectAccountNumber
	if sender == "" {
		sender = "UNKNOWN"
	}
	currency := det.TxCurrency
	if currency == "" {
		currency = "PHP"
	}
	authMethod := det.AuthMethod
	if authMethod == "" {
		authMethod = "OTP_SMS"
	}

	tx := &txlog.Transaction{
		ID:                idgen.WithPrefix("txn_"),
		Reference:         det.TxReference,
		SenderAccountID:   sender,
		ReceiverAccountID: receiver,
		Amount:            decimal.NewFromFloat(det.TxAmount),
		Currency:          currency,
		OccurredAt:        c.clk.Now(),
		Channel:           "MOBILE_APP",
		AuthMethod:        authMethod,
		DeviceFingerprint: det.DeviceID,
		CreatedAt:         c.clk.Now(),
	}
	return c.txs.Create(ctx, tx)
}

// tagIfCompliance scores the referenced transaction and sets the alert's
// compliance tags when the combined risk crosses the threshold.
func (c *Correlator) tagIfCompliance(ctx context.Context, alertID, txRef string) error {
	if txRef == "" {
		return nil
	}
	tx, err := c.txs.GetByReference(ctx, txRef)
	if errors.Is(err, txlog.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	assessment, err := c.scorer.Score(ctx, tx, nil, nil)
	if err != nil {
		return err
	}
	if assessment.CombinedScore < c.threshold {
		return nil
	}

	suspicion := strings.Join(assessment.SuspicionTypes, ",")
	if err := c.store.TagAlert(ctx, alertID, suspicion, assessment.CombinedScore); err != nil {
		return err
	}
	metrics.AlertsTaggedTotal.Inc()
	return nil
}

func (c *Correlator) publish(event string, payload any) {
	if c.publisher != nil {
		c.publisher.Publish(event, payload)
	}
}
