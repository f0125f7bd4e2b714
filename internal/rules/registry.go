package rules

import (
	"fmt"
)

// FeatureSet is the per-account feature vector the feature rules evaluate.
// Zero values are the safe defaults when a source is unavailable.
type FeatureSet struct {
	AccountID        string  `json:"accountId"`
	GraphCentrality  float64 `json:"graphCentrality"`
	NewRecipients24h int     `json:"numNewRecipients24h"`
	ImpossibleTravel bool    `json:"impossibleTravelFlag"`
}

// FeatureRule is a single threshold rule over a FeatureSet.
type FeatureRule struct {
	ID        string
	Name      string
	Category  string
	Severity  string
	Enabled   bool
	Condition func(FeatureSet) bool
}

// Candidate is a feature-rule hit that should become an Alert+Case pair.
type Candidate struct {
	RuleID     string `json:"ruleId"`
	Severity   string `json:"severity"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	AnchorType string `json:"anchorType"`
	AnchorID   string `json:"anchorId"`
}

// Registry holds the feature rules. It is an explicit value injected into
// the correlator, never a process-wide singleton.
type Registry struct {
	rules []FeatureRule
}

// NewRegistry creates a registry with the given rules.
func NewRegistry(rules ...FeatureRule) *Registry {
	return &Registry{rules: rules}
}

// DefaultRegistry returns the built-in feature rule set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		FeatureRule{
			ID:       "FAF-GRAPH-001",
			Name:     "High centrality mule node",
			Category: "GRAPH",
			Severity: SeverityHigh,
			Enabled:  true,
			Condition: func(f FeatureSet) bool {
				return f.GraphCentrality >= 0.8
			},
		},
		FeatureRule{
			ID:       "FAF-P2P-003",
			Name:     "Fan-out to many new recipients",
			Category: "P2P",
			Severity: SeverityHigh,
			Enabled:  true,
			Condition: func(f FeatureSet) bool {
				return f.NewRecipients24h >= 5
			},
		},
		FeatureRule{
			ID:       "FAF-LOGIN-001",
			Name:     "Impossible Travel - Login",
			Category: "LOGIN",
			Severity: SeverityHigh,
			Enabled:  true,
			Condition: func(f FeatureSet) bool {
				return f.ImpossibleTravel
			},
		},
	)
}

// Rules returns the registered rules.
func (r *Registry) Rules() []FeatureRule {
	out := make([]FeatureRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Evaluate runs every enabled rule against the feature set and returns a
// candidate per hit. A rule whose condition panics is skipped; one broken
// rule must not block its siblings.
func (r *Registry) Evaluate(accountID string, features FeatureSet) []Candidate {
	features.AccountID = accountID

	var candidates []Candidate
	for _, rule := range r.rules {
		if !rule.Enabled || rule.Condition == nil {
			continue
		}
		if !safeCondition(rule, features) {
			continue
		}
		candidates = append(candidates, Candidate{
			RuleID:     rule.ID,
			Severity:   rule.Severity,
			Title:      rule.Name,
			Summary:    fmt.Sprintf("Account %s triggered rule %s (%s).", accountID, rule.ID, rule.Name),
			AnchorType: "ACCOUNT",
			AnchorID:   accountID,
		})
	}
	return candidates
}

func safeCondition(rule FeatureRule, features FeatureSet) (hit bool) {
	defer func() {
		if recover() != nil {
			hit = false
		}
	}()
	return rule.Condition(features)
}
