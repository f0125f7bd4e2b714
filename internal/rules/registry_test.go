package rules

import (
	"testing"
)

func TestDefaultRegistryBoundaries(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name     string
		features FeatureSet
		want     []string
	}{
		{
			name:     "quiet account fires nothing",
			features: FeatureSet{},
			want:     nil,
		},
		{
			name:     "centrality at threshold",
			features: FeatureSet{GraphCentrality: 0.8},
			want:     []string{"FAF-GRAPH-001"},
		},
		{
			name:     "centrality just below threshold",
			features: FeatureSet{GraphCentrality: 0.79},
			want:     nil,
		},
		{
			name:     "five new recipients",
			features: FeatureSet{NewRecipients24h: 5},
			want:     []string{"FAF-P2P-003"},
		},
		{
			name:     "four new recipients",
			features: FeatureSet{NewRecipients24h: 4},
			want:     nil,
		},
		{
			name:     "impossible travel",
			features: FeatureSet{ImpossibleTravel: true},
			want:     []string{"FAF-LOGIN-001"},
		},
		{
			name: "all three at once",
			features: FeatureSet{
				GraphCentrality:  0.95,
				NewRecipients24h: 7,
				ImpossibleTravel: true,
			},
			want: []string{"FAF-GRAPH-001", "FAF-P2P-003", "FAF-LOGIN-001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := reg.Evaluate("acct-1", tt.features)
			if len(candidates) != len(tt.want) {
				t.Fatalf("expected %d candidates, got %d", len(tt.want), len(candidates))
			}
			for i, want := range tt.want {
				if candidates[i].RuleID != want {
					t.Errorf("candidate %d: expected rule %s, got %s", i, want, candidates[i].RuleID)
				}
			}
		})
	}
}

func TestEvaluateAnchorsOnAccount(t *testing.T) {
	reg := DefaultRegistry()

	candidates := reg.Evaluate("ACC-9", FeatureSet{ImpossibleTravel: true})
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.AnchorType != "ACCOUNT" || c.AnchorID != "ACC-9" {
		t.Errorf("expected ACCOUNT/ACC-9 anchor, got %s/%s", c.AnchorType, c.AnchorID)
	}
	if c.Severity != SeverityHigh {
		t.Errorf("expected HIGH severity, got %s", c.Severity)
	}
}

func TestEvaluateSkipsDisabledRules(t *testing.T) {
	reg := NewRegistry(FeatureRule{
		ID:        "TEST-1",
		Name:      "disabled rule",
		Severity:  SeverityLow,
		Enabled:   false,
		Condition: func(FeatureSet) bool { return true },
	})

	if got := reg.Evaluate("acct-1", FeatureSet{}); len(got) != 0 {
		t.Fatalf("expected no candidates from disabled rule, got %d", len(got))
	}
}

func TestEvaluateIsolatesPanickingRule(t *testing.T) {
	reg := NewRegistry(
		FeatureRule{
			ID:        "BROKEN-1",
			Name:      "broken rule",
			Severity:  SeverityLow,
			Enabled:   true,
			Condition: func(FeatureSet) bool { panic("bad condition") },
		},
		FeatureRule{
			ID:        "OK-1",
			Name:      "working rule",
			Severity:  SeverityMedium,
			Enabled:   true,
			Condition: func(FeatureSet) bool { return true },
		},
	)

	candidates := reg.Evaluate("acct-1", FeatureSet{})
	if len(candidates) != 1 {
		t.Fatalf("expected the working rule to still fire, got %d candidates", len(candidates))
	}
	if candidates[0].RuleID != "OK-1" {
		t.Errorf("expected OK-1, got %s", candidates[0].RuleID)
	}
}
