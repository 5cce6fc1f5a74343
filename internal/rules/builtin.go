package rules

import "github.com/opensource-fisheries/gannet/internal/domain"

func limit(v float64) *float64 { return &v }

// BuiltinRules returns the default alert rule set seeded on first start.
// Operators replace or extend these via the rules API.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "gross-excess",
			Name:        "Gross export excess",
			Description: "Export weight more than double the landed weight on an overused item",
			Version:     "1.0",
			Expression:  `overused && landed_weight > 0.0 && export_weight > landed_weight * 2.0`,
			Bands: []domain.RuleBand{
				{LowerLimit: limit(0), UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "export within gross bounds"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "export weight exceeds twice the landed weight"},
			},
			Enabled: true,
		},
		{
			ID:          "certificate-spread",
			Name:        "Certificate spread",
			Description: "A single landing item referenced by five or more certificates",
			Version:     "1.0",
			Expression:  `usage_count`,
			Bands: []domain.RuleBand{
				{LowerLimit: limit(0), UpperLimit: limit(5), SubRuleRef: domain.RuleOutcomePass, Reason: "certificate count in normal range"},
				{LowerLimit: limit(5), UpperLimit: limit(10), SubRuleRef: domain.RuleOutcomeReview, Reason: "unusually many certificates reference this landing"},
				{LowerLimit: limit(10), SubRuleRef: domain.RuleOutcomeFail, Reason: "certificate count far above normal range"},
			},
			Enabled: true,
		},
		{
			ID:          "estimate-overuse",
			Name:        "Estimated weight overuse",
			Description: "Overuse flagged against an estimated rather than declared landed weight",
			Version:     "1.0",
			Expression:  `overused && is_estimate`,
			Bands: []domain.RuleBand{
				{LowerLimit: limit(0), UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "not an estimated overuse"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "overuse against an estimated landed weight"},
			},
			Enabled: true,
		},
	}
}
