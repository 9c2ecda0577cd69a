// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: per-plan document quotas and feature
// flags. The catalog is static configuration loaded into the binary; changing
// a plan's quota takes effect for all users of that plan on their next check.
package domain

// PlanID identifies a subscription plan.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanStarter PlanID = "starter"
	PlanPro     PlanID = "pro"
	PlanPremium PlanID = "premium"
)

// IsValid returns true if the plan is a recognized value.
// Unknown plans are still usable everywhere (they fall back to free),
// so this is informational, not a gate.
func (p PlanID) IsValid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro, PlanPremium:
		return true
	default:
		return false
	}
}

// Feature identifies an optional capability gated by plan.
type Feature string

const (
	// FeatureAIWriter enables AI-assisted content improvement.
	FeatureAIWriter Feature = "ai_writer"

	// FeatureImport enables importing an existing CV from an uploaded file.
	FeatureImport Feature = "import"

	// FeaturePremiumTemplates unlocks the premium export template set.
	FeaturePremiumTemplates Feature = "premium_templates"
)

// Unlimited is the quota sentinel meaning "no ceiling for this category".
const Unlimited = -1

// Quota is a per-category ceiling. A non-negative value is a hard monthly
// limit; Unlimited means the category is never gated.
type Quota int

// IsUnlimited returns true if the quota has no ceiling.
func (q Quota) IsUnlimited() bool {
	return q == Unlimited
}

// PlanQuota defines the monthly limits and feature flags for one plan.
type PlanQuota struct {
	CVsPerMonth     Quota
	LettersPerMonth Quota
	Features        map[Feature]bool
}

// PlanCatalog maps plan identifiers to their quotas and features.
// Free tier has strict limits; pro and premium are unlimited.
var PlanCatalog = map[PlanID]PlanQuota{
	PlanFree: {
		CVsPerMonth:     3,
		LettersPerMonth: 3,
	},
	PlanStarter: {
		CVsPerMonth:     15,
		LettersPerMonth: 15,
		Features: map[Feature]bool{
			FeatureAIWriter: true,
		},
	},
	PlanPro: {
		CVsPerMonth:     Unlimited,
		LettersPerMonth: Unlimited,
		Features: map[Feature]bool{
			FeatureAIWriter: true,
			FeatureImport:   true,
		},
	},
	PlanPremium: {
		CVsPerMonth:     Unlimited,
		LettersPerMonth: Unlimited,
		Features: map[Feature]bool{
			FeatureAIWriter:         true,
			FeatureImport:           true,
			FeaturePremiumTemplates: true,
		},
	},
}

// QuotaFor returns the monthly quota for a plan and document category.
// Unknown plans fall back to the free plan's quota (safe default, never an
// error). Unknown categories get a zero quota so nothing slips through
// unmetered.
func QuotaFor(plan PlanID, category DocumentCategory) Quota {
	pq, ok := PlanCatalog[plan]
	if !ok {
		pq = PlanCatalog[PlanFree]
	}
	switch category {
	case CategoryCV:
		return pq.CVsPerMonth
	case CategoryLetter:
		return pq.LettersPerMonth
	default:
		return 0
	}
}

// FeatureEnabled reports whether a feature is enabled for a plan.
// Unknown plans fall back to the free plan; unknown features are false.
func FeatureEnabled(plan PlanID, feature Feature) bool {
	pq, ok := PlanCatalog[plan]
	if !ok {
		pq = PlanCatalog[PlanFree]
	}
	return pq.Features[feature]
}
