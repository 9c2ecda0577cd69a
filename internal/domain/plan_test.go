package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotaFor(t *testing.T) {
	tests := []struct {
		name     string
		plan     PlanID
		category DocumentCategory
		want     Quota
	}{
		{"free cv", PlanFree, CategoryCV, 3},
		{"free letter", PlanFree, CategoryLetter, 3},
		{"starter cv", PlanStarter, CategoryCV, 15},
		{"starter letter", PlanStarter, CategoryLetter, 15},
		{"pro cv is unlimited", PlanPro, CategoryCV, Unlimited},
		{"premium letter is unlimited", PlanPremium, CategoryLetter, Unlimited},
		{"unknown plan falls back to free", PlanID("enterprise"), CategoryCV, 3},
		{"empty plan falls back to free", PlanID(""), CategoryLetter, 3},
		{"unknown category gets zero quota", PlanPro, DocumentCategory("podcast"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuotaFor(tt.plan, tt.category))
		})
	}
}

func TestQuotaIsUnlimited(t *testing.T) {
	assert.True(t, Quota(Unlimited).IsUnlimited())
	assert.False(t, Quota(0).IsUnlimited())
	assert.False(t, Quota(15).IsUnlimited())
}

func TestFeatureEnabled(t *testing.T) {
	tests := []struct {
		name    string
		plan    PlanID
		feature Feature
		want    bool
	}{
		{"free has no ai writer", PlanFree, FeatureAIWriter, false},
		{"starter has ai writer", PlanStarter, FeatureAIWriter, true},
		{"starter has no import", PlanStarter, FeatureImport, false},
		{"pro has import", PlanPro, FeatureImport, true},
		{"pro has no premium templates", PlanPro, FeaturePremiumTemplates, false},
		{"premium has everything", PlanPremium, FeaturePremiumTemplates, true},
		{"unknown plan falls back to free", PlanID("legacy"), FeatureAIWriter, false},
		{"unknown feature is false", PlanPremium, Feature("teleport"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FeatureEnabled(tt.plan, tt.feature))
		})
	}
}

func TestDocumentCategoryIsValid(t *testing.T) {
	assert.True(t, CategoryCV.IsValid())
	assert.True(t, CategoryLetter.IsValid())
	assert.False(t, DocumentCategory("resume").IsValid())
	assert.False(t, DocumentCategory("").IsValid())
}
