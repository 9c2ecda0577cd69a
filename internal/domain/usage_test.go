package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageRecordExpired(t *testing.T) {
	reset := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	rec := &UsageRecord{ResetAt: reset}

	assert.False(t, rec.Expired(reset.Add(-time.Second)))
	// The boundary instant itself counts as expired: now >= reset_at.
	assert.True(t, rec.Expired(reset))
	assert.True(t, rec.Expired(reset.Add(time.Second)))
}

func TestNextResetAfter(t *testing.T) {
	tests := []struct {
		name    string
		resetAt time.Time
		now     time.Time
		want    time.Time
	}{
		{
			name:    "one cycle overdue advances one month",
			resetAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			now:     time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "forty days overdue advances two months",
			resetAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			now:     time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "anchor day is preserved across many idle cycles",
			resetAt: time.Date(2025, 1, 28, 12, 0, 0, 0, time.UTC),
			now:     time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 11, 28, 12, 0, 0, 0, time.UTC),
		},
		{
			name:    "now exactly at reset advances strictly past it",
			resetAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			now:     time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextResetAfter(tt.resetAt, tt.now)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(tt.now), "next reset must be strictly in the future")
		})
	}
}

func TestUsageRecordCount(t *testing.T) {
	rec := &UsageRecord{CVCount: 4, LetterCount: 9}

	assert.Equal(t, 4, rec.Count(CategoryCV))
	assert.Equal(t, 9, rec.Count(CategoryLetter))
	assert.Equal(t, 0, rec.Count(DocumentCategory("unknown")))
}
