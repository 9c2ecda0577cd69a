// Package domain contains core business types and interfaces.
//
// This file defines the usage ledger types: per-user monthly counters, the
// cycle boundary, append-only audit events, and the transient entitlement
// decision returned to callers before a document is created.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the per-user ledger row: one counter per document category
// for the current billing cycle, plus the cycle reset timestamp.
//
// The record is mutated only through the repository's atomic operations.
// Counters are non-negative; ResetAt is always in the future after a rollover.
type UsageRecord struct {
	UserID      uuid.UUID
	CVCount     int
	LetterCount int
	ResetAt     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Count returns the counter for the given category.
func (r *UsageRecord) Count(category DocumentCategory) int {
	switch category {
	case CategoryCV:
		return r.CVCount
	case CategoryLetter:
		return r.LetterCount
	default:
		return 0
	}
}

// Expired reports whether the record's cycle boundary has passed.
// A record is due for rollover when now >= ResetAt.
func (r *UsageRecord) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}

// NextResetAfter advances a reset timestamp one calendar month at a time
// until it is strictly after now. Rollover advances from the previous
// scheduled reset, not from "now", so the cycle anchor never drifts for
// users who go inactive across several boundaries.
func NextResetAfter(resetAt, now time.Time) time.Time {
	next := resetAt
	for !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// UsageEvent is an append-only audit record written once per tracked
// creation or update. Events are never mutated or deleted.
type UsageEvent struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Category    DocumentCategory
	ResourceRef string
	Metadata    json.RawMessage
	CreatedAt   time.Time
}

// EntitlementDecision is the transient allow/deny result of a quota check.
// It is produced per request and never persisted.
type EntitlementDecision struct {
	Category  DocumentCategory
	Allowed   bool
	Current   int
	Limit     Quota // Unlimited when the plan has no ceiling
	Remaining Quota // Unlimited when the plan has no ceiling
}

// CategoryUsage is one category's slice of a usage summary.
type CategoryUsage struct {
	Current   int  `json:"current"`
	Limit     int  `json:"limit"` // -1 when unlimited
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// UsageSummary reports all category counters and the next reset date,
// shaped for the usage endpoint.
type UsageSummary struct {
	PerCategory map[DocumentCategory]CategoryUsage `json:"per_category"`
	ResetAt     time.Time                          `json:"reset_at"`
}
