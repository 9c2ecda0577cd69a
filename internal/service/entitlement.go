// Package service contains the business logic layer.
//
// This file implements the entitlement service: plan quota checks,
// monthly usage counters, the audit event trail, and lazy cycle
// rollover.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sqlc-dev/pqtype"

	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/metrics"
	"github.com/cvforge/forge/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService gates document creation on plan quotas and keeps
// the per-cycle usage counters.
//
// The intended call sequence for a quota-governed action is:
//
//	1. CheckAndReserve — deny with EQUOTA if the cycle budget is spent
//	2. perform the action (create the document, run the AI call, ...)
//	3. Record — bump the counter and append the audit event
//
// The check and the increment are deliberately not one transaction:
// a failed action between steps 1 and 3 must not consume quota. Two
// concurrent requests on the last free slot can therefore both pass
// the check and land one count over the limit. That overshoot is
// bounded by the number of in-flight requests and is accepted; lost
// counter updates are not, which is why the increment itself is a
// single atomic statement.
type EntitlementService interface {
	// CheckAndReserve verifies the user has quota left for one more
	// unit of the category. Returns the decision on success and a
	// QuotaExceeded error when the budget is spent.
	CheckAndReserve(ctx context.Context, userID uuid.UUID, plan domain.PlanID, category domain.DocumentCategory) (*domain.EntitlementDecision, error)

	// Record consumes one unit of quota after the governed action
	// succeeded: it increments the cycle counter and appends an
	// audit event referencing the created resource. The counter is
	// authoritative; a failed event append is logged and dropped.
	Record(ctx context.Context, userID uuid.UUID, category domain.DocumentCategory, resourceRef string, metadata json.RawMessage) error

	// GetUsageSummary reports current-cycle usage against the plan's
	// limits for every category, plus the next reset time.
	GetUsageSummary(ctx context.Context, userID uuid.UUID, plan domain.PlanID) (*domain.UsageSummary, error)

	// ListEvents returns the user's audit events, newest first,
	// optionally filtered by category.
	ListEvents(ctx context.Context, userID uuid.UUID, categories []domain.DocumentCategory, since time.Time, limit int32) ([]domain.UsageEvent, error)

	// CheckFeature verifies the plan includes a feature flag.
	// Returns EFORBIDDEN when it does not.
	CheckFeature(ctx context.Context, plan domain.PlanID, feature domain.Feature) error
}

// entitlementStore is the slice of the repository the service needs.
// *repository.Queries satisfies it.
type entitlementStore interface {
	InsertUsageRecord(ctx context.Context, arg repository.InsertUsageRecordParams) error
	GetUsageRecord(ctx context.Context, userID uuid.UUID) (repository.UsageRecord, error)
	IncrementUsageCounter(ctx context.Context, arg repository.IncrementUsageCounterParams) (repository.UsageRecord, error)
	RolloverUsage(ctx context.Context, arg repository.RolloverUsageParams) (int64, error)
	InsertUsageEvent(ctx context.Context, arg repository.InsertUsageEventParams) (repository.UsageEvent, error)
	ListUsageEvents(ctx context.Context, arg repository.ListUsageEventsParams) ([]repository.UsageEvent, error)
	CountUsageEventsInCycle(ctx context.Context, arg repository.CountUsageEventsInCycleParams) (int64, error)
}

var _ entitlementStore = (*repository.Queries)(nil)

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	store  entitlementStore
	logger *slog.Logger
	now    func() time.Time
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(queries *repository.Queries, logger *slog.Logger) EntitlementService {
	return &entitlementService{
		store:  queries,
		logger: logger,
		now:    time.Now,
	}
}

// CheckAndReserve verifies the user has quota left for one more unit.
func (s *entitlementService) CheckAndReserve(ctx context.Context, userID uuid.UUID, plan domain.PlanID, category domain.DocumentCategory) (*domain.EntitlementDecision, error) {
	const op = "entitlement.check_and_reserve"

	if !category.IsValid() {
		return nil, domain.Invalid(op, "unknown usage category: "+string(category))
	}

	limit := domain.QuotaFor(plan, category)
	if limit.IsUnlimited() {
		// No counter read needed; unlimited plans never consult usage.
		return &domain.EntitlementDecision{
			Category:  category,
			Allowed:   true,
			Current:   0,
			Limit:     limit,
			Remaining: domain.Unlimited,
		}, nil
	}

	record, err := s.currentRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	current := categoryCount(record, category)
	if current >= int(limit) {
		s.logger.Info("quota exceeded",
			"user_id", userID,
			"plan", plan,
			"category", category,
			"used", current,
			"limit", int(limit),
		)
		metrics.QuotaDenials.WithLabelValues(string(category), string(plan)).Inc()
		return nil, domain.QuotaExceeded(op, category, current, int(limit))
	}

	return &domain.EntitlementDecision{
		Category:  category,
		Allowed:   true,
		Current:   current,
		Limit:     limit,
		Remaining: limit - domain.Quota(current),
	}, nil
}

// Record consumes one unit of quota after the governed action succeeded.
func (s *entitlementService) Record(ctx context.Context, userID uuid.UUID, category domain.DocumentCategory, resourceRef string, metadata json.RawMessage) error {
	const op = "entitlement.record"

	if !category.IsValid() {
		return domain.Invalid(op, "unknown usage category: "+string(category))
	}

	// Make sure the row exists and the cycle is current before
	// incrementing, so an expired cycle never absorbs a fresh unit.
	if _, err := s.currentRecord(ctx, userID); err != nil {
		return err
	}

	if _, err := s.store.IncrementUsageCounter(ctx, repository.IncrementUsageCounterParams{
		UserID:   userID,
		Category: string(category),
	}); err != nil {
		return domain.Internal(err, op, "failed to increment usage counter")
	}

	event := repository.InsertUsageEventParams{
		UserID:      userID,
		Category:    string(category),
		ResourceRef: domain.ToNullString(resourceRef),
	}
	if len(metadata) > 0 {
		event.Metadata = pqtype.NullRawMessage{RawMessage: metadata, Valid: true}
	}
	if _, err := s.store.InsertUsageEvent(ctx, event); err != nil {
		// The counter already moved and is authoritative. Failing the
		// request here would make the caller retry a creation that
		// already succeeded, so the lost audit row is logged and
		// dropped instead.
		s.logger.Warn("failed to append usage event",
			"user_id", userID,
			"category", category,
			"resource_ref", resourceRef,
			"error", err,
		)
	}

	return nil
}

// GetUsageSummary reports current-cycle usage against the plan's limits.
func (s *entitlementService) GetUsageSummary(ctx context.Context, userID uuid.UUID, plan domain.PlanID) (*domain.UsageSummary, error) {
	record, err := s.currentRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &domain.UsageSummary{
		PerCategory: make(map[domain.DocumentCategory]domain.CategoryUsage, len(domain.AllCategories)),
		ResetAt:     record.ResetAt,
	}
	for _, category := range domain.AllCategories {
		limit := domain.QuotaFor(plan, category)
		current := categoryCount(record, category)
		s.checkAuditDrift(ctx, userID, category, record, current)
		usage := domain.CategoryUsage{
			Current:   current,
			Unlimited: limit.IsUnlimited(),
		}
		if !limit.IsUnlimited() {
			usage.Limit = int(limit)
			usage.Remaining = max(int(limit)-current, 0)
		}
		summary.PerCategory[category] = usage
	}
	return summary, nil
}

// ListEvents returns the user's audit events, newest first.
func (s *entitlementService) ListEvents(ctx context.Context, userID uuid.UUID, categories []domain.DocumentCategory, since time.Time, limit int32) ([]domain.UsageEvent, error) {
	const op = "entitlement.list_events"

	filter := make([]string, 0, len(categories))
	for _, c := range categories {
		if !c.IsValid() {
			return nil, domain.Invalid(op, "unknown usage category: "+string(c))
		}
		filter = append(filter, string(c))
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.store.ListUsageEvents(ctx, repository.ListUsageEventsParams{
		UserID:     userID,
		Categories: filter,
		Since:      since,
		Limit:      limit,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list usage events")
	}

	events := make([]domain.UsageEvent, 0, len(rows))
	for _, row := range rows {
		event := domain.UsageEvent{
			ID:          row.ID,
			UserID:      row.UserID,
			Category:    domain.DocumentCategory(row.Category),
			ResourceRef: domain.NullStringValue(row.ResourceRef),
			CreatedAt:   domain.NullTimeOrZero(row.CreatedAt),
		}
		if row.Metadata.Valid {
			event.Metadata = row.Metadata.RawMessage
		}
		events = append(events, event)
	}
	return events, nil
}

// CheckFeature verifies the plan includes a feature flag.
func (s *entitlementService) CheckFeature(_ context.Context, plan domain.PlanID, feature domain.Feature) error {
	const op = "entitlement.check_feature"

	if !domain.FeatureEnabled(plan, feature) {
		return domain.Forbidden(op, "your plan does not include "+string(feature))
	}
	return nil
}

// currentRecord returns the user's usage record for the current cycle,
// creating it on first touch and rolling it over if expired. Rollover
// is lazy: nothing resets counters until someone reads them after the
// cycle boundary.
func (s *entitlementService) currentRecord(ctx context.Context, userID uuid.UUID) (repository.UsageRecord, error) {
	const op = "entitlement.current_record"

	var record repository.UsageRecord

	// Another request may win the insert or the rollover between our
	// read and write; a short bounded retry absorbs that.
	backoff := retry.WithMaxRetries(3, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		now := s.now().UTC()

		r, err := s.store.GetUsageRecord(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			// First touch: create the row with a full cycle ahead.
			// ON CONFLICT DO NOTHING makes concurrent creators safe.
			if err := s.store.InsertUsageRecord(ctx, repository.InsertUsageRecordParams{
				UserID:  userID,
				ResetAt: now.AddDate(0, 1, 0),
			}); err != nil {
				return err
			}
			return retry.RetryableError(sql.ErrNoRows)
		}
		if err != nil {
			return err
		}

		if !now.Before(r.ResetAt) {
			// Expired cycle. Advance the anchor from the previously
			// scheduled reset, not from now, so the reset day of the
			// month never drifts. The reset_at predicate in the
			// update makes concurrent rollovers collapse to one.
			newReset := domain.NextResetAfter(r.ResetAt, now)
			affected, err := s.store.RolloverUsage(ctx, repository.RolloverUsageParams{
				UserID:     userID,
				NewResetAt: newReset,
				Now:        now,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				s.logger.Debug("usage rollover lost race, rereading", "user_id", userID)
			}
			return retry.RetryableError(errStaleUsageRecord)
		}

		record = r
		return nil
	})
	if err != nil {
		if errors.Is(err, errStaleUsageRecord) || errors.Is(err, sql.ErrNoRows) {
			return repository.UsageRecord{}, domain.Unavailable(err, op, "usage record is under contention, try again")
		}
		return repository.UsageRecord{}, domain.Internal(err, op, "failed to load usage record")
	}
	return record, nil
}

var errStaleUsageRecord = errors.New("usage record expired, reread required")

// categoryCount reads the counter column for a quota category.
func categoryCount(r repository.UsageRecord, category domain.DocumentCategory) int {
	switch category {
	case domain.CategoryCV:
		return int(r.CvCount)
	case domain.CategoryLetter:
		return int(r.LetterCount)
	default:
		return 0
	}
}

// checkAuditDrift compares a counter against the audit events appended
// during the current cycle. Counters are authoritative and the append
// is best-effort, so the trail can legitimately fall behind; the
// mismatch is logged for monitoring, never corrected or surfaced.
func (s *entitlementService) checkAuditDrift(ctx context.Context, userID uuid.UUID, category domain.DocumentCategory, record repository.UsageRecord, current int) {
	events, err := s.store.CountUsageEventsInCycle(ctx, repository.CountUsageEventsInCycleParams{
		UserID:   userID,
		Category: string(category),
		Since:    record.ResetAt.AddDate(0, -1, 0),
	})
	if err != nil {
		s.logger.Debug("audit drift check skipped", "user_id", userID, "error", err)
		return
	}
	if int(events) != current {
		s.logger.Warn("usage counter drifted from audit trail",
			"user_id", userID,
			"category", category,
			"counter", current,
			"events", events,
		)
	}
}
