package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// UsageRecord mirrors the usage_records table. One row per user per
// billing cycle; counters reset in place at rollover.
type UsageRecord struct {
	UserID      uuid.UUID
	CvCount     int32
	LetterCount int32
	ResetAt     time.Time
	CreatedAt   sql.NullTime
	UpdatedAt   sql.NullTime
}

// InsertUsageRecordParams names the columns for InsertUsageRecord.
type InsertUsageRecordParams struct {
	UserID  uuid.UUID
	ResetAt time.Time
}

// InsertUsageRecord creates the usage row for a user if one does not
// exist yet. Safe to call concurrently; the conflict clause makes the
// first writer win and everyone else a no-op.
func (q *Queries) InsertUsageRecord(ctx context.Context, arg InsertUsageRecordParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO usage_records (user_id, cv_count, letter_count, reset_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		arg.UserID, arg.ResetAt)
	return err
}

// GetUsageRecord fetches the usage row for a user.
func (q *Queries) GetUsageRecord(ctx context.Context, userID uuid.UUID) (UsageRecord, error) {
	var r UsageRecord
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, cv_count, letter_count, reset_at, created_at, updated_at
		FROM usage_records WHERE user_id = $1`,
		userID,
	).Scan(&r.UserID, &r.CvCount, &r.LetterCount, &r.ResetAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// IncrementUsageCounterParams names the columns for IncrementUsageCounter.
type IncrementUsageCounterParams struct {
	UserID   uuid.UUID
	Category string
}

// IncrementUsageCounter bumps the counter for one category in a single
// statement and returns the updated row. The increment happens inside
// the database, so concurrent callers cannot lose updates.
func (q *Queries) IncrementUsageCounter(ctx context.Context, arg IncrementUsageCounterParams) (UsageRecord, error) {
	var r UsageRecord
	err := q.db.QueryRowContext(ctx, `
		UPDATE usage_records
		SET cv_count     = cv_count     + CASE WHEN $2 = 'cv' THEN 1 ELSE 0 END,
		    letter_count = letter_count + CASE WHEN $2 = 'letter' THEN 1 ELSE 0 END,
		    updated_at   = now()
		WHERE user_id = $1
		RETURNING user_id, cv_count, letter_count, reset_at, created_at, updated_at`,
		arg.UserID, arg.Category,
	).Scan(&r.UserID, &r.CvCount, &r.LetterCount, &r.ResetAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// RolloverUsageParams names the columns for RolloverUsage.
type RolloverUsageParams struct {
	UserID     uuid.UUID
	NewResetAt time.Time
	Now        time.Time
}

// RolloverUsage zeroes the counters and advances reset_at, but only if
// the row is still expired at Now. The reset_at predicate makes the
// reset idempotent under races: exactly one concurrent caller matches
// the row, the rest update zero rows.
func (q *Queries) RolloverUsage(ctx context.Context, arg RolloverUsageParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE usage_records
		SET cv_count = 0, letter_count = 0, reset_at = $2, updated_at = now()
		WHERE user_id = $1 AND reset_at <= $3`,
		arg.UserID, arg.NewResetAt, arg.Now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UsageEvent mirrors the usage_events table. Append-only.
type UsageEvent struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Category    string
	ResourceRef sql.NullString
	Metadata    pqtype.NullRawMessage
	CreatedAt   sql.NullTime
}

// InsertUsageEventParams names the columns for InsertUsageEvent.
type InsertUsageEventParams struct {
	UserID      uuid.UUID
	Category    string
	ResourceRef sql.NullString
	Metadata    pqtype.NullRawMessage
}

// InsertUsageEvent appends one audit event.
func (q *Queries) InsertUsageEvent(ctx context.Context, arg InsertUsageEventParams) (UsageEvent, error) {
	var e UsageEvent
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO usage_events (user_id, category, resource_ref, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, category, resource_ref, metadata, created_at`,
		arg.UserID, arg.Category, arg.ResourceRef, arg.Metadata,
	).Scan(&e.ID, &e.UserID, &e.Category, &e.ResourceRef, &e.Metadata, &e.CreatedAt)
	return e, err
}

// ListUsageEventsParams names the columns for ListUsageEvents.
type ListUsageEventsParams struct {
	UserID     uuid.UUID
	Categories []string
	Since      time.Time
	Limit      int32
}

// ListUsageEvents returns a user's audit events since a point in time,
// newest first, optionally filtered by category.
func (q *Queries) ListUsageEvents(ctx context.Context, arg ListUsageEventsParams) ([]UsageEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, category, resource_ref, metadata, created_at
		FROM usage_events
		WHERE user_id = $1
		  AND created_at >= $2
		  AND (cardinality($3::text[]) = 0 OR category = ANY($3::text[]))
		ORDER BY created_at DESC
		LIMIT $4`,
		arg.UserID, arg.Since, pq.Array(arg.Categories), arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UsageEvent
	for rows.Next() {
		var e UsageEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Category, &e.ResourceRef, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// CountUsageEventsInCycleParams names the columns for CountUsageEventsInCycle.
type CountUsageEventsInCycleParams struct {
	UserID   uuid.UUID
	Category string
	Since    time.Time
}

// CountUsageEventsInCycle counts audit events for one category since
// the start of the current cycle. The usage summary uses it to detect
// drift between the authoritative counters and the best-effort trail.
func (q *Queries) CountUsageEventsInCycle(ctx context.Context, arg CountUsageEventsInCycleParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT count(*) FROM usage_events
		WHERE user_id = $1 AND category = $2 AND created_at >= $3`,
		arg.UserID, arg.Category, arg.Since,
	).Scan(&count)
	return count, err
}
