package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User mirrors the users table.
type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	Name               string
	StripeCustomerID   sql.NullString
	SubscriptionStatus sql.NullString
	Plan               sql.NullString
	SubscriptionID     sql.NullString
	EmailVerified      sql.NullBool
	EmailVerifiedAt    sql.NullTime
	CreatedAt          sql.NullTime
	UpdatedAt          sql.NullTime
}

const userColumns = `id, email, password_hash, name, stripe_customer_id,
	subscription_status, plan, subscription_id, email_verified, email_verified_at,
	created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.StripeCustomerID,
		&u.SubscriptionStatus, &u.Plan, &u.SubscriptionID, &u.EmailVerified,
		&u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUserParams contains the columns set on insert.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
}

// CreateUser inserts a new user and returns the created row.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		arg.Email, arg.PasswordHash, arg.Name,
	)
	return scanUser(row)
}

// GetUserByID fetches a user by primary key.
func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail fetches a user by email (emails are stored lowercased).
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetUserByStripeCustomerID fetches a user by their Stripe customer ID.
func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, stripeCustomerID)
	return scanUser(row)
}

// UpdateUserStripeCustomerParams names the columns for UpdateUserStripeCustomer.
type UpdateUserStripeCustomerParams struct {
	ID               uuid.UUID
	StripeCustomerID sql.NullString
}

// UpdateUserStripeCustomer saves the Stripe customer ID for a user.
func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.StripeCustomerID)
	return err
}

// UpdateUserSubscriptionParams names the columns for UpdateUserSubscription.
type UpdateUserSubscriptionParams struct {
	ID                 uuid.UUID
	SubscriptionStatus sql.NullString
	Plan               sql.NullString
	SubscriptionID     sql.NullString
}

// UpdateUserSubscription updates a user's subscription status, plan, and ID.
func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET subscription_status = $2, plan = $3, subscription_id = $4, updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.SubscriptionStatus, arg.Plan, arg.SubscriptionID)
	return err
}

// UpdateUserEmailVerificationParams names the columns for UpdateUserEmailVerification.
type UpdateUserEmailVerificationParams struct {
	ID              uuid.UUID
	EmailVerified   sql.NullBool
	EmailVerifiedAt sql.NullTime
}

// UpdateUserEmailVerification marks a user's email verification state.
func (q *Queries) UpdateUserEmailVerification(ctx context.Context, arg UpdateUserEmailVerificationParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET email_verified = $2, email_verified_at = $3, updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.EmailVerified, arg.EmailVerifiedAt)
	return err
}

// Session mirrors the sessions table.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt sql.NullTime
}

// CreateSessionParams names the columns for CreateSession.
type CreateSessionParams struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

// CreateSession inserts a new session row.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token_hash, expires_at, created_at`,
		arg.UserID, arg.TokenHash, arg.ExpiresAt,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

// GetSessionByTokenHash fetches a non-expired session by token hash.
func (q *Queries) GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

// DeleteSession removes a session by token hash.
func (q *Queries) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

// DeleteUserSessions removes all sessions for a user.
func (q *Queries) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpiredSessions removes all expired sessions.
func (q *Queries) DeleteExpiredSessions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	return err
}

// EmailVerificationToken mirrors the email_verification_tokens table.
type EmailVerificationToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt sql.NullTime
}

// CreateEmailVerificationTokenParams names the columns for CreateEmailVerificationToken.
type CreateEmailVerificationTokenParams struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

// CreateEmailVerificationToken inserts a new verification token row.
func (q *Queries) CreateEmailVerificationToken(ctx context.Context, arg CreateEmailVerificationTokenParams) (EmailVerificationToken, error) {
	var t EmailVerificationToken
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO email_verification_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token_hash, expires_at, created_at`,
		arg.UserID, arg.TokenHash, arg.ExpiresAt,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	return t, err
}

// GetEmailVerificationTokenByHash fetches a non-expired token by hash.
func (q *Queries) GetEmailVerificationTokenByHash(ctx context.Context, tokenHash string) (EmailVerificationToken, error) {
	var t EmailVerificationToken
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM email_verification_tokens
		WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	return t, err
}

// DeleteUserEmailVerificationTokens removes all verification tokens for a user.
func (q *Queries) DeleteUserEmailVerificationTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE user_id = $1`, userID)
	return err
}

// DeleteEmailVerificationToken removes a single token by hash.
func (q *Queries) DeleteEmailVerificationToken(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE token_hash = $1`, tokenHash)
	return err
}

// DeleteExpiredEmailVerificationTokens removes all expired verification tokens.
func (q *Queries) DeleteExpiredEmailVerificationTokens(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE expires_at <= now()`)
	return err
}
