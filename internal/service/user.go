// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/invite"
	"github.com/cvforge/forge/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows. NIST recommends cost 10+.
	//
	// SECURITY NOTE: This should NOT be configurable at runtime to prevent
	// accidental weakening. If you need to change it, do so here and redeploy.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy, sufficient for cryptographic security.
	// The token is then hex-encoded to 64 characters for storage/transmission.
	SessionTokenBytes = 32

	// SessionDuration is how long a session remains valid.
	SessionDuration = 7 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	// NIST SP 800-63B recommends 8+ characters minimum.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72
)

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the interface for user-related operations.
type UserService interface {
	// Register creates a new user account.
	// Returns domain.ECONFLICT if email already exists.
	// Returns domain.EINVALID for validation errors.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error)

	// Login authenticates a user and creates a new session.
	// Returns the user and raw session token on success.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token.
	// This is idempotent - calling with an invalid token is not an error.
	Logout(ctx context.Context, token string) error

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetBySessionToken retrieves a user by their session token.
	// Returns domain.EUNAUTHORIZED if token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// DeleteExpiredSessions removes all expired sessions from the database.
	// This should be called periodically (e.g., daily) to clean up.
	DeleteExpiredSessions(ctx context.Context) error

	// =========================================================================
	// Email Verification Methods
	// =========================================================================

	// CreateEmailVerificationToken creates a new email verification token.
	// Returns the raw token (to send in email) and expiration time.
	// Deletes any existing tokens for the user before creating a new one.
	CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailVerificationResult, error)

	// VerifyEmail validates a verification token and marks the user verified.
	// Returns domain.ENOTFOUND if token is invalid or expired.
	// Returns domain.ECONFLICT if user is already verified.
	VerifyEmail(ctx context.Context, token string) error

	// ResendVerificationEmail creates a new verification token for an
	// unverified user.
	ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailVerificationResult, error)

	// DeleteExpiredEmailVerificationTokens removes all expired tokens.
	DeleteExpiredEmailVerificationTokens(ctx context.Context) error

	// =========================================================================
	// Billing Methods
	// =========================================================================

	// UpdateStripeCustomer saves the Stripe customer ID for a user.
	UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error

	// UpdateSubscription updates a user's subscription status, plan, and ID.
	UpdateSubscription(ctx context.Context, userID uuid.UUID, status, plan, subscriptionID string) error

	// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
	// Returns domain.ENOTFOUND if no user has that customer ID.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error)
}

// =============================================================================
// Implementation
// =============================================================================

// userService is the concrete implementation of UserService.
type userService struct {
	queries *repository.Queries
	invites *invite.Validator
	logger  *slog.Logger
}

// NewUserService creates a new UserService instance.
func NewUserService(queries *repository.Queries, invites *invite.Validator, logger *slog.Logger) UserService {
	return &userService{
		queries: queries,
		invites: invites,
		logger:  logger,
	}
}

// Register creates a new user account with the provided parameters.
//
// Security Considerations:
// - Password is hashed with bcrypt cost 12
// - Timing attacks are mitigated by always hashing even on duplicate email
// - The raw password is never logged or stored
func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	const op = "UserService.Register"

	// Validate and normalize input
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Name = strings.TrimSpace(params.Name)

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
	}
	if params.Name == "" {
		return nil, domain.Invalid(op, "Name is required")
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid password")
	}

	// Invite gating for the closed beta
	if !s.invites.ValidateCode(params.InviteCode) {
		return nil, domain.Forbidden(op, "A valid invite code is required")
	}

	// Check if email already exists
	_, err := s.queries.GetUserByEmail(ctx, params.Email)
	if err == nil {
		// User exists - to prevent timing attacks, we hash the password anyway
		_, _ = bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
		return nil, domain.Conflict(op, "Email already registered")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "Failed to check email availability")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	repoUser, err := s.queries.CreateUser(ctx, repository.CreateUserParams{
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		Name:         params.Name,
	})
	if err != nil {
		// Check for unique constraint violation (race condition)
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)

	return user, nil
}

// Login authenticates a user and creates a new session.
//
// Security Considerations:
// - Constant-time password comparison via bcrypt
// - Generic error message prevents email enumeration
// - Session token is only returned once (not stored anywhere in plaintext)
// - Token is hashed before storage (if DB is compromised, tokens are useless)
func (s *userService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	const op = "UserService.Login"

	email = strings.ToLower(strings.TrimSpace(email))

	repoUser, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		// If user not found, still do a bcrypt comparison to prevent timing attacks
		if errors.Is(err, sql.ErrNoRows) {
			dummyHash := "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW" // bcrypt hash of "dummy"
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	err = bcrypt.CompareHashAndPassword([]byte(repoUser.PasswordHash), []byte(password))
	if err != nil {
		return nil, domain.Unauthorized(op, "Invalid email or password")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate session token")
	}
	tokenHash := hashSessionToken(token)
	expiresAt := time.Now().Add(SessionDuration)

	_, err = s.queries.CreateSession(ctx, repository.CreateSessionParams{
		UserID:    repoUser.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user logged in", "user_id", user.ID, "email", user.Email)

	return &domain.LoginResult{
		User:  user,
		Token: token,
	}, nil
}

// Logout invalidates a session. Idempotent.
func (s *userService) Logout(ctx context.Context, token string) error {
	if token == "" || len(token) != 64 {
		return nil // Invalid token, but logout is idempotent
	}

	tokenHash := hashSessionToken(token)
	if err := s.queries.DeleteSession(ctx, tokenHash); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to delete session", "error", err)
		}
	}

	s.logger.Debug("session invalidated")
	return nil
}

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "UserService.GetByID"

	repoUser, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// GetBySessionToken retrieves a user by their session token.
func (s *userService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "UserService.GetBySessionToken"

	if token == "" || len(token) != 64 {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	tokenHash := hashSessionToken(token)

	// Query already filters expired sessions
	session, err := s.queries.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve session")
	}

	repoUser, err := s.queries.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unlikely but possible if user was deleted
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// DeleteExpiredSessions removes all expired sessions.
func (s *userService) DeleteExpiredSessions(ctx context.Context) error {
	const op = "UserService.DeleteExpiredSessions"

	if err := s.queries.DeleteExpiredSessions(ctx); err != nil {
		return domain.Internal(err, op, "Failed to delete expired sessions")
	}

	s.logger.Info("expired sessions cleaned up")
	return nil
}

// =============================================================================
// Email Verification Implementation
// =============================================================================

// CreateEmailVerificationToken creates a new email verification token.
func (s *userService) CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailVerificationResult, error) {
	const op = "UserService.CreateEmailVerificationToken"

	_, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	// One token per user
	if err := s.queries.DeleteUserEmailVerificationTokens(ctx, userID); err != nil {
		return nil, domain.Internal(err, op, "Failed to delete existing tokens")
	}

	rawToken, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate token")
	}
	tokenHash := hashSessionToken(rawToken)
	expiresAt := time.Now().Add(domain.EmailVerificationTokenDuration)

	_, err = s.queries.CreateEmailVerificationToken(ctx, repository.CreateEmailVerificationTokenParams{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create verification token")
	}

	s.logger.Info("email verification token created", "user_id", userID)

	return &domain.EmailVerificationResult{
		Token:     rawToken,
		ExpiresAt: expiresAt,
		UserID:    userID,
	}, nil
}

// VerifyEmail validates a verification token and marks the user verified.
func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	const op = "UserService.VerifyEmail"

	if len(token) != 64 {
		return domain.Invalid(op, "Invalid verification token")
	}

	tokenHash := hashSessionToken(token)

	verificationToken, err := s.queries.GetEmailVerificationTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "verification token", "")
		}
		return domain.Internal(err, op, "Failed to retrieve verification token")
	}

	user, err := s.queries.GetUserByID(ctx, verificationToken.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "user", verificationToken.UserID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	if user.EmailVerified.Valid && user.EmailVerified.Bool {
		return domain.Conflict(op, "Email is already verified")
	}

	err = s.queries.UpdateUserEmailVerification(ctx, repository.UpdateUserEmailVerificationParams{
		ID:              user.ID,
		EmailVerified:   sql.NullBool{Bool: true, Valid: true},
		EmailVerifiedAt: sql.NullTime{Time: time.Now(), Valid: true},
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to mark email as verified")
	}

	// Token is one-time use
	if err := s.queries.DeleteEmailVerificationToken(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to delete verification token after use", "error", err, "user_id", user.ID)
	}

	s.logger.Info("email verified", "user_id", user.ID, "email", user.Email)
	return nil
}

// ResendVerificationEmail creates a new verification token for an
// unverified user.
func (s *userService) ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailVerificationResult, error) {
	const op = "UserService.ResendVerificationEmail"

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", email)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	if user.EmailVerified.Valid && user.EmailVerified.Bool {
		return nil, domain.Conflict(op, "Email is already verified")
	}

	return s.CreateEmailVerificationToken(ctx, user.ID)
}

// DeleteExpiredEmailVerificationTokens removes all expired tokens.
func (s *userService) DeleteExpiredEmailVerificationTokens(ctx context.Context) error {
	const op = "UserService.DeleteExpiredEmailVerificationTokens"

	if err := s.queries.DeleteExpiredEmailVerificationTokens(ctx); err != nil {
		return domain.Internal(err, op, "Failed to delete expired tokens")
	}

	s.logger.Info("expired email verification tokens cleaned up")
	return nil
}

// =============================================================================
// Billing Methods Implementation
// =============================================================================

// UpdateStripeCustomer saves the Stripe customer ID for a user.
func (s *userService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	const op = "UserService.UpdateStripeCustomer"

	err := s.queries.UpdateUserStripeCustomer(ctx, repository.UpdateUserStripeCustomerParams{
		ID:               userID,
		StripeCustomerID: domain.ToNullString(stripeCustomerID),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to update Stripe customer ID")
	}

	s.logger.Info("stripe customer ID updated", "user_id", userID, "stripe_customer_id", stripeCustomerID)
	return nil
}

// UpdateSubscription updates a user's subscription status, plan, and ID.
func (s *userService) UpdateSubscription(ctx context.Context, userID uuid.UUID, status, plan, subscriptionID string) error {
	const op = "UserService.UpdateSubscription"

	err := s.queries.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
		ID:                 userID,
		SubscriptionStatus: domain.ToNullString(status),
		Plan:               domain.ToNullString(plan),
		SubscriptionID:     domain.ToNullString(subscriptionID),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to update subscription")
	}

	s.logger.Info("subscription updated", "user_id", userID, "status", status, "plan", plan)
	return nil
}

// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
func (s *userService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	const op = "UserService.GetByStripeCustomerID"

	repoUser, err := s.queries.GetUserByStripeCustomerID(ctx, domain.ToNullString(stripeCustomerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", stripeCustomerID)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user by Stripe customer ID")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// generateSessionToken creates a cryptographically secure session token.
// Returns a 64-character hex string representing 32 random bytes.
func generateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashSessionToken creates a SHA-256 hash of a session token.
//
// We hash session tokens before storing them because:
//  1. If the database is compromised, attackers cannot use the hashes directly
//  2. SHA-256 is fast enough for per-request validation
//  3. Unlike passwords, session tokens are high-entropy random values,
//     so SHA-256 is sufficient (bcrypt would be overkill and slow)
func hashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// repoUserToDomain converts a repository.User to domain.User.
//
// This handles the conversion from database types (sql.Null*) to Go types,
// making the domain model easier to work with in business logic.
func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:                 u.ID,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		Name:               u.Name,
		StripeCustomerID:   domain.NullStringValue(u.StripeCustomerID),
		SubscriptionStatus: domain.SubscriptionStatus(domain.NullStringValue(u.SubscriptionStatus)),
		Plan:               domain.PlanID(domain.NullStringValue(u.Plan)),
		SubscriptionID:     domain.NullStringValue(u.SubscriptionID),
		EmailVerified:      domain.NullBoolValue(u.EmailVerified),
		EmailVerifiedAt:    domain.NullTimeValue(u.EmailVerifiedAt),
		CreatedAt:          domain.NullTimeOrZero(u.CreatedAt),
		UpdatedAt:          domain.NullTimeOrZero(u.UpdatedAt),
	}
}

// validateEmail validates an email address format.
//
// Checks:
// - Basic format validation (contains @, has domain)
// - Length limits (RFC 5321: 254 chars max)
func validateEmail(email string) error {
	if email == "" {
		return domain.Invalid("", "Email is required")
	}
	if len(email) > 254 {
		return domain.Invalid("", "Email must be 254 characters or less")
	}

	// Must contain exactly one @, and domain part must have a dot
	atIndex := -1
	atCount := 0
	for i, c := range email {
		if c == '@' {
			atCount++
			atIndex = i
		}
	}

	if atCount != 1 {
		return domain.Invalid("", "Email must contain exactly one @ symbol")
	}
	if atIndex == 0 {
		return domain.Invalid("", "Email cannot start with @")
	}
	if atIndex == len(email)-1 {
		return domain.Invalid("", "Email cannot end with @")
	}

	domainPart := email[atIndex+1:]
	if !strings.Contains(domainPart, ".") {
		return domain.Invalid("", "Email domain must contain a dot")
	}
	if strings.Contains(email, "..") {
		return domain.Invalid("", "Email cannot contain consecutive dots")
	}

	return nil
}

// validatePassword validates password strength requirements.
//
// Rules:
// - Minimum length: 8 characters (NIST SP 800-63B)
// - Maximum length: 72 characters (bcrypt limit)
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.Invalid("", "Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return domain.Invalid("", "Password must be 72 characters or less")
	}
	return nil
}

// =============================================================================
// Compile-time interface check
// =============================================================================

var _ UserService = (*userService)(nil)
