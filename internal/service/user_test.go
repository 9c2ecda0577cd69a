package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/invite"
	"github.com/cvforge/forge/internal/repository"
)

// =============================================================================
// Password Validation Tests
// =============================================================================

func TestValidatePassword(t *testing.T) {
	testCases := []struct {
		name     string
		password string
		valid    bool
	}{
		{"too short - 7 chars", "Abcdef1", false},
		{"minimum - 8 chars", "Abcdef12", true},
		{"longer - 12 chars", "Abcdefgh1234", true},
		{"72 chars - bcrypt limit", strings.Repeat("Aa1", 24), true},
		{"75 chars - over limit", strings.Repeat("Aa1", 25), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePassword(tc.password)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// =============================================================================
// Email Validation Tests
// =============================================================================

func TestValidateEmail(t *testing.T) {
	testCases := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid email", "user@example.com", true},
		{"valid with subdomain", "user@mail.example.com", true},
		{"empty", "", false},
		{"missing @", "userexample.com", false},
		{"two @", "user@@example.com", false},
		{"starts with @", "@example.com", false},
		{"ends with @", "user@", false},
		{"no dot in domain", "user@localhost", false},
		{"consecutive dots", "user..name@example.com", false},
		{"too long", strings.Repeat("a", 250) + "@x.co", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateEmail(tc.email)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// =============================================================================
// Session Token Tests
// =============================================================================

func TestGenerateSessionToken(t *testing.T) {
	token1, err := generateSessionToken()
	require.NoError(t, err)
	token2, err := generateSessionToken()
	require.NoError(t, err)

	assert.Len(t, token1, 64, "token should be 64 hex characters")
	assert.NotEqual(t, token1, token2, "tokens must be unique")
}

func TestHashSessionToken(t *testing.T) {
	token := strings.Repeat("a", 64)

	hash1 := hashSessionToken(token)
	hash2 := hashSessionToken(token)

	assert.Equal(t, hash1, hash2, "hashing is deterministic")
	assert.Len(t, hash1, 64, "SHA-256 hex digest is 64 characters")
	assert.NotEqual(t, token, hash1, "hash must differ from raw token")
}

// =============================================================================
// Registration Gating Tests
// =============================================================================

// The invite check runs before any database access, so a service with
// no queries wired exercises the rejection path.
func TestRegisterRequiresInviteCode(t *testing.T) {
	svc := NewUserService(nil, invite.New(true, []string{"FORGE-BETA"}), discardLogger())

	_, err := svc.Register(context.Background(), domain.RegisterParams{
		Email:      "user@example.com",
		Password:   "correcthorse",
		Name:       "Test User",
		InviteCode: "WRONG-CODE",
	})
	require.Error(t, err)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
}

func TestRegisterValidatesBeforeInviteCheck(t *testing.T) {
	svc := NewUserService(nil, invite.New(true, nil), discardLogger())

	_, err := svc.Register(context.Background(), domain.RegisterParams{
		Email:    "not-an-email",
		Password: "correcthorse",
		Name:     "Test User",
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

// =============================================================================
// Domain Conversion Tests
// =============================================================================

func TestRepoUserToDomain(t *testing.T) {
	id := uuid.New()
	verifiedAt := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	user := repoUserToDomain(repository.User{
		ID:                 id,
		Email:              "user@example.com",
		PasswordHash:       "hash",
		Name:               "Test User",
		SubscriptionStatus: sql.NullString{String: "active", Valid: true},
		Plan:               sql.NullString{String: "starter", Valid: true},
		EmailVerified:      sql.NullBool{Bool: true, Valid: true},
		EmailVerifiedAt:    sql.NullTime{Time: verifiedAt, Valid: true},
	})

	assert.Equal(t, id, user.ID)
	assert.Equal(t, domain.SubscriptionStatusActive, user.SubscriptionStatus)
	assert.Equal(t, domain.PlanStarter, user.Plan)
	assert.True(t, user.EmailVerified)
	require.NotNil(t, user.EmailVerifiedAt)
	assert.Equal(t, verifiedAt, *user.EmailVerifiedAt)
	assert.Equal(t, domain.PlanStarter, user.EffectivePlan())
}

func TestEffectivePlanFallsBackWhenLapsed(t *testing.T) {
	user := repoUserToDomain(repository.User{
		ID:                 uuid.New(),
		Email:              "user@example.com",
		SubscriptionStatus: sql.NullString{String: "past_due", Valid: true},
		Plan:               sql.NullString{String: "pro", Valid: true},
	})

	assert.Equal(t, domain.PlanPro, user.Plan, "the named plan stays on the record")
	assert.Equal(t, domain.PlanFree, user.EffectivePlan(), "entitlements treat lapsed subscriptions as free")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
