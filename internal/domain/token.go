// Package domain contains core business types and interfaces.
//
// This file defines token types for the email verification flow.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// EmailVerificationTokenDuration is how long email verification tokens
	// remain valid. 24 hours gives users reasonable time to verify while
	// limiting exposure.
	EmailVerificationTokenDuration = 24 * time.Hour

	// TokenBytes is the number of random bytes for tokens.
	// 32 bytes = 256 bits of entropy; hex-encoded to 64 characters.
	TokenBytes = 32
)

// EmailVerificationToken represents a token sent to verify email ownership.
// Only the SHA-256 hash of the raw token is stored; one active token per
// user at a time.
type EmailVerificationToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the token has expired.
func (t *EmailVerificationToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// EmailVerificationResult contains the result of creating a verification token.
type EmailVerificationResult struct {
	Token     string // Raw token to send in email (NOT the hash)
	ExpiresAt time.Time
	UserID    uuid.UUID
}
