package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider defines the interface for AI-powered writing assistance.
type Provider interface {
	// ImproveText rewrites a section of CV or cover letter text.
	ImproveText(ctx context.Context, params ImproveParams) (*ImproveResult, error)
}

// ImproveParams contains parameters for text improvement.
type ImproveParams struct {
	Text       string    // The text to rewrite
	Kind       string    // "cv" or "letter", selects the prompt
	Section    string    // Optional section name (e.g. "summary", "experience")
	Tone       string    // Optional tone request (e.g. "formal", "confident")
	JobTitle   string    // Optional target job title for tailoring
	DocumentID uuid.UUID // Document ID for tracking
	UserID     uuid.UUID // User ID for tracking
}

// ImproveResult contains the rewritten text and usage accounting.
type ImproveResult struct {
	Text        string    // The improved text
	Suggestions []string  // Short follow-up suggestions, may be empty
	Usage       UsageInfo // Token usage and cost information
}

// UsageInfo tracks API usage for billing and monitoring.
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidInput indicates the input text is empty or too large
	EAIInvalidInput = errors.New("invalid input text")

	// EAIContentPolicy indicates the text violates content policy
	EAIContentPolicy = errors.New("text violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
