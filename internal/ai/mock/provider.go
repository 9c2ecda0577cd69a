package mock

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cvforge/forge/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	ImproveTextResponse *ai.ImproveResult
	ImproveTextError    error

	// Call tracking for testing
	ImproveTextCalls  int
	LastImproveParams ai.ImproveParams
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// ImproveText returns a canned rewrite of the input text
func (p *Provider) ImproveText(ctx context.Context, params ai.ImproveParams) (*ai.ImproveResult, error) {
	p.ImproveTextCalls++
	p.LastImproveParams = params

	// If a custom response or error is set, use it
	if p.ImproveTextError != nil {
		return nil, p.ImproveTextError
	}
	if p.ImproveTextResponse != nil {
		return p.ImproveTextResponse, nil
	}

	// Default canned response: a lightly cleaned version of the input
	improved := strings.TrimSpace(params.Text)
	if improved == "" {
		return nil, ai.EAIInvalidInput
	}

	return &ai.ImproveResult{
		Text: improved,
		Suggestions: []string{
			"Add a quantified outcome to your most recent role",
			"Lead each bullet with an action verb",
		},
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  420,
			OutputTokens: 380,
			Duration:     250 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.ImproveTextCalls = 0
	p.ImproveTextResponse = nil
	p.ImproveTextError = nil
	p.LastImproveParams = ai.ImproveParams{}
}
