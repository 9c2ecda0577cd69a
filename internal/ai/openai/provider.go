package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cvforge/forge/internal/ai"
)

const (
	// DefaultModel is the default model to use for text improvement
	DefaultModel = "gpt-4o-mini"

	// MaxInputSize is the maximum input text size in bytes
	MaxInputSize = 32 * 1024

	// MaxOutputTokens caps the completion length
	MaxOutputTokens = 2048
)

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig ai.ProviderConfig
}

// Provider implements the ai.Provider interface using OpenAI's chat API
type Provider struct {
	config Config
	client *openai.Client
	logger *slog.Logger
}

// New creates a new OpenAI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.HTTPClient = &http.Client{
		Timeout: config.ProviderConfig.RequestTimeout,
	}

	return &Provider{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// ImproveText rewrites a section of CV or cover letter text
func (p *Provider) ImproveText(ctx context.Context, params ai.ImproveParams) (*ai.ImproveResult, error) {
	startTime := time.Now()

	// Validate input
	if err := p.validateParams(params); err != nil {
		return nil, ai.WrapError("improve text", err)
	}

	// Build the request
	req := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		MaxTokens:   MaxOutputTokens,
		Temperature: 0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildSystemPrompt(params),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: params.Text,
			},
		},
	}

	// Execute with retry logic
	resp, err := p.executeWithRetry(ctx, req)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	// Parse the response
	result, err := p.parseImproveResponse(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	result.Usage = ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(startTime),
	}

	return result, nil
}

// validateParams validates the improvement parameters
func (p *Provider) validateParams(params ai.ImproveParams) error {
	if strings.TrimSpace(params.Text) == "" {
		return ai.EAIInvalidInput
	}
	if len(params.Text) > MaxInputSize {
		return fmt.Errorf("%w: text size %d exceeds maximum %d", ai.EAIInvalidInput, len(params.Text), MaxInputSize)
	}
	if params.Kind != "cv" && params.Kind != "letter" {
		return fmt.Errorf("%w: unknown document kind %q", ai.EAIInvalidInput, params.Kind)
	}
	return nil
}

// executeWithRetry executes a chat completion with exponential backoff retry
func (p *Provider) executeWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return &resp, nil
		}

		lastErr = p.mapAPIError(err)

		// Only retry on retryable errors
		if !ai.IsRetryable(lastErr) {
			return nil, lastErr
		}

		// Don't retry if we've exhausted attempts
		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Calculate backoff delay (exponential: base * 2^(attempt-1))
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", lastErr)

		// Wait before retry
		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// mapAPIError maps OpenAI client errors to domain errors
func (p *Provider) mapAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.EAITimeout
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		// Network errors are typically retryable
		return ai.EAIUnavailable
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusUnauthorized:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if apiErr.Code == "content_policy_violation" {
			return ai.EAIContentPolicy
		}
		return fmt.Errorf("bad request: %s", apiErr.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
}

// parseImproveResponse parses the API response into an ImproveResult
func (p *Provider) parseImproveResponse(resp *openai.ChatCompletionResponse) (*ai.ImproveResult, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	textContent := resp.Choices[0].Message.Content
	if textContent == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	// Parse JSON from the completion
	var output improveOutput
	if err := json.Unmarshal([]byte(textContent), &output); err != nil {
		return nil, fmt.Errorf("parse improvement output: %w", err)
	}

	if strings.TrimSpace(output.ImprovedText) == "" {
		return nil, fmt.Errorf("improvement output missing text")
	}

	return &ai.ImproveResult{
		Text:        output.ImprovedText,
		Suggestions: output.Suggestions,
	}, nil
}

// improveOutput represents the JSON structure returned by the model
type improveOutput struct {
	ImprovedText string   `json:"improved_text"`
	Suggestions  []string `json:"suggestions"`
}
