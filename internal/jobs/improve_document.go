// Package jobs contains the background job handlers executed by the worker
// pool: AI text improvement and PDF export.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cvforge/forge/internal/ai"
	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/metrics"
	"github.com/cvforge/forge/internal/repository"
	"github.com/cvforge/forge/internal/worker"
)

// ImproveDocumentHandler processes jobs that rewrite document text with the
// AI provider and save the improved version back to the document.
type ImproveDocumentHandler struct {
	queries  *repository.Queries
	provider ai.Provider
	logger   *slog.Logger
}

// NewImproveDocumentHandler creates a new handler for improvement jobs.
func NewImproveDocumentHandler(
	queries *repository.Queries,
	provider ai.Provider,
	logger *slog.Logger,
) *ImproveDocumentHandler {
	return &ImproveDocumentHandler{
		queries:  queries,
		provider: provider,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *ImproveDocumentHandler) Type() string {
	return worker.JobTypeImproveDocument
}

// Handle executes the improvement job. It extracts the requested section's
// text, sends it to the AI provider, and writes the rewrite back.
func (h *ImproveDocumentHandler) Handle(ctx context.Context, payload []byte) error {
	// Unmarshal the payload
	var p worker.ImproveDocumentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	h.logger.Info("Improving document",
		"document_id", p.DocumentID,
		"user_id", p.UserID,
		"section", p.Section,
	)

	// Fetch and validate the document
	doc, err := h.queries.GetDocument(ctx, p.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("document not found: %w", err))
		}
		// Database error - retryable
		return fmt.Errorf("fetch document: %w", err)
	}

	// Verify ownership
	if doc.UserID != p.UserID {
		return worker.NewPermanentError(fmt.Errorf("document does not belong to user"))
	}

	switch domain.DocumentCategory(doc.Category) {
	case domain.CategoryCV:
		return h.improveCV(ctx, doc, p)
	case domain.CategoryLetter:
		return h.improveLetter(ctx, doc, p)
	default:
		return worker.NewPermanentError(fmt.Errorf("unknown document category: %s", doc.Category))
	}
}

// improveCV rewrites the requested CV section. An empty section name targets
// the summary.
func (h *ImproveDocumentHandler) improveCV(ctx context.Context, doc repository.Document, p worker.ImproveDocumentPayload) error {
	var content domain.CVContent
	if err := json.Unmarshal(doc.Content, &content); err != nil {
		return worker.NewPermanentError(fmt.Errorf("parse cv content: %w", err))
	}

	section := p.Section
	if section == "" {
		section = "summary"
	}

	// Locate the text to rewrite
	var text string
	var customIdx = -1
	switch {
	case section == "summary":
		text = content.Summary
	default:
		for i, s := range content.Sections {
			if strings.EqualFold(s.Title, section) {
				text = s.Body
				customIdx = i
				break
			}
		}
		if customIdx < 0 {
			return worker.NewPermanentError(fmt.Errorf("unknown cv section: %s", section))
		}
	}

	if strings.TrimSpace(text) == "" {
		return worker.NewPermanentError(fmt.Errorf("section %s has no text to improve", section))
	}

	result, err := h.improve(ctx, ai.ImproveParams{
		Text:       text,
		Kind:       string(domain.CategoryCV),
		Section:    section,
		Tone:       p.Tone,
		JobTitle:   content.Headline,
		DocumentID: doc.ID,
		UserID:     doc.UserID,
	})
	if err != nil {
		return err
	}

	// Write the rewrite back into the content
	if customIdx >= 0 {
		content.Sections[customIdx].Body = result.Text
	} else {
		content.Summary = result.Text
	}

	return h.saveContent(ctx, doc, content, result)
}

// improveLetter rewrites the letter body. The section parameter is ignored
// since a letter has only one block of prose.
func (h *ImproveDocumentHandler) improveLetter(ctx context.Context, doc repository.Document, p worker.ImproveDocumentPayload) error {
	var content domain.LetterContent
	if err := json.Unmarshal(doc.Content, &content); err != nil {
		return worker.NewPermanentError(fmt.Errorf("parse letter content: %w", err))
	}

	if strings.TrimSpace(content.Body) == "" {
		return worker.NewPermanentError(fmt.Errorf("letter has no text to improve"))
	}

	result, err := h.improve(ctx, ai.ImproveParams{
		Text:       content.Body,
		Kind:       string(domain.CategoryLetter),
		Tone:       p.Tone,
		JobTitle:   content.JobTitle,
		DocumentID: doc.ID,
		UserID:     doc.UserID,
	})
	if err != nil {
		return err
	}

	content.Body = result.Text
	return h.saveContent(ctx, doc, content, result)
}

// improve calls the AI provider and maps its errors to worker semantics.
func (h *ImproveDocumentHandler) improve(ctx context.Context, params ai.ImproveParams) (*ai.ImproveResult, error) {
	result, err := h.provider.ImproveText(ctx, params)
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("error").Inc()
		// Retryable errors like rate limits should propagate up
		if ai.IsRetryable(err) {
			return nil, fmt.Errorf("ai improvement (retryable): %w", err)
		}
		// Invalid input and content policy violations are permanent
		if errors.Is(err, ai.EAIInvalidInput) || errors.Is(err, ai.EAIContentPolicy) {
			return nil, worker.NewPermanentError(fmt.Errorf("ai improvement (permanent): %w", err))
		}
		return nil, fmt.Errorf("ai improvement: %w", err)
	}

	metrics.AIAPICalls.WithLabelValues("success").Inc()
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(result.Usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(result.Usage.OutputTokens))

	h.logger.Info("AI improvement completed",
		"document_id", params.DocumentID,
		"model", result.Usage.Model,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration", result.Usage.Duration,
	)

	return result, nil
}

// saveContent marshals the updated content and persists it.
func (h *ImproveDocumentHandler) saveContent(ctx context.Context, doc repository.Document, content any, result *ai.ImproveResult) error {
	data, err := json.Marshal(content)
	if err != nil {
		return worker.NewPermanentError(fmt.Errorf("marshal updated content: %w", err))
	}

	if _, err := h.queries.UpdateDocument(ctx, repository.UpdateDocumentParams{
		ID:      doc.ID,
		Title:   doc.Title,
		Status:  doc.Status,
		Content: data,
	}); err != nil {
		return fmt.Errorf("save improved content: %w", err)
	}

	h.logger.Info("Document improvement saved",
		"document_id", doc.ID,
		"suggestions", len(result.Suggestions),
	)

	return nil
}
