package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/export"
	"github.com/cvforge/forge/internal/metrics"
	"github.com/cvforge/forge/internal/repository"
	"github.com/cvforge/forge/internal/storage"
	"github.com/cvforge/forge/internal/worker"
)

// ExportDocumentHandler processes jobs that render a document as PDF and
// upload the artifact to storage.
type ExportDocumentHandler struct {
	queries *repository.Queries
	storage storage.Storage
	logger  *slog.Logger
}

// NewExportDocumentHandler creates a new handler for export jobs.
func NewExportDocumentHandler(
	queries *repository.Queries,
	storage storage.Storage,
	logger *slog.Logger,
) *ExportDocumentHandler {
	return &ExportDocumentHandler{
		queries: queries,
		storage: storage,
		logger:  logger,
	}
}

// Type returns the job type identifier.
func (h *ExportDocumentHandler) Type() string {
	return worker.JobTypeExportDocument
}

// Handle executes the export job. It renders the document with the requested
// template, uploads the PDF, and records the artifact key on the document.
func (h *ExportDocumentHandler) Handle(ctx context.Context, payload []byte) error {
	// 1. Unmarshal the payload
	var p worker.ExportDocumentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	// 2. Validate template
	template := export.Template(p.Template)
	if p.Template == "" {
		template = export.DefaultTemplate
	}
	if !template.IsValid() {
		return worker.NewPermanentError(fmt.Errorf("unknown export template: %s", p.Template))
	}

	h.logger.Info("Exporting document",
		"document_id", p.DocumentID,
		"user_id", p.UserID,
		"template", template,
	)

	// 3. Fetch and validate the document
	row, err := h.queries.GetDocument(ctx, p.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("document not found: %s", p.DocumentID))
		}
		return fmt.Errorf("fetch document: %w", err)
	}

	// Verify ownership
	if row.UserID != p.UserID {
		return worker.NewPermanentError(fmt.Errorf("document does not belong to user"))
	}

	doc := &domain.Document{
		ID:       row.ID,
		UserID:   row.UserID,
		Category: domain.DocumentCategory(row.Category),
		Title:    row.Title,
		Content:  row.Content,
	}

	// 4. Render the PDF to a buffer
	var buf bytes.Buffer
	bytesWritten, err := export.NewPDFRenderer(template).Render(ctx, doc, &buf)
	if err != nil {
		// Malformed content will never render, don't retry
		h.revertStatus(ctx, row.ID)
		return worker.NewPermanentError(fmt.Errorf("render pdf: %w", err))
	}

	h.logger.Info("PDF rendered",
		"document_id", p.DocumentID,
		"template", template,
		"size_bytes", bytesWritten,
	)

	// 5. Upload to storage
	storageKey := storage.ExportKey(row.ID)
	err = h.storage.Put(ctx, storageKey, &buf, storage.PutOptions{
		ContentType: "application/pdf",
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("upload export to storage: %w", err)
	}

	// 6. Record the artifact and mark the document complete
	if err := h.queries.UpdateDocumentExport(ctx, repository.UpdateDocumentExportParams{
		ID:        row.ID,
		Status:    string(domain.DocumentStatusComplete),
		ExportUrl: sql.NullString{String: storageKey, Valid: true},
	}); err != nil {
		return fmt.Errorf("record export artifact: %w", err)
	}

	metrics.ExportsGenerated.WithLabelValues(string(template)).Inc()

	h.logger.Info("Document export completed",
		"document_id", p.DocumentID,
		"storage_key", storageKey,
	)

	return nil
}

// revertStatus returns an unrenderable document to draft so the editor is
// not stuck on a spinner. Best effort, the job error is what matters.
func (h *ExportDocumentHandler) revertStatus(ctx context.Context, documentID uuid.UUID) {
	if err := h.queries.UpdateDocumentStatus(ctx, repository.UpdateDocumentStatusParams{
		ID:     documentID,
		Status: string(domain.DocumentStatusDraft),
	}); err != nil {
		h.logger.Error("Failed to revert document status", "document_id", documentID, "error", err)
	}
}
