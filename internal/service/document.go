// Package service contains the business logic layer.
//
// This file implements the document service: CRUD for CVs and cover
// letters, photo uploads, and the quota-gated creation path.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/metrics"
	"github.com/cvforge/forge/internal/repository"
	"github.com/cvforge/forge/internal/storage"
	"github.com/cvforge/forge/internal/worker"
)

// =============================================================================
// Interface Definition
// =============================================================================

// DocumentService defines operations for managing CVs and cover letters.
type DocumentService interface {
	// Create makes a new document for the user. Creation is metered:
	// it consumes one unit of the category's cycle quota and fails
	// with EQUOTA when the budget is spent.
	Create(ctx context.Context, user *domain.User, params domain.CreateDocumentParams) (*domain.Document, error)

	// Get fetches one of the user's documents.
	Get(ctx context.Context, userID, documentID uuid.UUID) (*domain.Document, error)

	// List returns a page of the user's documents, newest first,
	// optionally filtered by category. Also returns the total count.
	List(ctx context.Context, userID uuid.UUID, category *domain.DocumentCategory, page, perPage int) ([]domain.Document, int64, error)

	// Update replaces a document's title, status, and content.
	// Edits are free; only creation consumes quota.
	Update(ctx context.Context, userID uuid.UUID, params domain.UpdateDocumentParams) (*domain.Document, error)

	// Delete removes a document. Deleting does not refund quota;
	// the cycle counter only moves forward.
	Delete(ctx context.Context, userID, documentID uuid.UUID) error

	// Duplicate copies one of the user's documents. The copy counts
	// as a creation against the category quota.
	Duplicate(ctx context.Context, user *domain.User, documentID uuid.UUID) (*domain.Document, error)

	// UploadPhoto attaches a profile photo to a document, generating
	// a thumbnail alongside the original.
	UploadPhoto(ctx context.Context, userID, documentID uuid.UUID, filename string, data io.Reader) (*domain.Document, error)

	// RequestImprovement queues an AI rewrite of the document's text.
	// Requires the ai_writer plan feature.
	RequestImprovement(ctx context.Context, user *domain.User, documentID uuid.UUID, section, tone string) error

	// RequestExport queues a PDF export of the document. Premium
	// templates require the premium_templates plan feature.
	RequestExport(ctx context.Context, user *domain.User, documentID uuid.UUID, template string) error

	// GetExportDownloadURL returns a short-lived signed URL for the
	// document's latest exported PDF, or ENOTFOUND if no export exists.
	GetExportDownloadURL(ctx context.Context, userID, documentID uuid.UUID) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

// premiumTemplates names the export templates gated behind the
// premium_templates feature flag.
var premiumTemplates = map[string]bool{
	"executive": true,
	"boutique":  true,
}

type documentService struct {
	queries      *repository.Queries
	entitlements EntitlementService
	storage      storage.Storage
	thumbnails   ThumbnailProcessor
	logger       *slog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	queries *repository.Queries,
	entitlements EntitlementService,
	store storage.Storage,
	thumbnails ThumbnailProcessor,
	logger *slog.Logger,
) DocumentService {
	return &documentService{
		queries:      queries,
		entitlements: entitlements,
		storage:      store,
		thumbnails:   thumbnails,
		logger:       logger,
	}
}

// Create makes a new document for the user.
func (s *documentService) Create(ctx context.Context, user *domain.User, params domain.CreateDocumentParams) (*domain.Document, error) {
	const op = "document.create"

	if err := validateDocumentInput(op, params.Category, params.Title, params.Content); err != nil {
		return nil, err
	}

	// Quota check happens before the insert; the counter only moves
	// after the insert succeeds so a failed create costs nothing.
	if _, err := s.entitlements.CheckAndReserve(ctx, user.ID, user.EffectivePlan(), params.Category); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = defaultTitle(params.Category)
	}
	content := params.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}

	row, err := s.queries.CreateDocument(ctx, repository.CreateDocumentParams{
		UserID:   user.ID,
		Category: string(params.Category),
		Title:    title,
		Content:  content,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create document")
	}

	metadata, _ := json.Marshal(map[string]string{"action": "create", "title": title})
	if err := s.entitlements.Record(ctx, user.ID, params.Category, row.ID.String(), metadata); err != nil {
		// Only a failed counter increment reaches here; the audit
		// append is best-effort inside Record. The document exists,
		// so losing the count would under-report usage.
		return nil, err
	}

	s.logger.Info("document created",
		"document_id", row.ID,
		"user_id", user.ID,
		"category", params.Category,
	)
	metrics.DocumentsCreated.WithLabelValues(string(params.Category)).Inc()

	doc := documentFromRow(row)
	return &doc, nil
}

// Get fetches one of the user's documents.
func (s *documentService) Get(ctx context.Context, userID, documentID uuid.UUID) (*domain.Document, error) {
	const op = "document.get"

	row, err := s.ownedDocument(ctx, op, userID, documentID)
	if err != nil {
		return nil, err
	}
	doc := documentFromRow(row)
	return &doc, nil
}

// List returns a page of the user's documents.
func (s *documentService) List(ctx context.Context, userID uuid.UUID, category *domain.DocumentCategory, page, perPage int) ([]domain.Document, int64, error) {
	const op = "document.list"

	var filter sql.NullString
	if category != nil {
		if !category.IsValid() {
			return nil, 0, domain.Invalid(op, "unknown document category: "+string(*category))
		}
		filter = domain.ToNullString(string(*category))
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	rows, err := s.queries.ListUserDocuments(ctx, repository.ListUserDocumentsParams{
		UserID:   userID,
		Category: filter,
		Limit:    int32(perPage),
		Offset:   int32((page - 1) * perPage),
	})
	if err != nil {
		return nil, 0, domain.Internal(err, op, "failed to list documents")
	}

	total, err := s.queries.CountUserDocuments(ctx, repository.CountUserDocumentsParams{
		UserID:   userID,
		Category: filter,
	})
	if err != nil {
		return nil, 0, domain.Internal(err, op, "failed to count documents")
	}

	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, documentFromRow(row))
	}
	return docs, total, nil
}

// Update replaces a document's title, status, and content.
func (s *documentService) Update(ctx context.Context, userID uuid.UUID, params domain.UpdateDocumentParams) (*domain.Document, error) {
	const op = "document.update"

	row, err := s.ownedDocument(ctx, op, userID, params.ID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = row.Title
	}
	if len(title) > domain.MaxTitleLength {
		return nil, domain.Invalid(op, fmt.Sprintf("title must be at most %d characters", domain.MaxTitleLength))
	}

	status := params.Status
	if status == "" {
		status = domain.DocumentStatus(row.Status)
	}
	switch status {
	case domain.DocumentStatusDraft, domain.DocumentStatusComplete, domain.DocumentStatusExporting:
	default:
		return nil, domain.Invalid(op, "unknown document status: "+string(status))
	}

	content := params.Content
	if len(content) == 0 {
		content = row.Content
	} else {
		if len(content) > domain.MaxContentSizeBytes {
			return nil, domain.Invalid(op, "document content is too large")
		}
		if !json.Valid(content) {
			return nil, domain.Invalid(op, "document content must be valid JSON")
		}
	}

	updated, err := s.queries.UpdateDocument(ctx, repository.UpdateDocumentParams{
		ID:      row.ID,
		Title:   title,
		Status:  string(status),
		Content: content,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update document")
	}

	doc := documentFromRow(updated)
	return &doc, nil
}

// Delete removes a document. No quota is refunded.
func (s *documentService) Delete(ctx context.Context, userID, documentID uuid.UUID) error {
	const op = "document.delete"

	row, err := s.ownedDocument(ctx, op, userID, documentID)
	if err != nil {
		return err
	}

	if err := s.queries.DeleteDocument(ctx, row.ID); err != nil {
		return domain.Internal(err, op, "failed to delete document")
	}

	// Stored artifacts are cleaned up on a best-effort basis; orphans
	// are cheaper than a delete that fails halfway.
	if row.PhotoUrl.Valid {
		if err := s.storage.Delete(ctx, row.PhotoUrl.String); err != nil {
			s.logger.Warn("failed to delete document photo", "document_id", row.ID, "error", err)
		}
	}
	if row.ExportUrl.Valid {
		if err := s.storage.Delete(ctx, row.ExportUrl.String); err != nil {
			s.logger.Warn("failed to delete document export", "document_id", row.ID, "error", err)
		}
	}

	s.logger.Info("document deleted", "document_id", row.ID, "user_id", userID)
	return nil
}

// Duplicate copies one of the user's documents.
func (s *documentService) Duplicate(ctx context.Context, user *domain.User, documentID uuid.UUID) (*domain.Document, error) {
	const op = "document.duplicate"

	row, err := s.ownedDocument(ctx, op, user.ID, documentID)
	if err != nil {
		return nil, err
	}

	category := domain.DocumentCategory(row.Category)
	if _, err := s.entitlements.CheckAndReserve(ctx, user.ID, user.EffectivePlan(), category); err != nil {
		return nil, err
	}

	title := row.Title + " (copy)"
	if len(title) > domain.MaxTitleLength {
		title = title[:domain.MaxTitleLength]
	}

	copied, err := s.queries.CreateDocument(ctx, repository.CreateDocumentParams{
		UserID:   user.ID,
		Category: row.Category,
		Title:    title,
		Content:  row.Content,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to duplicate document")
	}

	metadata, _ := json.Marshal(map[string]string{"action": "duplicate", "source": row.ID.String()})
	if err := s.entitlements.Record(ctx, user.ID, category, copied.ID.String(), metadata); err != nil {
		return nil, err
	}

	doc := documentFromRow(copied)
	return &doc, nil
}

// UploadPhoto attaches a profile photo to a document.
func (s *documentService) UploadPhoto(ctx context.Context, userID, documentID uuid.UUID, filename string, data io.Reader) (*domain.Document, error) {
	const op = "document.upload_photo"

	row, err := s.ownedDocument(ctx, op, userID, documentID)
	if err != nil {
		return nil, err
	}

	// Read at most one byte past the limit so oversized uploads are
	// detected without buffering the whole stream.
	buf, err := io.ReadAll(io.LimitReader(data, domain.MaxPhotoSizeBytes+1))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read photo upload")
	}
	if len(buf) > domain.MaxPhotoSizeBytes {
		return nil, domain.Errorf(domain.ETOOLARGE, op, "photo must be at most %d bytes", domain.MaxPhotoSizeBytes)
	}

	contentType := storage.DetectContentType("", filename, bytes.NewReader(buf))
	if !storage.IsAllowedImageType(contentType) {
		return nil, domain.Invalid(op, "unsupported image type: "+contentType)
	}

	thumbnail, _, _, err := s.thumbnails.GenerateThumbnail(bytes.NewReader(buf), domain.ThumbnailMaxWidth, domain.ThumbnailMaxHeight)
	if err != nil {
		return nil, domain.Invalid(op, "could not process image: "+err.Error())
	}

	photoKey := storage.PhotoKey(row.ID, filename)
	if err := s.storage.Put(ctx, photoKey, bytes.NewReader(buf), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     domain.MaxPhotoSizeBytes,
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to store photo")
	}

	thumbKey := storage.ThumbnailKey(row.ID)
	if err := s.storage.Put(ctx, thumbKey, bytes.NewReader(thumbnail), storage.PutOptions{
		ContentType: "image/jpeg",
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to store thumbnail")
	}

	if err := s.queries.UpdateDocumentPhoto(ctx, repository.UpdateDocumentPhotoParams{
		ID:       row.ID,
		PhotoUrl: domain.ToNullString(photoKey),
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to save photo reference")
	}

	// Replace the previous photo after the new one is referenced.
	if row.PhotoUrl.Valid && row.PhotoUrl.String != photoKey {
		if err := s.storage.Delete(ctx, row.PhotoUrl.String); err != nil {
			s.logger.Warn("failed to delete previous photo", "document_id", row.ID, "error", err)
		}
	}

	doc := documentFromRow(row)
	doc.PhotoURL = photoKey
	return &doc, nil
}

// RequestImprovement queues an AI rewrite of the document's text.
func (s *documentService) RequestImprovement(ctx context.Context, user *domain.User, documentID uuid.UUID, section, tone string) error {
	const op = "document.request_improvement"

	if err := s.entitlements.CheckFeature(ctx, user.EffectivePlan(), domain.FeatureAIWriter); err != nil {
		return err
	}

	row, err := s.ownedDocument(ctx, op, user.ID, documentID)
	if err != nil {
		return err
	}

	if _, err := worker.EnqueueImproveDocument(ctx, s.queries, row.ID, user.ID, section, tone); err != nil {
		return domain.Internal(err, op, "failed to queue improvement job")
	}

	s.logger.Info("improvement queued", "document_id", row.ID, "user_id", user.ID, "section", section)
	return nil
}

// RequestExport queues a PDF export of the document.
func (s *documentService) RequestExport(ctx context.Context, user *domain.User, documentID uuid.UUID, template string) error {
	const op = "document.request_export"

	if premiumTemplates[template] {
		if err := s.entitlements.CheckFeature(ctx, user.EffectivePlan(), domain.FeaturePremiumTemplates); err != nil {
			return err
		}
	}

	row, err := s.ownedDocument(ctx, op, user.ID, documentID)
	if err != nil {
		return err
	}

	if err := s.queries.UpdateDocumentStatus(ctx, repository.UpdateDocumentStatusParams{
		ID:     row.ID,
		Status: string(domain.DocumentStatusExporting),
	}); err != nil {
		return domain.Internal(err, op, "failed to mark document exporting")
	}

	if _, err := worker.EnqueueExportDocument(ctx, s.queries, row.ID, user.ID, template, worker.WithPriority(worker.PriorityHigh)); err != nil {
		return domain.Internal(err, op, "failed to queue export job")
	}

	s.logger.Info("export queued", "document_id", row.ID, "user_id", user.ID, "template", template)
	return nil
}

// GetExportDownloadURL returns a signed URL for the latest export.
func (s *documentService) GetExportDownloadURL(ctx context.Context, userID, documentID uuid.UUID) (string, error) {
	const op = "document.export_download_url"

	row, err := s.ownedDocument(ctx, op, userID, documentID)
	if err != nil {
		return "", err
	}
	if !row.ExportUrl.Valid || row.ExportUrl.String == "" {
		return "", domain.NotFound(op, "export for document", documentID.String())
	}

	url, err := s.storage.URL(ctx, row.ExportUrl.String, domain.ExportURLExpiry)
	if err != nil {
		return "", domain.Internal(err, op, "failed to sign download url")
	}
	return url, nil
}

// ownedDocument fetches a document and verifies ownership. Documents
// belonging to other users report not found rather than forbidden so
// IDs cannot be probed.
func (s *documentService) ownedDocument(ctx context.Context, op string, userID, documentID uuid.UUID) (repository.Document, error) {
	row, err := s.queries.GetDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.Document{}, domain.NotFound(op, "document", documentID.String())
	}
	if err != nil {
		return repository.Document{}, domain.Internal(err, op, "failed to fetch document")
	}
	if row.UserID != userID {
		return repository.Document{}, domain.NotFound(op, "document", documentID.String())
	}
	return row, nil
}

func validateDocumentInput(op string, category domain.DocumentCategory, title string, content json.RawMessage) error {
	if !category.IsValid() {
		return domain.Invalid(op, "unknown document category: "+string(category))
	}
	if len(strings.TrimSpace(title)) > domain.MaxTitleLength {
		return domain.Invalid(op, fmt.Sprintf("title must be at most %d characters", domain.MaxTitleLength))
	}
	if len(content) > domain.MaxContentSizeBytes {
		return domain.Invalid(op, "document content is too large")
	}
	if len(content) > 0 && !json.Valid(content) {
		return domain.Invalid(op, "document content must be valid JSON")
	}
	return nil
}

func defaultTitle(category domain.DocumentCategory) string {
	if category == domain.CategoryLetter {
		return "Untitled cover letter"
	}
	return "Untitled CV"
}

func documentFromRow(row repository.Document) domain.Document {
	return domain.Document{
		ID:        row.ID,
		UserID:    row.UserID,
		Category:  domain.DocumentCategory(row.Category),
		Title:     row.Title,
		Status:    domain.DocumentStatus(row.Status),
		Content:   row.Content,
		PhotoURL:  domain.NullStringValue(row.PhotoUrl),
		ExportURL: domain.NullStringValue(row.ExportUrl),
		CreatedAt: domain.NullTimeOrZero(row.CreatedAt),
		UpdatedAt: domain.NullTimeOrZero(row.UpdatedAt),
	}
}
