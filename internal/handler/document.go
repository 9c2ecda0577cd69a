// Package handler contains the HTTP handlers for the Forge JSON API.
//
// This file implements document endpoints: CRUD for CVs and cover
// letters plus the queued AI improvement and PDF export operations.
//
// Routes (all require a session):
//   - POST   /api/documents                -> Create
//   - GET    /api/documents                -> List
//   - GET    /api/documents/{id}           -> Get
//   - PUT    /api/documents/{id}           -> Update
//   - DELETE /api/documents/{id}           -> Delete
//   - POST   /api/documents/{id}/duplicate -> Duplicate
//   - POST   /api/documents/{id}/photo     -> UploadPhoto
//   - POST   /api/documents/{id}/improve   -> Improve
//   - POST   /api/documents/{id}/export    -> Export
//   - GET    /api/documents/{id}/download  -> Download
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cvforge/forge/internal/auth"
	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/service"
)

// DocumentHandler handles document requests.
type DocumentHandler struct {
	documents service.DocumentService
	logger    *slog.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documents service.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger,
	}
}

// RegisterRoutes registers document routes on the provided mux behind
// the session middleware.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireUser(fn))
	}

	protected("POST /api/documents", h.Create)
	protected("GET /api/documents", h.List)
	protected("GET /api/documents/{id}", h.Get)
	protected("PUT /api/documents/{id}", h.Update)
	protected("DELETE /api/documents/{id}", h.Delete)
	protected("POST /api/documents/{id}/duplicate", h.Duplicate)
	protected("POST /api/documents/{id}/photo", h.UploadPhoto)
	protected("POST /api/documents/{id}/improve", h.Improve)
	protected("POST /api/documents/{id}/export", h.Export)
	protected("GET /api/documents/{id}/download", h.Download)
}

// documentResponse is the wire shape for a document.
type documentResponse struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Title     string          `json:"title"`
	Status    string          `json:"status"`
	Content   json.RawMessage `json:"content"`
	HasPhoto  bool            `json:"has_photo"`
	HasExport bool            `json:"has_export"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toDocumentResponse(d *domain.Document) documentResponse {
	return documentResponse{
		ID:        d.ID.String(),
		Category:  string(d.Category),
		Title:     d.Title,
		Status:    string(d.Status),
		Content:   d.Content,
		HasPhoto:  d.PhotoURL != "",
		HasExport: d.ExportURL != "",
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Create makes a new document. Creation is metered against the
// category quota; a spent budget returns 429 with the quota payload.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.create"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Category string          `json:"category"`
		Title    string          `json:"title"`
		Content  json.RawMessage `json:"content"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	doc, err := h.documents.Create(r.Context(), user, domain.CreateDocumentParams{
		UserID:   user.ID,
		Category: domain.DocumentCategory(req.Category),
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"document": toDocumentResponse(doc)})
}

// List returns a page of the user's documents, newest first.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.list"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var category *domain.DocumentCategory
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := domain.DocumentCategory(raw)
		if !c.IsValid() {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "unknown document category: "+raw))
			return
		}
		category = &c
	}
	page, perPage := parsePagination(r)

	docs, total, err := h.documents.List(r.Context(), user.ID, category, page, perPage)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": out,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
	})
}

// Get fetches a single document.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.get"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	doc, err := h.documents.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": toDocumentResponse(doc)})
}

// Update replaces a document's title, status, and content. Edits are
// free; only creation consumes quota.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.update"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Title   string          `json:"title"`
		Status  string          `json:"status"`
		Content json.RawMessage `json:"content"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	doc, err := h.documents.Update(r.Context(), user.ID, domain.UpdateDocumentParams{
		ID:      id,
		Title:   req.Title,
		Status:  domain.DocumentStatus(req.Status),
		Content: req.Content,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": toDocumentResponse(doc)})
}

// Delete removes a document. Quota is not refunded.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.delete"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.documents.Delete(r.Context(), user.ID, id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Duplicate copies a document. The copy is metered like a creation.
func (h *DocumentHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.duplicate"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	doc, err := h.documents.Duplicate(r.Context(), user, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": toDocumentResponse(doc)})
}

// UploadPhoto attaches a profile photo from a multipart form field
// named "photo".
func (h *DocumentHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.upload_photo"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxPhotoSizeBytes+64*1024)
	if err := r.ParseMultipartForm(domain.MaxPhotoSizeBytes); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid multipart form: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "photo file is required"))
		return
	}
	defer file.Close()

	doc, err := h.documents.UploadPhoto(r.Context(), user.ID, id, header.Filename, file)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": toDocumentResponse(doc)})
}

// Improve queues an AI rewrite of a document section. Returns 202; the
// result lands in the document content when the job completes.
func (h *DocumentHandler) Improve(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.improve"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Section string `json:"section"`
		Tone    string `json:"tone"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.documents.RequestImprovement(r.Context(), user, id, req.Section, req.Tone); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

// Export queues a PDF export. Returns 202; the document status moves
// to exporting until the job finishes.
func (h *DocumentHandler) Export(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.export"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Template string `json:"template"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.documents.RequestExport(r.Context(), user, id, req.Template); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

// Download returns a short-lived signed URL for the latest export.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	const op = "handler.document.download"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	url, err := h.documents.GetExportDownloadURL(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(domain.ExportURLExpiry.Seconds()),
	})
}
