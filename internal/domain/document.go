// Package domain contains core business types and interfaces.
//
// This file defines the Document domain type covering both CVs and cover
// letters. Document content is stored as a JSON blob; the structure below is
// what the editor and the PDF exporter agree on.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DocumentCategory is the closed set of metered document types.
type DocumentCategory string

const (
	CategoryCV     DocumentCategory = "cv"
	CategoryLetter DocumentCategory = "letter"
)

// AllCategories lists every category in the closed enumeration.
var AllCategories = []DocumentCategory{CategoryCV, CategoryLetter}

// IsValid returns true if the category is part of the closed enumeration.
// Callers must reject invalid categories loudly rather than defaulting.
func (c DocumentCategory) IsValid() bool {
	switch c {
	case CategoryCV, CategoryLetter:
		return true
	default:
		return false
	}
}

// DocumentStatus represents the editing lifecycle of a document.
type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "draft"
	DocumentStatusComplete  DocumentStatus = "complete"
	DocumentStatusExporting DocumentStatus = "exporting"
)

// Document represents a CV or cover letter owned by a user.
type Document struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Category  DocumentCategory
	Title     string
	Status    DocumentStatus
	Content   json.RawMessage // editor payload, see CVContent / LetterContent
	PhotoURL  string          // profile photo, empty if none
	ExportURL string          // most recent PDF export, empty if none
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CVContent is the structured payload of a cv document.
type CVContent struct {
	FullName   string      `json:"full_name"`
	Headline   string      `json:"headline,omitempty"`
	Email      string      `json:"email,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Location   string      `json:"location,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	Experience []CVEntry   `json:"experience,omitempty"`
	Education  []CVEntry   `json:"education,omitempty"`
	Skills     []string    `json:"skills,omitempty"`
	Links      []CVLink    `json:"links,omitempty"`
	Sections   []CVSection `json:"sections,omitempty"` // free-form extras
}

// CVEntry is one dated item in the experience or education lists.
type CVEntry struct {
	Title       string `json:"title"`
	Institution string `json:"institution,omitempty"`
	StartDate   string `json:"start_date,omitempty"` // "2021-03" style, display only
	EndDate     string `json:"end_date,omitempty"`   // empty means "present"
	Description string `json:"description,omitempty"`
}

// CVLink is an external profile link (portfolio, LinkedIn, GitHub).
type CVLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// CVSection is a custom titled block of text.
type CVSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// LetterContent is the structured payload of a letter document.
type LetterContent struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Body      string `json:"body"`
}

// Upload and validation limits.
const (
	// MaxTitleLength caps document titles.
	MaxTitleLength = 200

	// MaxContentSizeBytes caps the editor JSON payload.
	MaxContentSizeBytes = 256 * 1024

	// MaxPhotoSizeBytes caps profile photo uploads (5 MB).
	MaxPhotoSizeBytes = 5 * 1024 * 1024

	// ThumbnailMaxWidth and ThumbnailMaxHeight bound generated thumbnails.
	ThumbnailMaxWidth  = 400
	ThumbnailMaxHeight = 400

	// ThumbnailJPEGQuality is the JPEG quality for generated thumbnails.
	ThumbnailJPEGQuality = 85

	// ExportURLExpiry is how long signed export download links stay valid.
	ExportURLExpiry = 15 * time.Minute
)

// CreateDocumentParams contains the validated parameters for creating a document.
type CreateDocumentParams struct {
	UserID   uuid.UUID
	Category DocumentCategory
	Title    string
	Content  json.RawMessage
}

// UpdateDocumentParams contains the parameters for updating a document.
type UpdateDocumentParams struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Title   string
	Status  DocumentStatus
	Content json.RawMessage
}
