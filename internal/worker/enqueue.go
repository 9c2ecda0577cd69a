package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cvforge/forge/internal/repository"
	"github.com/google/uuid"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeImproveDocument = "improve_document"
	JobTypeExportDocument  = "export_document"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// ImproveDocumentPayload is the payload for AI text improvement jobs.
type ImproveDocumentPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	UserID     uuid.UUID `json:"user_id"`
	Section    string    `json:"section"` // Section of the document to improve, empty for all
	Tone       string    `json:"tone"`    // Requested writing tone, empty for default
}

// ExportDocumentPayload is the payload for PDF export jobs.
type ExportDocumentPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	UserID     uuid.UUID `json:"user_id"`
	Template   string    `json:"template"` // Export template name, empty for default
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queries *repository.Queries,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	// Marshal the payload to JSON
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	// Default parameters
	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	// Apply options
	for _, opt := range opts {
		opt(&params)
	}

	// Enqueue the job
	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueImproveDocument enqueues a job to rewrite a document's text
// through the AI provider.
func EnqueueImproveDocument(
	ctx context.Context,
	queries *repository.Queries,
	documentID uuid.UUID,
	userID uuid.UUID,
	section string,
	tone string,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := ImproveDocumentPayload{
		DocumentID: documentID,
		UserID:     userID,
		Section:    section,
		Tone:       tone,
	}

	return EnqueueJob(ctx, queries, JobTypeImproveDocument, payload, opts...)
}

// EnqueueExportDocument enqueues a job to render a document to PDF and
// upload the artifact to storage.
func EnqueueExportDocument(
	ctx context.Context,
	queries *repository.Queries,
	documentID uuid.UUID,
	userID uuid.UUID,
	template string,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := ExportDocumentPayload{
		DocumentID: documentID,
		UserID:     userID,
		Template:   template,
	}

	return EnqueueJob(ctx, queries, JobTypeExportDocument, payload, opts...)
}
