package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// Document mirrors the documents table.
type Document struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Category  string
	Title     string
	Status    string
	Content   json.RawMessage
	PhotoUrl  sql.NullString
	ExportUrl sql.NullString
	CreatedAt sql.NullTime
	UpdatedAt sql.NullTime
}

const documentColumns = `id, user_id, category, title, status, content,
	photo_url, export_url, created_at, updated_at`

func scanDocument(row *sql.Row) (Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.UserID, &d.Category, &d.Title, &d.Status, &d.Content,
		&d.PhotoUrl, &d.ExportUrl, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

// CreateDocumentParams names the columns for CreateDocument.
type CreateDocumentParams struct {
	UserID   uuid.UUID
	Category string
	Title    string
	Content  json.RawMessage
}

// CreateDocument inserts a new document in draft status.
func (q *Queries) CreateDocument(ctx context.Context, arg CreateDocumentParams) (Document, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO documents (user_id, category, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING `+documentColumns,
		arg.UserID, arg.Category, arg.Title, arg.Content,
	)
	return scanDocument(row)
}

// GetDocument fetches a document by primary key.
func (q *Queries) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// ListUserDocumentsParams names the columns for ListUserDocuments.
type ListUserDocumentsParams struct {
	UserID   uuid.UUID
	Category sql.NullString
	Limit    int32
	Offset   int32
}

// ListUserDocuments returns a page of a user's documents, newest first.
// Category filters when non-null.
func (q *Queries) ListUserDocuments(ctx context.Context, arg ListUserDocumentsParams) ([]Document, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE user_id = $1 AND ($2::text IS NULL OR category = $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`,
		arg.UserID, arg.Category, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Category, &d.Title, &d.Status, &d.Content,
			&d.PhotoUrl, &d.ExportUrl, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// CountUserDocumentsParams names the columns for CountUserDocuments.
type CountUserDocumentsParams struct {
	UserID   uuid.UUID
	Category sql.NullString
}

// CountUserDocuments returns the total document count for pagination.
func (q *Queries) CountUserDocuments(ctx context.Context, arg CountUserDocumentsParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT count(*) FROM documents
		WHERE user_id = $1 AND ($2::text IS NULL OR category = $2)`,
		arg.UserID, arg.Category,
	).Scan(&count)
	return count, err
}

// UpdateDocumentParams names the columns for UpdateDocument.
type UpdateDocumentParams struct {
	ID      uuid.UUID
	Title   string
	Status  string
	Content json.RawMessage
}

// UpdateDocument replaces a document's title, status, and content.
func (q *Queries) UpdateDocument(ctx context.Context, arg UpdateDocumentParams) (Document, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title = $2, status = $3, content = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		arg.ID, arg.Title, arg.Status, arg.Content,
	)
	return scanDocument(row)
}

// UpdateDocumentPhotoParams names the columns for UpdateDocumentPhoto.
type UpdateDocumentPhotoParams struct {
	ID       uuid.UUID
	PhotoUrl sql.NullString
}

// UpdateDocumentPhoto saves the stored photo key for a document.
func (q *Queries) UpdateDocumentPhoto(ctx context.Context, arg UpdateDocumentPhotoParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE documents SET photo_url = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.PhotoUrl)
	return err
}

// UpdateDocumentStatusParams names the columns for UpdateDocumentStatus.
type UpdateDocumentStatusParams struct {
	ID     uuid.UUID
	Status string
}

// UpdateDocumentStatus changes only the lifecycle status.
func (q *Queries) UpdateDocumentStatus(ctx context.Context, arg UpdateDocumentStatusParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.Status)
	return err
}

// UpdateDocumentExportParams names the columns for UpdateDocumentExport.
type UpdateDocumentExportParams struct {
	ID        uuid.UUID
	Status    string
	ExportUrl sql.NullString
}

// UpdateDocumentExport records the export artifact key and status.
func (q *Queries) UpdateDocumentExport(ctx context.Context, arg UpdateDocumentExportParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, export_url = $3, updated_at = now() WHERE id = $1`,
		arg.ID, arg.Status, arg.ExportUrl)
	return err
}

// DeleteDocument removes a document by primary key.
func (q *Queries) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}
