package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"objection-engine/internal/common/database"
	"objection-engine/internal/common/errors"
	"objection-engine/internal/models"
)

type DocumentStore struct {
	db *database.PostgresClient
}

func NewDocumentStore(db *database.PostgresClient) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `id, submission_id, doc_type, render_ref, viewer_url, pdf_url,
	status, review_started_at, review_completed_at, updated_at`

func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.DocCreated
	}
	doc.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		doc.ID, doc.SubmissionID, doc.DocType, doc.RenderRef, doc.ViewerURL, doc.PDFURL,
		doc.Status, doc.ReviewStartedAt, doc.ReviewCompletedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (s *DocumentStore) ListBySubmission(ctx context.Context, submissionID string) ([]models.Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE submission_id = $1 ORDER BY doc_type ASC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// UpdateStatusCAS advances a document status with the same optimistic
// guard the submission rows use.
func (s *DocumentStore) UpdateStatusCAS(ctx context.Context, id string, from, to models.DocumentStatus) error {
	res, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.Get(ctx, id)
		actual := "unknown"
		if getErr == nil && current != nil {
			actual = string(current.Status)
		}
		return errors.NewConflictError("document", id, string(from), actual)
	}
	return nil
}

// SetReviewTimestamps records review window markers supplied by the
// review surface.
func (s *DocumentStore) SetReviewTimestamps(ctx context.Context, id string, startedAt, completedAt *time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents SET
			review_started_at = COALESCE($1, review_started_at),
			review_completed_at = COALESCE($2, review_completed_at),
			updated_at = $3
		WHERE id = $4`,
		startedAt, completedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set review timestamps: %w", err)
	}
	return nil
}

// SetRenderResult records the render backend reference and URLs.
func (s *DocumentStore) SetRenderResult(ctx context.Context, id, renderRef, viewerURL, pdfURL string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents SET render_ref = $1, viewer_url = $2, pdf_url = $3, updated_at = $4
		WHERE id = $5`,
		renderRef, viewerURL, pdfURL, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set render result: %w", err)
	}
	return nil
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var doc models.Document
	var renderRef, viewerURL, pdfURL sql.NullString
	var started, completed sql.NullTime

	err := row.Scan(
		&doc.ID, &doc.SubmissionID, &doc.DocType, &renderRef, &viewerURL, &pdfURL,
		&doc.Status, &started, &completed, &doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	applyDocNulls(&doc, renderRef, viewerURL, pdfURL, started, completed)
	return &doc, nil
}

func scanDocumentRows(rows *sql.Rows) (*models.Document, error) {
	var doc models.Document
	var renderRef, viewerURL, pdfURL sql.NullString
	var started, completed sql.NullTime

	err := rows.Scan(
		&doc.ID, &doc.SubmissionID, &doc.DocType, &renderRef, &viewerURL, &pdfURL,
		&doc.Status, &started, &completed, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	applyDocNulls(&doc, renderRef, viewerURL, pdfURL, started, completed)
	return &doc, nil
}

func applyDocNulls(doc *models.Document, renderRef, viewerURL, pdfURL sql.NullString, started, completed sql.NullTime) {
	doc.RenderRef = renderRef.String
	doc.ViewerURL = viewerURL.String
	doc.PDFURL = pdfURL.String
	if started.Valid {
		doc.ReviewStartedAt = &started.Time
	}
	if completed.Valid {
		doc.ReviewCompletedAt = &completed.Time
	}
}
