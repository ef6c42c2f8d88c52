// Package store contains the Postgres persistence layer. Submission and
// document rows are mutated only through the guarded CAS updates here;
// no other component writes these tables directly.
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

type SubmissionStore struct {
	db *database.PostgresClient
}

func NewSubmissionStore(db *database.PostgresClient) *SubmissionStore {
	return &SubmissionStore{db: db}
}

const submissionColumns = `id, project_id, applicant_name, applicant_email, applicant_phone,
	residential_address, postal_address, postal_same_as_residential,
	site_address, application_number, pathway, track, status,
	review_deadline, grounds_text, crm_sync_status, crm_sync_error,
	created_at, updated_at`

func (s *SubmissionStore) Create(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = models.StatusNew
	}
	if sub.CRMSyncStatus == "" {
		sub.CRMSyncStatus = models.SyncPending
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		sub.ID, sub.ProjectID, sub.ApplicantName, sub.ApplicantEmail, sub.ApplicantPhone,
		sub.ResidentialAddr, sub.PostalAddr, sub.PostalSameAsHome,
		sub.SiteAddress, sub.ApplicationNumber, sub.Pathway, sub.Track, sub.Status,
		sub.ReviewDeadline, sub.GroundsText, sub.CRMSyncStatus, sub.CRMSyncError,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *SubmissionStore) Get(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	return scanSubmission(row)
}

func scanSubmission(row *sql.Row) (*models.Submission, error) {
	var sub models.Submission
	var phone, postal, grounds, syncErr sql.NullString
	var deadline sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.ProjectID, &sub.ApplicantName, &sub.ApplicantEmail, &phone,
		&sub.ResidentialAddr, &postal, &sub.PostalSameAsHome,
		&sub.SiteAddress, &sub.ApplicationNumber, &sub.Pathway, &sub.Track, &sub.Status,
		&deadline, &grounds, &sub.CRMSyncStatus, &syncErr,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	sub.ApplicantPhone = phone.String
	sub.PostalAddr = postal.String
	sub.GroundsText = grounds.String
	sub.CRMSyncError = syncErr.String
	if deadline.Valid {
		sub.ReviewDeadline = &deadline.Time
	}
	return &sub, nil
}

// UpdateStatusCAS advances the submission status only when the stored
// value still matches from. Zero rows affected means another worker got
// there first; the caller receives a stale-state error.
func (s *SubmissionStore) UpdateStatusCAS(ctx context.Context, id string, from, to models.SubmissionStatus) error {
	res, err := s.db.Exec(ctx, `
		UPDATE submissions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
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
		return errors.NewConflictError("submission", id, string(from), actual)
	}
	return nil
}

// SetGroundsText records the generated grounds on the submission row.
func (s *SubmissionStore) SetGroundsText(ctx context.Context, id, grounds string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE submissions SET grounds_text = $1, updated_at = $2 WHERE id = $3`,
		grounds, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set grounds text: %w", err)
	}
	return nil
}

// UpdateSyncStatus records CRM reconciliation state. Idempotent: applying
// the same status twice is harmless.
func (s *SubmissionStore) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, syncErr string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE submissions SET crm_sync_status = $1, crm_sync_error = $2, updated_at = $3
		WHERE id = $4`,
		status, syncErr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	return nil
}

// FindByApplicantEmail returns submissions for a CRM person, newest first.
func (s *SubmissionStore) FindByApplicantEmail(ctx context.Context, email string) ([]models.Submission, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE applicant_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("query submissions by email: %w", err)
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		var sub models.Submission
		var phone, postal, grounds, syncErr sql.NullString
		var deadline sql.NullTime
		if err := rows.Scan(
			&sub.ID, &sub.ProjectID, &sub.ApplicantName, &sub.ApplicantEmail, &phone,
			&sub.ResidentialAddr, &postal, &sub.PostalSameAsHome,
			&sub.SiteAddress, &sub.ApplicationNumber, &sub.Pathway, &sub.Track, &sub.Status,
			&deadline, &grounds, &sub.CRMSyncStatus, &syncErr,
			&sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.ApplicantPhone = phone.String
		sub.PostalAddr = postal.String
		sub.GroundsText = grounds.String
		sub.CRMSyncError = syncErr.String
		if deadline.Valid {
			sub.ReviewDeadline = &deadline.Time
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// AppendAudit writes one append-only transition audit row.
func (s *SubmissionStore) AppendAudit(ctx context.Context, audit *models.StatusAudit) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO status_audit (submission_id, stage, status, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		audit.SubmissionID, audit.Stage, audit.Status, audit.Detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append status audit: %w", err)
	}
	return nil
}

// AuditTrail lists the transition history for a submission, oldest first.
func (s *SubmissionStore) AuditTrail(ctx context.Context, submissionID string) ([]models.StatusAudit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, submission_id, stage, status, detail, created_at
		FROM status_audit WHERE submission_id = $1 ORDER BY id ASC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query status audit: %w", err)
	}
	defer rows.Close()

	var out []models.StatusAudit
	for rows.Next() {
		var a models.StatusAudit
		var detail sql.NullString
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.Stage, &a.Status, &detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status audit: %w", err)
		}
		a.Detail = detail.String
		out = append(out, a)
	}
	return out, rows.Err()
}
