package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

type DeliveryStore struct {
	db *database.PostgresClient
}

func NewDeliveryStore(db *database.PostgresClient) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// Append writes one delivery log row. The log is append-only; rows are
// never updated or deleted.
func (s *DeliveryStore) Append(ctx context.Context, entry *models.DeliveryLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	manifest, err := json.Marshal(entry.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachment manifest: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO delivery_log (id, submission_id, recipient, purpose, subject, body,
			attachments, status, error_detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.SubmissionID, entry.Recipient, entry.Purpose, entry.Subject, entry.Body,
		manifest, entry.Status, entry.ErrorDetail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

// HasSent reports whether a sent row already exists for the tuple. This
// is the duplicate-send guard; a previously failed attempt does not
// block a retry.
func (s *DeliveryStore) HasSent(ctx context.Context, submissionID, recipient string, purpose models.DeliveryPurpose) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(1) FROM delivery_log
		WHERE submission_id = $1 AND recipient = $2 AND purpose = $3 AND status = 'sent'`,
		submissionID, recipient, purpose,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query delivery log: %w", err)
	}
	return count > 0, nil
}

// ListBySubmission returns all delivery attempts for a submission,
// newest first.
func (s *DeliveryStore) ListBySubmission(ctx context.Context, submissionID string) ([]models.DeliveryLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, submission_id, recipient, purpose, subject, body, attachments,
			status, error_detail, created_at
		FROM delivery_log WHERE submission_id = $1 ORDER BY created_at DESC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query delivery log: %w", err)
	}
	defer rows.Close()

	var out []models.DeliveryLog
	for rows.Next() {
		var entry models.DeliveryLog
		var manifest []byte
		var errDetail sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.SubmissionID, &entry.Recipient, &entry.Purpose,
			&entry.Subject, &entry.Body, &manifest,
			&entry.Status, &errDetail, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		if len(manifest) > 0 {
			if err := json.Unmarshal(manifest, &entry.Attachments); err != nil {
				return nil, fmt.Errorf("unmarshal attachment manifest: %w", err)
			}
		}
		entry.ErrorDetail = errDetail.String
		out = append(out, entry)
	}
	return out, rows.Err()
}
