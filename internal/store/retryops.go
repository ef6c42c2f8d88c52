package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

type RetryOpStore struct {
	db *database.PostgresClient
}

func NewRetryOpStore(db *database.PostgresClient) *RetryOpStore {
	return &RetryOpStore{db: db}
}

const retryOpColumns = `id, operation_type, submission_id, attempt_count, max_attempts,
	next_retry_at, status, last_error, admin_notified, created_at, updated_at`

// Upsert creates a pending retry operation, or on a repeated failure of
// the same (submission, operation_type) bumps the attempt count and
// pushes out the next retry time. attempt_count never exceeds
// max_attempts; the engine checks Exhausted before scheduling again.
func (s *RetryOpStore) Upsert(ctx context.Context, op *models.RetryOperation) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO retry_operations (`+retryOpColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (submission_id, operation_type) WHERE status IN ('pending','in_flight')
		DO UPDATE SET
			attempt_count = retry_operations.attempt_count + 1,
			next_retry_at = EXCLUDED.next_retry_at,
			status = 'pending',
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		op.ID, op.OperationType, op.SubmissionID, op.AttemptCount, op.MaxAttempts,
		op.NextRetryAt, op.Status, op.LastError, op.AdminNotified, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert retry operation: %w", err)
	}
	return nil
}

func (s *RetryOpStore) Get(ctx context.Context, id string) (*models.RetryOperation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+retryOpColumns+` FROM retry_operations WHERE id = $1`, id)
	return scanRetryOp(row)
}

// FindActive returns the live operation for a submission/type pair, if any.
func (s *RetryOpStore) FindActive(ctx context.Context, submissionID string, opType models.OperationType) (*models.RetryOperation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+retryOpColumns+` FROM retry_operations
		WHERE submission_id = $1 AND operation_type = $2 AND status IN ('pending','in_flight')`,
		submissionID, opType)
	return scanRetryOp(row)
}

// ClaimDue atomically flips due pending rows to in_flight and returns
// them, so a second poller worker cannot pick up the same operation.
func (s *RetryOpStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.RetryOperation, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE retry_operations SET status = 'in_flight', updated_at = $1
		WHERE id IN (
			SELECT id FROM retry_operations
			WHERE status = 'pending' AND next_retry_at <= $1
			ORDER BY next_retry_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+retryOpColumns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due retry operations: %w", err)
	}
	defer rows.Close()

	var out []models.RetryOperation
	for rows.Next() {
		op, err := scanRetryOpRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

// Release returns a claimed operation to pending with a new attempt
// count and schedule after a failed re-attempt.
func (s *RetryOpStore) Release(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE retry_operations SET status = 'pending', attempt_count = $1,
			next_retry_at = $2, last_error = $3, updated_at = $4
		WHERE id = $5`,
		attemptCount, nextRetryAt, lastError, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("release retry operation: %w", err)
	}
	return nil
}

// Delete removes the operation after a successful re-attempt.
func (s *RetryOpStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM retry_operations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete retry operation: %w", err)
	}
	return nil
}

// MarkFailed marks the operation terminally failed after exhaustion.
func (s *RetryOpStore) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE retry_operations SET status = 'failed', last_error = $1, updated_at = $2
		WHERE id = $3`,
		lastError, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark retry operation failed: %w", err)
	}
	return nil
}

// MarkAdminNotified flips the notification flag exactly once. Returns
// true when this call performed the flip, false when another worker (or
// a previous attempt) already had.
func (s *RetryOpStore) MarkAdminNotified(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE retry_operations SET admin_notified = TRUE, updated_at = $1
		WHERE id = $2 AND admin_notified = FALSE`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark admin notified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Cancel moves a pending operation to cancelled. In-flight calls are not
// aborted; only the next scheduled retry is suppressed.
func (s *RetryOpStore) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE retry_operations SET status = 'cancelled', updated_at = $1
		WHERE id = $2 AND status = 'pending'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel retry operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Statistics aggregates operation counts by type over a trailing window.
func (s *RetryOpStore) Statistics(ctx context.Context, since time.Time) ([]models.RetryStat, error) {
	rows, err := s.db.Query(ctx, `
		SELECT operation_type,
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'in_flight'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(attempt_count), 0)
		FROM retry_operations
		WHERE updated_at >= $1
		GROUP BY operation_type
		ORDER BY operation_type`, since)
	if err != nil {
		return nil, fmt.Errorf("query retry statistics: %w", err)
	}
	defer rows.Close()

	var out []models.RetryStat
	for rows.Next() {
		var stat models.RetryStat
		if err := rows.Scan(&stat.OperationType, &stat.Pending, &stat.InFlight,
			&stat.Failed, &stat.Cancelled, &stat.TotalAttempts); err != nil {
			return nil, fmt.Errorf("scan retry statistics: %w", err)
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

func scanRetryOp(row *sql.Row) (*models.RetryOperation, error) {
	var op models.RetryOperation
	var lastError sql.NullString
	err := row.Scan(
		&op.ID, &op.OperationType, &op.SubmissionID, &op.AttemptCount, &op.MaxAttempts,
		&op.NextRetryAt, &op.Status, &lastError, &op.AdminNotified, &op.CreatedAt, &op.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan retry operation: %w", err)
	}
	op.LastError = lastError.String
	return &op, nil
}

func scanRetryOpRows(rows *sql.Rows) (*models.RetryOperation, error) {
	var op models.RetryOperation
	var lastError sql.NullString
	err := rows.Scan(
		&op.ID, &op.OperationType, &op.SubmissionID, &op.AttemptCount, &op.MaxAttempts,
		&op.NextRetryAt, &op.Status, &lastError, &op.AdminNotified, &op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan retry operation: %w", err)
	}
	op.LastError = lastError.String
	return &op, nil
}
