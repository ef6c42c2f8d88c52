package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/database"
	"objection-engine/internal/common/errors"
	"objection-engine/internal/models"
)

func newMockSubmissionStore(t *testing.T) (*SubmissionStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSubmissionStore(&database.PostgresClient{DB: db}), mock
}

func submissionMockRow(id string, status models.SubmissionStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "project_id", "applicant_name", "applicant_email", "applicant_phone",
		"residential_address", "postal_address", "postal_same_as_residential",
		"site_address", "application_number", "pathway", "track", "status",
		"review_deadline", "grounds_text", "crm_sync_status", "crm_sync_error",
		"created_at", "updated_at",
	}).AddRow(
		id, "proj-1", "Dana Wu", "dana@example.com", nil,
		"5 Hill St", nil, true,
		"12 Main St", "DA-2026/041", "direct", "standard", status,
		nil, nil, "pending", nil,
		now, now,
	)
}

func TestCreateFillsDefaults(t *testing.T) {
	s, mock := newMockSubmissionStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub := &models.Submission{
		ProjectID:      "proj-1",
		ApplicantName:  "Dana Wu",
		ApplicantEmail: "dana@example.com",
	}
	err := s.Create(context.Background(), sub)

	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, models.StatusNew, sub.Status)
	assert.Equal(t, models.SyncPending, sub.CRMSyncStatus)
	assert.False(t, sub.CreatedAt.IsZero())
}

func TestUpdateStatusCASSuccess(t *testing.T) {
	s, mock := newMockSubmissionStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateStatusCAS(context.Background(), "sub-1", models.StatusNew, models.StatusSurveyCompleted)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCASStaleStateIsConflict(t *testing.T) {
	s, mock := newMockSubmissionStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The conflict error reports what the row actually holds.
	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE id = $1")).
		WithArgs("sub-1").
		WillReturnRows(submissionMockRow("sub-1", models.StatusSubmitted))

	err := s.UpdateStatusCAS(context.Background(), "sub-1", models.StatusNew, models.StatusSurveyCompleted)

	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Contains(t, stdErr.Details, "submitted")
}

func TestGetMissingSubmissionReturnsNil(t *testing.T) {
	s, mock := newMockSubmissionStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	sub, err := s.Get(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, sub)
}
