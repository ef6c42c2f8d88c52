package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/models"
)

type recordingSubStore struct {
	status models.SubmissionStatus
	audits []models.StatusAudit
}

func (s *recordingSubStore) Get(ctx context.Context, id string) (*models.Submission, error) {
	return &models.Submission{ID: id, Status: s.status}, nil
}

func (s *recordingSubStore) UpdateStatusCAS(ctx context.Context, id string, from, to models.SubmissionStatus) error {
	if s.status != from {
		return errors.NewConflictError("submission", id, string(from), string(s.status))
	}
	s.status = to
	return nil
}

func (s *recordingSubStore) AppendAudit(ctx context.Context, audit *models.StatusAudit) error {
	s.audits = append(s.audits, *audit)
	return nil
}

type recordingDocStore struct {
	status    models.DocumentStatus
	started   *time.Time
	completed *time.Time
}

func (s *recordingDocStore) Get(ctx context.Context, id string) (*models.Document, error) {
	return &models.Document{ID: id, Status: s.status}, nil
}

func (s *recordingDocStore) UpdateStatusCAS(ctx context.Context, id string, from, to models.DocumentStatus) error {
	if s.status != from {
		return errors.NewConflictError("document", id, string(from), string(s.status))
	}
	s.status = to
	return nil
}

func (s *recordingDocStore) SetReviewTimestamps(ctx context.Context, id string, startedAt, completedAt *time.Time) error {
	if startedAt != nil {
		s.started = startedAt
	}
	if completedAt != nil {
		s.completed = completedAt
	}
	return nil
}

func newTestTracker(subStatus models.SubmissionStatus, docStatus models.DocumentStatus) (*Tracker, *recordingSubStore, *recordingDocStore) {
	subs := &recordingSubStore{status: subStatus}
	docs := &recordingDocStore{status: docStatus}
	return New(subs, docs, logger.NewNoOpLogger()), subs, docs
}

func TestTransitionAdvancesAndAudits(t *testing.T) {
	tr, subs, _ := newTestTracker(models.StatusNew, models.DocCreated)

	err := tr.Transition(context.Background(), "sub-1", models.StatusNew, models.StatusSurveyCompleted, "survey stored")

	require.NoError(t, err)
	assert.Equal(t, models.StatusSurveyCompleted, subs.status)
	require.Len(t, subs.audits, 1)
	assert.Equal(t, "survey", subs.audits[0].Stage)
	assert.Equal(t, "survey stored", subs.audits[0].Detail)
}

func TestTransitionRejectsBackwardMove(t *testing.T) {
	tr, subs, _ := newTestTracker(models.StatusSubmitted, models.DocCreated)

	err := tr.Transition(context.Background(), "sub-1", models.StatusSubmitted, models.StatusNew, "")

	require.Error(t, err)
	verr, ok := errors.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "ILLEGAL_TRANSITION", verr.Issues[0].Code)
	assert.Equal(t, models.StatusSubmitted, subs.status)
	assert.Empty(t, subs.audits)
}

func TestTransitionLostRaceIsConflict(t *testing.T) {
	tr, subs, _ := newTestTracker(models.StatusSurveyCompleted, models.DocCreated)

	// Another worker already moved the row past NEW.
	err := tr.Transition(context.Background(), "sub-1", models.StatusNew, models.StatusSurveyCompleted, "")

	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Empty(t, subs.audits)
}

func TestDocumentTransitionGuarded(t *testing.T) {
	tr, _, docs := newTestTracker(models.StatusNew, models.DocFinalized)

	require.NoError(t, tr.TransitionDocument(context.Background(), "doc-1", models.DocFinalized, models.DocSubmitted))
	assert.Equal(t, models.DocSubmitted, docs.status)

	err := tr.TransitionDocument(context.Background(), "doc-1", models.DocSubmitted, models.DocCreated)
	require.Error(t, err)
	_, ok := errors.AsValidation(err)
	assert.True(t, ok)
}

func TestRecordReviewStampsWindow(t *testing.T) {
	tr, _, docs := newTestTracker(models.StatusNew, models.DocUserEditing)
	started := time.Now().Add(-10 * time.Minute)
	completed := time.Now()

	require.NoError(t, tr.RecordReview(context.Background(), "doc-1", &started, nil))
	require.NoError(t, tr.RecordReview(context.Background(), "doc-1", nil, &completed))

	require.NotNil(t, docs.started)
	require.NotNil(t, docs.completed)
	assert.Equal(t, started, *docs.started)
	assert.Equal(t, completed, *docs.completed)
}
