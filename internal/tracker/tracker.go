// Package tracker is the authoritative state machine for submissions and
// their documents. Every transition is a guarded compare-and-set against
// the stored status and every accepted transition is audited. A failed
// CAS means another worker already advanced the row; the loser treats it
// as a no-op.
package tracker

import (
	"context"
	"fmt"
	"time"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/common/metrics"
	"objection-engine/internal/models"
)

// SubmissionStore is the slice of the store the tracker needs.
type SubmissionStore interface {
	Get(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatusCAS(ctx context.Context, id string, from, to models.SubmissionStatus) error
	AppendAudit(ctx context.Context, audit *models.StatusAudit) error
}

// DocumentStore is the document-side slice.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	UpdateStatusCAS(ctx context.Context, id string, from, to models.DocumentStatus) error
	SetReviewTimestamps(ctx context.Context, id string, startedAt, completedAt *time.Time) error
}

type Tracker struct {
	submissions SubmissionStore
	documents   DocumentStore
	logger      logger.Logger
}

func New(submissions SubmissionStore, documents DocumentStore, log logger.Logger) *Tracker {
	return &Tracker{
		submissions: submissions,
		documents:   documents,
		logger:      log.WithFields(map[string]interface{}{"component": "tracker"}),
	}
}

// Transition advances a submission from fromGuard to to. Returns a
// stale-state error when the stored status no longer matches fromGuard,
// and a validation error when the transition violates the forward-only
// ordering.
func (t *Tracker) Transition(ctx context.Context, submissionID string, fromGuard, to models.SubmissionStatus, detail string) error {
	if !fromGuard.CanTransition(to) {
		return errors.NewValidationError(
			fmt.Sprintf("transition %s -> %s is not allowed", fromGuard, to),
			[]errors.Issue{{Field: "status", Message: "status may only move forward", Code: "ILLEGAL_TRANSITION"}},
		)
	}

	if err := t.submissions.UpdateStatusCAS(ctx, submissionID, fromGuard, to); err != nil {
		if errors.IsConflict(err) {
			metrics.TransitionConflicts.Inc()
			t.logger.Debug("transition lost CAS race", map[string]interface{}{
				"submissionId": submissionID,
				"from":         string(fromGuard),
				"to":           string(to),
			})
		}
		return err
	}

	metrics.Transitions.WithLabelValues(string(to)).Inc()

	audit := &models.StatusAudit{
		SubmissionID: submissionID,
		Stage:        stageFor(to),
		Status:       to,
		Detail:       detail,
	}
	if err := t.submissions.AppendAudit(ctx, audit); err != nil {
		// Audit failure must not undo an accepted transition.
		t.logger.Error("failed to append audit row", map[string]interface{}{
			"submissionId": submissionID,
			"status":       string(to),
			"error":        err.Error(),
		})
	}

	t.logger.Info("submission transitioned", map[string]interface{}{
		"submissionId": submissionID,
		"from":         string(fromGuard),
		"to":           string(to),
		"detail":       detail,
	})
	return nil
}

// TransitionDocument advances one document independently of its
// submission; a dual-track submission has two documents moving on
// different schedules.
func (t *Tracker) TransitionDocument(ctx context.Context, documentID string, fromGuard, to models.DocumentStatus) error {
	if !fromGuard.CanTransition(to) {
		return errors.NewValidationError(
			fmt.Sprintf("document transition %s -> %s is not allowed", fromGuard, to),
			[]errors.Issue{{Field: "status", Message: "document status may only move forward", Code: "ILLEGAL_TRANSITION"}},
		)
	}

	if err := t.documents.UpdateStatusCAS(ctx, documentID, fromGuard, to); err != nil {
		if errors.IsConflict(err) {
			metrics.TransitionConflicts.Inc()
		}
		return err
	}

	t.logger.Info("document transitioned", map[string]interface{}{
		"documentId": documentID,
		"from":       string(fromGuard),
		"to":         string(to),
	})
	return nil
}

// RecordReview stamps the review window on a document.
func (t *Tracker) RecordReview(ctx context.Context, documentID string, startedAt, completedAt *time.Time) error {
	return t.documents.SetReviewTimestamps(ctx, documentID, startedAt, completedAt)
}

// Current fetches the stored submission state.
func (t *Tracker) Current(ctx context.Context, submissionID string) (*models.Submission, error) {
	return t.submissions.Get(ctx, submissionID)
}

func stageFor(status models.SubmissionStatus) string {
	switch status {
	case models.StatusNew:
		return "intake"
	case models.StatusSurveyCompleted:
		return "survey"
	case models.StatusReadyForReview, models.StatusUserEditing:
		return "review"
	case models.StatusFinalizing, models.StatusSubmitted:
		return "delivery"
	case models.StatusComplete:
		return "complete"
	case models.StatusRetrying, models.StatusFailed:
		return "recovery"
	}
	return "unknown"
}
