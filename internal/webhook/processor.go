// Package webhook ingests signed CRM events. Events are persisted
// before any processing, so a crash mid-reconcile never loses an event
// and a redelivered event is recognized by its external id and ignored.
package webhook

import (
	"context"
	"encoding/json"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/common/metrics"
	"objection-engine/internal/models"
)

// EventStore persists inbound events keyed by their external id.
type EventStore interface {
	Insert(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
}

// SubmissionSync is the slice of submission persistence reconciliation
// touches.
type SubmissionSync interface {
	Get(ctx context.Context, id string) (*models.Submission, error)
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, syncErr string) error
	FindByApplicantEmail(ctx context.Context, email string) ([]models.Submission, error)
}

// Receipt reports what ingestion did with one delivery.
type Receipt struct {
	EventID   string                  `json:"eventId"`
	EventType models.WebhookEventType `json:"eventType"`
	Duplicate bool                    `json:"duplicate"`
	Processed bool                    `json:"processed"`
}

type Processor struct {
	verifier    *Verifier
	events      EventStore
	submissions SubmissionSync
	logger      logger.Logger
}

func NewProcessor(verifier *Verifier, events EventStore, submissions SubmissionSync, log logger.Logger) *Processor {
	return &Processor{
		verifier:    verifier,
		events:      events,
		submissions: submissions,
		logger:      log.WithFields(map[string]interface{}{"component": "webhook"}),
	}
}

// Process verifies, persists and reconciles one delivery. A reconcile
// failure still acknowledges the delivery: the row stays unprocessed
// for a later sweep rather than forcing the CRM to redeliver.
func (p *Processor) Process(ctx context.Context, body []byte, signature string) (*Receipt, error) {
	if !p.verifier.Verify(body, signature) {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return nil, errors.NewAuthenticationError("crm", "webhook signature mismatch")
	}

	if err := validateEnvelope(body); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		return nil, err
	}

	var envelope models.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.NewFieldValidationError("body", "payload is not valid JSON")
	}

	eventType := classify(envelope.EventType)
	event := &models.WebhookEvent{
		ExternalEventID: envelope.EventID,
		EventType:       eventType,
		Payload:         json.RawMessage(body),
	}

	inserted, err := p.events.Insert(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		metrics.WebhookEvents.WithLabelValues(string(eventType), "duplicate").Inc()
		p.logger.Info("duplicate webhook delivery ignored", map[string]interface{}{
			"externalEventId": envelope.EventID,
			"eventType":       string(eventType),
		})
		return &Receipt{EventID: envelope.EventID, EventType: eventType, Duplicate: true}, nil
	}

	receipt := &Receipt{EventID: envelope.EventID, EventType: eventType}

	if err := p.reconcile(ctx, eventType, &envelope); err != nil {
		metrics.WebhookEvents.WithLabelValues(string(eventType), "reconcile_failed").Inc()
		p.logger.WithError(err).Error("webhook reconciliation failed, event retained unprocessed", map[string]interface{}{
			"externalEventId": envelope.EventID,
			"eventType":       string(eventType),
		})
		return receipt, nil
	}

	if err := p.events.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.WithError(err).Warn("failed to mark webhook event processed", map[string]interface{}{
			"eventId": event.ID,
		})
		return receipt, nil
	}

	metrics.WebhookEvents.WithLabelValues(string(eventType), "processed").Inc()
	receipt.Processed = true
	return receipt, nil
}

func classify(eventType string) models.WebhookEventType {
	switch models.WebhookEventType(eventType) {
	case models.EventPersonUpdated, models.EventSubmissionSynced, models.EventSubmissionErrored:
		return models.WebhookEventType(eventType)
	}
	return models.EventUnknown
}

func (p *Processor) reconcile(ctx context.Context, eventType models.WebhookEventType, envelope *models.WebhookEnvelope) error {
	switch eventType {
	case models.EventSubmissionSynced:
		return p.reconcileSync(ctx, envelope.Submission, models.SyncSynced, "")

	case models.EventSubmissionErrored:
		return p.reconcileSync(ctx, envelope.Submission, models.SyncError, envelope.Submission.Error)

	case models.EventPersonUpdated:
		subs, err := p.submissions.FindByApplicantEmail(ctx, envelope.Person.Email)
		if err != nil {
			return err
		}
		p.logger.Info("person update received", map[string]interface{}{
			"email":       envelope.Person.Email,
			"submissions": len(subs),
		})
		return nil

	default:
		p.logger.Warn("unknown webhook event type ignored", map[string]interface{}{
			"externalEventId": envelope.EventID,
			"eventType":       envelope.EventType,
		})
		return nil
	}
}

// reconcileSync is idempotent: applying the same event twice leaves the
// same sync status in place.
func (p *Processor) reconcileSync(ctx context.Context, payload *models.SubmissionPayload, status models.SyncStatus, syncErr string) error {
	sub, err := p.submissions.Get(ctx, payload.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		p.logger.Warn("sync event for unknown submission ignored", map[string]interface{}{
			"submissionId": payload.SubmissionID,
		})
		return nil
	}
	if sub.CRMSyncStatus == status && sub.CRMSyncError == syncErr {
		return nil
	}
	return p.submissions.UpdateSyncStatus(ctx, payload.SubmissionID, status, syncErr)
}
