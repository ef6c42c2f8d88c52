package models

import (
	"encoding/json"
	"time"
)

// WebhookEventType enumerates the CRM event variants the engine knows how
// to reconcile. Anything else decodes to the unknown variant and is
// logged and ignored.
type WebhookEventType string

const (
	EventPersonUpdated     WebhookEventType = "person.updated"
	EventSubmissionSynced  WebhookEventType = "submission.synced"
	EventSubmissionErrored WebhookEventType = "submission.errored"
	EventUnknown           WebhookEventType = "unknown"
)

// WebhookEvent is the persisted, append-only record of one inbound CRM
// event. Persist-first: the row exists before reconciliation runs.
type WebhookEvent struct {
	ID              string           `json:"id"`
	ExternalEventID string           `json:"externalEventId"`
	EventType       WebhookEventType `json:"eventType"`
	Payload         json.RawMessage  `json:"payload"`
	Processed       bool             `json:"processed"`
	ReceivedAt      time.Time        `json:"receivedAt"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty"`
}

// PersonPayload is the body of person.* events.
type PersonPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	CRMID     string `json:"crmId,omitempty"`
}

// SubmissionPayload is the body of submission.* events.
type SubmissionPayload struct {
	SubmissionID string `json:"submissionId"`
	CRMID        string `json:"crmId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WebhookEnvelope is the wire format of a signed CRM event.
type WebhookEnvelope struct {
	EventID    string             `json:"eventId"`
	EventType  string             `json:"eventType"`
	OccurredAt time.Time          `json:"occurredAt"`
	Person     *PersonPayload     `json:"person,omitempty"`
	Submission *SubmissionPayload `json:"submission,omitempty"`
}
