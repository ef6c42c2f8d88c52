package models

import "time"

// DeliveryPurpose identifies why a mail was sent; part of the
// duplicate-send guard key.
type DeliveryPurpose string

const (
	PurposeCouncilSubmission     DeliveryPurpose = "council_submission"
	PurposeApplicantConfirmation DeliveryPurpose = "applicant_confirmation"
	PurposeAdminAlert            DeliveryPurpose = "admin_alert"
)

// DeliveryStatus is the outcome of one outbound email attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// AttachmentRef describes one attachment in the delivery manifest.
type AttachmentRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int    `json:"sizeBytes"`
}

// DeliveryLog is an append-only audit of every outbound email attempt.
// A row with Status = sent blocks a duplicate send for the same
// (submission, recipient, purpose) tuple.
type DeliveryLog struct {
	ID           string          `json:"id"`
	SubmissionID string          `json:"submissionId"`
	Recipient    string          `json:"recipient"`
	Purpose      DeliveryPurpose `json:"purpose"`
	Subject      string          `json:"subject"`
	Body         string          `json:"body"`
	Attachments  []AttachmentRef `json:"attachments,omitempty"`
	Status       DeliveryStatus  `json:"status"`
	ErrorDetail  string          `json:"errorDetail,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
