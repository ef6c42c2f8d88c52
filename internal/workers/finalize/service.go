// Package finalize delivers a submission: it gathers the rendered PDFs,
// sends the council email with the duplicate-send guard applied, logs
// every attempt, and advances each document to submitted.
package finalize

import (
	"context"
	"fmt"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/common/metrics"
	"objection-engine/internal/integrations/email"
	"objection-engine/internal/models"
)

// DocumentStore is the slice of document persistence finalization needs.
type DocumentStore interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Document, error)
	UpdateStatusCAS(ctx context.Context, id string, from, to models.DocumentStatus) error
}

// DeliveryStore records outbound mail attempts and answers the
// duplicate-send guard.
type DeliveryStore interface {
	Append(ctx context.Context, entry *models.DeliveryLog) error
	HasSent(ctx context.Context, submissionID, recipient string, purpose models.DeliveryPurpose) (bool, error)
}

// PDFFetcher retrieves the rendered PDF bytes for a document reference.
type PDFFetcher interface {
	FetchPDF(ctx context.Context, documentID string) ([]byte, error)
}

type Service struct {
	config     *Config
	documents  DocumentStore
	deliveries DeliveryStore
	renderer   PDFFetcher
	sender     email.Sender
	logger     logger.Logger
}

type ServiceDependencies struct {
	Documents  DocumentStore
	Deliveries DeliveryStore
	Renderer   PDFFetcher
	Sender     email.Sender
	Logger     logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:     config,
		documents:  deps.Documents,
		deliveries: deps.Deliveries,
		renderer:   deps.Renderer,
		sender:     deps.Sender,
		logger:     deps.Logger.WithFields(map[string]interface{}{"component": "finalize"}),
	}
}

// Execute runs finalization end to end. A repeat invocation after a
// crash between send and transition is safe: the delivery log guard
// suppresses the second council email.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	docs, err := s.documents.ListBySubmission(ctx, input.Submission.ID)
	if err != nil {
		return nil, err
	}

	if err := s.checkPreconditions(input, docs); err != nil {
		return nil, err
	}

	out := &Output{}

	attachments, refs, err := s.fetchAttachments(ctx, input.Submission, docs)
	if err != nil {
		return nil, err
	}
	out.Attachments = refs

	council := input.Project.CouncilEmail
	alreadySent, err := s.deliveries.HasSent(ctx, input.Submission.ID, council, models.PurposeCouncilSubmission)
	if err != nil {
		return nil, err
	}

	if alreadySent {
		metrics.DuplicateDeliveriesBlocked.Inc()
		s.logger.Warn("council email already sent, suppressing duplicate", map[string]interface{}{
			"submissionId": input.Submission.ID,
			"recipient":    council,
		})
		out.CouncilSuppressed = true
	} else {
		msgID, err := s.sendCouncilEmail(ctx, input, attachments, refs)
		if err != nil {
			return nil, err
		}
		out.CouncilMessageID = msgID
	}

	// Confirmation failures are logged but never roll back a lodged
	// objection.
	out.ConfirmationSent = s.sendApplicantConfirmation(ctx, input)

	for i := range docs {
		if docs[i].Status != models.DocFinalized {
			continue
		}
		if err := s.documents.UpdateStatusCAS(ctx, docs[i].ID, models.DocFinalized, models.DocSubmitted); err != nil {
			if errors.IsConflict(err) {
				continue
			}
			return nil, err
		}
	}

	return out, nil
}

// checkPreconditions returns a single validation error aggregating every
// blocker so the applicant can fix them in one pass.
func (s *Service) checkPreconditions(input *Input, docs []models.Document) error {
	var issues []errors.Issue

	if len(docs) == 0 {
		issues = append(issues, errors.Issue{Field: "documents", Message: "no documents exist for this submission", Code: "NO_DOCUMENTS"})
	}
	for _, doc := range docs {
		if doc.Status != models.DocFinalized && doc.Status != models.DocSubmitted {
			issues = append(issues, errors.Issue{
				Field:   string(doc.DocType),
				Message: fmt.Sprintf("document %s is %s, not finalized", doc.ID, doc.Status),
				Code:    "DOCUMENT_NOT_FINALIZED",
			})
		}
	}
	if input.Plan.RequiresConfirm && !input.ApplicantConfirmed {
		issues = append(issues, errors.Issue{
			Field:   "confirmation",
			Message: "applicant confirmation is required before delivery on this pathway",
			Code:    "CONFIRMATION_REQUIRED",
		})
	}
	if input.Project.CouncilEmail == "" {
		issues = append(issues, errors.Issue{Field: "councilEmail", Message: "project has no council email configured"})
	}

	if len(issues) > 0 {
		return errors.NewValidationError("submission is not ready for delivery", issues)
	}
	return nil
}

func (s *Service) fetchAttachments(ctx context.Context, sub *models.Submission, docs []models.Document) ([]email.Attachment, []models.AttachmentRef, error) {
	var attachments []email.Attachment
	var refs []models.AttachmentRef
	for _, doc := range docs {
		pdf, err := s.renderer.FetchPDF(ctx, doc.RenderRef)
		if err != nil {
			return nil, nil, err
		}
		filename := fmt.Sprintf("%s-%s.pdf", doc.DocType, sub.ApplicationNumber)
		attachments = append(attachments, email.Attachment{
			Filename:    filename,
			ContentType: "application/pdf",
			Content:     pdf,
		})
		refs = append(refs, models.AttachmentRef{
			Filename:    filename,
			ContentType: "application/pdf",
			SizeBytes:   len(pdf),
		})
	}
	return attachments, refs, nil
}

func (s *Service) sendCouncilEmail(ctx context.Context, input *Input, attachments []email.Attachment, refs []models.AttachmentRef) (string, error) {
	sub := input.Submission
	msg := &email.Message{
		From:        s.config.FromAddress,
		To:          input.Project.CouncilEmail,
		ReplyTo:     s.replyTo(sub),
		Subject:     fmt.Sprintf("Objection to development application %s - %s", sub.ApplicationNumber, sub.SiteAddress),
		Body:        councilBody(sub, input.Project),
		Attachments: attachments,
	}

	msgID, sendErr := s.sender.Send(ctx, msg)

	entry := &models.DeliveryLog{
		SubmissionID: sub.ID,
		Recipient:    msg.To,
		Purpose:      models.PurposeCouncilSubmission,
		Subject:      msg.Subject,
		Body:         msg.Body,
		Attachments:  refs,
		Status:       models.DeliverySent,
	}
	if sendErr != nil {
		entry.Status = models.DeliveryFailed
		entry.ErrorDetail = sendErr.Error()
	}
	if logErr := s.deliveries.Append(ctx, entry); logErr != nil {
		s.logger.WithError(logErr).Error("failed to append delivery log", map[string]interface{}{
			"submissionId": sub.ID,
		})
	}

	if sendErr != nil {
		return "", sendErr
	}

	metrics.DeliveriesSent.WithLabelValues(string(models.PurposeCouncilSubmission)).Inc()
	s.logger.Info("council submission delivered", map[string]interface{}{
		"submissionId": sub.ID,
		"messageId":    msgID,
		"attachments":  len(attachments),
	})
	return msgID, nil
}

func (s *Service) sendApplicantConfirmation(ctx context.Context, input *Input) bool {
	sub := input.Submission
	sent, err := s.deliveries.HasSent(ctx, sub.ID, sub.ApplicantEmail, models.PurposeApplicantConfirmation)
	if err != nil || sent {
		return false
	}

	msg := &email.Message{
		From:    s.config.FromAddress,
		To:      sub.ApplicantEmail,
		Subject: fmt.Sprintf("Your objection to application %s has been lodged", sub.ApplicationNumber),
		Body:    confirmationBody(sub, input, s.config.InfoPackURL),
	}

	msgID, sendErr := s.sender.Send(ctx, msg)

	entry := &models.DeliveryLog{
		SubmissionID: sub.ID,
		Recipient:    msg.To,
		Purpose:      models.PurposeApplicantConfirmation,
		Subject:      msg.Subject,
		Body:         msg.Body,
		Status:       models.DeliverySent,
	}
	if sendErr != nil {
		entry.Status = models.DeliveryFailed
		entry.ErrorDetail = sendErr.Error()
	}
	if logErr := s.deliveries.Append(ctx, entry); logErr != nil {
		s.logger.WithError(logErr).Error("failed to append delivery log", map[string]interface{}{
			"submissionId": sub.ID,
		})
	}

	if sendErr != nil {
		s.logger.WithError(sendErr).Warn("applicant confirmation failed", map[string]interface{}{
			"submissionId": sub.ID,
		})
		return false
	}

	metrics.DeliveriesSent.WithLabelValues(string(models.PurposeApplicantConfirmation)).Inc()
	s.logger.Info("applicant confirmation sent", map[string]interface{}{
		"submissionId": sub.ID,
		"messageId":    msgID,
	})
	return true
}

func (s *Service) replyTo(sub *models.Submission) string {
	if s.config.ReplyTo != "" {
		return s.config.ReplyTo
	}
	return sub.ApplicantEmail
}

func councilBody(sub *models.Submission, project *models.ProjectConfig) string {
	return fmt.Sprintf(
		"Please find attached an objection to development application %s at %s, lodged on behalf of %s of %s.\n\nThe cover letter and grounds of objection are attached as PDF documents.\n",
		sub.ApplicationNumber, sub.SiteAddress, sub.ApplicantName, sub.PostalAddress(),
	)
}

func confirmationBody(sub *models.Submission, input *Input, infoPackURL string) string {
	body := fmt.Sprintf(
		"Dear %s,\n\nYour objection to development application %s at %s has been lodged with %s.\n\nA copy of your submission is retained on record.\n",
		sub.ApplicantName, sub.ApplicationNumber, sub.SiteAddress, input.Project.CouncilName,
	)
	if input.Plan.IncludeInfoPack && infoPackURL != "" {
		body += fmt.Sprintf("\nWhat happens next: %s\n", infoPackURL)
	}
	return body
}
