package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/metrics"
	"objection-engine/internal/integrations/crm"
	"objection-engine/internal/models"
	"objection-engine/internal/workers/assemble"
	"objection-engine/internal/workers/finalize"
	"objection-engine/internal/workers/generate"
)

// Advance runs the pipeline forward from wherever the submission
// currently stands. Each step is guarded so re-entering after a crash
// or retry recovery never repeats completed work.
func (o *Orchestrator) Advance(ctx context.Context, submissionID string) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}

	switch sub.Status {
	case models.StatusSurveyCompleted:
		return o.continueFromSurvey(ctx, sub)
	case models.StatusFinalizing:
		return o.finishDelivery(ctx, sub)
	case models.StatusSubmitted:
		return o.finishTail(ctx, sub)
	default:
		return nil
	}
}

func (o *Orchestrator) continueFromSurvey(ctx context.Context, sub *models.Submission) error {
	if err := o.step(ctx, sub.ID, models.OpAIGenerate, "generate", o.generateGrounds); err != nil {
		return err
	}
	if err := o.step(ctx, sub.ID, models.OpDocRender, "render", o.renderDocuments); err != nil {
		return err
	}

	plan, err := dispatchPlan(sub)
	if err != nil {
		return err
	}

	if plan.RequiresConfirm {
		return o.tracker.Transition(ctx, sub.ID, models.StatusSurveyCompleted, models.StatusReadyForReview, "awaiting applicant review")
	}

	if err := o.lockDocuments(ctx, sub.ID); err != nil {
		return err
	}
	if err := o.tracker.Transition(ctx, sub.ID, models.StatusSurveyCompleted, models.StatusFinalizing, "direct pathway, delivering"); err != nil {
		return err
	}
	sub.Status = models.StatusFinalizing
	return o.finishDelivery(ctx, sub)
}

func (o *Orchestrator) finishDelivery(ctx context.Context, sub *models.Submission) error {
	if err := o.step(ctx, sub.ID, models.OpEmailSend, "finalize", o.finalizeDelivery); err != nil {
		return err
	}
	if err := o.tracker.Transition(ctx, sub.ID, models.StatusFinalizing, models.StatusSubmitted, "delivered to council"); err != nil {
		return err
	}
	sub.Status = models.StatusSubmitted
	return o.finishTail(ctx, sub)
}

func (o *Orchestrator) finishTail(ctx context.Context, sub *models.Submission) error {
	if err := o.syncCRM(ctx, sub.ID); err != nil {
		if errors.IsRetryable(err) {
			_ = o.scheduler.Schedule(ctx, sub.ID, models.OpCRMSync, err)
		} else {
			o.logger.WithError(err).Warn("CRM sync failed terminally", map[string]interface{}{
				"submissionId": sub.ID,
			})
		}
	}
	return o.tracker.Transition(ctx, sub.ID, models.StatusSubmitted, models.StatusComplete, "workflow complete")
}

// step wraps a raw step with timing and retry scheduling. Retryable
// errors are handed to the engine, which parks the submission; they
// still propagate so the caller stops walking the pipeline.
func (o *Orchestrator) step(ctx context.Context, submissionID string, opType models.OperationType, name string, fn func(ctx context.Context, submissionID string) error) error {
	start := time.Now()
	err := fn(ctx, submissionID)
	metrics.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	if errors.IsRetryable(err) {
		if schedErr := o.scheduler.Schedule(ctx, submissionID, opType, err); schedErr != nil {
			o.logger.WithError(schedErr).Error("failed to schedule retry", map[string]interface{}{
				"submissionId":  submissionID,
				"operationType": string(opType),
			})
		}
		return err
	}
	if errors.KindOf(err) == errors.KindTerminal {
		o.failTerminally(ctx, submissionID, err)
	}
	return err
}

func (o *Orchestrator) failTerminally(ctx context.Context, submissionID string, cause error) {
	sub, err := o.submissions.Get(ctx, submissionID)
	if err != nil || sub == nil || sub.Status == models.StatusFailed {
		return
	}
	if trErr := o.tracker.Transition(ctx, submissionID, sub.Status, models.StatusFailed, cause.Error()); trErr != nil && !errors.IsConflict(trErr) {
		o.logger.WithError(trErr).Error("could not fail submission", map[string]interface{}{
			"submissionId": submissionID,
		})
	}
}

// generateGrounds drafts the objection text. Skipped when a draft
// already landed, so resuming a later failed step never re-bills the
// provider.
func (o *Orchestrator) generateGrounds(ctx context.Context, submissionID string) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.GroundsText != "" {
		return nil
	}

	project, survey, err := o.loadContext(ctx, sub)
	if err != nil {
		return err
	}

	out, err := o.generator.Execute(ctx, &generate.Input{
		SubmissionID:  sub.ID,
		ApplicantName: sub.ApplicantName,
		Concerns:      project.ConcernBodies(survey.ConcernKeys),
		Facts:         project.BackgroundFacts,
		StyleSample:   survey.StyleSample,
		CustomGrounds: survey.CustomGrounds,
	})
	if err != nil {
		return err
	}

	if err := o.submissions.SetGroundsText(ctx, sub.ID, out.Text); err != nil {
		return err
	}
	return o.drafts.Append(ctx, &models.GeneratedDraft{
		SubmissionID:     sub.ID,
		Provider:         out.Provider,
		Model:            out.Model,
		PromptVersion:    generate.PromptVersion,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		OutputText:       out.Text,
		InputSummary:     fmt.Sprintf("concerns=%d stripped=%d", len(survey.ConcernKeys), out.StrippedSentences),
	})
}

// renderDocuments assembles plans and creates any document that does
// not exist yet. Existing documents are left alone.
func (o *Orchestrator) renderDocuments(ctx context.Context, submissionID string) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}
	project, survey, err := o.loadContext(ctx, sub)
	if err != nil {
		return err
	}

	out, err := o.assembler.Execute(&assemble.Input{
		Submission:  sub,
		Project:     project,
		Survey:      survey,
		GroundsText: sub.GroundsText,
	})
	if err != nil {
		return err
	}

	existing, err := o.documents.ListBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	haveByType := map[models.DocType]int{}
	for _, doc := range existing {
		haveByType[doc.DocType]++
	}

	for _, plan := range out.Documents {
		if haveByType[plan.DocType] > 0 {
			haveByType[plan.DocType]--
			continue
		}
		rendered, err := o.renderer.CreateDocument(ctx, plan.TemplateID, planFields(plan))
		if err != nil {
			return err
		}
		if err := o.documents.Create(ctx, &models.Document{
			SubmissionID: submissionID,
			DocType:      plan.DocType,
			RenderRef:    rendered.ID,
			ViewerURL:    rendered.ViewerURL,
			PDFURL:       rendered.PDFURL,
			Status:       models.DocCreated,
		}); err != nil {
			return err
		}
	}
	return nil
}

// rerenderGrounds refreshes grounds documents in place after a manual
// edit, keeping their ids and review history.
func (o *Orchestrator) rerenderGrounds(ctx context.Context, submissionID string) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}
	project, survey, err := o.loadContext(ctx, sub)
	if err != nil {
		return err
	}

	out, err := o.assembler.Execute(&assemble.Input{
		Submission:  sub,
		Project:     project,
		Survey:      survey,
		GroundsText: sub.GroundsText,
	})
	if err != nil {
		return err
	}

	docs, err := o.documents.ListBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	var groundsDocs []models.Document
	for _, doc := range docs {
		if doc.DocType == models.DocTypeGrounds {
			groundsDocs = append(groundsDocs, doc)
		}
	}

	i := 0
	for _, plan := range out.Documents {
		if plan.DocType != models.DocTypeGrounds {
			continue
		}
		if i >= len(groundsDocs) {
			break
		}
		rendered, err := o.renderer.CreateDocument(ctx, plan.TemplateID, planFields(plan))
		if err != nil {
			return err
		}
		if err := o.documents.SetRenderResult(ctx, groundsDocs[i].ID, rendered.ID, rendered.ViewerURL, rendered.PDFURL); err != nil {
			return err
		}
		i++
	}
	return nil
}

// finalizeDelivery runs the delivery worker. Confirmation gating for
// review pathways happened at the transition into FINALIZING.
func (o *Orchestrator) finalizeDelivery(ctx context.Context, submissionID string) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}
	project, err := o.projects.Get(ctx, sub.ProjectID)
	if err != nil {
		return err
	}
	plan, err := dispatchPlan(sub)
	if err != nil {
		return err
	}

	_, err = o.finalizer.Execute(ctx, &finalize.Input{
		Submission:         sub,
		Project:            project,
		Plan:               plan,
		ApplicantConfirmed: true,
	})
	return err
}

// syncCRM pushes the person and submission state outbound. Idempotent:
// the CRM upserts by email and submission id.
func (o *Orchestrator) syncCRM(ctx context.Context, submissionID string) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}

	first, last := splitName(sub.ApplicantName)
	crmID, err := o.crm.UpsertPerson(ctx, &crm.Person{
		Email:     sub.ApplicantEmail,
		FirstName: first,
		LastName:  last,
		Phone:     sub.ApplicantPhone,
		Source:    "objection-engine",
	})
	if err != nil {
		o.recordSyncFailure(ctx, submissionID, err)
		return err
	}

	if err := o.crm.PushSubmission(ctx, &crm.SubmissionSync{
		SubmissionID:      sub.ID,
		ApplicationNumber: sub.ApplicationNumber,
		Status:            string(sub.Status),
		SiteAddress:       sub.SiteAddress,
	}); err != nil {
		o.recordSyncFailure(ctx, submissionID, err)
		return err
	}

	o.logger.Debug("CRM sync complete", map[string]interface{}{
		"submissionId": sub.ID,
		"crmId":        crmID,
	})
	return o.submissions.UpdateSyncStatus(ctx, submissionID, models.SyncSynced, "")
}

func (o *Orchestrator) recordSyncFailure(ctx context.Context, submissionID string, cause error) {
	if err := o.submissions.UpdateSyncStatus(ctx, submissionID, models.SyncError, cause.Error()); err != nil {
		o.logger.WithError(err).Warn("failed to record sync error", map[string]interface{}{
			"submissionId": submissionID,
		})
	}
}

// HandleRetry is the engine handler for every operation type: it
// re-runs the failed step, restores the forward status, and walks the
// rest of the pipeline. Follow-on failures schedule their own
// operations.
func (o *Orchestrator) HandleRetry(ctx context.Context, op *models.RetryOperation) error {
	switch op.OperationType {
	case models.OpAIGenerate:
		if err := o.generateGrounds(ctx, op.SubmissionID); err != nil {
			return err
		}
		return o.resumeForward(ctx, op.SubmissionID, models.StatusSurveyCompleted)

	case models.OpDocRender:
		if err := o.renderDocuments(ctx, op.SubmissionID); err != nil {
			return err
		}
		return o.resumeForward(ctx, op.SubmissionID, models.StatusSurveyCompleted)

	case models.OpEmailSend:
		if err := o.finalizeDelivery(ctx, op.SubmissionID); err != nil {
			return err
		}
		return o.resumeForward(ctx, op.SubmissionID, models.StatusSubmitted)

	case models.OpCRMSync:
		return o.syncCRM(ctx, op.SubmissionID)

	default:
		return errors.NewFieldValidationError("operationType", fmt.Sprintf("unknown operation type %q", op.OperationType))
	}
}

// resumeForward walks a parked submission back to its forward stage and
// continues the pipeline. Transient follow-on failures already created
// their own retry operation, so they are not returned to the engine.
func (o *Orchestrator) resumeForward(ctx context.Context, submissionID string, target models.SubmissionStatus) error {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status == models.StatusRetrying || sub.Status == models.StatusFailed {
		if err := o.tracker.Transition(ctx, submissionID, sub.Status, target, "retry recovered"); err != nil {
			return err
		}
	}
	if err := o.Advance(ctx, submissionID); err != nil && !errors.IsRetryable(err) {
		return err
	}
	return nil
}

func (o *Orchestrator) loadContext(ctx context.Context, sub *models.Submission) (*models.ProjectConfig, *models.SurveyResponse, error) {
	project, err := o.projects.Get(ctx, sub.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, errors.NewFieldValidationError("projectId", fmt.Sprintf("unknown project %q", sub.ProjectID))
	}
	survey, err := o.surveys.Latest(ctx, sub.ID)
	if err != nil {
		return nil, nil, err
	}
	if survey == nil {
		return nil, nil, errors.NewFieldValidationError("survey", "no survey response recorded")
	}
	return project, survey, nil
}

func planFields(plan assemble.DocumentPlan) map[string]string {
	fields := make(map[string]string, len(plan.MergeFields)+1)
	for k, v := range plan.MergeFields {
		fields[k] = v
	}
	fields["body"] = plan.Body
	return fields
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.Fields(full)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
