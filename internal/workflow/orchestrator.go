// Package workflow drives a submission through its lifecycle: intake,
// survey, grounds drafting, document rendering, review gating, delivery
// and CRM sync. Transient integration failures are handed to the retry
// engine; the orchestrator itself only decides what happens next.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/integrations/crm"
	"objection-engine/internal/integrations/docrender"
	"objection-engine/internal/models"
	"objection-engine/internal/workers/assemble"
	"objection-engine/internal/workers/dispatch"
	"objection-engine/internal/workers/finalize"
	"objection-engine/internal/workers/generate"
)

// SubmissionStore is the submission persistence the orchestrator uses.
type SubmissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	Get(ctx context.Context, id string) (*models.Submission, error)
	SetGroundsText(ctx context.Context, id, grounds string) error
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, syncErr string) error
}

// DocumentStore is the document persistence slice.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Document, error)
	UpdateStatusCAS(ctx context.Context, id string, from, to models.DocumentStatus) error
	SetRenderResult(ctx context.Context, id, renderRef, viewerURL, pdfURL string) error
}

type SurveyStore interface {
	Append(ctx context.Context, resp *models.SurveyResponse) error
	Latest(ctx context.Context, submissionID string) (*models.SurveyResponse, error)
}

type DraftStore interface {
	Append(ctx context.Context, draft *models.GeneratedDraft) error
}

type ProjectStore interface {
	Get(ctx context.Context, projectID string) (*models.ProjectConfig, error)
}

// StatusTracker performs guarded lifecycle transitions.
type StatusTracker interface {
	Current(ctx context.Context, submissionID string) (*models.Submission, error)
	Transition(ctx context.Context, submissionID string, fromGuard, to models.SubmissionStatus, detail string) error
	TransitionDocument(ctx context.Context, documentID string, fromGuard, to models.DocumentStatus) error
}

// Generator drafts the grounds text.
type Generator interface {
	Execute(ctx context.Context, input *generate.Input) (*generate.Output, error)
}

// Assembler builds document plans.
type Assembler interface {
	Execute(input *assemble.Input) (*assemble.Output, error)
}

// Finalizer delivers the submission.
type Finalizer interface {
	Execute(ctx context.Context, input *finalize.Input) (*finalize.Output, error)
}

// Renderer creates documents in the rendering backend.
type Renderer interface {
	CreateDocument(ctx context.Context, templateID string, mergeFields map[string]string) (*docrender.RenderedDocument, error)
}

// CRM is the outbound CRM surface.
type CRM interface {
	UpsertPerson(ctx context.Context, person *crm.Person) (string, error)
	PushSubmission(ctx context.Context, sync *crm.SubmissionSync) error
}

// Scheduler hands a transient failure to the retry engine.
type Scheduler interface {
	Schedule(ctx context.Context, submissionID string, opType models.OperationType, cause error) error
}

type Orchestrator struct {
	submissions SubmissionStore
	documents   DocumentStore
	surveys     SurveyStore
	drafts      DraftStore
	projects    ProjectStore
	tracker     StatusTracker
	generator   Generator
	assembler   Assembler
	finalizer   Finalizer
	renderer    Renderer
	crm         CRM
	scheduler   Scheduler
	logger      logger.Logger
}

type Dependencies struct {
	Submissions SubmissionStore
	Documents   DocumentStore
	Surveys     SurveyStore
	Drafts      DraftStore
	Projects    ProjectStore
	Tracker     StatusTracker
	Generator   Generator
	Assembler   Assembler
	Finalizer   Finalizer
	Renderer    Renderer
	CRM         CRM
	Scheduler   Scheduler
	Logger      logger.Logger
}

func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		submissions: deps.Submissions,
		documents:   deps.Documents,
		surveys:     deps.Surveys,
		drafts:      deps.Drafts,
		projects:    deps.Projects,
		tracker:     deps.Tracker,
		generator:   deps.Generator,
		assembler:   deps.Assembler,
		finalizer:   deps.Finalizer,
		renderer:    deps.Renderer,
		crm:         deps.CRM,
		scheduler:   deps.Scheduler,
		logger:      deps.Logger.WithFields(map[string]interface{}{"component": "workflow"}),
	}
}

// IntakeRequest is the citizen's initial form.
type IntakeRequest struct {
	ProjectID         string       `json:"projectId"`
	ApplicantName     string       `json:"applicantName"`
	ApplicantEmail    string       `json:"applicantEmail"`
	ApplicantPhone    string       `json:"applicantPhone,omitempty"`
	ResidentialAddr   string       `json:"residentialAddress"`
	PostalAddr        string       `json:"postalAddress,omitempty"`
	PostalSameAsHome  bool         `json:"postalSameAsResidential"`
	SiteAddress       string       `json:"siteAddress"`
	ApplicationNumber string       `json:"applicationNumber"`
	Track             models.Track `json:"track,omitempty"`
}

// CreateSubmission registers a new objection at NEW and kicks off the
// first CRM sync. A failed sync never blocks intake.
func (o *Orchestrator) CreateSubmission(ctx context.Context, req *IntakeRequest) (*models.Submission, error) {
	if err := validateIntake(req); err != nil {
		return nil, err
	}

	project, err := o.projects.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, errors.NewFieldValidationError("projectId", fmt.Sprintf("unknown project %q", req.ProjectID))
	}

	track := req.Track
	if track == "" {
		track = models.TrackSingle
	}
	if !track.Valid() {
		return nil, errors.NewFieldValidationError("track", fmt.Sprintf("unknown track %q", track))
	}

	sub := &models.Submission{
		ID:                uuid.New().String(),
		ProjectID:         req.ProjectID,
		ApplicantName:     req.ApplicantName,
		ApplicantEmail:    req.ApplicantEmail,
		ApplicantPhone:    req.ApplicantPhone,
		ResidentialAddr:   req.ResidentialAddr,
		PostalAddr:        req.PostalAddr,
		PostalSameAsHome:  req.PostalSameAsHome,
		SiteAddress:       req.SiteAddress,
		ApplicationNumber: req.ApplicationNumber,
		Pathway:           project.Pathway,
		Track:             track,
		Status:            models.StatusNew,
		CRMSyncStatus:     models.SyncPending,
	}
	if err := o.submissions.Create(ctx, sub); err != nil {
		return nil, err
	}

	o.logger.Info("submission created", map[string]interface{}{
		"submissionId": sub.ID,
		"projectId":    sub.ProjectID,
		"pathway":      string(sub.Pathway),
		"track":        string(track),
	})

	if err := o.syncCRM(ctx, sub.ID); err != nil {
		if errors.IsRetryable(err) {
			_ = o.scheduler.Schedule(ctx, sub.ID, models.OpCRMSync, err)
		} else {
			o.logger.WithError(err).Warn("initial CRM sync failed terminally", map[string]interface{}{
				"submissionId": sub.ID,
			})
		}
	}

	return sub, nil
}

// SurveyRequest is the applicant's concern selection form.
type SurveyRequest struct {
	ConcernKeys   []string `json:"concernKeys"`
	StyleSample   string   `json:"styleSample,omitempty"`
	CustomGrounds string   `json:"customGrounds,omitempty"`
}

// CompleteSurvey records the survey and runs the pipeline forward. A
// transient integration failure leaves the submission parked in
// RETRYING; the recovery loop takes it from there.
func (o *Orchestrator) CompleteSurvey(ctx context.Context, submissionID string, req *SurveyRequest) (*models.Submission, error) {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusNew {
		return nil, errors.NewConflictError("submission", submissionID, string(models.StatusNew), string(sub.Status))
	}
	if len(req.ConcernKeys) == 0 && strings.TrimSpace(req.CustomGrounds) == "" {
		return nil, errors.NewFieldValidationError("concernKeys", "select at least one concern or provide custom grounds")
	}

	if err := o.surveys.Append(ctx, &models.SurveyResponse{
		SubmissionID:  submissionID,
		ConcernKeys:   req.ConcernKeys,
		StyleSample:   req.StyleSample,
		CustomGrounds: req.CustomGrounds,
		Track:         sub.Track,
	}); err != nil {
		return nil, err
	}

	if err := o.tracker.Transition(ctx, submissionID, models.StatusNew, models.StatusSurveyCompleted, "survey completed"); err != nil {
		return nil, err
	}

	if err := o.Advance(ctx, submissionID); err != nil && !errors.IsRetryable(err) {
		return nil, err
	}
	return o.submissions.Get(ctx, submissionID)
}

// RecordManualEdit stores an applicant revision of the grounds text and
// re-renders the grounds documents from it.
func (o *Orchestrator) RecordManualEdit(ctx context.Context, submissionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.NewFieldValidationError("groundsText", "edited grounds text must not be empty")
	}

	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return err
	}
	switch sub.Status {
	case models.StatusReadyForReview:
		if err := o.tracker.Transition(ctx, submissionID, models.StatusReadyForReview, models.StatusUserEditing, "applicant editing"); err != nil {
			return err
		}
	case models.StatusUserEditing:
	default:
		return errors.NewConflictError("submission", submissionID, string(models.StatusReadyForReview), string(sub.Status))
	}

	if err := o.submissions.SetGroundsText(ctx, submissionID, text); err != nil {
		return err
	}
	if err := o.drafts.Append(ctx, &models.GeneratedDraft{
		SubmissionID: submissionID,
		Provider:     "user",
		OutputText:   text,
	}); err != nil {
		return err
	}

	if err := o.rerenderGrounds(ctx, submissionID); err != nil {
		if errors.IsRetryable(err) {
			_ = o.scheduler.Schedule(ctx, submissionID, models.OpDocRender, err)
			return nil
		}
		return err
	}
	return nil
}

// ConfirmAndFinalize is the applicant approval on the review and draft
// pathways: every document locks, the submission enters FINALIZING and
// delivery runs.
func (o *Orchestrator) ConfirmAndFinalize(ctx context.Context, submissionID string) (*models.Submission, error) {
	sub, err := o.mustGet(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusReadyForReview && sub.Status != models.StatusUserEditing {
		return nil, errors.NewConflictError("submission", submissionID, string(models.StatusReadyForReview), string(sub.Status))
	}

	if err := o.lockDocuments(ctx, submissionID); err != nil {
		return nil, err
	}

	if err := o.tracker.Transition(ctx, submissionID, sub.Status, models.StatusFinalizing, "applicant confirmed"); err != nil {
		return nil, err
	}

	if err := o.Advance(ctx, submissionID); err != nil && !errors.IsRetryable(err) {
		return nil, err
	}
	return o.submissions.Get(ctx, submissionID)
}

func (o *Orchestrator) lockDocuments(ctx context.Context, submissionID string) error {
	docs, err := o.documents.ListBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return errors.NewFieldValidationError("documents", "no documents to finalize")
	}
	for _, doc := range docs {
		if doc.Status == models.DocFinalized || doc.Status == models.DocSubmitted {
			continue
		}
		if err := o.tracker.TransitionDocument(ctx, doc.ID, doc.Status, models.DocFinalized); err != nil && !errors.IsConflict(err) {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) mustGet(ctx context.Context, submissionID string) (*models.Submission, error) {
	sub, err := o.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errors.NewFieldValidationError("submissionId", fmt.Sprintf("unknown submission %q", submissionID))
	}
	return sub, nil
}

func validateIntake(req *IntakeRequest) error {
	var issues []errors.Issue
	if strings.TrimSpace(req.ProjectID) == "" {
		issues = append(issues, errors.Issue{Field: "projectId", Message: "required"})
	}
	if strings.TrimSpace(req.ApplicantName) == "" {
		issues = append(issues, errors.Issue{Field: "applicantName", Message: "required"})
	}
	if !strings.Contains(req.ApplicantEmail, "@") {
		issues = append(issues, errors.Issue{Field: "applicantEmail", Message: "a valid email address is required"})
	}
	if strings.TrimSpace(req.ResidentialAddr) == "" {
		issues = append(issues, errors.Issue{Field: "residentialAddress", Message: "required"})
	}
	if !req.PostalSameAsHome && strings.TrimSpace(req.PostalAddr) == "" {
		issues = append(issues, errors.Issue{Field: "postalAddress", Message: "postal address is required unless it matches the residential address"})
	}
	if strings.TrimSpace(req.ApplicationNumber) == "" {
		issues = append(issues, errors.Issue{Field: "applicationNumber", Message: "required"})
	}
	if len(issues) > 0 {
		return errors.NewValidationError("intake form invalid", issues)
	}
	return nil
}

// dispatchPlan resolves the delivery plan for a submission.
func dispatchPlan(sub *models.Submission) (*dispatch.Plan, error) {
	return dispatch.Decide(sub.Pathway, sub.Track)
}
