package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/integrations/crm"
	"objection-engine/internal/integrations/docrender"
	"objection-engine/internal/models"
	"objection-engine/internal/workers/assemble"
	"objection-engine/internal/workers/finalize"
	"objection-engine/internal/workers/generate"
)

// ---- fakes ----

type memSubmissions struct {
	subs map[string]*models.Submission
}

func (m *memSubmissions) Create(_ context.Context, sub *models.Submission) error {
	clone := *sub
	m.subs[sub.ID] = &clone
	return nil
}

func (m *memSubmissions) Get(_ context.Context, id string) (*models.Submission, error) {
	sub, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	clone := *sub
	return &clone, nil
}

func (m *memSubmissions) SetGroundsText(_ context.Context, id, grounds string) error {
	m.subs[id].GroundsText = grounds
	return nil
}

func (m *memSubmissions) UpdateSyncStatus(_ context.Context, id string, status models.SyncStatus, syncErr string) error {
	m.subs[id].CRMSyncStatus = status
	m.subs[id].CRMSyncError = syncErr
	return nil
}

type memDocuments struct {
	docs   map[string]*models.Document
	nextID int
}

func (m *memDocuments) Create(_ context.Context, doc *models.Document) error {
	m.nextID++
	doc.ID = fmt.Sprintf("doc-%d", m.nextID)
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *memDocuments) ListBySubmission(_ context.Context, submissionID string) ([]models.Document, error) {
	var out []models.Document
	for i := 1; i <= m.nextID; i++ {
		if doc, ok := m.docs[fmt.Sprintf("doc-%d", i)]; ok && doc.SubmissionID == submissionID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (m *memDocuments) Get(_ context.Context, id string) (*models.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	clone := *doc
	return &clone, nil
}

func (m *memDocuments) UpdateStatusCAS(_ context.Context, id string, from, to models.DocumentStatus) error {
	doc := m.docs[id]
	if doc.Status != from {
		return errors.NewConflictError("document", id, string(from), string(doc.Status))
	}
	doc.Status = to
	return nil
}

func (m *memDocuments) SetRenderResult(_ context.Context, id, renderRef, viewerURL, pdfURL string) error {
	doc := m.docs[id]
	doc.RenderRef = renderRef
	doc.ViewerURL = viewerURL
	doc.PDFURL = pdfURL
	return nil
}

type memSurveys struct {
	bySubmission map[string]*models.SurveyResponse
}

func (m *memSurveys) Append(_ context.Context, resp *models.SurveyResponse) error {
	clone := *resp
	m.bySubmission[resp.SubmissionID] = &clone
	return nil
}

func (m *memSurveys) Latest(_ context.Context, submissionID string) (*models.SurveyResponse, error) {
	return m.bySubmission[submissionID], nil
}

type memDrafts struct {
	drafts []models.GeneratedDraft
}

func (m *memDrafts) Append(_ context.Context, draft *models.GeneratedDraft) error {
	m.drafts = append(m.drafts, *draft)
	return nil
}

type memProjects struct {
	projects map[string]*models.ProjectConfig
}

func (m *memProjects) Get(_ context.Context, projectID string) (*models.ProjectConfig, error) {
	return m.projects[projectID], nil
}

// trackerFake enforces the same rules as the real tracker against the
// in-memory stores.
type trackerFake struct {
	subs *memSubmissions
	docs *memDocuments
	log  []string
}

func (t *trackerFake) Current(ctx context.Context, submissionID string) (*models.Submission, error) {
	return t.subs.Get(ctx, submissionID)
}

func (t *trackerFake) Transition(_ context.Context, submissionID string, fromGuard, to models.SubmissionStatus, detail string) error {
	if !fromGuard.CanTransition(to) {
		return errors.NewValidationError(fmt.Sprintf("transition %s -> %s is not allowed", fromGuard, to), nil)
	}
	sub := t.subs.subs[submissionID]
	if sub.Status != fromGuard {
		return errors.NewConflictError("submission", submissionID, string(fromGuard), string(sub.Status))
	}
	sub.Status = to
	t.log = append(t.log, string(to))
	return nil
}

func (t *trackerFake) TransitionDocument(_ context.Context, documentID string, fromGuard, to models.DocumentStatus) error {
	doc := t.docs.docs[documentID]
	if doc.Status != fromGuard {
		return errors.NewConflictError("document", documentID, string(fromGuard), string(doc.Status))
	}
	doc.Status = to
	return nil
}

type fakeGenerator struct {
	err   error
	calls int
}

func (f *fakeGenerator) Execute(_ context.Context, input *generate.Input) (*generate.Output, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &generate.Output{
		Text:     "The proposal overshadows adjoining lots.",
		Provider: "openai",
		Model:    "gpt-4o",
	}, nil
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) CreateDocument(_ context.Context, templateID string, _ map[string]string) (*docrender.RenderedDocument, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &docrender.RenderedDocument{
		ID:        fmt.Sprintf("render-%d", f.calls),
		ViewerURL: "https://render.example.com/view/" + templateID,
		PDFURL:    "https://render.example.com/pdf/" + templateID,
	}, nil
}

type fakeFinalizer struct {
	errs  []error
	calls int
}

func (f *fakeFinalizer) Execute(_ context.Context, _ *finalize.Input) (*finalize.Output, error) {
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return &finalize.Output{CouncilMessageID: "msg-1", ConfirmationSent: true}, nil
}

type fakeCRM struct {
	upserts int
	pushes  int
	err     error
}

func (f *fakeCRM) UpsertPerson(_ context.Context, _ *crm.Person) (string, error) {
	f.upserts++
	if f.err != nil {
		return "", f.err
	}
	return "crm-1", nil
}

func (f *fakeCRM) PushSubmission(_ context.Context, _ *crm.SubmissionSync) error {
	f.pushes++
	return f.err
}

type recordingScheduler struct {
	scheduled []models.OperationType
	subs      *memSubmissions
}

func (r *recordingScheduler) Schedule(_ context.Context, submissionID string, opType models.OperationType, _ error) error {
	r.scheduled = append(r.scheduled, opType)
	if opType.Blocking() {
		if sub, ok := r.subs.subs[submissionID]; ok && sub.Status.CanTransition(models.StatusRetrying) {
			sub.Status = models.StatusRetrying
		}
	}
	return nil
}

// ---- harness ----

type harness struct {
	o         *Orchestrator
	subs      *memSubmissions
	docs      *memDocuments
	surveys   *memSurveys
	drafts    *memDrafts
	generator *fakeGenerator
	renderer  *fakeRenderer
	finalizer *fakeFinalizer
	crm       *fakeCRM
	scheduler *recordingScheduler
	tracker   *trackerFake
}

func newHarness(pathway models.Pathway) *harness {
	subs := &memSubmissions{subs: map[string]*models.Submission{}}
	docs := &memDocuments{docs: map[string]*models.Document{}}
	surveys := &memSurveys{bySubmission: map[string]*models.SurveyResponse{}}
	drafts := &memDrafts{}
	projects := &memProjects{projects: map[string]*models.ProjectConfig{
		"proj-1": {
			ProjectID:       "proj-1",
			Name:            "Harbour Rd Tower",
			Pathway:         pathway,
			CouncilEmail:    "planning@council.example.gov",
			CouncilName:     "Northfield Council",
			CoverTemplateID: "tmpl-cover",
			GroundsTemplates: map[models.Track]string{
				models.TrackSingle: "tmpl-grounds",
			},
			Concerns: []models.ConcernTemplate{
				{Key: "height", Body: "The building height exceeds the local plan."},
				{Key: "traffic", Body: "Traffic impact on the laneway is unassessed."},
			},
			BackgroundFacts: []string{"The site adjoins a heritage overlay."},
		},
	}}
	tracker := &trackerFake{subs: subs, docs: docs}
	generator := &fakeGenerator{}
	renderer := &fakeRenderer{}
	finalizer := &fakeFinalizer{}
	crmClient := &fakeCRM{}
	scheduler := &recordingScheduler{subs: subs}

	o := New(Dependencies{
		Submissions: subs,
		Documents:   docs,
		Surveys:     surveys,
		Drafts:      drafts,
		Projects:    projects,
		Tracker:     tracker,
		Generator:   generator,
		Assembler:   assemble.NewService(logger.NewNoOpLogger()),
		Finalizer:   finalizer,
		Renderer:    renderer,
		CRM:         crmClient,
		Scheduler:   scheduler,
		Logger:      logger.NewNoOpLogger(),
	})

	return &harness{
		o: o, subs: subs, docs: docs, surveys: surveys, drafts: drafts,
		generator: generator, renderer: renderer, finalizer: finalizer,
		crm: crmClient, scheduler: scheduler, tracker: tracker,
	}
}

func intake() *IntakeRequest {
	return &IntakeRequest{
		ProjectID:         "proj-1",
		ApplicantName:     "Dana Wu",
		ApplicantEmail:    "dana@example.com",
		ResidentialAddr:   "5 Elm St, Northfield",
		PostalSameAsHome:  true,
		SiteAddress:       "12 Harbour Rd",
		ApplicationNumber: "DA-2026-0042",
	}
}

func survey() *SurveyRequest {
	return &SurveyRequest{ConcernKeys: []string{"height", "traffic"}}
}

// ---- tests ----

func TestDirectPathwayRunsToComplete(t *testing.T) {
	h := newHarness(models.PathwayDirect)

	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, sub.Status)
	assert.Equal(t, models.SyncSynced, h.subs.subs[sub.ID].CRMSyncStatus)

	done, err := h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)

	assert.Equal(t, models.StatusComplete, done.Status)
	assert.Equal(t, 1, h.generator.calls)
	assert.Equal(t, 2, h.renderer.calls) // cover + grounds
	assert.Equal(t, 1, h.finalizer.calls)
	assert.NotEmpty(t, h.subs.subs[sub.ID].GroundsText)
	require.Len(t, h.drafts.drafts, 1)
	assert.Equal(t, "openai", h.drafts.drafts[0].Provider)

	docs, _ := h.docs.ListBySubmission(context.Background(), sub.ID)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, models.DocFinalized, doc.Status)
		assert.NotEmpty(t, doc.RenderRef)
	}
	assert.Empty(t, h.scheduler.scheduled)
}

func TestReviewPathwayWaitsForConfirmation(t *testing.T) {
	h := newHarness(models.PathwayReview)

	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)

	paused, err := h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)
	assert.Equal(t, models.StatusReadyForReview, paused.Status)
	assert.Equal(t, 0, h.finalizer.calls)

	done, err := h.o.ConfirmAndFinalize(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, done.Status)
	assert.Equal(t, 1, h.finalizer.calls)
}

func TestManualEditRevisesDraftAndRerenders(t *testing.T) {
	h := newHarness(models.PathwayReview)

	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)
	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)

	rendersBefore := h.renderer.calls
	err = h.o.RecordManualEdit(context.Background(), sub.ID, "My own words about overshadowing.")
	require.NoError(t, err)

	assert.Equal(t, models.StatusUserEditing, h.subs.subs[sub.ID].Status)
	assert.Equal(t, "My own words about overshadowing.", h.subs.subs[sub.ID].GroundsText)
	require.Len(t, h.drafts.drafts, 2)
	assert.Equal(t, "user", h.drafts.drafts[1].Provider)
	// One grounds doc refreshed in place.
	assert.Equal(t, rendersBefore+1, h.renderer.calls)

	done, err := h.o.ConfirmAndFinalize(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, done.Status)
}

func TestTransientFinalizeFailureParksSubmission(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	h.finalizer.errs = []error{errors.NewTransientError("email", fmt.Errorf("throttled"))}

	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)

	parked, err := h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)

	assert.Equal(t, models.StatusRetrying, parked.Status)
	assert.Equal(t, []models.OperationType{models.OpEmailSend}, h.scheduler.scheduled)
}

func TestHandleRetryRecoversParkedSubmission(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	h.finalizer.errs = []error{errors.NewTransientError("email", fmt.Errorf("throttled"))}

	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)
	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)
	require.Equal(t, models.StatusRetrying, h.subs.subs[sub.ID].Status)

	err = h.o.HandleRetry(context.Background(), &models.RetryOperation{
		OperationType: models.OpEmailSend,
		SubmissionID:  sub.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, h.subs.subs[sub.ID].Status)
	assert.Equal(t, 2, h.finalizer.calls)
	// The generator was not re-billed during recovery.
	assert.Equal(t, 1, h.generator.calls)
}

func TestHandleRetryStillFailingReturnsError(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	h.finalizer.errs = []error{
		errors.NewTransientError("email", fmt.Errorf("throttled")),
		errors.NewTransientError("email", fmt.Errorf("still throttled")),
	}

	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)
	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)

	err = h.o.HandleRetry(context.Background(), &models.RetryOperation{
		OperationType: models.OpEmailSend,
		SubmissionID:  sub.ID,
	})

	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, models.StatusRetrying, h.subs.subs[sub.ID].Status)
}

func TestCRMFailureDoesNotBlockIntake(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	h.crm.err = errors.NewTransientError("crm", fmt.Errorf("502"))

	sub, err := h.o.CreateSubmission(context.Background(), intake())

	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, h.subs.subs[sub.ID].Status)
	assert.Equal(t, models.SyncError, h.subs.subs[sub.ID].CRMSyncStatus)
	assert.Equal(t, []models.OperationType{models.OpCRMSync}, h.scheduler.scheduled)
}

func TestCompleteSurveyRejectsWrongState(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)
	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)

	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, survey())

	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestCompleteSurveyRequiresConcernsOrCustomGrounds(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)

	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, &SurveyRequest{})

	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestCreateSubmissionValidatesIntake(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	req := intake()
	req.ApplicantEmail = "not-an-email"
	req.PostalSameAsHome = false

	_, err := h.o.CreateSubmission(context.Background(), req)

	require.Error(t, err)
	verr, ok := errors.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, verr.Issues, 2)
}

func TestConfirmAndFinalizeRejectsUnreviewedState(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	sub, err := h.o.CreateSubmission(context.Background(), intake())
	require.NoError(t, err)

	_, err = h.o.ConfirmAndFinalize(context.Background(), sub.ID)

	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestDualTrackRendersThreeDocuments(t *testing.T) {
	h := newHarness(models.PathwayDirect)
	req := intake()
	req.Track = models.TrackComprehensive

	sub, err := h.o.CreateSubmission(context.Background(), req)
	require.NoError(t, err)
	_, err = h.o.CompleteSurvey(context.Background(), sub.ID, survey())
	require.NoError(t, err)

	docs, _ := h.docs.ListBySubmission(context.Background(), sub.ID)
	assert.Len(t, docs, 3)
}
