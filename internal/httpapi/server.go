// Package httpapi exposes the engine over HTTP: citizen submission
// endpoints, document review operations, the CRM webhook receiver and
// the operator surface for retries and health.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"objection-engine/internal/common/logger"
	"objection-engine/internal/health"
	"objection-engine/internal/models"
	"objection-engine/internal/webhook"
	"objection-engine/internal/workflow"
)

// Workflow is the orchestrator surface the API calls.
type Workflow interface {
	CreateSubmission(ctx context.Context, req *workflow.IntakeRequest) (*models.Submission, error)
	CompleteSurvey(ctx context.Context, submissionID string, req *workflow.SurveyRequest) (*models.Submission, error)
	RecordManualEdit(ctx context.Context, submissionID, text string) error
	ConfirmAndFinalize(ctx context.Context, submissionID string) (*models.Submission, error)
}

// SubmissionReader serves read endpoints.
type SubmissionReader interface {
	Get(ctx context.Context, id string) (*models.Submission, error)
	AuditTrail(ctx context.Context, submissionID string) ([]models.StatusAudit, error)
}

type DocumentReader interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Document, error)
}

type DeliveryReader interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.DeliveryLog, error)
}

// DocTracker performs guarded document transitions.
type DocTracker interface {
	TransitionDocument(ctx context.Context, documentID string, fromGuard, to models.DocumentStatus) error
	RecordReview(ctx context.Context, documentID string, startedAt, completedAt *time.Time) error
}

// RetryAdmin is the operator surface of the retry engine.
type RetryAdmin interface {
	RetryNow(ctx context.Context, id string) (*models.RetryOperation, error)
	CancelOp(ctx context.Context, id string) error
	Statistics(ctx context.Context, window time.Duration) ([]models.RetryStat, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, body []byte, signature string) (*webhook.Receipt, error)
}

type HealthReporter interface {
	Snapshot() []health.Status
}

type Server struct {
	workflow    Workflow
	submissions SubmissionReader
	documents   DocumentReader
	deliveries  DeliveryReader
	tracker     DocTracker
	retries     RetryAdmin
	webhooks    WebhookProcessor
	health      HealthReporter
	logger      logger.Logger
}

type Dependencies struct {
	Workflow    Workflow
	Submissions SubmissionReader
	Documents   DocumentReader
	Deliveries  DeliveryReader
	Tracker     DocTracker
	Retries     RetryAdmin
	Webhooks    WebhookProcessor
	Health      HealthReporter
	Logger      logger.Logger
}

func NewServer(deps Dependencies) *Server {
	return &Server{
		workflow:    deps.Workflow,
		submissions: deps.Submissions,
		documents:   deps.Documents,
		deliveries:  deps.Deliveries,
		tracker:     deps.Tracker,
		retries:     deps.Retries,
		webhooks:    deps.Webhooks,
		health:      deps.Health,
		logger:      deps.Logger.WithFields(map[string]interface{}{"component": "httpapi"}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/submissions", func(r chi.Router) {
		r.Post("/", s.handleCreateSubmission)
		r.Route("/{submissionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSubmission)
			r.Post("/survey", s.handleCompleteSurvey)
			r.Put("/grounds", s.handleManualEdit)
			r.Get("/audit", s.handleAuditTrail)
			r.Get("/deliveries", s.handleDeliveries)
		})
	})

	r.Route("/documents/{submissionID}", func(r chi.Router) {
		r.Get("/status", s.handleDocumentStatus)
		r.Put("/status", s.handleDocumentTransition)
		r.Post("/finalize", s.handleFinalize)
	})

	r.Post("/webhooks/crm", s.handleWebhook)

	r.Route("/admin/retry", func(r chi.Router) {
		r.Get("/statistics", s.handleRetryStatistics)
		r.Post("/{operationID}", s.handleRetryNow)
		r.Delete("/{operationID}", s.handleRetryCancel)
	})

	r.Get("/health/system", s.handleSystemHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
