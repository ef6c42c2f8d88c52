package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/models"
	"objection-engine/internal/workflow"
)

const signatureHeader = "X-Crm-Signature"

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req workflow.IntakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sub, err := s.workflow.CreateSubmission(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	sub, err := s.submissions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if sub == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "submission not found"})
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCompleteSurvey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	var req workflow.SurveyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sub, err := s.workflow.CompleteSurvey(r.Context(), id, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleManualEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	var req struct {
		GroundsText string `json:"groundsText"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.workflow.RecordManualEdit(r.Context(), id, req.GroundsText); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	trail, err := s.submissions.AuditTrail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit": trail})
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	deliveries, err := s.deliveries.ListBySubmission(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": deliveries})
}

// handleDocumentStatus reports the submission lifecycle state together
// with every document's state.
func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")

	sub, err := s.submissions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if sub == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "submission not found"})
		return
	}

	docs, err := s.documents.ListBySubmission(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissionId": sub.ID,
		"status":       sub.Status,
		"documents":    docs,
	})
}

type documentTransitionRequest struct {
	DocumentID        string     `json:"documentId"`
	From              string     `json:"from"`
	To                string     `json:"to"`
	ReviewStartedAt   *time.Time `json:"reviewStartedAt,omitempty"`
	ReviewCompletedAt *time.Time `json:"reviewCompletedAt,omitempty"`
}

// handleDocumentTransition applies a guarded document transition and
// records review timestamps in the same call.
func (s *Server) handleDocumentTransition(w http.ResponseWriter, r *http.Request) {
	var req documentTransitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.DocumentID == "" {
		writeError(w, errors.NewFieldValidationError("documentId", "required"))
		return
	}

	if req.To != "" {
		err := s.tracker.TransitionDocument(r.Context(), req.DocumentID,
			models.DocumentStatus(req.From), models.DocumentStatus(req.To))
		if err != nil {
			writeError(w, err)
			return
		}
	}

	if req.ReviewStartedAt != nil || req.ReviewCompletedAt != nil {
		if err := s.tracker.RecordReview(r.Context(), req.DocumentID, req.ReviewStartedAt, req.ReviewCompletedAt); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"documentId": req.DocumentID, "status": req.To})
}

// handleFinalize is the applicant's approval: confirm must be explicit.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !req.Confirm {
		writeError(w, errors.NewFieldValidationError("confirm", "finalization requires confirm=true"))
		return
	}

	sub, err := s.workflow.ConfirmAndFinalize(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, errors.NewFieldValidationError("body", "could not read request body"))
		return
	}

	receipt, err := s.webhooks.Process(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRetryNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	op, err := s.retries.RetryNow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if op == nil {
		// The forced attempt succeeded and the row is gone.
		writeJSON(w, http.StatusOK, map[string]string{"operationId": id, "status": "resolved"})
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleRetryCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	if err := s.retries.CancelOp(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"operationId": id, "status": "cancelled"})
}

func (s *Server) handleRetryStatistics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, errors.NewFieldValidationError("window", fmt.Sprintf("invalid duration %q", raw)))
			return
		}
		window = parsed
	}

	stats, err := s.retries.Statistics(r.Context(), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":     window.String(),
		"statistics": stats,
	})
}

func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.health.Snapshot()

	overall := "healthy"
	for _, status := range snapshot {
		switch status.State {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     overall,
		"components": snapshot,
	})
}
