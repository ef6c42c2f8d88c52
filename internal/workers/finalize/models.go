package finalize

import (
	"objection-engine/internal/models"
	"objection-engine/internal/workers/dispatch"
)

// Input is one finalization request. The submission must already be in
// FINALIZING; the caller owns that transition.
type Input struct {
	Submission         *models.Submission
	Project            *models.ProjectConfig
	Plan               *dispatch.Plan
	ApplicantConfirmed bool
}

// Output reports what finalization actually did. CouncilSuppressed is
// true when the duplicate-send guard found an earlier sent delivery and
// skipped the council email.
type Output struct {
	CouncilMessageID  string
	CouncilSuppressed bool
	ConfirmationSent  bool
	Attachments       []models.AttachmentRef
}
