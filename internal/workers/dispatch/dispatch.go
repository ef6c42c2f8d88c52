// Package dispatch resolves a submission's pathway and track into a
// concrete delivery plan. The decision is a pure function of its inputs
// so the workflow can re-evaluate it at any point without side effects.
package dispatch

import (
	"fmt"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/models"
)

// Plan is the delivery behaviour selected for a submission.
type Plan struct {
	Pathway models.Pathway `json:"pathway"`
	Track   models.Track   `json:"track"`

	// RequiresConfirm gates delivery behind explicit applicant approval.
	RequiresConfirm bool `json:"requiresConfirm"`

	// IncludeInfoPack adds the objection guidance pack to the applicant
	// confirmation email (draft pathway only).
	IncludeInfoPack bool `json:"includeInfoPack"`

	// SecondGroundsDoc indicates the dual-track second grounds document.
	SecondGroundsDoc bool `json:"secondGroundsDoc"`

	// EmailTemplateKey selects the applicant-facing email body.
	EmailTemplateKey string `json:"emailTemplateKey"`

	// Ruleset names the decision for audit rows.
	Ruleset string `json:"ruleset"`
}

// Decide maps a (pathway, track) pair to its plan. Unknown values are a
// validation error, never a silent default.
func Decide(pathway models.Pathway, track models.Track) (*Plan, error) {
	if !pathway.Valid() {
		return nil, errors.NewFieldValidationError("pathway", fmt.Sprintf("unknown pathway %q", pathway))
	}
	if !track.Valid() {
		return nil, errors.NewFieldValidationError("track", fmt.Sprintf("unknown track %q", track))
	}

	plan := &Plan{
		Pathway:          pathway,
		Track:            track,
		RequiresConfirm:  pathway.RequiresConfirmation(),
		SecondGroundsDoc: track.DualTrack(),
		Ruleset:          fmt.Sprintf("%s/%s", pathway, track),
	}

	switch pathway {
	case models.PathwayDirect:
		plan.EmailTemplateKey = "applicant_lodged"
	case models.PathwayReview:
		plan.EmailTemplateKey = "applicant_review_ready"
	case models.PathwayDraft:
		plan.EmailTemplateKey = "applicant_draft_ready"
		plan.IncludeInfoPack = true
	}

	return plan, nil
}
