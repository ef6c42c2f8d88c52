package assemble

import "objection-engine/internal/models"

// Input carries everything document assembly needs. Assembly is pure:
// the same input always produces the same plans, so a retried assembly
// is safe to run any number of times.
type Input struct {
	Submission  *models.Submission
	Project     *models.ProjectConfig
	Survey      *models.SurveyResponse
	GroundsText string
}

// DocumentPlan is one document to be rendered: which template, which
// merge fields, and the resolved body text.
type DocumentPlan struct {
	DocType     models.DocType
	Track       models.Track
	TemplateID  string
	MergeFields map[string]string
	Body        string
}

// Output is the full set of plans for a submission. Direct pathway
// submissions get cover plus grounds; dual-track submissions carry a
// second, track-specific grounds document.
type Output struct {
	Documents []DocumentPlan
}
