package models

import "time"

// SurveyResponse is the applicant's concern selection for a submission.
// Immutable once used for generation; a resubmission creates a new row.
type SurveyResponse struct {
	ID            string    `json:"id"`
	SubmissionID  string    `json:"submissionId"`
	ConcernKeys   []string  `json:"concernKeys"` // ordered
	StyleSample   string    `json:"styleSample,omitempty"`
	CustomGrounds string    `json:"customGrounds,omitempty"`
	Track         Track     `json:"track"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GeneratedDraft is an append-only audit row for every generation
// attempt. Manual applicant edits are recorded with Provider = "user".
type GeneratedDraft struct {
	ID               string    `json:"id"`
	SubmissionID     string    `json:"submissionId"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	Temperature      float32   `json:"temperature,omitempty"`
	PromptVersion    string    `json:"promptVersion,omitempty"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	OutputText       string    `json:"outputText"`
	InputSummary     string    `json:"inputSummary,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
