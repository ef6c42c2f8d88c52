package generate

import (
	"objection-engine/internal/common/logger"
	"objection-engine/internal/integrations/ai"
)

// Input carries everything the drafting step needs, already resolved:
// ordered concern bodies, approved facts, and the applicant's optional
// style sample and custom grounds.
type Input struct {
	SubmissionID  string   `json:"submissionId"`
	ApplicantName string   `json:"applicantName"`
	Concerns      []string `json:"concerns"`
	Facts         []string `json:"facts"`
	StyleSample   string   `json:"styleSample,omitempty"`
	CustomGrounds string   `json:"customGrounds,omitempty"`
	Temperature   float32  `json:"temperature"`
	MaxTokens     int      `json:"maxTokens"`
}

// Output is the drafted grounds plus provenance for the audit row.
type Output struct {
	Text              string        `json:"text"`
	Provider          string        `json:"provider"`
	Model             string        `json:"model"`
	Usage             ai.TokenUsage `json:"usage"`
	AllowedLinks      []string      `json:"allowedLinks,omitempty"`
	StrippedSentences int           `json:"strippedSentences"`
}

type ServiceDependencies struct {
	Primary  ai.Provider
	Fallback ai.Provider
	Logger   logger.Logger
}
