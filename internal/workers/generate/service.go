package generate

import (
	"context"
	"regexp"
	"strings"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/integrations/ai"
)

const systemPrompt = `You are drafting a formal objection to a development application
on behalf of a community member. Write in plain, respectful language
addressed to the council assessment officer. Address each concern in the
order given, weaving in the background facts where relevant. The writer
is an objector, never the development applicant. Do not invent facts or
hyperlinks.`

type Service struct {
	config   *Config
	primary  ai.Provider
	fallback ai.Provider
	logger   logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:   config,
		primary:  deps.Primary,
		fallback: deps.Fallback,
		logger:   deps.Logger,
	}
}

// Execute drafts objection grounds for a submission. Provider failures
// come back classified for the retry engine; malformed output is a
// validation error for the caller.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	links := extractLinks(append(append([]string{}, input.Facts...), input.Concerns...))

	req := &ai.Request{
		SystemPrompt:  systemPrompt,
		Concerns:      input.Concerns,
		Facts:         input.Facts,
		StyleSample:   input.StyleSample,
		CustomGrounds: input.CustomGrounds,
		AllowedLinks:  links,
		Temperature:   s.temperature(input),
		MaxTokens:     s.maxTokens(input),
	}

	provider := s.selectProvider()

	s.logger.Info("drafting grounds", map[string]interface{}{
		"submissionId": input.SubmissionID,
		"provider":     provider.Name(),
		"concerns":     len(input.Concerns),
	})

	result, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	cleaned, stripped := stripApplicantReferences(result.Text, input.ApplicantName)
	if strings.TrimSpace(cleaned) == "" {
		return nil, errors.NewValidationError("generated text is empty after post-processing", []errors.Issue{
			{Field: "output", Message: "no usable content remained", Code: "EMPTY_OUTPUT"},
		})
	}

	if stripped > 0 {
		s.logger.Warn("stripped applicant-of-record references", map[string]interface{}{
			"submissionId": input.SubmissionID,
			"sentences":    stripped,
		})
	}

	return &Output{
		Text:              cleaned,
		Provider:          result.Provider,
		Model:             result.Model,
		Usage:             result.Usage,
		AllowedLinks:      links,
		StrippedSentences: stripped,
	}, nil
}

// selectProvider uses the primary when enabled; the mock fallback is a
// development and degraded-mode path only, checked at config load for
// production.
func (s *Service) selectProvider() ai.Provider {
	if s.config.Enabled && s.primary != nil {
		return s.primary
	}
	s.logger.Warn("AI provider disabled, using deterministic mock", map[string]interface{}{
		"environment": s.config.Environment,
	})
	return s.fallback
}

func (s *Service) temperature(input *Input) float32 {
	if input.Temperature > 0 {
		return input.Temperature
	}
	return s.config.Temperature
}

func (s *Service) maxTokens(input *Input) int {
	if input.MaxTokens > 0 {
		return input.MaxTokens
	}
	return s.config.MaxTokens
}

func (s *Service) validateInput(input *Input) error {
	var issues []errors.Issue
	if input.SubmissionID == "" {
		issues = append(issues, errors.Issue{Field: "submissionId", Message: "required"})
	}
	if len(input.Concerns) == 0 && strings.TrimSpace(input.CustomGrounds) == "" {
		issues = append(issues, errors.Issue{Field: "concerns", Message: "at least one concern or custom grounds is required"})
	}
	if len(issues) > 0 {
		return errors.NewValidationError("generation input invalid", issues)
	}
	return nil
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

// extractLinks builds the hyperlink allow-list from the source texts.
func extractLinks(sources []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, src := range sources {
		for _, link := range linkPattern.FindAllString(src, -1) {
			link = strings.TrimRight(link, ".,;")
			if !seen[link] {
				seen[link] = true
				out = append(out, link)
			}
		}
	}
	return out
}

// roleMarkers are phrases that, combined with the objector's own name,
// indicate the model has cast them as the development applicant.
var roleMarkers = []string{
	"the applicant",
	"the developer",
	"the proponent",
	"applicant of record",
	"proposed by",
	"application by",
	"development by",
}

var sentenceSplit = regexp.MustCompile(`(?s)[^.!?]*[.!?]`)

// stripApplicantReferences removes sentences that present the objector
// as the development applicant. The submitter objects to the
// application; they are never its author.
func stripApplicantReferences(text, applicantName string) (string, int) {
	name := strings.TrimSpace(applicantName)
	if name == "" {
		return text, 0
	}
	lowerName := strings.ToLower(name)

	sentences := sentenceSplit.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text, 0
	}

	var kept []string
	stripped := 0
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		drop := false
		if strings.Contains(lower, lowerName) {
			for _, marker := range roleMarkers {
				if strings.Contains(lower, marker) {
					drop = true
					break
				}
			}
		}
		if drop {
			stripped++
			continue
		}
		kept = append(kept, strings.TrimSpace(sentence))
	}

	if stripped == 0 {
		return text, 0
	}
	return strings.Join(kept, " "), stripped
}
