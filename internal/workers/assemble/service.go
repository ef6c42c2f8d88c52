// Package assemble turns a submission, its project configuration and the
// drafted grounds text into concrete document plans ready for rendering.
package assemble

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/models"
)

type Service struct {
	logger logger.Logger
}

func NewService(log logger.Logger) *Service {
	return &Service{logger: log}
}

// Execute builds the document plans for a submission. Any placeholder
// left unresolved after merging is returned verbatim as a validation
// issue rather than leaking into a council-facing document.
func (s *Service) Execute(input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	fields := s.mergeFields(input)

	var issues []errors.Issue
	resolve := func(docType models.DocType, text string) string {
		resolved, unresolved := substitute(text, fields)
		for _, ph := range unresolved {
			issues = append(issues, errors.Issue{
				Field:   string(docType),
				Message: fmt.Sprintf("unresolved merge placeholder %s", ph),
				Code:    "UNRESOLVED_PLACEHOLDER",
			})
		}
		return resolved
	}

	groundsBody := resolve(models.DocTypeGrounds, input.GroundsText)
	coverBody := resolve(models.DocTypeCover, coverLetterBody(input, fields))

	if len(issues) > 0 {
		return nil, errors.NewValidationError("document assembly found unresolved placeholders", issues)
	}

	docs := []DocumentPlan{
		{
			DocType:     models.DocTypeCover,
			Track:       input.Submission.Track,
			TemplateID:  input.Project.CoverTemplateID,
			MergeFields: fields,
			Body:        coverBody,
		},
		{
			DocType:     models.DocTypeGrounds,
			Track:       models.TrackSingle,
			TemplateID:  input.Project.GroundsTemplateFor(models.TrackSingle),
			MergeFields: fields,
			Body:        groundsBody,
		},
	}

	if input.Submission.Track.DualTrack() {
		docs = append(docs, DocumentPlan{
			DocType:     models.DocTypeGrounds,
			Track:       input.Submission.Track,
			TemplateID:  input.Project.GroundsTemplateFor(input.Submission.Track),
			MergeFields: fields,
			Body:        groundsBody,
		})
	}

	s.logger.Info("assembled document plans", map[string]interface{}{
		"submissionId": input.Submission.ID,
		"documents":    len(docs),
		"dualTrack":    input.Submission.Track.DualTrack(),
	})

	return &Output{Documents: docs}, nil
}

// mergeFields builds the flat field map. Submission values win over
// project defaults so a council-specific default never overrides what
// the objector actually entered.
func (s *Service) mergeFields(input *Input) map[string]string {
	sub := input.Submission
	fields := make(map[string]string, len(input.Project.MergeDefaults)+12)
	for k, v := range input.Project.MergeDefaults {
		fields[k] = v
	}
	fields["applicant_name"] = sub.ApplicantName
	fields["applicant_email"] = sub.ApplicantEmail
	fields["applicant_phone"] = sub.ApplicantPhone
	fields["residential_address"] = sub.ResidentialAddr
	fields["postal_address"] = sub.PostalAddress()
	fields["site_address"] = sub.SiteAddress
	fields["application_number"] = sub.ApplicationNumber
	fields["council_name"] = input.Project.CouncilName
	fields["project_name"] = input.Project.Name
	// Dated from the intake row, not the clock, so a re-render after a
	// retry produces the same bytes even across a day boundary.
	fields["submission_date"] = sub.CreatedAt.Format("2 January 2006")
	return fields
}

func coverLetterBody(input *Input, fields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: {{council_name}}\n")
	fmt.Fprintf(&b, "Re: Objection to development application {{application_number}}, {{site_address}}\n\n")
	fmt.Fprintf(&b, "Dear Assessment Officer,\n\n")
	fmt.Fprintf(&b, "I, {{applicant_name}} of {{residential_address}}, object to the above application. ")
	fmt.Fprintf(&b, "My grounds of objection are enclosed.\n\n")
	fmt.Fprintf(&b, "Correspondence may be sent to {{postal_address}}.\n\n")
	fmt.Fprintf(&b, "Dated {{submission_date}}\n")
	return b.String()
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// substitute replaces {{field}} placeholders and reports the ones with
// no value, verbatim as they appear in the source text.
func substitute(text string, fields map[string]string) (string, []string) {
	unresolved := make(map[string]bool)
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if val, ok := fields[key]; ok && val != "" {
			return val
		}
		unresolved[match] = true
		return match
	})

	if len(unresolved) == 0 {
		return out, nil
	}
	missing := make([]string, 0, len(unresolved))
	for ph := range unresolved {
		missing = append(missing, ph)
	}
	sort.Strings(missing)
	return out, missing
}

func validateInput(input *Input) error {
	var issues []errors.Issue
	if input.Submission == nil {
		issues = append(issues, errors.Issue{Field: "submission", Message: "required"})
	}
	if input.Project == nil {
		issues = append(issues, errors.Issue{Field: "project", Message: "required"})
	}
	if strings.TrimSpace(input.GroundsText) == "" {
		issues = append(issues, errors.Issue{Field: "groundsText", Message: "grounds text must be drafted before assembly"})
	}
	if len(issues) > 0 {
		return errors.NewValidationError("assembly input invalid", issues)
	}
	return nil
}
