package assemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/models"
)

func fixedService() *Service {
	return NewService(logger.NewNoOpLogger())
}

func testInput(track models.Track) *Input {
	return &Input{
		Submission: &models.Submission{
			ID:                "sub-1",
			CreatedAt:         time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			ApplicantName:     "Dana Wu",
			ApplicantEmail:    "dana@example.com",
			ResidentialAddr:   "5 Elm St, Northfield",
			PostalSameAsHome:  true,
			SiteAddress:       "12 Harbour Rd",
			ApplicationNumber: "DA-2026-0042",
			Track:             track,
		},
		Project: &models.ProjectConfig{
			ProjectID:       "proj-1",
			Name:            "Harbour Rd Tower",
			CouncilName:     "Northfield Council",
			CoverTemplateID: "tmpl-cover",
			GroundsTemplates: map[models.Track]string{
				models.TrackSingle:        "tmpl-grounds",
				models.TrackComprehensive: "tmpl-grounds-comp",
			},
		},
		GroundsText: "The proposal at {{site_address}} overshadows neighbouring lots.",
	}
}

func TestExecuteProducesCoverAndGrounds(t *testing.T) {
	out, err := fixedService().Execute(testInput(models.TrackSingle))

	require.NoError(t, err)
	require.Len(t, out.Documents, 2)

	cover, grounds := out.Documents[0], out.Documents[1]
	assert.Equal(t, models.DocTypeCover, cover.DocType)
	assert.Equal(t, "tmpl-cover", cover.TemplateID)
	assert.Contains(t, cover.Body, "Dana Wu of 5 Elm St, Northfield")
	assert.Contains(t, cover.Body, "DA-2026-0042")
	assert.Contains(t, cover.Body, "14 March 2026")
	assert.NotContains(t, cover.Body, "{{")

	assert.Equal(t, models.DocTypeGrounds, grounds.DocType)
	assert.Equal(t, "The proposal at 12 Harbour Rd overshadows neighbouring lots.", grounds.Body)
}

func TestExecuteDualTrackAddsSecondGroundsDoc(t *testing.T) {
	out, err := fixedService().Execute(testInput(models.TrackComprehensive))

	require.NoError(t, err)
	require.Len(t, out.Documents, 3)
	second := out.Documents[2]
	assert.Equal(t, models.DocTypeGrounds, second.DocType)
	assert.Equal(t, models.TrackComprehensive, second.Track)
	assert.Equal(t, "tmpl-grounds-comp", second.TemplateID)
}

func TestExecuteIsDeterministic(t *testing.T) {
	svc := fixedService()
	first, err := svc.Execute(testInput(models.TrackSingle))
	require.NoError(t, err)
	second, err := svc.Execute(testInput(models.TrackSingle))
	require.NoError(t, err)

	require.Len(t, second.Documents, len(first.Documents))
	for i := range first.Documents {
		assert.Equal(t, first.Documents[i].Body, second.Documents[i].Body)
		assert.Equal(t, first.Documents[i].MergeFields, second.Documents[i].MergeFields)
	}
}

func TestExecuteFlagsUnresolvedPlaceholdersVerbatim(t *testing.T) {
	input := testInput(models.TrackSingle)
	input.GroundsText = "Setbacks breach {{planning_scheme_clause}} and {{ overlay_code }}."

	_, err := fixedService().Execute(input)

	require.Error(t, err)
	verr, ok := errors.AsValidation(err)
	require.True(t, ok)
	require.Len(t, verr.Issues, 2)
	assert.Contains(t, verr.Issues[0].Message, "{{ overlay_code }}")
	assert.Contains(t, verr.Issues[1].Message, "{{planning_scheme_clause}}")
}

func TestExecuteUsesProjectMergeDefaults(t *testing.T) {
	input := testInput(models.TrackSingle)
	input.Project.MergeDefaults = map[string]string{"planning_scheme_clause": "Clause 55.04-5"}
	input.GroundsText = "Setbacks breach {{planning_scheme_clause}}."

	out, err := fixedService().Execute(input)

	require.NoError(t, err)
	assert.Equal(t, "Setbacks breach Clause 55.04-5.", out.Documents[1].Body)
}

func TestExecuteRequiresGroundsText(t *testing.T) {
	input := testInput(models.TrackSingle)
	input.GroundsText = "  "

	_, err := fixedService().Execute(input)

	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestPostalAddressFieldRespectsExplicitFlag(t *testing.T) {
	input := testInput(models.TrackSingle)
	input.Submission.PostalSameAsHome = false
	input.Submission.PostalAddr = "PO Box 9, Northfield"

	out, err := fixedService().Execute(input)

	require.NoError(t, err)
	assert.Contains(t, out.Documents[0].Body, "PO Box 9, Northfield")
}
