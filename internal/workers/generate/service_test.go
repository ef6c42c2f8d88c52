package generate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/integrations/ai"
)

type stubProvider struct {
	name    string
	result  *ai.Result
	err     error
	lastReq *ai.Request
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Generate(_ context.Context, req *ai.Request) (*ai.Result, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *stubProvider) Healthy(_ context.Context) error { return nil }

func newTestService(primary, fallback ai.Provider, enabled bool) *Service {
	cfg := DefaultConfig()
	cfg.Enabled = enabled
	return NewService(ServiceDependencies{
		Primary:  primary,
		Fallback: fallback,
		Logger:   logger.NewNoOpLogger(),
	}, cfg)
}

func TestExecuteUsesPrimaryWhenEnabled(t *testing.T) {
	primary := &stubProvider{
		name:   "openai",
		result: &ai.Result{Text: "The proposed height is excessive.", Provider: "openai", Model: "gpt-4o"},
	}
	fallback := &stubProvider{name: "mock", result: &ai.Result{Text: "mock", Provider: "mock"}}
	svc := newTestService(primary, fallback, true)

	out, err := svc.Execute(context.Background(), &Input{
		SubmissionID:  "sub-1",
		ApplicantName: "Jordan Lee",
		Concerns:      []string{"Building height exceeds the local plan."},
	})

	require.NoError(t, err)
	assert.Equal(t, "openai", out.Provider)
	assert.Equal(t, "The proposed height is excessive.", out.Text)
	require.NotNil(t, primary.lastReq)
	assert.Nil(t, fallback.lastReq)
}

func TestExecuteFallsBackWhenDisabled(t *testing.T) {
	primary := &stubProvider{name: "openai", result: &ai.Result{Text: "real", Provider: "openai"}}
	fallback := &stubProvider{name: "mock", result: &ai.Result{Text: "mock draft", Provider: "mock"}}
	svc := newTestService(primary, fallback, false)

	out, err := svc.Execute(context.Background(), &Input{
		SubmissionID: "sub-2",
		Concerns:     []string{"Traffic impact on the laneway."},
	})

	require.NoError(t, err)
	assert.Equal(t, "mock", out.Provider)
	assert.Nil(t, primary.lastReq)
}

func TestExecuteValidatesInput(t *testing.T) {
	svc := newTestService(&stubProvider{name: "openai"}, nil, true)

	_, err := svc.Execute(context.Background(), &Input{SubmissionID: "sub-3"})

	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	verr, ok := errors.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, verr.Issues, 1)
	assert.Equal(t, "concerns", verr.Issues[0].Field)
}

func TestExecuteStripsApplicantOfRecordSentences(t *testing.T) {
	primary := &stubProvider{
		name: "openai",
		result: &ai.Result{
			Text:     "As Jordan Lee, the applicant, I propose this development. The shadow impact on my yard is severe.",
			Provider: "openai",
		},
	}
	svc := newTestService(primary, nil, true)

	out, err := svc.Execute(context.Background(), &Input{
		SubmissionID:  "sub-4",
		ApplicantName: "Jordan Lee",
		Concerns:      []string{"Overshadowing."},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, out.StrippedSentences)
	assert.Equal(t, "The shadow impact on my yard is severe.", out.Text)
}

func TestExecuteFailsWhenNothingRemains(t *testing.T) {
	primary := &stubProvider{
		name:   "openai",
		result: &ai.Result{Text: "Jordan Lee is the proponent of this application.", Provider: "openai"},
	}
	svc := newTestService(primary, nil, true)

	_, err := svc.Execute(context.Background(), &Input{
		SubmissionID:  "sub-5",
		ApplicantName: "Jordan Lee",
		Concerns:      []string{"Noise."},
	})

	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestExecutePropagatesTransientProviderError(t *testing.T) {
	primary := &stubProvider{name: "openai", err: errors.NewTransientError("ai_provider", fmt.Errorf("rate limited"))}
	svc := newTestService(primary, nil, true)

	_, err := svc.Execute(context.Background(), &Input{
		SubmissionID: "sub-6",
		Concerns:     []string{"Parking."},
	})

	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestExtractLinksDeduplicatesAndTrims(t *testing.T) {
	links := extractLinks([]string{
		"See https://council.example.gov/plans/2024. And https://council.example.gov/plans/2024.",
		"Survey at https://maps.example.com/lot-12,",
	})

	assert.Equal(t, []string{
		"https://council.example.gov/plans/2024",
		"https://maps.example.com/lot-12",
	}, links)
}
