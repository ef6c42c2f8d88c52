package ai

import (
	"context"
	"strings"
)

// MockProvider deterministically concatenates the approved facts and
// concern bodies verbatim. Used in development and as a last-resort
// degraded mode; the generation service refuses to select it silently
// in production.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Generate(_ context.Context, req *Request) (*Result, error) {
	var b strings.Builder

	for _, fact := range req.Facts {
		b.WriteString(fact)
		b.WriteString("\n\n")
	}
	for _, concern := range req.Concerns {
		b.WriteString(concern)
		b.WriteString("\n\n")
	}
	if req.CustomGrounds != "" {
		b.WriteString(req.CustomGrounds)
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, emptyOutputError()
	}

	return &Result{
		Text:     text,
		Provider: "mock",
		Model:    "mock",
	}, nil
}

func (m *MockProvider) Healthy(context.Context) error { return nil }
